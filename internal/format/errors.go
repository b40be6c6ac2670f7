package format

import "errors"

// ErrMisaligned indicates an address or size violated the word alignment.
var ErrMisaligned = errors.New("format: misaligned record")
