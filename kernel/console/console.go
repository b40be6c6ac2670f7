// Package console is the byte-oriented console the kernel core writes its
// diagnostics to. It stands in for the UART driver: the kernel only relies on
// WriteByte (which may report the line as busy) and the blocking WriteString.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrBusy indicates the transmitter did not accept the byte.
	ErrBusy = errors.New("console: transmitter busy")

	// ErrNoInput indicates there is no receive side attached or it is drained.
	ErrNoInput = errors.New("console: no input")

	// ErrCharset indicates an unknown charset name.
	ErrCharset = errors.New("console: unknown charset")
)

// maxBusyRetries bounds how long WriteString spins on a busy transmitter.
const maxBusyRetries = 1 << 16

// Charset names accepted by New.
const (
	CharsetUTF8        = "utf8"
	CharsetCP437       = "cp437"
	CharsetLatin1      = "latin1"
	CharsetWindows1252 = "windows1252"
)

// Console writes bytes to a transmit sink and reads from an optional
// receive source.
type Console struct {
	tx  io.Writer
	rx  io.Reader
	enc *encoding.Encoder
	one [1]byte

	written int64
}

// New creates a console on top of tx. charset selects how strings are
// encoded before they reach the byte line; an empty name means UTF-8
// passthrough.
func New(tx io.Writer, charset string) (*Console, error) {
	enc, err := encoderFor(charset)
	if err != nil {
		return nil, err
	}
	return &Console{tx: tx, enc: enc}, nil
}

// Discard returns a console that drops everything.
func Discard() *Console {
	return &Console{tx: io.Discard}
}

// WithInput attaches a receive source (the UART RHR on the board).
func (c *Console) WithInput(rx io.Reader) *Console {
	c.rx = rx
	return c
}

func encoderFor(charset string) (*encoding.Encoder, error) {
	var cm *charmap.Charmap
	switch strings.ToLower(charset) {
	case "", CharsetUTF8, "utf-8":
		return nil, nil
	case CharsetCP437, "ibm437":
		cm = charmap.CodePage437
	case CharsetLatin1, "iso-8859-1", "iso8859-1":
		cm = charmap.ISO8859_1
	case CharsetWindows1252, "cp1252":
		cm = charmap.Windows1252
	default:
		return nil, fmt.Errorf("%w: %q", ErrCharset, charset)
	}
	return encoding.ReplaceUnsupported(cm.NewEncoder()), nil
}

// WriteByte puts one byte on the line. It returns ErrBusy when the sink did
// not take it; the caller may retry.
func (c *Console) WriteByte(b byte) error {
	c.one[0] = b
	n, err := c.tx.Write(c.one[:])
	if n == 1 {
		c.written++
		return nil
	}
	if err == nil || errors.Is(err, io.ErrShortWrite) {
		return ErrBusy
	}
	return err
}

// WriteString encodes s and writes it byte by byte, waiting out busy
// signals. Output is sequential: it returns only after the last byte.
func (c *Console) WriteString(s string) (int, error) {
	if c.enc != nil {
		encoded, err := c.enc.String(s)
		if err != nil {
			return 0, fmt.Errorf("console: encode: %w", err)
		}
		s = encoded
	}
	for i := 0; i < len(s); i++ {
		if err := c.putBlocking(s[i]); err != nil {
			return i, err
		}
	}
	return len(s), nil
}

// Puts writes s and ignores failures, like uart_puts.
func (c *Console) Puts(s string) {
	_, _ = c.WriteString(s)
}

// Write implements io.Writer so fmt can target the console. Bytes are sent
// as-is, without charset conversion.
func (c *Console) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := c.putBlocking(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

func (c *Console) putBlocking(b byte) error {
	for range maxBusyRetries {
		err := c.WriteByte(b)
		if !errors.Is(err, ErrBusy) {
			return err
		}
	}
	return ErrBusy
}

// ReadByte returns the next received byte.
func (c *Console) ReadByte() (byte, error) {
	if c.rx == nil {
		return 0, ErrNoInput
	}
	var b [1]byte
	n, err := c.rx.Read(b[:])
	if n == 1 {
		return b[0], nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return 0, ErrNoInput
	}
	return 0, err
}

// Written returns the number of bytes accepted by the line so far.
func (c *Console) Written() int64 { return c.written }
