// Package kfmt implements the kernel's formatted output and its single fatal
// path. Output goes to whatever console Boot attached; before that it is
// dropped.
package kfmt

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

var (
	out atomic.Pointer[io.Writer]

	// haltFn is replaced by tests; the default parks the calling flow forever.
	haltFn = park
)

func init() {
	SetOutput(io.Discard)
}

// SetOutput attaches the console that Printf and Panic write to.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	out.Store(&w)
}

// Output returns the attached console.
func Output() io.Writer {
	return *out.Load()
}

// Printf formats according to a format specifier and writes to the console.
func Printf(format string, args ...any) {
	fmt.Fprintf(Output(), format, args...)
}

// Panic outputs the supplied value (a string or an error) to the console and
// halts. Panic never returns on the real machine; with a test halt function
// installed it returns after the halt function does.
func Panic(e any) {
	var msg string
	switch t := e.(type) {
	case string:
		msg = t
	case error:
		msg = t.Error()
	case nil:
	default:
		msg = fmt.Sprint(t)
	}

	Printf("\n-----------------------------------\n")
	if msg != "" {
		Printf("unrecoverable error: %s\n", msg)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	haltFn()
}

// SetHaltFunc swaps the halt implementation and returns the previous one.
func SetHaltFunc(fn func()) func() {
	prev := haltFn
	if fn == nil {
		fn = park
	}
	haltFn = fn
	return prev
}

// park is the wfi loop: the flow stops making progress but stays alive.
func park() {
	for {
		time.Sleep(time.Hour)
	}
}
