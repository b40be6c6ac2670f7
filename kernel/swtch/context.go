// Package swtch hands the single logical flow of control from one execution
// context to another.
//
// Each Context pairs a RISC-V register image with a parked goroutine. Only
// the flow that currently owns the CPU runs; every other context is blocked
// on its wake channel. Switch and Exit transfer ownership with a channel
// handoff, so state touched by consecutive owners needs no locking.
//
// The register image mirrors what the assembly switch_to would save and
// restore on the real machine. It is bookkeeping: the Go continuation is what
// actually resumes.
package swtch

import (
	"fmt"
	"runtime"
	"strings"
)

// Reg indexes a saved register in Context.Regs.
type Reg int

// Save order of the 31 general purpose registers (x0 is not saved).
const (
	RA Reg = iota
	SP
	GP
	TP
	T0
	T1
	T2
	S0
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6

	NumRegs
)

// ContextSize is the size of a saved register image in bytes.
const ContextSize = int(NumRegs) * 8

var regNames = [NumRegs]string{
	"ra", "sp", "gp", "tp", "t0", "t1", "t2", "s0", "s1",
	"a0", "a1", "a2", "a3", "a4", "a5", "a6", "a7",
	"s2", "s3", "s4", "s5", "s6", "s7", "s8", "s9", "s10", "s11",
	"t3", "t4", "t5", "t6",
}

func (r Reg) String() string {
	if r < 0 || r >= NumRegs {
		return fmt.Sprintf("Reg(%d)", int(r))
	}
	return regNames[r]
}

// Context is a saved execution context.
type Context struct {
	Regs [NumRegs]uint64

	entry   func()
	exitTo  *Context
	wake    chan struct{}
	kill    chan struct{}
	started bool
	done    bool
}

// New returns a context that runs entry on its first resume. A nil entry
// describes a flow that is already running, such as the scheduler's own.
func New(entry func()) *Context {
	return &Context{
		entry:   entry,
		wake:    make(chan struct{}),
		kill:    make(chan struct{}),
		started: entry == nil,
	}
}

// Get returns a saved register.
func (c *Context) Get(r Reg) uint64 { return c.Regs[r] }

// Set stores a register value in the image.
func (c *Context) Set(r Reg, v uint64) { c.Regs[r] = v }

// Started reports whether the context has run at least once.
func (c *Context) Started() bool { return c.started }

// Done reports whether the context has exited or been released.
func (c *Context) Done() bool { return c.done }

// String renders the register image, four registers per line.
func (c *Context) String() string {
	var sb strings.Builder
	for i := range NumRegs {
		fmt.Fprintf(&sb, "%-3s=%016x", i, c.Regs[i])
		if i%4 == 3 || i == NumRegs-1 {
			sb.WriteByte('\n')
		} else {
			sb.WriteString("  ")
		}
	}
	return sb.String()
}

// Switch parks the calling flow in from and resumes to. It returns when some
// other flow switches back into from. If from is released while parked, the
// calling goroutine terminates instead of returning.
func Switch(from, to *Context) {
	to.resume()
	select {
	case <-from.wake:
	case <-from.kill:
		runtime.Goexit()
	}
}

// Exit marks from finished and terminates the calling flow; to resumes once
// the flow's deferred calls have run. It never returns. from must be the
// caller's own context.
func Exit(from, to *Context) {
	from.done = true
	from.exitTo = to
	runtime.Goexit()
}

// Release terminates a context that will never be resumed again. A parked
// flow unwinds through runtime.Goexit; a flow that never started is dropped.
// Release must not be called on the running context.
func (c *Context) Release() {
	if c.done {
		return
	}
	c.done = true
	close(c.kill)
}

func (c *Context) resume() {
	if c.done {
		panic(fmt.Sprintf("swtch: resume of finished context (ra=%#x)", c.Regs[RA]))
	}
	if !c.started {
		c.started = true
		go c.run()
		return
	}
	c.wake <- struct{}{}
}

// run is the first frame of a context. entry must leave through Exit; a
// flow that simply returned would hold the CPU forever.
func (c *Context) run() {
	defer func() {
		if c.exitTo != nil {
			c.exitTo.resume()
		}
	}()
	c.entry()
}
