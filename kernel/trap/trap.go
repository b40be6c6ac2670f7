// Package trap routes machine traps to their handlers.
//
// The hart has no vectored mode, so every trap lands in Router.Dispatch with
// the faulting pc and the mcause value. Interrupts are acknowledged and
// passed to a per-source handler; environment calls are decoded into system
// calls; any other exception is fatal.
package trap

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/rvoskit/internal/logger"
	"github.com/joshuapare/rvoskit/kernel/kfmt"
)

// mcause decoding.
const (
	InterruptBit = uint64(1) << 63
	CodeMask     = 0xfff
)

// Interrupt codes.
const (
	IRQSoftware = 3
	IRQTimer    = 7
	IRQExternal = 11
)

// Exception codes handled without halting.
const (
	ExcEcallU = 8
	ExcEcallM = 11
)

// System call numbers, passed in a7.
const (
	SysYield = 1
	SysExit  = 2
)

// ecallLen is the size of the ecall instruction; the handler resumes past it.
const ecallLen = 4

// Handler serves one interrupt source.
type Handler func(epc, cause uint64)

// Syscalls is the kernel surface reachable through ecall.
type Syscalls interface {
	Yield()
	Exit()
}

// Stats counts dispatched traps.
type Stats struct {
	Software   int
	Timer      int
	External   int
	UnknownIRQ int
	Syscalls   int
	BadSyscall int
	Faults     int
}

// Router dispatches traps.
type Router struct {
	software Handler
	timer    Handler
	external Handler
	sys      Syscalls
	halt     func(msg string)
	log      *slog.Logger
	stats    Stats
}

// Option configures a Router.
type Option func(*Router)

// WithSoftware sets the machine software interrupt handler.
func WithSoftware(h Handler) Option { return func(r *Router) { r.software = h } }

// WithTimer sets the machine timer interrupt handler.
func WithTimer(h Handler) Option { return func(r *Router) { r.timer = h } }

// WithExternal sets the machine external interrupt handler.
func WithExternal(h Handler) Option { return func(r *Router) { r.external = h } }

// WithSyscalls binds ecall to sys.
func WithSyscalls(sys Syscalls) Option { return func(r *Router) { r.sys = sys } }

// WithHalt replaces the fatal path for unhandled exceptions.
func WithHalt(fn func(msg string)) Option { return func(r *Router) { r.halt = fn } }

// WithLogger routes trap debug output to l.
func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.log = l } }

// NewRouter creates a router. Interrupt sources without a handler just
// report themselves on the console.
func NewRouter(opts ...Option) *Router {
	r := &Router{
		halt: func(msg string) { kfmt.Panic(msg) },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logger.Or(r.log)
	return r
}

// Stats returns the dispatch counters.
func (r *Router) Stats() Stats { return r.stats }

// IsInterrupt reports whether cause describes an asynchronous trap.
func IsInterrupt(cause uint64) bool { return cause&InterruptBit != 0 }

// Code extracts the trap code from cause.
func Code(cause uint64) uint64 { return cause & CodeMask }

// Dispatch handles one trap and returns the pc to resume at. a7 carries the
// system call number for environment calls.
func (r *Router) Dispatch(epc, cause, a7 uint64) uint64 {
	code := Code(cause)
	r.log.Debug("trap", "epc", fmt.Sprintf("%#x", epc), "cause", fmt.Sprintf("%#x", cause))

	if IsInterrupt(cause) {
		r.interrupt(epc, cause, code)
		return epc
	}

	switch code {
	case ExcEcallU, ExcEcallM:
		r.syscall(a7)
		return epc + ecallLen
	default:
		r.stats.Faults++
		kfmt.Printf("Sync exceptions!, code = %d\n", code)
		kfmt.Printf("%#x\n", cause)
		r.halt("OOPS! What can I do!")
		return epc
	}
}

func (r *Router) interrupt(epc, cause, code uint64) {
	var h Handler
	switch code {
	case IRQSoftware:
		r.stats.Software++
		kfmt.Printf("software interruption!\n")
		h = r.software
	case IRQTimer:
		r.stats.Timer++
		kfmt.Printf("timer interruption!\n")
		h = r.timer
	case IRQExternal:
		r.stats.External++
		kfmt.Printf("external interruption!\n")
		h = r.external
	default:
		r.stats.UnknownIRQ++
		kfmt.Printf("unknown async exception!\n")
		return
	}
	if h != nil {
		h(epc, cause)
	}
}

func (r *Router) syscall(num uint64) {
	if r.sys == nil {
		r.stats.BadSyscall++
		r.log.Warn("ecall with no syscall table", "a7", num)
		return
	}
	switch num {
	case SysYield:
		r.stats.Syscalls++
		r.sys.Yield()
	case SysExit:
		r.stats.Syscalls++
		r.sys.Exit()
	default:
		r.stats.BadSyscall++
		kfmt.Printf("unknown syscall %d\n", num)
	}
}
