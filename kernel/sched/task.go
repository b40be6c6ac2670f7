package sched

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/joshuapare/rvoskit/internal/format"
	"github.com/joshuapare/rvoskit/kernel/mem"
	"github.com/joshuapare/rvoskit/kernel/swtch"
)

// Entry is a task body. It receives the argument given to Create and should
// finish with Scheduler.Exit; returning is treated the same way.
type Entry func(arg any)

// TCB layout inside the heap block (stack size S):
//
//	0x0000  stack        S bytes, grows down from S
//	S       priority     8 bytes
//	S+0x08  context      31 saved registers
//	S+0x100 front        TCB address of the ring predecessor
//	S+0x108 next         TCB address of the ring successor
const (
	tcbPriorityOffset = 0
	tcbContextOffset  = tcbPriorityOffset + format.WordSize
	tcbFrontOffset    = tcbContextOffset + swtch.ContextSize
	tcbNextOffset     = tcbFrontOffset + format.WordSize
	tcbTrailerSize    = tcbNextOffset + format.WordSize
)

// Task is a schedulable unit. Its control block lives in heap memory; the
// Task value is the kernel's handle on it.
type Task struct {
	id       mem.Addr
	priority int
	name     string
	tcb      []byte
	stack    int

	entry Entry
	arg   any
	ctx   *swtch.Context

	runs   int
	exited bool
}

// ID returns the TCB address, which identifies the task.
func (t *Task) ID() mem.Addr { return t.id }

// Priority returns the task's priority level (0 is highest).
func (t *Task) Priority() int { return t.priority }

// Name returns the entry function's short name.
func (t *Task) Name() string { return t.name }

// SetName overrides the name derived from the entry function.
func (t *Task) SetName(name string) { t.name = name }

// Runs returns how many times the task has been switched to.
func (t *Task) Runs() int { return t.runs }

// Context returns the saved register image as stored in the TCB.
func (t *Task) Context() [swtch.NumRegs]uint64 {
	var regs [swtch.NumRegs]uint64
	for i := range regs {
		regs[i] = format.ReadU64(t.tcb, t.trailer()+tcbContextOffset+i*format.WordSize)
	}
	return regs
}

func (t *Task) trailer() int { return t.stack }

func (t *Task) front() mem.Addr {
	return mem.Addr(format.ReadU64(t.tcb, t.trailer()+tcbFrontOffset))
}

func (t *Task) next() mem.Addr {
	return mem.Addr(format.ReadU64(t.tcb, t.trailer()+tcbNextOffset))
}

func (t *Task) setFront(v mem.Addr) {
	format.PutU64(t.tcb, t.trailer()+tcbFrontOffset, uint64(v))
}

func (t *Task) setNext(v mem.Addr) {
	format.PutU64(t.tcb, t.trailer()+tcbNextOffset, uint64(v))
}

// saveContext mirrors the register image into the TCB.
func (t *Task) saveContext() {
	off := t.trailer() + tcbContextOffset
	for i, v := range t.ctx.Regs {
		format.PutU64(t.tcb, off+i*format.WordSize, v)
	}
}

// initContext builds the first register image: ra at the entry point, sp at
// the top of the private stack and a0 holding an integer argument.
func (t *Task) initContext() {
	t.ctx.Set(swtch.RA, uint64(entryPC(t.entry)))
	sp := format.AlignDown(uint64(t.id.Add(mem.Size(t.stack))), format.StackAlignment)
	t.ctx.Set(swtch.SP, sp)
	if v, ok := argWord(t.arg); ok {
		t.ctx.Set(swtch.A0, v)
	}
	format.PutU64(t.tcb, t.trailer()+tcbPriorityOffset, uint64(t.priority))
	t.saveContext()
}

func entryPC(e Entry) uintptr {
	if e == nil {
		return 0
	}
	return reflect.ValueOf(e).Pointer()
}

func entryName(e Entry) string {
	fn := runtime.FuncForPC(entryPC(e))
	if fn == nil {
		return "task"
	}
	name := fn.Name()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func argWord(arg any) (uint64, bool) {
	switch v := arg.(type) {
	case int:
		return uint64(v), true
	case int32:
		return uint64(v), true
	case int64:
		return uint64(v), true
	case uint:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case uintptr:
		return uint64(v), true
	case mem.Addr:
		return uint64(v), true
	}
	return 0, false
}
