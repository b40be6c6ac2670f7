// Package sched implements the cooperative priority scheduler.
//
// Tasks live on one circular, doubly linked ring per priority level; level 0
// is the highest. The run loop always serves the highest non-empty ring and
// rotates round-robin within it. Nothing preempts a task: control returns to
// the scheduler only through Yield or Exit.
//
// Every task control block is a block taken from the kernel heap, laid out
// as a private stack followed by the priority, the saved register image and
// the ring links. Ring links are TCB addresses; the scheduler resolves them
// through its task table.
//
// Exactly one flow runs at a time, either the scheduler's own (the caller of
// Run) or one task. State is therefore accessed without locks.
package sched

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joshuapare/rvoskit/internal/logger"
	"github.com/joshuapare/rvoskit/kernel/kfmt"
	"github.com/joshuapare/rvoskit/kernel/mem"
	"github.com/joshuapare/rvoskit/kernel/swtch"
)

// Defaults for New.
const (
	DefaultPriorities = 10
	DefaultStackSize  = 1024
	DefaultDelayScale = 50000
)

// Heap is the block allocator surface the scheduler stores TCBs in.
type Heap interface {
	Alloc(size int) (mem.Addr, error)
	Free(p mem.Addr) error
	Bytes(p mem.Addr) ([]byte, error)
}

// SwitchHook observes every dispatch. prev is nil after an exit or on the
// first dispatch.
type SwitchHook func(prev, next *Task)

// Scheduler owns the priority rings and the currently running task.
type Scheduler struct {
	heap       Heap
	priorities int
	stackSize  int
	delayScale int
	log        *slog.Logger
	halt       func(msg string)
	hook       SwitchHook

	heads   []mem.Addr
	tasks   map[mem.Addr]*Task
	current *Task
	self    *swtch.Context

	running  bool
	switches int
	created  int
	reaped   int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPriorities sets the number of priority levels.
func WithPriorities(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.priorities = n
		}
	}
}

// WithStackSize sets the per-task stack size in bytes; it is rounded up to
// the stack alignment.
func WithStackSize(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.stackSize = (n + 15) &^ 15
		}
	}
}

// WithDelayScale sets how many spin iterations one Delay unit costs.
func WithDelayScale(n int) Option {
	return func(s *Scheduler) {
		if n >= 0 {
			s.delayScale = n
		}
	}
}

// WithLogger routes scheduler debug output to l.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithHalt replaces the fatal path taken when no task is left to run. The
// default prints the kernel panic banner and parks the scheduler flow.
func WithHalt(fn func(msg string)) Option {
	return func(s *Scheduler) { s.halt = fn }
}

// WithSwitchHook installs a dispatch observer.
func WithSwitchHook(fn SwitchHook) Option {
	return func(s *Scheduler) { s.hook = fn }
}

// New creates a scheduler with empty rings that stores TCBs in heap.
func New(heap Heap, opts ...Option) *Scheduler {
	s := &Scheduler{
		heap:       heap,
		priorities: DefaultPriorities,
		stackSize:  DefaultStackSize,
		delayScale: DefaultDelayScale,
		halt:       func(msg string) { kfmt.Panic(msg) },
		tasks:      make(map[mem.Addr]*Task),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.Or(s.log)
	s.heads = make([]mem.Addr, s.priorities)
	return s
}

// Priorities returns the number of priority levels.
func (s *Scheduler) Priorities() int { return s.priorities }

// StackSize returns the per-task stack size.
func (s *Scheduler) StackSize() int { return s.stackSize }

// TCBSize returns the heap block size requested per task.
func (s *Scheduler) TCBSize() int { return s.stackSize + tcbTrailerSize }

// Create registers a new task at priority and returns it. The task becomes
// the entry point of its ring. On error nothing has changed.
func (s *Scheduler) Create(entry Entry, arg any, priority int) (*Task, error) {
	if priority < 0 || priority >= s.priorities {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrBadPriority, priority, s.priorities)
	}
	if entry == nil {
		return nil, ErrNilEntry
	}

	addr, err := s.heap.Alloc(s.TCBSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	tcb, err := s.heap.Bytes(addr)
	if err != nil {
		_ = s.heap.Free(addr)
		return nil, fmt.Errorf("%w: %w", ErrNoMemory, err)
	}
	clear(tcb)

	t := &Task{
		id:       addr,
		priority: priority,
		name:     entryName(entry),
		tcb:      tcb,
		stack:    s.stackSize,
		entry:    entry,
		arg:      arg,
	}
	t.ctx = swtch.New(func() { s.trampoline(t) })
	t.initContext()

	s.tasks[addr] = t
	s.insert(t)
	s.created++

	s.log.Debug("task create", "task", t.name, "tcb", addr.String(), "priority", priority,
		"ra", fmt.Sprintf("%#x", t.ctx.Get(swtch.RA)), "sp", fmt.Sprintf("%#x", t.ctx.Get(swtch.SP)))
	return t, nil
}

func (s *Scheduler) trampoline(t *Task) {
	t.entry(t.arg)
	s.Exit()
}

// Yield gives up the CPU. It returns when the scheduler next picks the
// calling task. Outside a task it does nothing.
func (s *Scheduler) Yield() {
	t := s.current
	if t == nil || s.self == nil {
		return
	}
	t.saveContext()
	swtch.Switch(t.ctx, s.self)
}

// Exit terminates the calling task. The scheduler unlinks it and frees its
// TCB before choosing the next task. Exit never returns to a task.
func (s *Scheduler) Exit() {
	t := s.current
	if t == nil || s.self == nil {
		s.halt("task exit outside a task")
		return
	}
	t.exited = true
	swtch.Exit(t.ctx, s.self)
}

// Run dispatches tasks until every ring is empty or ctx is done. With no task
// left the halt function runs and ErrNoTask is returned. Run is not
// reentrant.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.running {
		return ErrRunning
	}
	s.running = true
	s.self = swtch.New(nil)
	defer func() {
		s.running = false
		s.self = nil
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := s.pick()
		if next == nil {
			s.log.Debug("sched idle", "switches", s.switches, "reaped", s.reaped)
			s.halt("No task to schedule!")
			return ErrNoTask
		}

		prev := s.current
		s.current = next
		next.runs++
		s.switches++
		if s.hook != nil {
			s.hook(prev, next)
		}
		swtch.Switch(s.self, next.ctx)

		if t := s.current; t != nil && t.exited {
			s.reap(t)
		}
	}
}

// pick implements the dispatch rule: serve the highest non-empty ring,
// rotating from the current task when it sits on that ring.
func (s *Scheduler) pick() *Task {
	level := -1
	for p, head := range s.heads {
		if !head.IsNull() {
			level = p
			break
		}
	}
	if level < 0 {
		return nil
	}

	first := s.tasks[s.heads[level]]
	cur := s.current
	if cur != nil && cur.priority == level {
		return s.tasks[cur.next()]
	}
	return first
}

func (s *Scheduler) reap(t *Task) {
	s.unlink(t)
	delete(s.tasks, t.id)
	s.current = nil
	s.reaped++
	if err := s.heap.Free(t.id); err != nil {
		s.log.Warn("task tcb free failed", "task", t.name, "tcb", t.id.String(), "err", err)
	}
	t.tcb = nil
	s.log.Debug("task exit", "task", t.name, "tcb", t.id.String(), "runs", t.runs)
}

// Remove drops a task that does not hold the CPU: its context is released,
// it leaves its ring and its TCB returns to the heap.
func (s *Scheduler) Remove(t *Task) error {
	if t == nil || s.tasks[t.id] != t {
		return ErrUnknownTask
	}
	if t == s.current {
		if s.running {
			return ErrActive
		}
		s.current = nil
	}
	return s.drop(t)
}

// Shutdown releases every task still on a ring and frees its TCB. It must
// not be called while Run is active.
func (s *Scheduler) Shutdown() {
	for _, t := range s.tasks {
		_ = s.drop(t)
	}
	s.current = nil
}

func (s *Scheduler) drop(t *Task) error {
	t.ctx.Release()
	s.unlink(t)
	delete(s.tasks, t.id)
	err := s.heap.Free(t.id)
	t.tcb = nil
	s.log.Debug("task removed", "task", t.name, "tcb", t.id.String(), "runs", t.runs)
	return err
}

// Delay spins for count times the configured scale. It only burns CPU; it
// never yields.
func (s *Scheduler) Delay(count int) {
	spin(count * s.delayScale)
}

var sink uint64

func spin(n int) {
	for i := 0; i < n; i++ {
		sink++
	}
}

// Current returns the running task, or nil.
func (s *Scheduler) Current() *Task { return s.current }

// NumTasks returns the number of live tasks.
func (s *Scheduler) NumTasks() int { return len(s.tasks) }

// Switches returns the number of dispatches so far.
func (s *Scheduler) Switches() int { return s.switches }

// Lookup returns the task whose TCB is at id.
func (s *Scheduler) Lookup(id mem.Addr) (*Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// Tasks lists the ring at priority starting from its entry point.
func (s *Scheduler) Tasks(priority int) []*Task {
	if priority < 0 || priority >= s.priorities {
		return nil
	}
	head := s.heads[priority]
	if head.IsNull() {
		return nil
	}
	var out []*Task
	t := s.tasks[head]
	for {
		out = append(out, t)
		t = s.tasks[t.next()]
		if t.id == head {
			return out
		}
	}
}
