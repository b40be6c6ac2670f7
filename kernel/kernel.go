// Package kernel boots the kernel core on a simulated RV64 machine: it maps
// RAM, brings up the console, the page and block allocators, the scheduler
// and the trap router, and runs tasks until none is left.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joshuapare/rvoskit/internal/config"
	"github.com/joshuapare/rvoskit/internal/idgen"
	"github.com/joshuapare/rvoskit/internal/logger"
	"github.com/joshuapare/rvoskit/internal/mmarena"
	"github.com/joshuapare/rvoskit/internal/tracing"
	"github.com/joshuapare/rvoskit/kernel/block"
	"github.com/joshuapare/rvoskit/kernel/console"
	"github.com/joshuapare/rvoskit/kernel/kfmt"
	"github.com/joshuapare/rvoskit/kernel/mem"
	"github.com/joshuapare/rvoskit/kernel/page"
	"github.com/joshuapare/rvoskit/kernel/sched"
	"github.com/joshuapare/rvoskit/kernel/swtch"
	"github.com/joshuapare/rvoskit/kernel/trap"
)

// Options carries host-side wiring that is not part of the machine config.
type Options struct {
	Console io.Writer    // UART transmit side; default os.Stdout
	Logger  *slog.Logger // default logger.L
	Session string       // boot session id; generated when empty
}

// Kernel is a booted machine.
type Kernel struct {
	cfg     *config.Config
	session string
	log     *slog.Logger

	console *console.Console
	arena   *mem.Arena
	unmap   func() error

	pages *page.Allocator // pages mode only
	heap  *block.Allocator
	sched *sched.Scheduler
	traps *trap.Router

	pc uint64 // pseudo program counter for ecalls issued by tasks
}

// TaskSpec describes a task for Run.
type TaskSpec struct {
	Name     string
	Entry    func(k *Kernel, arg any)
	Arg      any
	Priority int
}

// Boot builds a kernel from cfg. The returned kernel owns its RAM; call Close
// to release it.
func Boot(ctx context.Context, cfg *config.Config, opts Options) (k *Kernel, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	_, span := tracing.StartSpan(ctx, "kernel.boot")
	defer func() { tracing.End(span, err) }()

	k = &Kernel{
		cfg:     cfg,
		session: opts.Session,
		log:     logger.Or(opts.Logger),
		unmap:   func() error { return nil },
	}
	if k.session == "" {
		k.session = idgen.Short()
	}
	k.log = k.log.With("session", k.session)

	tx := opts.Console
	if tx == nil {
		tx = os.Stdout
	}
	if k.console, err = console.New(tx, cfg.Console.Charset); err != nil {
		return nil, err
	}
	kfmt.SetOutput(k.console)
	k.console.Puts("Hello,RVOS!\n")

	if err = k.mapRAM(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = k.unmap()
		}
	}()

	if err = k.initHeap(); err != nil {
		return nil, err
	}

	k.sched = sched.New(k.heap,
		sched.WithPriorities(cfg.Sched.Priorities),
		sched.WithStackSize(cfg.Sched.StackSize),
		sched.WithDelayScale(cfg.Sched.DelayScale),
		sched.WithLogger(k.log),
	)
	k.traps = trap.NewRouter(trap.WithSyscalls(k.sched), trap.WithLogger(k.log))

	span.SetString("session", k.session).
		SetString("heap.mode", cfg.Heap.Mode).
		SetInt("heap.size", int64(k.heap.Size())).
		SetInt("ram.size", int64(k.arena.Size()))
	k.log.Info("kernel boot", "ram", k.arena.String(), "heap_mode", cfg.Heap.Mode,
		"heap_size", k.heap.Size().String(), "backing", cfg.Heap.Backing)
	return k, nil
}

func (k *Kernel) mapRAM() error {
	size := int(k.cfg.Heap.Size)
	var buf []byte
	if k.cfg.Heap.Backing == config.BackingMmap && mmarena.Mapped {
		b, unmap, err := mmarena.Map(size)
		if err != nil {
			return err
		}
		buf, k.unmap = b, unmap
	} else {
		buf = make([]byte, size)
	}

	arena, err := mem.NewArena(mem.Addr(k.cfg.Heap.Base), buf)
	if err != nil {
		_ = k.unmap()
		return fmt.Errorf("kernel: RAM: %w", err)
	}
	k.arena = arena
	return nil
}

func (k *Kernel) initHeap() error {
	var err error
	switch k.cfg.Heap.Mode {
	case config.ModePages:
		if k.pages, err = page.New(k.arena, page.WithLogger(k.log)); err != nil {
			return err
		}
		k.pages.Dump(k.console)
		k.heap, err = block.NewOnPages(k.pages, k.cfg.Heap.Pages,
			block.WithLogger(k.log), block.WithAutoGrow(k.cfg.Heap.AutoGrow))
	default:
		k.heap, err = block.New(k.arena, block.WithLogger(k.log))
	}
	return err
}

// Config returns the configuration the kernel booted with.
func (k *Kernel) Config() *config.Config { return k.cfg }

// Session returns the boot session id.
func (k *Kernel) Session() string { return k.session }

// Console returns the kernel console.
func (k *Kernel) Console() *console.Console { return k.console }

// RAM returns the simulated physical memory.
func (k *Kernel) RAM() *mem.Arena { return k.arena }

// Pages returns the page allocator, or nil for a raw heap.
func (k *Kernel) Pages() *page.Allocator { return k.pages }

// Heap returns the block allocator.
func (k *Kernel) Heap() *block.Allocator { return k.heap }

// Scheduler returns the task scheduler.
func (k *Kernel) Scheduler() *sched.Scheduler { return k.sched }

// Traps returns the trap router.
func (k *Kernel) Traps() *trap.Router { return k.traps }

// Spawn creates a task from spec without running it.
func (k *Kernel) Spawn(spec TaskSpec) (*sched.Task, error) {
	if spec.Entry == nil {
		return nil, sched.ErrNilEntry
	}
	entry := spec.Entry
	t, err := k.sched.Create(func(arg any) { entry(k, arg) }, spec.Arg, spec.Priority)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", spec.Name, err)
	}
	if spec.Name != "" {
		t.SetName(spec.Name)
	}
	return t, nil
}

// Run creates tasks and dispatches until every task has exited (returning
// sched.ErrNoTask after the fatal banner) or ctx is done. If a task cannot
// be created, the ones created by this call are removed again and nothing
// runs. Run is not reentrant.
func (k *Kernel) Run(ctx context.Context, tasks ...TaskSpec) (err error) {
	ctx, span := tracing.StartSpan(ctx, "kernel.run")
	defer func() {
		span.SetInt("switches", int64(k.sched.Switches())).
			SetInt("tasks.left", int64(k.sched.NumTasks()))
		if errors.Is(err, sched.ErrNoTask) {
			tracing.End(span, nil)
			return
		}
		tracing.End(span, err)
	}()

	spawned := make([]*sched.Task, 0, len(tasks))
	for _, spec := range tasks {
		t, err := k.Spawn(spec)
		if err != nil {
			for _, t := range spawned {
				_ = k.sched.Remove(t)
			}
			return err
		}
		spawned = append(spawned, t)
	}
	return k.sched.Run(ctx)
}

// Syscall issues an ecall from the running task through the trap router.
func (k *Kernel) Syscall(num uint64) {
	if t := k.sched.Current(); t != nil {
		k.pc = t.Context()[swtch.RA]
	}
	k.pc = k.traps.Dispatch(k.pc, trap.ExcEcallM, num)
}

// Close stops every remaining task and releases RAM.
func (k *Kernel) Close() error {
	k.sched.Shutdown()
	return k.unmap()
}
