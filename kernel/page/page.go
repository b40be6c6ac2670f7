// Package page implements the page-granularity allocator.
//
// The arena is carved into 4 KiB pages. The first pages of the arena hold one
// flag byte per manageable page (taken, last); the pages after that are
// handed out in contiguous runs, first-fit. A run is freed by walking forward
// from its first page until the page flagged last.
//
//	arena base                alloc_start                          alloc_end
//	|  flag bytes (R pages)   |  page 0  |  page 1  | ... | page N-1 |
package page

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joshuapare/rvoskit/internal/format"
	"github.com/joshuapare/rvoskit/internal/logger"
	"github.com/joshuapare/rvoskit/kernel/kfmt"
	"github.com/joshuapare/rvoskit/kernel/mem"
)

// Allocator hands out contiguous page runs from an arena.
//
// Allocator instances are not thread-safe. The kernel runs a single flow at
// a time, which is the only mutator.
type Allocator struct {
	arena *mem.Arena

	// flags is the bookkeeping region at the start of the arena, one byte
	// per manageable page.
	flags []byte

	allocStart mem.Addr
	allocEnd   mem.Addr
	numPages   int
	reserved   int
	free       int

	log *slog.Logger
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLogger routes allocator debug output to l.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) { a.log = l }
}

// New performs page_init over arena: it reserves enough leading pages for the
// flag bytes, clears them and computes the allocatable window.
func New(arena *mem.Arena, opts ...Option) (*Allocator, error) {
	a := &Allocator{arena: arena}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logger.Or(a.log)

	pageSize := uint64(mem.PageSize)
	total := int(uint64(arena.Size()) / pageSize)
	// One flag byte per page of the whole arena is a slight over-reservation
	// (the reserved pages need no flag) but keeps the arithmetic closed form.
	reserved := (total + int(pageSize) - 1) / int(pageSize)

	allocStart := mem.Addr(format.AlignUp(uint64(arena.Base())+uint64(reserved)*pageSize, pageSize))
	var fit int
	if allocStart < arena.End() {
		fit = int(uint64(arena.End()-allocStart) / pageSize)
	}
	numPages := min(total-reserved, fit)
	if numPages <= 0 {
		return nil, fmt.Errorf("%s: %w", arena, ErrArenaTooSmall)
	}

	flags, err := arena.Slice(arena.Base(), numPages)
	if err != nil {
		return nil, err
	}
	clear(flags)

	a.flags = flags
	a.reserved = reserved
	a.numPages = numPages
	a.free = numPages
	a.allocStart = allocStart
	a.allocEnd = allocStart.Add(mem.Size(numPages) * mem.PageSize)

	a.log.Debug("page init",
		"heap_start", arena.Base().String(),
		"heap_size", arena.Size().String(),
		"reserved", reserved,
		"pages", numPages,
		"alloc_start", a.allocStart.String(),
		"alloc_end", a.allocEnd.String(),
	)
	return a, nil
}

// AllocStart returns the address of the first allocatable page.
func (a *Allocator) AllocStart() mem.Addr { return a.allocStart }

// AllocEnd returns the address one past the last allocatable page.
func (a *Allocator) AllocEnd() mem.Addr { return a.allocEnd }

// NumPages returns the number of manageable pages.
func (a *Allocator) NumPages() int { return a.numPages }

// Reserved returns the number of leading pages holding the flag bytes.
func (a *Allocator) Reserved() int { return a.reserved }

// FreePages returns the number of pages not currently taken.
func (a *Allocator) FreePages() int { return a.free }

// Arena returns the arena the allocator manages.
func (a *Allocator) Arena() *mem.Arena { return a.arena }

// Alloc finds the first run of n free pages, marks it taken with the final
// page flagged last and returns the address of the first page.
// Complexity: O(NumPages).
func (a *Allocator) Alloc(n int) (mem.Addr, error) {
	if err := a.checkInit(); err != nil {
		return mem.Null, err
	}
	if n <= 0 || n > a.free {
		return mem.Null, ErrNoPages
	}

	for i := 0; i+n <= a.numPages; {
		j := 0
		for ; j < n; j++ {
			if a.flags[i+j]&format.PageTaken != 0 {
				break
			}
		}
		if j < n {
			// Page i+j is taken; no run can start before the page after it.
			i += j + 1
			continue
		}

		for k := i; k < i+n; k++ {
			a.flags[k] = format.PageTaken
		}
		a.flags[i+n-1] |= format.PageLast
		a.free -= n

		addr := a.pageAddr(i)
		a.log.Debug("page alloc", "addr", addr.String(), "pages", n)
		return addr, nil
	}
	return mem.Null, ErrNoPages
}

// Free releases the run that starts at, or contains, addr. Null or
// out-of-range addresses are ignored; the returned error only informs the
// caller. The walk stops at the page flagged last and never leaves the
// allocatable window.
func (a *Allocator) Free(addr mem.Addr) error {
	if err := a.checkInit(); err != nil {
		return err
	}
	if addr.IsNull() || addr < a.allocStart || addr >= a.allocEnd {
		return ErrBadAddress
	}

	i := a.pageIndex(addr)
	if a.flags[i]&format.PageTaken == 0 {
		return ErrNotAllocated
	}

	freed := 0
	for ; i < a.numPages; i++ {
		f := a.flags[i]
		a.flags[i] = 0
		freed++
		if f&format.PageLast != 0 || i+1 >= a.numPages || a.flags[i+1]&format.PageTaken == 0 {
			break
		}
	}
	a.free += freed
	a.log.Debug("page free", "addr", addr.String(), "pages", freed)
	return nil
}

// Region returns an arena view over the n pages starting at addr.
func (a *Allocator) Region(addr mem.Addr, n int) (*mem.Arena, error) {
	if err := a.checkInit(); err != nil {
		return nil, err
	}
	if addr < a.allocStart || addr.Add(mem.Size(n)*mem.PageSize) > a.allocEnd {
		return nil, ErrBadAddress
	}
	return a.arena.Sub(addr, n*int(mem.PageSize))
}

// PageFlags describes one page's bookkeeping byte.
type PageFlags struct {
	Taken bool
	Last  bool
}

// Flags returns the flags of page i (0-based from AllocStart).
func (a *Allocator) Flags(i int) PageFlags {
	f := a.flags[i]
	return PageFlags{Taken: f&format.PageTaken != 0, Last: f&format.PageLast != 0}
}

// Run is one allocated page run.
type Run struct {
	Addr  mem.Addr
	Pages int
}

// Runs lists the allocated runs in address order.
func (a *Allocator) Runs() []Run {
	var runs []Run
	start := -1
	for i := 0; i < a.numPages; i++ {
		f := a.flags[i]
		if f&format.PageTaken == 0 {
			continue
		}
		if start < 0 {
			start = i
		}
		if f&format.PageLast != 0 {
			runs = append(runs, Run{Addr: a.pageAddr(start), Pages: i - start + 1})
			start = -1
		}
	}
	return runs
}

// Dump prints the page_init layout in the kernel's boot log format.
func (a *Allocator) Dump(w io.Writer) {
	fmt.Fprintf(w, "HEAP_START = %s, HEAP_SIZE = 0x%x, num of reserved pages = %d, num of pages to be allocated for heap = %d\n",
		a.arena.Base(), uint64(a.arena.Size()), a.reserved, a.numPages)
	fmt.Fprintf(w, "HEAP:   %s -> %s\n", a.allocStart, a.allocEnd)
	for _, r := range a.Runs() {
		fmt.Fprintf(w, "  run %s: %d page(s)\n", r.Addr, r.Pages)
	}
}

func (a *Allocator) pageAddr(i int) mem.Addr {
	return a.allocStart.Add(mem.Size(i) * mem.PageSize)
}

func (a *Allocator) pageIndex(addr mem.Addr) int {
	return int((addr - a.allocStart) >> mem.PageShift)
}

// checkInit takes the fatal path for a nil or zero allocator. When the halt
// function returns, callers get ErrUninitialized instead.
func (a *Allocator) checkInit() error {
	if a == nil || a.flags == nil {
		kfmt.Panic(ErrUninitialized)
		return ErrUninitialized
	}
	return nil
}
