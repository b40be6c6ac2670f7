package block

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/rvoskit/internal/format"
	"github.com/joshuapare/rvoskit/internal/logger"
	"github.com/joshuapare/rvoskit/kernel/kfmt"
	"github.com/joshuapare/rvoskit/kernel/mem"
	"github.com/joshuapare/rvoskit/kernel/page"
)

// HeaderSize is the boundary tag size that precedes every payload.
const HeaderSize = format.BlockHeaderSize

// Allocator is a first-fit heap over a single arena with in-arena boundary
// tags.
type Allocator struct {
	arena *mem.Arena
	buf   []byte
	first mem.Addr

	// Page-backed heaps remember where their pages came from so they can grow.
	pages    *page.Allocator
	numPages int
	autoGrow bool

	stats allocatorStats
	log   *slog.Logger
}

// allocatorStats holds internal allocator counters.
type allocatorStats struct {
	AllocCalls       int   // Total Alloc() calls
	AllocMisses      int   // Alloc() calls that found no block
	FreeCalls        int   // Total Free() calls
	FreeIgnored      int   // Free() calls rejected as bad input
	BytesAllocated   int64 // Payload bytes handed out
	BytesFreed       int64 // Payload bytes returned
	SplitCount       int   // Number of block splits
	CoalesceForward  int   // Successor absorbed on free
	CoalesceBackward int   // Block absorbed into its predecessor on free
	GrowCalls        int   // Successful GrowByPages() calls
	GrowBytes        int64 // Bytes added via GrowByPages()
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLogger routes allocator debug output to l.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) { a.log = l }
}

// WithAutoGrow lets Alloc extend a page-backed heap on a miss instead of
// returning ErrNoSpace straight away.
func WithAutoGrow(enabled bool) Option {
	return func(a *Allocator) { a.autoGrow = enabled }
}

// New creates an allocator over the raw arena: one free block covering the
// arena minus one header.
func New(arena *mem.Arena, opts ...Option) (*Allocator, error) {
	a := &Allocator{}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logger.Or(a.log)

	if err := a.reset(arena); err != nil {
		return nil, err
	}
	return a, nil
}

// NewOnPages takes an n-page run from pages and builds the heap on it.
func NewOnPages(pages *page.Allocator, n int, opts ...Option) (*Allocator, error) {
	addr, err := pages.Alloc(n)
	if err != nil {
		return nil, fmt.Errorf("heap pages: %w", err)
	}
	region, err := pages.Region(addr, n)
	if err != nil {
		_ = pages.Free(addr)
		return nil, err
	}

	a, err := New(region, opts...)
	if err != nil {
		_ = pages.Free(addr)
		return nil, err
	}
	a.pages = pages
	a.numPages = n
	return a, nil
}

func (a *Allocator) reset(arena *mem.Arena) error {
	size := format.AlignDown(uint64(arena.Size()), format.WordSize)
	if size < 2*HeaderSize {
		return fmt.Errorf("%s: %w", arena, ErrArenaTooSmall)
	}

	a.arena = arena
	a.buf = arena.Bytes()[:size]
	a.first = arena.Base()

	a.writeHeader(a.first, mem.Null, mem.Null, size-HeaderSize, false)
	a.log.Debug("block init", "arena", arena.String(), "payload", size-HeaderSize)
	return nil
}

// Arena returns the arena the heap manages.
func (a *Allocator) Arena() *mem.Arena { return a.arena }

// Size returns the managed arena size in bytes (word aligned).
func (a *Allocator) Size() mem.Size { return mem.Size(len(a.buf)) }

// PageBacked reports whether the heap lives on pages from a page allocator.
func (a *Allocator) PageBacked() bool { return a.pages != nil }

// Alloc returns the payload address of a block of at least size bytes.
// On ErrNoSpace nothing has been modified.
func (a *Allocator) Alloc(size int) (mem.Addr, error) {
	if err := a.checkInit(); err != nil {
		return mem.Null, err
	}
	a.stats.AllocCalls++

	if size <= 0 {
		return mem.Null, ErrBadSize
	}
	need := uint64(format.Align8(size))

	if p := a.allocFirstFit(need); !p.IsNull() {
		return p, nil
	}

	if a.autoGrow && a.pages != nil {
		pages := int(format.AlignUp(need+HeaderSize, uint64(mem.PageSize)) >> mem.PageShift)
		if err := a.GrowByPages(pages); err == nil {
			if p := a.allocFirstFit(need); !p.IsNull() {
				return p, nil
			}
		} else {
			a.log.Debug("block grow on miss failed", "need", need, "pages", pages, "err", err)
		}
	}

	a.stats.AllocMisses++
	a.log.Debug("block alloc miss", "need", need)
	return mem.Null, ErrNoSpace
}

func (a *Allocator) allocFirstFit(need uint64) mem.Addr {
	for b := a.first; !b.IsNull(); b = a.next(b) {
		if a.taken(b) {
			continue
		}
		capacity := a.size(b)
		if need > capacity {
			continue
		}

		if capacity-need <= HeaderSize {
			// The remainder could not hold a useful block; hand over all of it.
			a.setTaken(b, true)
		} else {
			succ := a.next(b)
			tail := b.Add(mem.Size(HeaderSize + need))
			a.writeHeader(tail, b, succ, capacity-need-HeaderSize, false)
			if !succ.IsNull() {
				a.setFront(succ, tail)
			}
			a.setNext(b, tail)
			a.setSize(b, need)
			a.setTaken(b, true)
			a.stats.SplitCount++
		}

		a.stats.BytesAllocated += int64(a.size(b))
		a.log.Debug("block alloc", "block_head", b.String(), "block_size", a.size(b))
		return b.Add(HeaderSize)
	}
	return mem.Null
}

// Free releases the block whose payload starts at p and merges it with a
// free successor and then a free predecessor. Bad input is ignored and
// reported through the returned error; the list is never modified then.
func (a *Allocator) Free(p mem.Addr) error {
	if err := a.checkInit(); err != nil {
		return err
	}
	a.stats.FreeCalls++

	b, err := a.lookup(p)
	if err != nil {
		a.stats.FreeIgnored++
		return err
	}
	a.stats.BytesFreed += int64(a.size(b))

	if succ := a.next(b); !succ.IsNull() && !a.taken(succ) {
		a.absorb(b, succ)
		a.stats.CoalesceForward++
	}

	if prev := a.front(b); !prev.IsNull() && !a.taken(prev) {
		a.absorb(prev, b)
		a.stats.CoalesceBackward++
		a.log.Debug("block free", "merged_into", prev.String(), "size", a.size(prev))
		return nil
	}

	a.setTaken(b, false)
	a.log.Debug("block free", "block", b.String(), "size", a.size(b))
	return nil
}

// absorb extends into over victim, which must be its immediate successor,
// and unlinks victim from the list.
func (a *Allocator) absorb(into, victim mem.Addr) {
	after := a.next(victim)
	a.setSize(into, a.size(into)+a.size(victim)+HeaderSize)
	a.setNext(into, after)
	if !after.IsNull() {
		a.setFront(after, into)
	}
	a.clearHeader(victim)
}

// lookup maps a payload address to the header of a taken block.
func (a *Allocator) lookup(p mem.Addr) (mem.Addr, error) {
	if p.IsNull() || p < a.first.Add(HeaderSize) || p >= a.end() {
		return mem.Null, ErrBadAddress
	}
	want := p - HeaderSize
	for b := a.first; !b.IsNull() && b <= want; b = a.next(b) {
		if b != want {
			continue
		}
		if !a.taken(b) {
			return mem.Null, fmt.Errorf("%s already free: %w", p, ErrNotAllocated)
		}
		return b, nil
	}
	return mem.Null, fmt.Errorf("%s: %w", p, ErrNotAllocated)
}

// Bytes returns the payload of the taken block at p.
func (a *Allocator) Bytes(p mem.Addr) ([]byte, error) {
	if err := a.checkInit(); err != nil {
		return nil, err
	}
	b, err := a.lookup(p)
	if err != nil {
		return nil, err
	}
	off := a.offset(p)
	n := int(a.size(b))
	return a.buf[off : off+n : off+n], nil
}

// GrowByPages extends a page-backed heap by n pages. The page allocator must
// return the run that starts right at the current arena end; otherwise the
// pages are handed back and ErrGrowFail is returned.
func (a *Allocator) GrowByPages(n int) error {
	if err := a.checkInit(); err != nil {
		return err
	}
	if a.pages == nil {
		return ErrNotPageBacked
	}

	addr, err := a.pages.Alloc(n)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGrowFail, err)
	}
	if addr != a.end() {
		_ = a.pages.Free(addr)
		return fmt.Errorf("%w: pages at %s are not contiguous with heap end %s", ErrGrowFail, addr, a.end())
	}

	region, err := a.pages.Region(a.first, a.numPages+n)
	if err != nil {
		_ = a.pages.Free(addr)
		return fmt.Errorf("%w: %w", ErrGrowFail, err)
	}

	tail := a.tail()
	added := uint64(n) * uint64(mem.PageSize)
	a.arena = region
	a.buf = region.Bytes()
	a.numPages += n

	if !a.taken(tail) {
		a.setSize(tail, a.size(tail)+added)
	} else {
		a.writeHeader(addr, tail, mem.Null, added-HeaderSize, false)
		a.setNext(tail, addr)
	}

	a.stats.GrowCalls++
	a.stats.GrowBytes += int64(added)
	a.log.Debug("block grow", "pages", n, "heap_end", a.end().String())
	return nil
}

func (a *Allocator) tail() mem.Addr {
	b := a.first
	for next := a.next(b); !next.IsNull(); next = a.next(b) {
		b = next
	}
	return b
}

func (a *Allocator) end() mem.Addr {
	return a.first.Add(mem.Size(len(a.buf)))
}

// checkInit takes the fatal path for a nil or zero allocator. When the halt
// function returns, callers get ErrUninitialized instead.
func (a *Allocator) checkInit() error {
	if a == nil || a.buf == nil {
		kfmt.Panic(ErrUninitialized)
		return ErrUninitialized
	}
	return nil
}

// ============================================================================
// Boundary tag accessors
// ============================================================================

func (a *Allocator) offset(addr mem.Addr) int {
	return int(addr - a.first)
}

func (a *Allocator) front(b mem.Addr) mem.Addr {
	return mem.Addr(format.ReadU64(a.buf, a.offset(b)+format.BlockFrontOffset))
}

func (a *Allocator) next(b mem.Addr) mem.Addr {
	return mem.Addr(format.ReadU64(a.buf, a.offset(b)+format.BlockNextOffset))
}

func (a *Allocator) sizeFlag(b mem.Addr) uint64 {
	return format.ReadU64(a.buf, a.offset(b)+format.BlockSizeFlagOffset)
}

func (a *Allocator) size(b mem.Addr) uint64 {
	return a.sizeFlag(b) >> 1
}

func (a *Allocator) taken(b mem.Addr) bool {
	return a.sizeFlag(b)&format.BlockTaken != 0
}

func (a *Allocator) setFront(b, v mem.Addr) {
	format.PutU64(a.buf, a.offset(b)+format.BlockFrontOffset, uint64(v))
}

func (a *Allocator) setNext(b, v mem.Addr) {
	format.PutU64(a.buf, a.offset(b)+format.BlockNextOffset, uint64(v))
}

// setSize keeps the taken bit.
func (a *Allocator) setSize(b mem.Addr, size uint64) {
	flag := a.sizeFlag(b) & format.BlockTaken
	format.PutU64(a.buf, a.offset(b)+format.BlockSizeFlagOffset, size<<1|flag)
}

func (a *Allocator) setTaken(b mem.Addr, taken bool) {
	sf := a.sizeFlag(b) &^ format.BlockTaken
	if taken {
		sf |= format.BlockTaken
	}
	format.PutU64(a.buf, a.offset(b)+format.BlockSizeFlagOffset, sf)
}

func (a *Allocator) writeHeader(b, front, next mem.Addr, size uint64, taken bool) {
	off := a.offset(b)
	format.PutU64(a.buf, off+format.BlockFrontOffset, uint64(front))
	format.PutU64(a.buf, off+format.BlockNextOffset, uint64(next))
	sf := size << 1
	if taken {
		sf |= format.BlockTaken
	}
	format.PutU64(a.buf, off+format.BlockSizeFlagOffset, sf)
}

func (a *Allocator) clearHeader(b mem.Addr) {
	format.ClearWords(a.buf, a.offset(b), HeaderSize/format.WordSize)
}
