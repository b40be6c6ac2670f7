package kernel

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshuapare/rvoskit/internal/tracing"
	"github.com/joshuapare/rvoskit/kernel/mem"
	"github.com/joshuapare/rvoskit/kernel/page"
)

// ErrSelfTest indicates a self-test observed the wrong allocator behaviour.
var ErrSelfTest = errors.New("kernel: self-test failed")

// MallocResult records the addresses handed out by MallocTest.
type MallocResult struct {
	P, P1, P2, P3, P4, P5 mem.Addr
	Merged                uint64 // size of the block formed by the three frees
	Reused                bool   // P5 landed on the merged block
}

// MallocTest runs the boot-time heap exercise: five allocations, three
// releases that must merge into one block, and a 1040-byte request that must
// be served from it. Everything is released again before returning.
func (k *Kernel) MallocTest(ctx context.Context) (res MallocResult, err error) {
	_, span := tracing.StartSpan(ctx, "kernel.malloc_test")
	defer func() { tracing.End(span, err) }()

	h := k.heap
	var live []mem.Addr
	defer func() {
		for _, p := range live {
			_ = h.Free(p)
		}
	}()
	alloc := func(name string, n int) (mem.Addr, error) {
		p, err := h.Alloc(n)
		if err != nil {
			return mem.Null, fmt.Errorf("malloc(%d): %w", n, err)
		}
		live = append(live, p)
		k.console.Puts(fmt.Sprintf("%s = %s\n", name, p))
		span.Event("alloc", "name", name, "size", fmt.Sprint(n), "addr", p.String())
		return p, nil
	}
	release := func(p mem.Addr) error {
		if err := h.Free(p); err != nil {
			return err
		}
		for i, q := range live {
			if q == p {
				live = append(live[:i], live[i+1:]...)
				break
			}
		}
		return nil
	}

	steps := []struct {
		name string
		size int
		dst  *mem.Addr
	}{
		{"p", 1024, &res.P}, {"p1", 512, &res.P1}, {"p2", 256, &res.P2},
		{"p3", 256, &res.P3}, {"p4", 128, &res.P4},
	}
	for _, s := range steps {
		if *s.dst, err = alloc(s.name, s.size); err != nil {
			return res, err
		}
	}

	for _, p := range []mem.Addr{res.P1, res.P3, res.P2} {
		if err = release(p); err != nil {
			return res, err
		}
	}
	for _, b := range h.Blocks() {
		if b.Payload == res.P1 && b.Free {
			res.Merged = b.Size
		}
	}

	if res.P5, err = alloc("p5", 1040); err != nil {
		return res, err
	}
	res.Reused = res.P5 == res.P1
	span.SetInt("merged", int64(res.Merged))

	if err = h.Verify(); err != nil {
		return res, err
	}
	if !res.Reused || res.Merged < 1040 {
		return res, fmt.Errorf("%w: merged block %d bytes, p5 %s, p1 %s", ErrSelfTest, res.Merged, res.P5, res.P1)
	}
	return res, nil
}

// PageResult records the runs handed out by PageTest.
type PageResult struct {
	A, B, C, D mem.Addr
	Reused     bool // D reused the run B released
	FreeBefore int
	FreeAfter  int
}

// pageTestPages is the scratch page pool used when the kernel has no page
// allocator of its own.
const pageTestPages = 32

// PageTest exercises the page allocator: runs of 2, 7 and 1 pages, release of
// the middle run and a 4-page request that must land where it was. A raw
// heap kernel builds a scratch page allocator inside a heap block.
func (k *Kernel) PageTest(ctx context.Context) (res PageResult, err error) {
	_, span := tracing.StartSpan(ctx, "kernel.page_test")
	defer func() { tracing.End(span, err) }()

	pages := k.pages
	if pages == nil {
		var release func()
		pages, release, err = k.scratchPages(pageTestPages)
		if err != nil {
			return res, err
		}
		defer release()
	}

	res.FreeBefore = pages.FreePages()
	var live []mem.Addr
	defer func() {
		for _, p := range live {
			_ = pages.Free(p)
		}
	}()
	alloc := func(n int) (mem.Addr, error) {
		p, err := pages.Alloc(n)
		if err != nil {
			return mem.Null, fmt.Errorf("page_alloc(%d): %w", n, err)
		}
		live = append(live, p)
		k.console.Puts(fmt.Sprintf("page_alloc(%d) = %s\n", n, p))
		return p, nil
	}

	if res.A, err = alloc(2); err != nil {
		return res, err
	}
	if res.B, err = alloc(7); err != nil {
		return res, err
	}
	if res.C, err = alloc(1); err != nil {
		return res, err
	}
	if err = pages.Free(res.B); err != nil {
		return res, err
	}
	live = []mem.Addr{res.A, res.C}
	if res.D, err = alloc(4); err != nil {
		return res, err
	}
	res.Reused = res.D == res.B
	span.SetInt("runs", int64(len(pages.Runs())))

	if !res.Reused {
		return res, fmt.Errorf("%w: 4-page run at %s, expected %s", ErrSelfTest, res.D, res.B)
	}
	for _, p := range live {
		_ = pages.Free(p)
	}
	live = nil
	res.FreeAfter = pages.FreePages()
	if res.FreeAfter != res.FreeBefore {
		return res, fmt.Errorf("%w: %d free pages after release, %d before", ErrSelfTest, res.FreeAfter, res.FreeBefore)
	}
	return res, nil
}

// scratchPages builds a page allocator over a heap block large enough for n
// pages after alignment and the flag table.
func (k *Kernel) scratchPages(n int) (*page.Allocator, func(), error) {
	size := (n+2)*int(mem.PageSize) - 1
	p, err := k.heap.Alloc(size)
	if err != nil {
		return nil, nil, fmt.Errorf("scratch pages: %w", err)
	}
	release := func() { _ = k.heap.Free(p) }

	buf, err := k.heap.Bytes(p)
	if err != nil {
		release()
		return nil, nil, err
	}
	arena, err := mem.NewArena(p, buf)
	if err != nil {
		release()
		return nil, nil, err
	}
	pages, err := page.New(arena, page.WithLogger(k.log))
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("scratch pages: %w", err)
	}
	return pages, release, nil
}
