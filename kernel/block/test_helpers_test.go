package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rvoskit/kernel/mem"
	"github.com/joshuapare/rvoskit/kernel/page"
)

const testBase = mem.Addr(0x80000000)

// newTestHeap creates a raw-region heap over a fresh arena of size bytes.
func newTestHeap(t testing.TB, size int, opts ...Option) *Allocator {
	t.Helper()
	arena, err := mem.NewArena(testBase, make([]byte, size))
	require.NoError(t, err)
	a, err := New(arena, opts...)
	require.NoError(t, err)
	return a
}

// newTestPages creates a page allocator over numPages pages.
func newTestPages(t testing.TB, numPages int) *page.Allocator {
	t.Helper()
	arena, err := mem.NewArena(testBase, make([]byte, numPages*int(mem.PageSize)))
	require.NoError(t, err)
	p, err := page.New(arena)
	require.NoError(t, err)
	return p
}

// assertInvariants verifies list integrity and that the heap never holds two
// adjacent free blocks.
func assertInvariants(t testing.TB, a *Allocator) {
	t.Helper()
	require.NoError(t, a.Verify())

	blocks := a.Blocks()
	var total uint64
	for i, b := range blocks {
		total += b.Size + HeaderSize
		if i > 0 {
			require.False(t, b.Free && blocks[i-1].Free,
				"adjacent free blocks at %s and %s", blocks[i-1].Addr, b.Addr)
		}
	}
	require.Equal(t, uint64(a.Size()), total, "tags plus payloads must cover the arena")
}

// mustAlloc allocates and fails the test on error.
func mustAlloc(t testing.TB, a *Allocator, size int) mem.Addr {
	t.Helper()
	p, err := a.Alloc(size)
	require.NoError(t, err, "Alloc(%d)", size)
	require.False(t, p.IsNull())
	return p
}

// blockAt returns the block whose payload starts at p.
func blockAt(t testing.TB, a *Allocator, p mem.Addr) BlockInfo {
	t.Helper()
	for _, b := range a.Blocks() {
		if b.Payload == p {
			return b
		}
	}
	t.Fatalf("no block with payload %s", p)
	return BlockInfo{}
}
