package block

import (
	"fmt"
	"io"

	"github.com/joshuapare/rvoskit/kernel/mem"
)

// BlockInfo describes one block on the list.
type BlockInfo struct {
	Addr    mem.Addr // boundary tag address
	Payload mem.Addr // first payload byte
	Size    uint64   // payload bytes
	Free    bool
}

// Stats combines the running counters with a snapshot of the list.
type Stats struct {
	allocatorStats

	Blocks      int
	FreeBlocks  int
	UsedBlocks  int
	FreeBytes   uint64
	UsedBytes   uint64
	LargestFree uint64
}

// Blocks walks the list in address order.
func (a *Allocator) Blocks() []BlockInfo {
	if a.checkInit() != nil {
		return nil
	}
	var out []BlockInfo
	for b := a.first; !b.IsNull(); b = a.next(b) {
		out = append(out, BlockInfo{
			Addr:    b,
			Payload: b.Add(HeaderSize),
			Size:    a.size(b),
			Free:    !a.taken(b),
		})
	}
	return out
}

// Stats returns allocator counters plus free/used totals.
func (a *Allocator) Stats() Stats {
	if a.checkInit() != nil {
		return Stats{}
	}
	s := Stats{allocatorStats: a.stats}
	for b := a.first; !b.IsNull(); b = a.next(b) {
		s.Blocks++
		sz := a.size(b)
		if a.taken(b) {
			s.UsedBlocks++
			s.UsedBytes += sz
			continue
		}
		s.FreeBlocks++
		s.FreeBytes += sz
		s.LargestFree = max(s.LargestFree, sz)
	}
	return s
}

// Verify checks the list invariants: blocks are contiguous and address
// ordered, front and next are inverses, and the tags plus payloads add up to
// the arena size.
func (a *Allocator) Verify() error {
	if err := a.checkInit(); err != nil {
		return err
	}
	var (
		prev  = mem.Null
		want  = a.first
		total uint64
		count int
	)
	end := a.end()
	for b := a.first; !b.IsNull(); b = a.next(b) {
		if b != want {
			return fmt.Errorf("%w: block %d at %s, expected %s", ErrCorrupt, count, b, want)
		}
		if b.Add(HeaderSize) > end {
			return fmt.Errorf("%w: header at %s crosses arena end %s", ErrCorrupt, b, end)
		}
		if a.front(b) != prev {
			return fmt.Errorf("%w: block %s front=%s, expected %s", ErrCorrupt, b, a.front(b), prev)
		}
		sz := a.size(b)
		total += sz + HeaderSize
		if total > uint64(len(a.buf)) {
			return fmt.Errorf("%w: block %s size %d runs past arena end", ErrCorrupt, b, sz)
		}
		prev = b
		want = b.Add(mem.Size(HeaderSize + sz))
		count++
	}
	if total != uint64(len(a.buf)) {
		return fmt.Errorf("%w: blocks cover %d of %d bytes", ErrCorrupt, total, len(a.buf))
	}
	return nil
}

// Dump prints one line per block in the kernel's debug format.
func (a *Allocator) Dump(w io.Writer) {
	for _, b := range a.Blocks() {
		state := "taken"
		if b.Free {
			state = "free"
		}
		fmt.Fprintf(w, "block_head: %s, block_size: %d, %s\n", b.Addr, b.Size, state)
	}
}
