package kernel

import (
	"io"

	"github.com/joshuapare/rvoskit/internal/heapmap"
	"github.com/joshuapare/rvoskit/kernel/block"
	"github.com/joshuapare/rvoskit/kernel/mem"
)

// Segments describes RAM occupancy for the heap map: the page flag table,
// page runs held outside the heap, and every heap block split into its
// boundary tag and payload.
func (k *Kernel) Segments() []heapmap.Segment {
	base := k.arena.Base()
	var segs []heapmap.Segment

	if k.pages != nil {
		segs = append(segs, heapmap.Segment{
			Offset: 0,
			Length: uint64(k.pages.AllocStart() - base),
			Kind:   heapmap.Reserved,
		})
		for _, r := range k.pages.Runs() {
			segs = append(segs, heapmap.Segment{
				Offset: uint64(r.Addr - base),
				Length: uint64(r.Pages) << mem.PageShift,
				Kind:   heapmap.Taken,
			})
		}
	}

	for _, b := range k.heap.Blocks() {
		kind := heapmap.Taken
		if b.Free {
			kind = heapmap.Free
		}
		segs = append(segs,
			heapmap.Segment{Offset: uint64(b.Payload - base), Length: b.Size, Kind: kind},
			heapmap.Segment{Offset: uint64(b.Addr - base), Length: block.HeaderSize, Kind: heapmap.Header},
		)
	}
	return segs
}

// RenderHeapMap draws the current occupancy as a PNG.
func (k *Kernel) RenderHeapMap(w io.Writer, opts heapmap.Options) error {
	if opts.Title == "" {
		opts.Title = "rvos " + k.session
	}
	m, err := heapmap.Render(k.Segments(), uint64(k.arena.Size()), opts)
	if err != nil {
		return err
	}
	return m.EncodePNG(w)
}
