// Package heapmap renders a picture of arena occupancy: one pixel per
// fixed number of bytes, laid out row by row from the arena base, coloured by
// what owns the bytes.
package heapmap

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	gg "github.com/fogleman/gg"
)

// Kind classifies a span of arena bytes.
type Kind int

const (
	Free Kind = iota
	Taken
	Header   // block boundary tag
	Reserved // page flag table and alignment slack
)

func (k Kind) String() string {
	switch k {
	case Free:
		return "free"
	case Taken:
		return "taken"
	case Header:
		return "header"
	case Reserved:
		return "reserved"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Segment is a span of the arena, as an offset from its base.
type Segment struct {
	Offset uint64
	Length uint64
	Kind   Kind
}

// Options controls the picture size.
type Options struct {
	Columns int    // pixels per row (default 512)
	Rows    int    // rows of pixels (default 128)
	Scale   int    // each pixel drawn as Scale x Scale (default 2)
	Title   string // printed above the map
}

var palette = map[Kind]color.RGBA{
	Free:     {0x3c, 0xb3, 0x71, 0xff},
	Taken:    {0xd9, 0x53, 0x4f, 0xff},
	Header:   {0x55, 0x55, 0x55, 0xff},
	Reserved: {0x4a, 0x6f, 0xa5, 0xff},
}

const (
	titleHeight  = 20
	legendHeight = 20
)

// ErrEmpty indicates an arena of zero bytes.
var ErrEmpty = errors.New("heapmap: empty arena")

// Map is a rendered occupancy map.
type Map struct {
	dc           *gg.Context
	bytesPerCell uint64
}

// BytesPerCell returns how many arena bytes one cell stands for.
func (m *Map) BytesPerCell() uint64 { return m.bytesPerCell }

// Width returns the image width in pixels.
func (m *Map) Width() int { return m.dc.Width() }

// Height returns the image height in pixels.
func (m *Map) Height() int { return m.dc.Height() }

// At returns the colour at a pixel.
func (m *Map) At(x, y int) color.Color { return m.dc.Image().At(x, y) }

// EncodePNG writes the map as a PNG image.
func (m *Map) EncodePNG(w io.Writer) error { return m.dc.EncodePNG(w) }

// Render draws segs over an arena of total bytes. Cells not covered by any
// segment stay background coloured; when several segments share a cell the
// last one drawn wins, so callers list headers after payloads.
func Render(segs []Segment, total uint64, opts Options) (*Map, error) {
	if total == 0 {
		return nil, ErrEmpty
	}
	cols, rows, scale := opts.Columns, opts.Rows, opts.Scale
	if cols <= 0 {
		cols = 512
	}
	if rows <= 0 {
		rows = 128
	}
	if scale <= 0 {
		scale = 2
	}
	cells := uint64(cols * rows)
	per := (total + cells - 1) / cells

	width := cols * scale
	height := titleHeight + rows*scale + legendHeight
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0, 0, 0)
	title := opts.Title
	if title == "" {
		title = "arena"
	}
	dc.DrawString(fmt.Sprintf("%s (%d bytes, %d B/cell)", title, total, per), 4, titleHeight-6)

	for _, s := range segs {
		if s.Length == 0 || s.Offset >= total {
			continue
		}
		end := min(s.Offset+s.Length, total)
		first := s.Offset / per
		last := (end + per - 1) / per // exclusive
		c := palette[s.Kind]
		dc.SetColor(c)
		fillCells(dc, first, last, cols, scale)
	}

	x := 4.0
	y := float64(titleHeight + rows*scale + legendHeight - 6)
	for _, k := range []Kind{Free, Taken, Header, Reserved} {
		dc.SetColor(palette[k])
		dc.DrawRectangle(x, y-9, 10, 10)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawString(k.String(), x+14, y)
		x += 90
	}

	return &Map{dc: dc, bytesPerCell: per}, nil
}

// fillCells paints the cell range [first, last) which may wrap over rows.
func fillCells(dc *gg.Context, first, last uint64, cols, scale int) {
	for first < last {
		row := int(first) / cols
		col := int(first) % cols
		n := min(int(last-first), cols-col)
		dc.DrawRectangle(float64(col*scale), float64(titleHeight+row*scale), float64(n*scale), float64(scale))
		dc.Fill()
		first += uint64(n)
	}
}
