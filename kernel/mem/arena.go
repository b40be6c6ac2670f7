// Package mem defines the memory primitives shared by the kernel allocators:
// physical addresses, sizes, page constants and Arena, a byte region that is
// addressed by physical address rather than by slice index.
package mem

import (
	"errors"
	"fmt"

	"github.com/joshuapare/rvoskit/internal/format"
)

var (
	// ErrOutOfRange indicates an address range that does not lie inside the arena.
	ErrOutOfRange = errors.New("mem: address range outside arena")

	// ErrNullBase indicates an arena was placed at the null address.
	ErrNullBase = errors.New("mem: arena base must not be null")
)

// Arena is a contiguous, pre-reserved region of simulated RAM. Sub-arenas
// created with Sub share the parent's backing bytes.
type Arena struct {
	base Addr
	buf  []byte
}

// NewArena places buf at the physical address base. The base must be
// non-null and word aligned.
func NewArena(base Addr, buf []byte) (*Arena, error) {
	if base.IsNull() {
		return nil, ErrNullBase
	}
	if uint64(base)&format.WordAlignmentMask != 0 {
		return nil, fmt.Errorf("arena base %s: %w", base, format.ErrMisaligned)
	}
	return &Arena{base: base, buf: buf}, nil
}

// Base returns the address of the first byte of the arena.
func (a *Arena) Base() Addr { return a.base }

// End returns the address one past the last byte of the arena.
func (a *Arena) End() Addr { return a.base + Addr(len(a.buf)) }

// Size returns the arena length in bytes.
func (a *Arena) Size() Size { return Size(len(a.buf)) }

// Contains reports whether addr lies inside [Base, End).
func (a *Arena) Contains(addr Addr) bool {
	return addr >= a.base && addr < a.End()
}

// Offset converts addr into a byte index. ok is false when addr is outside
// the arena.
func (a *Arena) Offset(addr Addr) (int, bool) {
	if !a.Contains(addr) {
		return 0, false
	}
	return int(addr - a.base), true
}

// Slice returns n bytes starting at addr.
func (a *Arena) Slice(addr Addr, n int) ([]byte, error) {
	off, ok := a.Offset(addr)
	if !ok || n < 0 || off+n > len(a.buf) {
		return nil, fmt.Errorf("[%s, +%d): %w", addr, n, ErrOutOfRange)
	}
	return a.buf[off : off+n : off+n], nil
}

// Sub returns an arena view over [addr, addr+n) sharing the backing bytes.
func (a *Arena) Sub(addr Addr, n int) (*Arena, error) {
	b, err := a.Slice(addr, n)
	if err != nil {
		return nil, err
	}
	return &Arena{base: addr, buf: b}, nil
}

// Bytes exposes the whole backing region.
func (a *Arena) Bytes() []byte { return a.buf }

// String describes the arena bounds.
func (a *Arena) String() string {
	return fmt.Sprintf("[%s -> %s) %s", a.base, a.End(), a.Size())
}
