package mem

import "fmt"

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// String renders the size using the largest exact unit.
func (s Size) String() string {
	switch {
	case s >= Gb && s%Gb == 0:
		return fmt.Sprintf("%dGiB", s/Gb)
	case s >= Mb && s%Mb == 0:
		return fmt.Sprintf("%dMiB", s/Mb)
	case s >= Kb && s%Kb == 0:
		return fmt.Sprintf("%dKiB", s/Kb)
	default:
		return fmt.Sprintf("%dB", uint64(s))
	}
}

const (
	// PageShift is equal to log2(PageSize). It converts an address offset to
	// a page index (shift right) and back.
	PageShift = 12

	// PageSize defines the page size in bytes.
	PageSize = Size(1 << PageShift)
)
