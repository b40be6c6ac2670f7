package format

// Alignment utilities for arena records and page runs.

// Align8 returns n aligned up to the next 8-byte (word) boundary.
// Used for block payload sizes so every header stays word aligned.
//
// Example:
//
//	Align8(1)  = 8
//	Align8(8)  = 8
//	Align8(9)  = 16
func Align8(n int) int {
	return (n + WordAlignmentMask) & ^WordAlignmentMask
}

// AlignUp rounds v up to a multiple of align, which must be a power of two.
//
// Example:
//
//	AlignUp(0x80000001, 0x1000) = 0x80001000
//	AlignUp(0x80001000, 0x1000) = 0x80001000
func AlignUp(v, align uint64) uint64 {
	mask := align - 1
	return (v + mask) & ^mask
}

// AlignDown rounds v down to a multiple of align, which must be a power of two.
func AlignDown(v, align uint64) uint64 {
	return v & ^(align - 1)
}
