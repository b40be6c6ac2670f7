// Package format holds the byte layouts of the records the kernel stores in
// its own arena and the small encoding helpers used to read and write them.
// Keeping the layouts here lets the allocators, the scheduler and the
// inspection tools agree on offsets without importing each other.
package format

const (
	// WordSize is the size of reg_t on RV64.
	WordSize = 8

	// WordAlignmentMask is used to round sizes up to a word boundary.
	WordAlignmentMask = WordSize - 1

	// StackAlignment is the RISC-V psABI stack pointer alignment.
	StackAlignment = 16
)

// Block boundary tag layout. Every block, free or taken, starts with this
// header; the payload follows immediately.
//
//	0x00  front      address of the previous block (0 = none)
//	0x08  next       address of the next block (0 = none)
//	0x10  size_flag  payload size << 1 | taken
const (
	BlockFrontOffset    = 0x00
	BlockNextOffset     = 0x08
	BlockSizeFlagOffset = 0x10

	// BlockHeaderSize is the number of bytes preceding every block payload.
	BlockHeaderSize = 0x18

	// BlockTaken is the low bit of size_flag.
	BlockTaken = 1 << 0
)

// Page flag byte layout. One byte per manageable page, stored at the start
// of the page arena.
const (
	PageTaken = 1 << 0
	PageLast  = 1 << 1
)
