// Package block provides the kernel's sub-page heap allocator.
//
// # Overview
//
// The allocator manages one arena, either the raw heap region or a run of
// pages obtained from the page allocator. Every block, free or taken, begins
// with a 24-byte boundary tag written into the arena itself:
//
//	0x00  front      address of the previous block (0 = none)
//	0x08  next       address of the next block (0 = none)
//	0x10  size_flag  payload bytes << 1 | taken
//
// The tags form a single address-ordered, doubly-linked list that covers the
// arena without gaps, so
//
//	sum(block.size + 24) == arena size
//
// holds after every operation.
//
// # Allocation
//
// Alloc rounds the request up to 8 bytes and takes the first free block that
// fits. If the leftover would be no larger than one header the whole block is
// handed out; otherwise the block is split and the tail becomes a new free
// block spliced in right after it.
//
// # Release and coalescing
//
// Free recovers the tag 24 bytes before the payload. It first absorbs the
// next block if that one is free, then lets a free previous block absorb the
// result. Only the immediate neighbours are examined; there is no re-scan, so
// three adjacent free blocks collapse into one only if they are released in a
// suitable order.
//
// Null and out-of-range addresses are ignored. Addresses inside the arena
// that are not the payload of a taken block are ignored too; in both cases
// Free returns an error value describing why nothing happened.
//
// # Page-backed heaps
//
// NewOnPages builds the arena from a page run. GrowByPages extends it with
// more pages when the page allocator hands out the run directly after the
// current end, and WithAutoGrow makes Alloc do that on a miss.
//
// # Thread Safety
//
// Allocator instances are not thread-safe. The kernel's single running flow
// is the only mutator.
package block
