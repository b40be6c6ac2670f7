package block

import "errors"

var (
	// ErrNoSpace indicates that no free block large enough was found.
	ErrNoSpace = errors.New("block: no free block large enough")

	// ErrBadSize indicates a zero or negative request.
	ErrBadSize = errors.New("block: size must be positive")

	// ErrBadAddress indicates a null address or one outside the arena.
	ErrBadAddress = errors.New("block: address outside arena")

	// ErrNotAllocated indicates an address that is not the payload of a taken block.
	ErrNotAllocated = errors.New("block: not an allocated block")

	// ErrArenaTooSmall indicates the arena cannot hold a single useful block.
	ErrArenaTooSmall = errors.New("block: arena too small")

	// ErrGrowFail indicates the arena could not be extended with contiguous pages.
	ErrGrowFail = errors.New("block: grow failed")

	// ErrNotPageBacked indicates growth was requested on a raw-region heap.
	ErrNotPageBacked = errors.New("block: heap is not page-backed")

	// ErrCorrupt indicates Verify found a broken block list.
	ErrCorrupt = errors.New("block: corrupt block list")

	// ErrUninitialized indicates a nil allocator was used.
	ErrUninitialized = errors.New("block: allocator used before init")
)
