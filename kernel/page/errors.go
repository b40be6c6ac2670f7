package page

import "errors"

var (
	// ErrNoPages indicates no run of free pages of the requested length exists.
	ErrNoPages = errors.New("page: no free run large enough")

	// ErrBadAddress indicates a null address or one outside [AllocStart, AllocEnd).
	ErrBadAddress = errors.New("page: address outside allocatable range")

	// ErrNotAllocated indicates Free was pointed at a page that is not taken.
	ErrNotAllocated = errors.New("page: page not allocated")

	// ErrArenaTooSmall indicates the arena cannot hold the flags plus one page.
	ErrArenaTooSmall = errors.New("page: arena too small")

	// ErrUninitialized indicates a nil allocator was used.
	ErrUninitialized = errors.New("page: allocator used before init")
)
