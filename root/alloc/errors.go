package alloc

import "errors"

var (
	// ErrAllocFailure indicates a new pool block could not be obtained.
	// No handle or cell is produced when it is returned.
	ErrAllocFailure = errors.New("alloc: pool allocation failed")

	// ErrForeignCell indicates a cell pointer that does not belong to any
	// live pool of this allocator.
	ErrForeignCell = errors.New("alloc: cell does not belong to this allocator")

	// ErrBadClass indicates an out-of-range size class index.
	ErrBadClass = errors.New("alloc: bad size class")

	// ErrTooWide indicates a root wider than the largest size class.
	ErrTooWide = errors.New("alloc: root wider than largest size class")

	// ErrBadConfig indicates an invalid pool size or size class configuration.
	ErrBadConfig = errors.New("alloc: invalid configuration")

	// ErrClosed indicates use of an allocator after Close.
	ErrClosed = errors.New("alloc: allocator closed")
)
