// Package pagemem provides the memory blocks that back root pools.
//
// Every block is aligned to its own size so a cell address can be masked
// down to the start of its pool in O(1). On Unix and Windows blocks come
// straight from the OS (anonymous mmap / VirtualAlloc) and are returned to it
// when a pool is retired. Other platforms, and callers that ask for it, get
// blocks carved from the Go heap.
//
// Block memory never holds Go pointers; it stores managed-heap words only,
// so it is invisible to the Go collector by construction.
package pagemem

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/joshuapare/rootkit/internal/format"
)

var (
	// ErrBadSize indicates a block size that is not a supported power of two.
	ErrBadSize = errors.New("pagemem: block size must be a power of two in range")

	// ErrExhausted indicates a Limited provider reached its block budget.
	ErrExhausted = errors.New("pagemem: block limit reached")
)

// Block is one aligned region returned by a Provider.
type Block struct {
	base unsafe.Pointer
	size int

	// raw/rawSize describe the underlying reservation when it is larger
	// than the aligned block (Windows, heap fallback).
	raw     uintptr
	rawSize int

	// heap keeps Go-heap backed blocks reachable.
	heap []byte
}

// Base returns the aligned start of the block.
func (b Block) Base() unsafe.Pointer { return b.base }

// Size returns the block size in bytes.
func (b Block) Size() int { return b.size }

// Provider maps and releases pool blocks.
type Provider interface {
	// Map returns a zeroed block of size bytes aligned to size.
	Map(size int) (Block, error)

	// Unmap releases a block previously returned by Map.
	Unmap(b Block) error
}

// OS returns the platform provider. On platforms without an OS mapping
// implementation it returns the heap provider.
func OS() Provider { return osProvider{} }

// Heap returns a provider that carves aligned blocks out of Go heap slices.
func Heap() Provider { return heapProvider{} }

func checkSize(size int) error {
	if !format.IsPow2(size) || size < format.MinPoolSize || size > format.MaxPoolSize {
		return fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	return nil
}

type heapProvider struct{}

func (heapProvider) Map(size int) (Block, error) {
	if err := checkSize(size); err != nil {
		return Block{}, err
	}
	// Over-allocate so an aligned window of size bytes always fits.
	buf := make([]byte, 2*size)
	start := uintptr(unsafe.Pointer(&buf[0]))
	off := int(format.AlignUp(int(start), size) - int(start))
	return Block{
		base: unsafe.Pointer(&buf[off]),
		size: size,
		heap: buf,
	}, nil
}

func (heapProvider) Unmap(b Block) error {
	// The slice is dropped with the Block; nothing to return to the OS.
	return nil
}

// Limited wraps a provider and fails Map once max blocks are outstanding.
// It is used to exercise allocation failure paths.
type Limited struct {
	Provider Provider
	Max      int

	live int
}

// Map maps a block unless the budget is spent.
func (l *Limited) Map(size int) (Block, error) {
	if l.live >= l.Max {
		return Block{}, ErrExhausted
	}
	b, err := l.Provider.Map(size)
	if err != nil {
		return Block{}, err
	}
	l.live++
	return b, nil
}

// Unmap releases the block and returns its slot to the budget.
func (l *Limited) Unmap(b Block) error {
	l.live--
	return l.Provider.Unmap(b)
}

// Live returns the number of outstanding blocks.
func (l *Limited) Live() int { return l.live }
