package format

import (
	"encoding/binary"
	"unsafe"
)

// Header encoding helpers.
//
// Pool headers live in mapped memory outside the Go heap, so the helpers
// take a base pointer instead of a byte slice. The slice view is bounded to
// the header so an out-of-range offset panics instead of touching cells.

func header(base unsafe.Pointer) []byte {
	return unsafe.Slice((*byte)(base), PoolHeaderSize)
}

// PutU32 writes a little-endian uint32 at off within the pool header.
func PutU32(base unsafe.Pointer, off int, v uint32) {
	binary.LittleEndian.PutUint32(header(base)[off:off+4], v)
}

// ReadU32 reads a little-endian uint32 at off within the pool header.
func ReadU32(base unsafe.Pointer, off int) uint32 {
	return binary.LittleEndian.Uint32(header(base)[off : off+4])
}

// EncodeLink returns the word stored in a vacant cell whose successor on the
// free list is next (-1 for end of list).
func EncodeLink(next int, poison bool) uint64 {
	w := uint64(next + 1)
	if poison {
		w |= PoisonLinkTag
	}
	return w
}

// DecodeLink returns the successor index stored in a vacant cell, or -1.
func DecodeLink(w uint64) int {
	if w&PoisonLinkMask == PoisonLinkTag {
		w &^= PoisonLinkMask
	}
	return int(w) - 1
}

// IsPoisonedLink reports whether w looks like the link word of a poisoned
// vacant cell.
func IsPoisonedLink(w uint64) bool {
	return w&PoisonLinkMask == PoisonLinkTag
}
