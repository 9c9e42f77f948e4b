//go:build linux || darwin || freebsd || netbsd || openbsd

package pagemem

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/joshuapare/rootkit/internal/format"
)

type osProvider struct{}

// Map reserves twice the block size and trims the unaligned head and tail,
// leaving exactly one aligned mapping.
func (osProvider) Map(size int) (Block, error) {
	if err := checkSize(size); err != nil {
		return Block{}, err
	}
	span := uintptr(2 * size)
	raw, err := unix.MmapPtr(-1, 0, nil, span,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return Block{}, err
	}
	start := uintptr(raw)
	aligned := uintptr(format.AlignUp(int(start), size))

	if head := aligned - start; head > 0 {
		if err := unix.MunmapPtr(raw, head); err != nil {
			_ = unix.MunmapPtr(raw, span)
			return Block{}, err
		}
	}
	if tail := start + span - (aligned + uintptr(size)); tail > 0 {
		if err := unix.MunmapPtr(unsafe.Add(raw, aligned-start+uintptr(size)), tail); err != nil {
			_ = unix.MunmapPtr(unsafe.Add(raw, aligned-start), uintptr(size))
			return Block{}, err
		}
	}
	return Block{
		base: unsafe.Add(raw, aligned-start),
		size: size,
	}, nil
}

func (osProvider) Unmap(b Block) error {
	if b.base == nil {
		return nil
	}
	return unix.MunmapPtr(b.base, uintptr(b.size))
}
