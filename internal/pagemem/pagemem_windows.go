//go:build windows

package pagemem

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/joshuapare/rootkit/internal/format"
)

type osProvider struct{}

// Map reserves twice the block size and commits only the aligned window.
// The whole reservation is released on Unmap.
func (osProvider) Map(size int) (Block, error) {
	if err := checkSize(size); err != nil {
		return Block{}, err
	}
	span := uintptr(2 * size)
	raw, err := windows.VirtualAlloc(0, span, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return Block{}, err
	}
	aligned := uintptr(format.AlignUp(int(raw), size))
	if _, err := windows.VirtualAlloc(aligned, uintptr(size), windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
		_ = windows.VirtualFree(raw, 0, windows.MEM_RELEASE)
		return Block{}, err
	}
	return Block{
		base:    unsafe.Pointer(aligned), //nolint:govet // address of an OS mapping, not a Go object
		size:    size,
		raw:     raw,
		rawSize: int(span),
	}, nil
}

func (osProvider) Unmap(b Block) error {
	if b.raw == 0 {
		return nil
	}
	return windows.VirtualFree(b.raw, 0, windows.MEM_RELEASE)
}
