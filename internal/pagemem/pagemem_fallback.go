//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package pagemem

type osProvider struct{ heapProvider }
