package pagemem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rootkit/internal/format"
)

func providers() map[string]Provider {
	return map[string]Provider{
		"os":   OS(),
		"heap": Heap(),
	}
}

func TestMap_AlignedAndZeroed(t *testing.T) {
	for name, p := range providers() {
		t.Run(name, func(t *testing.T) {
			for _, size := range []int{format.MinPoolSize, format.DefaultPoolSize, 64 << 10} {
				b, err := p.Map(size)
				require.NoError(t, err)
				require.Equal(t, size, b.Size())

				addr := uintptr(b.Base())
				require.Zero(t, addr%uintptr(size), "block must be aligned to its size")

				words := unsafe.Slice((*uint64)(b.Base()), size/format.WordSize)
				for i := range words {
					require.Zero(t, words[i])
				}
				// Writable end to end.
				words[0] = 1
				words[len(words)-1] = 2

				require.NoError(t, p.Unmap(b))
			}
		})
	}
}

func TestMap_RejectsBadSizes(t *testing.T) {
	for name, p := range providers() {
		t.Run(name, func(t *testing.T) {
			for _, size := range []int{0, 1000, 12288, format.MaxPoolSize * 2} {
				_, err := p.Map(size)
				require.ErrorIs(t, err, ErrBadSize)
			}
		})
	}
}

func TestLimited(t *testing.T) {
	l := &Limited{Provider: Heap(), Max: 2}

	a, err := l.Map(format.MinPoolSize)
	require.NoError(t, err)
	_, err = l.Map(format.MinPoolSize)
	require.NoError(t, err)

	_, err = l.Map(format.MinPoolSize)
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 2, l.Live())

	require.NoError(t, l.Unmap(a))
	_, err = l.Map(format.MinPoolSize)
	require.NoError(t, err)
}
