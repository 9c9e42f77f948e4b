package root

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rootkit/internal/format"
	"github.com/joshuapare/rootkit/root/gctest"
)

// cellsPerPool is the single-word capacity of a test pool.
var cellsPerPool = format.CellsPerPool(format.MinPoolSize, 1)

func newTestArena(t testing.TB, cfg Config) *Arena {
	t.Helper()
	if cfg.PoolSize == 0 {
		cfg.PoolSize = format.MinPoolSize
	}
	cfg.HeapPages = true
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// newAttached returns an arena attached to a fresh toy heap.
func newAttached(t testing.TB, moving bool) (*Arena, *gctest.Heap) {
	t.Helper()
	h := gctest.New(moving)
	a := newTestArena(t, Config{})
	a.Attach(h)
	return a, h
}

func mustCreate(t testing.TB, a *Arena, v Value) Handle {
	t.Helper()
	h, err := a.Create(v)
	require.NoError(t, err)
	require.False(t, h.IsZero())
	return h
}

func requirePayload(t testing.TB, heap *gctest.Heap, v Value, want uint64) {
	t.Helper()
	got, ok := heap.Payload(v)
	require.True(t, ok, "root holds dangling address %#x", uint64(v))
	require.Equal(t, want, got)
}
