package testutil

import (
	"testing"

	"github.com/joshuapare/rootkit/internal/format"
	"github.com/joshuapare/rootkit/root"
	"github.com/joshuapare/rootkit/root/gctest"
)

// NewArena returns an arena backed by Go heap pages with the smallest pool
// size, so tests reach multi-pool states quickly. It is closed on cleanup.
//
// Example:
//
//	a := testutil.NewArena(t, root.Config{})
//	a.Lock()
//	defer a.Unlock()
func NewArena(t testing.TB, cfg root.Config) *root.Arena {
	t.Helper()
	if cfg.PoolSize == 0 {
		cfg.PoolSize = format.MinPoolSize
	}
	cfg.HeapPages = true
	a, err := root.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create arena: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(); err != nil {
			t.Errorf("Failed to close arena: %v", err)
		}
	})
	return a
}

// NewAttachedArena returns a test arena attached to a fresh toy heap.
func NewAttachedArena(t testing.TB, moving bool) (*root.Arena, *gctest.Heap) {
	t.Helper()
	heap := gctest.New(moving)
	a := NewArena(t, root.Config{})
	a.Attach(heap)
	return a, heap
}
