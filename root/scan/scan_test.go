package scan

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rootkit/internal/format"
	"github.com/joshuapare/rootkit/internal/pagemem"
	"github.com/joshuapare/rootkit/root/alloc"
	"github.com/joshuapare/rootkit/root/pool"
)

type testSource struct {
	*alloc.Allocator
	pending []*pool.Value
}

func (s *testSource) Drain() int {
	n := len(s.pending)
	for _, c := range s.pending {
		if err := s.Free(c); err != nil {
			panic(err)
		}
	}
	s.pending = s.pending[:0]
	return n
}

func newTestSource(t *testing.T) *testSource {
	t.Helper()
	a, err := alloc.New(alloc.Options{
		PoolSize: format.MinPoolSize,
		Pages:    pagemem.Heap(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return &testSource{Allocator: a}
}

func (s *testSource) mustAlloc(t *testing.T, class int, v pool.Value) *pool.Value {
	t.Helper()
	c, _, err := s.Alloc(class)
	require.NoError(t, err)
	*c = v
	return c
}

func double(v pool.Value) pool.Value { return v * 2 }

func TestPhase_String(t *testing.T) {
	require.Equal(t, "minor", Minor.String())
	require.Equal(t, "major", Major.String())
	require.Equal(t, "phase(7)", Phase(7).String())
}

func TestScan_MajorRelocatesEveryWord(t *testing.T) {
	src := newTestSource(t)
	one := src.mustAlloc(t, 0, 3)
	pair := src.mustAlloc(t, 1, 5)
	(*[2]pool.Value)(unsafe.Pointer(pair))[1] = 7 // second word of the two-word cell

	r := New(src, nil)
	res, err := r.Scan(Major, double)
	require.NoError(t, err)
	require.Equal(t, Major, res.Phase)
	require.Equal(t, 2, res.Pools)
	require.Equal(t, 2, res.Roots)

	require.Equal(t, pool.Value(6), *one)
	require.Equal(t, pool.Value(10), *pair)
	require.Equal(t, pool.Value(14), (*[2]pool.Value)(unsafe.Pointer(pair))[1])
	require.Equal(t, uint64(1), r.Count(Major))
	require.False(t, r.Scanning())
}

func TestScan_MinorVisitsYoungPoolsThenPromotes(t *testing.T) {
	src := newTestSource(t)
	old := src.mustAlloc(t, 0, 1)

	r := New(src, nil)
	_, err := r.Scan(Minor, double)
	require.NoError(t, err)
	require.Equal(t, pool.Value(2), *old)
	require.Zero(t, src.YoungPools())

	young := src.mustAlloc(t, 1, 1) // maps a new, young pool
	res, err := r.Scan(Minor, double)
	require.NoError(t, err)
	require.Equal(t, 1, res.Pools)
	require.Equal(t, pool.Value(2), *old, "old pool is not rescanned")
	require.Equal(t, pool.Value(2), *young)

	res, err = r.Scan(Major, double)
	require.NoError(t, err)
	require.Equal(t, 2, res.Pools)
	require.Equal(t, pool.Value(4), *old)
}

func TestScan_DrainsFirst(t *testing.T) {
	src := newTestSource(t)
	keep := src.mustAlloc(t, 0, 1)
	src.pending = append(src.pending, src.mustAlloc(t, 0, 2), src.mustAlloc(t, 0, 3))

	seen := 0
	res, err := New(src, nil).Scan(Major, func(v pool.Value) pool.Value {
		seen++
		return v
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Drained)
	require.Equal(t, 1, res.Roots)
	require.Equal(t, 1, seen)
	require.Equal(t, 1, src.Live())
	require.True(t, src.IsLive(keep))
}

func TestScan_RootsCreatedDuringScanAreSkipped(t *testing.T) {
	src := newTestSource(t)
	src.mustAlloc(t, 0, 1)

	var created *pool.Value
	res, err := New(src, nil).Scan(Major, func(v pool.Value) pool.Value {
		if created == nil {
			created = src.mustAlloc(t, 0, 100)
		}
		return v + 1
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Roots)
	require.Equal(t, pool.Value(100), *created)
	require.NoError(t, src.Check())
}

func TestScan_RootCreatedDuringMinorScanIsVisitedNext(t *testing.T) {
	src := newTestSource(t)
	src.mustAlloc(t, 0, 1)
	r := New(src, nil)

	var created *pool.Value
	res, err := r.Scan(Minor, func(v pool.Value) pool.Value {
		if created == nil {
			created = src.mustAlloc(t, 0, 100)
		}
		return v
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Roots)
	require.Equal(t, 1, src.YoungPools(), "pool with a fresh root stays young")

	res, err = r.Scan(Minor, double)
	require.NoError(t, err)
	require.Equal(t, 1, res.Pools)
	require.Equal(t, 2, res.Roots)
	require.Equal(t, pool.Value(200), *created)

	res, err = r.Scan(Minor, double)
	require.NoError(t, err)
	require.Zero(t, res.Pools)
}

func TestScan_NestedAndBadPhase(t *testing.T) {
	src := newTestSource(t)
	src.mustAlloc(t, 0, 1)
	r := New(src, nil)

	var nested error
	_, err := r.Scan(Major, func(v pool.Value) pool.Value {
		_, nested = r.Scan(Minor, double)
		return v
	})
	require.NoError(t, err)
	require.ErrorIs(t, nested, ErrScanInProgress)
	require.False(t, src.Scanning())

	_, err = r.Scan(Phase(0), double)
	require.ErrorIs(t, err, ErrBadPhase)
	require.Zero(t, r.Count(Phase(9)))
}
