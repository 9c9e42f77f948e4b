package pool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rootkit/internal/format"
	"github.com/joshuapare/rootkit/internal/pagemem"
)

// newTestPool maps a heap-backed block and formats it as a pool.
func newTestPool(t testing.TB, size, words int, poison bool) *Pool {
	t.Helper()
	b, err := pagemem.Heap().Map(size)
	require.NoError(t, err)
	return New(b, 7, 0, words, poison)
}

func TestPool_Header(t *testing.T) {
	p := newTestPool(t, format.DefaultPoolSize, 2, false)

	id, ok := HeaderID(p.Block().Base())
	require.True(t, ok)
	require.Equal(t, uint32(7), id)
	require.Equal(t, 2, HeaderWords(p.Block().Base()))
	require.Equal(t, 1020, p.Capacity())
	require.Equal(t, Young, p.Gen())
}

func TestPool_BaseMasksCellToBlock(t *testing.T) {
	p := newTestPool(t, format.DefaultPoolSize, 1, false)

	for _, idx := range []int{0, 1, 500, p.Capacity() - 1} {
		base := Base(unsafePointer(p.Cell(idx)), format.DefaultPoolSize)
		require.Equal(t, p.Block().Base(), base)
	}
}

func TestPool_BumpThenFreeListReuse(t *testing.T) {
	p := newTestPool(t, format.MinPoolSize, 1, false)

	c0, i0, ok := p.Alloc()
	require.True(t, ok)
	_, i1, ok := p.Alloc()
	require.True(t, ok)
	require.Equal(t, 0, i0)
	require.Equal(t, 1, i1)

	*c0 = 99
	require.NoError(t, p.Free(i0))
	require.Equal(t, 1, p.Occupancy())

	// Free list is preferred over the bump cursor.
	c, idx, ok := p.Alloc()
	require.True(t, ok)
	require.Equal(t, i0, idx)
	require.Equal(t, c0, c)
	require.Zero(t, *c, "reused cell must be cleared")
	require.NoError(t, p.Check())
}

func TestPool_FillAndDrain(t *testing.T) {
	p := newTestPool(t, format.MinPoolSize, 1, false)

	idxs := make([]int, 0, p.Capacity())
	for {
		c, idx, ok := p.Alloc()
		if !ok {
			break
		}
		*c = Value(idx + 1)
		idxs = append(idxs, idx)
	}
	require.Len(t, idxs, p.Capacity())
	require.True(t, p.Full())
	require.NoError(t, p.Check())

	for _, idx := range idxs {
		require.NoError(t, p.Free(idx))
	}
	require.True(t, p.Empty())
	require.NoError(t, p.Check())
}

func TestPool_DoubleFree(t *testing.T) {
	p := newTestPool(t, format.MinPoolSize, 1, false)

	_, idx, ok := p.Alloc()
	require.True(t, ok)
	require.NoError(t, p.Free(idx))
	require.ErrorIs(t, p.Free(idx), ErrNotLive)
	require.ErrorIs(t, p.Free(p.Capacity()), ErrNotInPool)
}

func TestPool_IndexOf(t *testing.T) {
	p := newTestPool(t, format.DefaultPoolSize, 4, false)
	c, idx, ok := p.Alloc()
	require.True(t, ok)

	got, err := p.IndexOf(c)
	require.NoError(t, err)
	require.Equal(t, idx, got)

	// Interior word of a 4-word cell is not a cell address.
	_, err = p.IndexOf(&p.CellWords(idx)[1])
	require.ErrorIs(t, err, ErrNotInPool)
}

func TestPool_PoisonOnFree(t *testing.T) {
	p := newTestPool(t, format.DefaultPoolSize, 4, true)
	c, idx, ok := p.Alloc()
	require.True(t, ok)
	copy(p.CellWords(idx), []Value{1, 2, 3, 4})

	require.NoError(t, p.Free(idx))
	require.True(t, format.IsPoisonedLink(uint64(*c)))
	for _, w := range p.CellWords(idx)[1:] {
		require.Equal(t, Value(format.PoisonWord), w)
	}

	// Allocation from a poisoned free list still works.
	c2, idx2, ok := p.Alloc()
	require.True(t, ok)
	require.Equal(t, idx, idx2)
	require.Equal(t, []Value{0, 0, 0, 0}, p.CellWords(idx2))
	require.Equal(t, c, c2)
	require.NoError(t, p.Check())
}

func TestPool_CheckDetectsWriteToPoisonedCell(t *testing.T) {
	p := newTestPool(t, format.DefaultPoolSize, 1, true)
	c, idx, ok := p.Alloc()
	require.True(t, ok)
	_, _, ok = p.Alloc()
	require.True(t, ok)
	require.NoError(t, p.Free(idx))
	require.NoError(t, p.Check())

	// A stale handle writing through a freed cell clobbers the link tag.
	*c = Value(format.DecodeLink(uint64(*c)) + 1)
	require.ErrorIs(t, p.Check(), ErrCorrupt)
}

func TestPool_ScanVisitsLiveWordsOnce(t *testing.T) {
	p := newTestPool(t, format.DefaultPoolSize, 2, false)

	var idxs []int
	for i := 0; i < 200; i++ {
		_, idx, ok := p.Alloc()
		require.True(t, ok)
		copy(p.CellWords(idx), []Value{Value(i), Value(1000 + i)})
		idxs = append(idxs, idx)
	}
	// Punch holes.
	for i := 0; i < len(idxs); i += 3 {
		require.NoError(t, p.Free(idxs[i]))
	}

	seen := map[*Value]int{}
	cells := p.Scan(func(w *Value) {
		seen[w]++
		*w += 1
	})
	require.Equal(t, p.Occupancy(), cells)
	require.Len(t, seen, 2*cells)
	for _, n := range seen {
		require.Equal(t, 1, n)
	}
	for i, idx := range idxs {
		if i%3 == 0 {
			continue
		}
		require.Equal(t, []Value{Value(i + 1), Value(1001 + i)}, p.CellWords(idx))
	}
}

func TestPool_ScanSkipsFreshAndDeleted(t *testing.T) {
	p := newTestPool(t, format.DefaultPoolSize, 1, false)

	var cells []*Value
	for i := 0; i < 10; i++ {
		c, _, ok := p.Alloc()
		require.True(t, ok)
		*c = Value(i + 1)
		cells = append(cells, c)
	}

	visits := 0
	p.Scan(func(w *Value) {
		visits++
		if *w == 1 {
			// Delete a later cell and create a new one in its place.
			idx, err := p.IndexOf(cells[5])
			require.NoError(t, err)
			require.NoError(t, p.Free(idx))
			_, nidx, ok := p.Alloc()
			require.True(t, ok)
			p.MarkFresh(nidx)
		}
	})
	// Cell 5 was replaced by a fresh cell and must not be visited.
	require.Equal(t, 9, visits)

	p.ClearFresh()
	require.Equal(t, 10, p.Scan(func(*Value) {}))
}

func TestPool_CheckDetectsCorruption(t *testing.T) {
	p := newTestPool(t, format.MinPoolSize, 1, false)
	c, _, ok := p.Alloc()
	require.True(t, ok)
	_, idx, ok := p.Alloc()
	require.True(t, ok)
	require.NoError(t, p.Free(idx))

	// Make the freed cell link to itself.
	*p.Cell(idx) = Value(format.EncodeLink(idx, false))
	require.ErrorIs(t, p.Check(), ErrCorrupt)
	_ = c
}
