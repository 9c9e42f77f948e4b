package reclaim

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rootkit/root/pool"
)

type freed map[*pool.Value]int

func (f freed) free(c *pool.Value) { f[c]++ }

func TestQueue_DeleteThenDrain(t *testing.T) {
	r := NewRegistry()
	q := r.NewQueue()
	cells := make([]pool.Value, 3)
	for i := range cells {
		q.Delete(&cells[i])
	}
	require.Equal(t, 3, q.Pending())
	require.Equal(t, 3, r.Pending())

	got := freed{}
	require.Equal(t, 3, r.Drain(got.free))
	require.Len(t, got, 3)
	for i := range cells {
		require.Equal(t, 1, got[&cells[i]])
	}
	require.Zero(t, r.Pending())
	require.Zero(t, r.Drain(got.free))
}

func TestQueue_RecyclesNodes(t *testing.T) {
	r := NewRegistry()
	q := r.NewQueue()
	var cell pool.Value
	free := func(*pool.Value) {}

	allocs := testing.AllocsPerRun(100, func() {
		q.Delete(&cell)
		q.Delete(&cell)
		r.Drain(free)
	})
	require.Zero(t, allocs)
}

func TestQueue_DeleteAfterClosePanics(t *testing.T) {
	r := NewRegistry()
	q := r.NewQueue()
	q.Close()
	var cell pool.Value
	require.PanicsWithValue(t, ErrQueueClosed, func() { q.Delete(&cell) })
}

func TestRegistry_UnlinksClosedQueues(t *testing.T) {
	r := NewRegistry()
	first := r.NewQueue()
	middle := r.NewQueue()
	last := r.NewQueue() // head of the list
	require.Equal(t, 3, r.Queues())

	var a, b pool.Value
	middle.Delete(&a)
	middle.Close()
	got := freed{}
	require.Equal(t, 1, r.Drain(got.free))
	require.Equal(t, 1, got[&a], "closed queues are drained before removal")
	require.Equal(t, 2, r.Queues())

	last.Close()
	first.Delete(&b)
	require.Equal(t, 1, r.Drain(got.free))
	require.Equal(t, 1, r.Queues())
	require.Equal(t, 1, got[&b])
}

func TestRegistry_ConcurrentWritersOneDrainer(t *testing.T) {
	const (
		writers = 4
		perW    = 5000
	)
	r := NewRegistry()
	cells := make([]pool.Value, writers*perW)
	got := freed{}

	stop := make(chan struct{})
	drained := make(chan int)
	go func() {
		n := 0
		for {
			select {
			case <-stop:
				drained <- n
				return
			default:
				n += r.Drain(got.free)
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			q := r.NewQueue()
			for i := 0; i < perW; i++ {
				q.Delete(&cells[w*perW+i])
			}
			q.Close()
		}(w)
	}
	wg.Wait()
	close(stop)
	total := <-drained
	total += r.Drain(got.free)

	require.Equal(t, writers*perW, total)
	require.Len(t, got, writers*perW)
	for i := range cells {
		require.Equal(t, 1, got[&cells[i]], "cell %d", i)
	}
	require.Zero(t, r.Queues())
}

func BenchmarkQueueDelete(b *testing.B) {
	r := NewRegistry()
	q := r.NewQueue()
	var cell pool.Value
	free := func(*pool.Value) {}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		q.Delete(&cell)
		if i%256 == 255 {
			r.Drain(free)
		}
	}
}
