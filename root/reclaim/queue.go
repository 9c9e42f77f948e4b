package reclaim

import (
	"errors"
	"sync/atomic"

	"github.com/joshuapare/rootkit/internal/format"
	"github.com/joshuapare/rootkit/root/pool"
)

// ErrQueueClosed is the panic value of Delete on a closed queue.
var ErrQueueClosed = errors.New("reclaim: delete on closed queue")

type entry struct {
	cell *pool.Value
	next *entry
}

// Queue is a single-writer stack of pending deletions.
//
// Delete and Close must be called from the goroutine that owns the queue.
// Drain, on the registry, may run concurrently with them.
type Queue struct {
	head atomic.Pointer[entry]
	_    [format.CacheLine - 8]byte

	// spare holds nodes handed back by Drain; local holds nodes the writer
	// took from spare and has not reused yet.
	spare atomic.Pointer[entry]
	local *entry

	pending atomic.Int64
	closed  atomic.Bool

	// next links the registry list. Only the draining goroutine changes it
	// once the queue is published.
	next *Queue
}

// Delete queues cell for release.
func (q *Queue) Delete(cell *pool.Value) {
	if q.closed.Load() {
		panic(ErrQueueClosed)
	}
	n := q.local
	if n == nil {
		n = q.spare.Swap(nil)
	}
	if n != nil {
		q.local = n.next
	} else {
		n = new(entry)
	}
	n.cell = cell
	q.pending.Add(1)
	for {
		old := q.head.Load()
		n.next = old
		if q.head.CompareAndSwap(old, n) {
			return
		}
	}
}

// Close retires the queue. Its pending deletions are still drained, after
// which the registry forgets it.
func (q *Queue) Close() {
	q.local = nil
	q.closed.Store(true)
}

// Pending returns the number of deletions not drained yet.
func (q *Queue) Pending() int { return int(q.pending.Load()) }

// drain frees every queued cell and recycles the nodes.
func (q *Queue) drain(free func(*pool.Value)) int {
	list := q.head.Swap(nil)
	if list == nil {
		return 0
	}
	n := 0
	last := list
	for e := list; e != nil; e = e.next {
		free(e.cell)
		e.cell = nil
		last = e
		n++
	}
	q.pending.Add(-int64(n))

	for {
		old := q.spare.Load()
		last.next = old
		if q.spare.CompareAndSwap(old, list) {
			return n
		}
	}
}
