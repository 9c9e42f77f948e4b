package reclaim

import (
	"sync/atomic"

	"github.com/joshuapare/rootkit/root/pool"
)

// Registry is the set of queues one arena drains.
type Registry struct {
	queues atomic.Pointer[Queue]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewQueue registers and returns a queue. Safe for concurrent use.
func (r *Registry) NewQueue() *Queue {
	q := &Queue{}
	for {
		old := r.queues.Load()
		q.next = old
		if r.queues.CompareAndSwap(old, q) {
			return q
		}
	}
}

// Drain frees every pending deletion through free and returns how many were
// freed. Closed queues that are empty afterwards are unlinked.
//
// Drain must be called by one goroutine at a time, the runtime lock holder.
func (r *Registry) Drain(free func(*pool.Value)) int {
	total := 0
	var prev *Queue
	for q := r.queues.Load(); q != nil; {
		next := q.next
		// Load closed first: nothing is pushed after Close.
		closed := q.closed.Load()
		total += q.drain(free)

		if closed && r.unlink(prev, q) {
			q = next
			continue
		}
		prev = q
		q = next
	}
	return total
}

func (r *Registry) unlink(prev, q *Queue) bool {
	if prev == nil {
		// A concurrent NewQueue may have pushed in front of q; leave q for
		// the next drain.
		return r.queues.CompareAndSwap(q, q.next)
	}
	prev.next = q.next
	return true
}

// Pending returns the number of queued deletions across all queues. The
// value is approximate while writers are active.
func (r *Registry) Pending() int {
	n := 0
	for q := r.queues.Load(); q != nil; q = q.next {
		n += q.Pending()
	}
	return n
}

// Queues returns the number of registered queues.
func (r *Registry) Queues() int {
	n := 0
	for q := r.queues.Load(); q != nil; q = q.next {
		n++
	}
	return n
}
