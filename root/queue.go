package root

import "github.com/joshuapare/rootkit/root/reclaim"

// Queue deletes roots without the runtime lock. Each Queue belongs to one
// goroutine; create one per goroutine with Arena.NewQueue.
type Queue struct {
	q *reclaim.Queue
}

// Delete queues h for release at the next safe point. It never blocks.
func (q *Queue) Delete(h Handle) {
	if h.IsZero() {
		violation("queue delete", ErrUseAfterDelete)
	}
	q.q.Delete(h.p)
}

// Pending returns the number of deletions on q not drained yet.
func (q *Queue) Pending() int { return q.q.Pending() }

// Close retires q. Deletions already queued are still drained.
func (q *Queue) Close() { q.q.Close() }
