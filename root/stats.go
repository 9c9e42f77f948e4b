package root

import (
	"github.com/joshuapare/rootkit/root/alloc"
	"github.com/joshuapare/rootkit/root/scan"
)

// Stats is a snapshot of arena counters.
type Stats struct {
	alloc.Stats

	PoolsByClass []int  // Mapped pools per size class
	Reallocs     uint64 // Modify calls that moved the root to a young pool
	Demotions    uint64 // Modify calls that marked an old pool young
	Drained      uint64 // Deferred deletions freed
	Pending      int    // Deferred deletions not drained yet
	Queues       int    // Registered deletion queues
	MinorScans   uint64
	MajorScans   uint64
}

// Stats returns a snapshot of the arena counters.
func (a *Arena) Stats() Stats {
	return Stats{
		Stats:        a.alloc.Stats(),
		PoolsByClass: a.alloc.PoolsByClass(),
		Reallocs:     a.reallocs,
		Demotions:    a.demoted,
		Drained:      a.drained,
		Pending:      a.pending.Pending(),
		Queues:       a.pending.Queues(),
		MinorScans:   a.scanner.Count(scan.Minor),
		MajorScans:   a.scanner.Count(scan.Major),
	}
}

// ClassWords returns the cell width, in words, of every size class.
func (a *Arena) ClassWords() []int {
	out := make([]int, a.alloc.NumClasses())
	for i := range out {
		out[i] = a.alloc.ClassWords(i)
	}
	return out
}

// PoolSize returns the pool block size in bytes.
func (a *Arena) PoolSize() int { return a.alloc.PoolSize() }
