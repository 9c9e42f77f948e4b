package root

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/joshuapare/rootkit/root/alloc"
	"github.com/joshuapare/rootkit/root/pool"
	"github.com/joshuapare/rootkit/root/reclaim"
	"github.com/joshuapare/rootkit/root/scan"
)

// Arena owns a set of root pools and the scanner that relocates them.
//
// Unless noted otherwise, methods require the runtime lock (Lock).
type Arena struct {
	cfg       Config
	lock      sync.Locker
	collector Collector
	logger    *slog.Logger

	alloc   *alloc.Allocator
	scanner *scan.Registrar
	pending *reclaim.Registry

	reallocs uint64
	demoted  uint64
	drained  uint64
	closed   bool
}

// New returns an empty arena. No pool is mapped until the first Create.
func New(cfg Config) (*Arena, error) {
	cfg = cfg.withDefaults()
	al, err := alloc.New(alloc.Options{
		PoolSize: cfg.PoolSize,
		Classes:  cfg.Classes,
		Pages:    cfg.pages(),
		Poison:   cfg.Poison,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("root: new arena: %w", err)
	}
	a := &Arena{
		cfg:       cfg,
		lock:      cfg.Lock,
		collector: cfg.Collector,
		logger:    cfg.Logger,
		alloc:     al,
		pending:   reclaim.NewRegistry(),
	}
	a.scanner = scan.New((*scanSource)(a), cfg.Logger)
	if a.collector == nil {
		al.InvalidateGenerations()
	}
	return a, nil
}

// Lock acquires the runtime lock.
func (a *Arena) Lock() { a.lock.Lock() }

// Unlock releases the runtime lock.
func (a *Arena) Unlock() { a.lock.Unlock() }

func (a *Arena) isYoung(v Value) bool {
	return a.collector == nil || a.collector.IsYoung(v)
}

// Create returns a new root holding v. On failure it returns the zero
// Handle and an error wrapping ErrAllocFailure.
func (a *Arena) Create(v Value) (Handle, error) {
	assertLocked(a.lock)
	c, p, err := a.alloc.Alloc(0)
	if err != nil {
		return Handle{}, err
	}
	*c = v
	if p.Gen() == pool.Old && a.isYoung(v) {
		a.alloc.Demote(p)
	}
	return newHandle(c, p), nil
}

// CreateN returns a new root holding the values vs, in the smallest size
// class that fits them. Words beyond len(vs) read as zero.
func (a *Arena) CreateN(vs ...Value) (Handle, error) {
	assertLocked(a.lock)
	n := len(vs)
	if n == 0 {
		n = 1
	}
	class, err := a.alloc.ClassFor(n)
	if err != nil {
		return Handle{}, err
	}
	c, p, err := a.alloc.Alloc(class)
	if err != nil {
		return Handle{}, err
	}
	ws := p.CellWords(a.mustIndex(p, c))
	copy(ws, vs)
	if p.Gen() == pool.Old {
		for _, v := range vs {
			if a.isYoung(v) {
				a.alloc.Demote(p)
				break
			}
		}
	}
	return newHandle(c, p), nil
}

// Words returns every word of h's cell. The slice aliases the cell and is
// rewritten by scans like Get.
func (a *Arena) Words(h Handle) []Value {
	p := a.poolOf("words", h)
	return p.CellWords(a.mustIndex(p, h.p))
}

// Modify replaces the first word of the root h. It never fails.
//
// Storing a young value into an old pool either moves the root to the
// class's current pool, when that pool is young, or marks the old pool for
// the next minor scan. *h is updated when the root moves.
func (a *Arena) Modify(h *Handle, v Value) {
	assertLocked(a.lock)
	p := a.poolOf("modify", *h)
	if a.collector == nil || !a.collector.IsYoung(v) {
		*h.p = v
		return
	}
	if p.Gen() == pool.Young {
		if a.alloc.Scanning() {
			// The running scan may have passed this cell already.
			a.alloc.Demote(p)
		}
		*h.p = v
		return
	}

	if cur := a.alloc.Current(p.Class()); cur != nil && cur != p &&
		cur.Gen() == pool.Young && !cur.Full() && !a.alloc.Scanning() {
		if c, np, err := a.alloc.Alloc(p.Class()); err == nil {
			copy(np.CellWords(a.mustIndex(np, c)), p.CellWords(a.mustIndex(p, h.p)))
			*c = v
			if err := a.alloc.Free(h.p); err != nil {
				violation("modify", err)
			}
			*h = newHandle(c, np)
			a.reallocs++
			return
		}
	}
	a.alloc.Demote(p)
	*h.p = v
	a.demoted++
}

// Delete releases the root h immediately.
func (a *Arena) Delete(h Handle) {
	assertLocked(a.lock)
	if h.IsZero() {
		violation("delete", ErrUseAfterDelete)
	}
	if err := a.alloc.Free(h.p); err != nil {
		violation("delete", err)
	}
}

// NewQueue returns a queue through which a goroutine that does not hold the
// runtime lock can delete roots. Safe without the lock.
func (a *Arena) NewQueue() *Queue {
	return &Queue{q: a.pending.NewQueue()}
}

// Flush frees every queued deletion and returns how many.
func (a *Arena) Flush() int {
	assertLocked(a.lock)
	return a.drain()
}

func (a *Arena) drain() int {
	n := a.pending.Drain(func(c *pool.Value) {
		if err := a.alloc.Free(c); err != nil {
			violation("deferred delete", err)
		}
	})
	if n > 0 {
		a.drained += uint64(n)
		a.logger.Debug("drained deferred deletions", "count", n)
	}
	return n
}

// Scan drains queued deletions, then rewrites every root visited by a scan
// of phase with relocate. Attach calls it from the runtime's scanners.
func (a *Arena) Scan(phase scan.Phase, relocate scan.Relocator) (scan.Result, error) {
	assertLocked(a.lock)
	return a.scanner.Scan(phase, relocate)
}

// Occupancy returns the number of live roots, including queued deletions
// not drained yet.
func (a *Arena) Occupancy() int { return a.alloc.Live() }

// Pools returns the number of mapped pools.
func (a *Arena) Pools() int { return a.alloc.Pools() }

// Check verifies every pool and class table invariant.
func (a *Arena) Check() error { return a.alloc.Check() }

// Close releases every pool. Roots must not be used afterwards.
func (a *Arena) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	return a.alloc.Close()
}

func (a *Arena) poolOf(op string, h Handle) *pool.Pool {
	if h.IsZero() {
		violation(op, ErrUseAfterDelete)
	}
	p, err := a.alloc.PoolOf(h.p)
	if err != nil {
		violation(op, err)
	}
	if debugChecks && !a.alloc.IsLive(h.p) {
		violation(op, ErrUseAfterDelete)
	}
	return p
}

func (a *Arena) mustIndex(p *pool.Pool, c *pool.Value) int {
	idx, err := p.IndexOf(c)
	if err != nil {
		violation("index", err)
	}
	return idx
}

// scanSource adapts an Arena to scan.Source.
type scanSource Arena

func (s *scanSource) Drain() int { return (*Arena)(s).drain() }

func (s *scanSource) BeginScan() { s.alloc.BeginScan() }

func (s *scanSource) Snapshot(minor bool, dst []*pool.Pool) []*pool.Pool {
	return s.alloc.Snapshot(minor, dst)
}

func (s *scanSource) EndScan(minor bool) {
	s.alloc.EndScan(minor)
	if s.collector == nil {
		s.alloc.InvalidateGenerations()
	}
}
