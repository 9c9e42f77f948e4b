package alloc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"unsafe"

	"github.com/joshuapare/rootkit/internal/format"
	"github.com/joshuapare/rootkit/internal/pagemem"
	"github.com/joshuapare/rootkit/root/dirty"
	"github.com/joshuapare/rootkit/root/pool"
)

// Runtime debug flag for allocation logging - controlled by ROOTKIT_LOG_ALLOC env var.
var logAlloc = os.Getenv("ROOTKIT_LOG_ALLOC") != ""

// Options configures an Allocator.
type Options struct {
	PoolSize int              // Pool block size, power of two. Default format.DefaultPoolSize
	Classes  SizeClassConfig  // Size classes. Default DefaultConfig
	Pages    pagemem.Provider // Block source. Default pagemem.OS()
	Poison   bool             // Poison vacant cells
	Logger   *slog.Logger     // Default discards
}

// entry is the allocator's bookkeeping for one pool.
type entry struct {
	p       *pool.Pool
	queued  bool // on its class table's available stack
	fresh   bool // has fresh marks to clear at scan end
	touched bool // demoted while a scan ran
	retired bool
}

// classTable holds the pools of one size class.
type classTable struct {
	class int
	words int
	pools int

	// current always has free capacity, unless no pool of the class has.
	current *entry

	// available holds non-current pools that regained capacity, newest last.
	available []*entry
}

// Stats holds allocator counters.
type Stats struct {
	Allocs        uint64 // Cells handed out
	Frees         uint64 // Cells returned
	SlowPath      uint64 // Allocations that had to switch or map a pool
	Failures      uint64 // Allocations that failed to map a pool
	PoolsMapped   uint64 // Pools created
	PoolsReleased uint64 // Pools returned to the page provider
	Live          int    // Occupied cells
	Pools         int    // Mapped pools
	YoungPools    int    // Pools tagged young
}

// Allocator is the class allocator.
type Allocator struct {
	opts      Options
	sizeTable *sizeClassTable
	tables    []classTable

	pools   []*entry // indexed by pool id; nil slots are free ids
	freeIDs []uint32

	young *dirty.Tracker
	live  int

	scanning    bool
	fresh       []*entry
	touched     []*entry
	retireLater []*entry

	stats  Stats
	closed bool
	logger *slog.Logger
}

// New validates opts and returns an allocator with no pools mapped.
func New(opts Options) (*Allocator, error) {
	if opts.PoolSize == 0 {
		opts.PoolSize = format.DefaultPoolSize
	}
	if !format.IsPow2(opts.PoolSize) || opts.PoolSize < format.MinPoolSize || opts.PoolSize > format.MaxPoolSize {
		return nil, fmt.Errorf("%w: pool size %d", ErrBadConfig, opts.PoolSize)
	}
	if opts.Classes.Words == nil {
		opts.Classes = DefaultConfig
	}
	if opts.Pages == nil {
		opts.Pages = pagemem.OS()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	maxWords := (opts.PoolSize - format.PoolHeaderSize) / format.WordSize
	st, err := newSizeClassTable(opts.Classes, maxWords)
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		opts:      opts,
		sizeTable: st,
		tables:    make([]classTable, st.NumClasses()),
		young:     dirty.NewTracker(),
		logger:    opts.Logger,
	}
	for i := range a.tables {
		a.tables[i] = classTable{class: i, words: st.words[i]}
	}
	return a, nil
}

// PoolSize returns the pool block size in bytes.
func (a *Allocator) PoolSize() int { return a.opts.PoolSize }

// NumClasses returns the number of size classes.
func (a *Allocator) NumClasses() int { return len(a.tables) }

// ClassWords returns the cell width of class.
func (a *Allocator) ClassWords(class int) int { return a.tables[class].words }

// ClassFor returns the smallest class whose cells hold n words.
func (a *Allocator) ClassFor(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: %d words", ErrBadClass, n)
	}
	c := a.sizeTable.getSizeClass(n)
	if c >= a.sizeTable.NumClasses() {
		return 0, fmt.Errorf("%w: %d words", ErrTooWide, n)
	}
	return c, nil
}

// Alloc hands out a zeroed cell of class and returns it with its pool.
// On failure nothing is allocated and the error wraps ErrAllocFailure.
func (a *Allocator) Alloc(class int) (*pool.Value, *pool.Pool, error) {
	if a.closed {
		return nil, nil, ErrClosed
	}
	if class < 0 || class >= len(a.tables) {
		return nil, nil, fmt.Errorf("%w: %d", ErrBadClass, class)
	}
	t := &a.tables[class]
	e := t.current
	if e == nil || e.p.Full() {
		var err error
		if e, err = a.refill(t); err != nil {
			a.stats.Failures++
			return nil, nil, err
		}
		a.stats.SlowPath++
	}

	c, idx, _ := e.p.Alloc()
	a.live++
	a.stats.Allocs++
	if a.scanning {
		e.p.MarkFresh(idx)
		if !e.fresh {
			e.fresh = true
			a.fresh = append(a.fresh, e)
		}
	}
	if e.p.Full() {
		if next := t.popAvailable(); next != nil {
			t.current = next
		}
	}
	if logAlloc {
		a.logger.Debug("alloc", "pool", e.p.ID(), "class", class, "cell", idx)
	}
	return c, e.p, nil
}

// refill makes a pool with free capacity current.
func (a *Allocator) refill(t *classTable) (*entry, error) {
	if e := t.popAvailable(); e != nil {
		t.current = e
		return e, nil
	}
	return a.mapPool(t)
}

func (t *classTable) popAvailable() *entry {
	for n := len(t.available); n > 0; n = len(t.available) {
		e := t.available[n-1]
		t.available[n-1] = nil
		t.available = t.available[:n-1]
		e.queued = false
		if !e.retired && !e.p.Full() {
			return e
		}
	}
	return nil
}

func (a *Allocator) mapPool(t *classTable) (*entry, error) {
	blk, err := a.opts.Pages.Map(a.opts.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("%w: class %d: %w", ErrAllocFailure, t.class, err)
	}

	var id uint32
	if n := len(a.freeIDs); n > 0 {
		id = a.freeIDs[n-1]
		a.freeIDs = a.freeIDs[:n-1]
	} else {
		id = uint32(len(a.pools))
		a.pools = append(a.pools, nil)
	}

	e := &entry{p: pool.New(blk, id, t.class, t.words, a.opts.Poison)}
	a.pools[id] = e
	a.young.Add(id)
	t.pools++
	t.current = e
	a.stats.PoolsMapped++

	a.logger.Debug("mapped pool",
		"id", id, "class", t.class, "words", t.words, "capacity", e.p.Capacity())
	return e, nil
}

// Free returns the cell c to its pool.
func (a *Allocator) Free(c *pool.Value) error {
	if a.closed {
		return ErrClosed
	}
	e, idx, err := a.locate(c)
	if err != nil {
		return err
	}
	wasFull := e.p.Full()
	if err := e.p.Free(idx); err != nil {
		return err
	}
	a.live--
	a.stats.Frees++
	if logAlloc {
		a.logger.Debug("free", "pool", e.p.ID(), "cell", idx)
	}

	t := &a.tables[e.p.Class()]
	switch {
	case e == t.current:
	case e.p.Empty() && !a.scanning:
		a.retire(t, e)
	default:
		if e.p.Empty() {
			// The scanner may still walk this block.
			a.retireLater = append(a.retireLater, e)
		}
		if wasFull {
			if t.current == nil || t.current.p.Full() {
				t.current = e
			} else if !e.queued {
				e.queued = true
				t.available = append(t.available, e)
			}
		}
	}
	return nil
}

// retire unmaps an empty, non-current pool.
func (a *Allocator) retire(t *classTable, e *entry) {
	id := e.p.ID()
	e.retired = true
	a.young.Remove(id)
	a.pools[id] = nil
	a.freeIDs = append(a.freeIDs, id)
	t.pools--
	a.stats.PoolsReleased++

	if err := a.opts.Pages.Unmap(e.p.Block()); err != nil {
		a.logger.Warn("unmap pool failed", "id", id, "err", err)
		return
	}
	a.logger.Debug("released pool", "id", id, "class", t.class)
}

// locate resolves a cell pointer to its pool entry and index.
func (a *Allocator) locate(c *pool.Value) (*entry, int, error) {
	if c == nil {
		return nil, 0, fmt.Errorf("%w: nil cell", ErrForeignCell)
	}
	base := pool.Base(unsafe.Pointer(c), a.opts.PoolSize)
	id, ok := pool.HeaderID(base)
	if !ok || int(id) >= len(a.pools) || a.pools[id] == nil || a.pools[id].p.Block().Base() != base {
		return nil, 0, fmt.Errorf("%w: %p", ErrForeignCell, c)
	}
	e := a.pools[id]
	if w := pool.HeaderWords(base); w != e.p.Words() {
		return nil, 0, fmt.Errorf("%w: pool %d header records %d words, pool has %d", pool.ErrCorrupt, id, w, e.p.Words())
	}
	idx, err := e.p.IndexOf(c)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrForeignCell, err)
	}
	return e, idx, nil
}

// PoolOf returns the pool holding cell c.
func (a *Allocator) PoolOf(c *pool.Value) (*pool.Pool, error) {
	e, _, err := a.locate(c)
	if err != nil {
		return nil, err
	}
	return e.p, nil
}

// IsLive reports whether c is an occupied cell of this allocator.
func (a *Allocator) IsLive(c *pool.Value) bool {
	e, idx, err := a.locate(c)
	return err == nil && e.p.IsLive(idx)
}

// Current returns the current pool of class, or nil.
func (a *Allocator) Current(class int) *pool.Pool {
	if e := a.tables[class].current; e != nil {
		return e.p
	}
	return nil
}

// Demote tags p young so the next minor scan visits it. During a scan the
// pool also stays young past the scan's end, since the running scan may
// already have visited it.
func (a *Allocator) Demote(p *pool.Pool) {
	if a.scanning {
		if e := a.pools[p.ID()]; e != nil && !e.touched {
			e.touched = true
			a.touched = append(a.touched, e)
		}
	}
	if p.Gen() == pool.Young {
		return
	}
	p.SetGen(pool.Young)
	a.young.Add(p.ID())
}

// InvalidateGenerations makes the next minor scan visit every pool.
func (a *Allocator) InvalidateGenerations() {
	a.young.MarkAll()
}

// BeginScan enters scan mode: new cells are fresh and retirement waits.
func (a *Allocator) BeginScan() {
	a.scanning = true
}

// Snapshot appends the pools a scan has to visit to dst. A minor scan visits
// young pools only, unless generation knowledge was invalidated.
func (a *Allocator) Snapshot(minor bool, dst []*pool.Pool) []*pool.Pool {
	if !minor || a.young.All() {
		for _, e := range a.pools {
			if e != nil {
				dst = append(dst, e.p)
			}
		}
		return dst
	}
	if a.logger.Enabled(context.Background(), slog.LevelDebug) {
		a.logger.Debug("minor snapshot", "young", a.young.Ranges())
	}
	a.young.Each(func(id uint32) {
		dst = append(dst, a.pools[id].p)
	})
	return dst
}

// EndScan leaves scan mode. After a minor scan every pool is promoted,
// except pools that gained cells or were demoted while the scan ran: the
// scan skipped those writes, so the next minor scan has to see them.
func (a *Allocator) EndScan(minor bool) {
	a.scanning = false

	if minor {
		for _, e := range a.pools {
			if e != nil {
				e.p.SetGen(pool.Old)
			}
		}
		a.young.Reset()
		for _, e := range a.fresh {
			a.keepYoung(e)
		}
		for _, e := range a.touched {
			a.keepYoung(e)
		}
	}

	for _, e := range a.fresh {
		e.p.ClearFresh()
		e.fresh = false
	}
	clear(a.fresh)
	a.fresh = a.fresh[:0]
	for _, e := range a.touched {
		e.touched = false
	}
	clear(a.touched)
	a.touched = a.touched[:0]

	pending := a.retireLater
	a.retireLater = nil
	for _, e := range pending {
		t := &a.tables[e.p.Class()]
		if !e.retired && e.p.Empty() && e != t.current {
			a.retire(t, e)
		}
	}
}

func (a *Allocator) keepYoung(e *entry) {
	if e.retired {
		return
	}
	e.p.SetGen(pool.Young)
	a.young.Add(e.p.ID())
}

// Scanning reports whether a scan is in progress.
func (a *Allocator) Scanning() bool { return a.scanning }

// Live returns the number of occupied cells.
func (a *Allocator) Live() int { return a.live }

// Pools returns the number of mapped pools.
func (a *Allocator) Pools() int {
	n := 0
	for i := range a.tables {
		n += a.tables[i].pools
	}
	return n
}

// PoolsByClass returns the number of mapped pools per class.
func (a *Allocator) PoolsByClass() []int {
	out := make([]int, len(a.tables))
	for i := range a.tables {
		out[i] = a.tables[i].pools
	}
	return out
}

// YoungPools returns the number of pools the next minor scan visits.
func (a *Allocator) YoungPools() int {
	if a.young.All() {
		return a.Pools()
	}
	return a.young.Len()
}

// Stats returns a snapshot of the allocator counters.
func (a *Allocator) Stats() Stats {
	s := a.stats
	s.Live = a.live
	s.Pools = a.Pools()
	s.YoungPools = a.YoungPools()
	return s
}

// Check verifies every pool partition and the class table invariants.
func (a *Allocator) Check() error {
	live := 0
	for _, e := range a.pools {
		if e == nil {
			continue
		}
		if err := e.p.Check(); err != nil {
			return err
		}
		if (e.p.Gen() == pool.Young) != a.young.Has(e.p.ID()) && !a.young.All() {
			return fmt.Errorf("%w: pool %d gen %s disagrees with young set", pool.ErrCorrupt, e.p.ID(), e.p.Gen())
		}
		live += e.p.Occupancy()
	}
	if live != a.live {
		return fmt.Errorf("%w: live counter %d, pools hold %d", pool.ErrCorrupt, a.live, live)
	}
	for i := range a.tables {
		t := &a.tables[i]
		if t.current != nil && !t.current.p.Full() {
			continue
		}
		for _, e := range a.pools {
			if e != nil && e.p.Class() == t.class && !e.p.Full() {
				return fmt.Errorf("%w: class %d current pool is full while pool %d has capacity",
					pool.ErrCorrupt, t.class, e.p.ID())
			}
		}
	}
	return nil
}

// Close unmaps every pool. The allocator is unusable afterwards.
func (a *Allocator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var firstErr error
	for i, e := range a.pools {
		if e == nil {
			continue
		}
		if err := a.opts.Pages.Unmap(e.p.Block()); err != nil && firstErr == nil {
			firstErr = err
		}
		e.retired = true
		a.pools[i] = nil
	}
	for i := range a.tables {
		a.tables[i] = classTable{class: i, words: a.tables[i].words}
	}
	a.young.Reset()
	return firstErr
}
