package pool

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/joshuapare/rootkit/internal/format"
	"github.com/joshuapare/rootkit/internal/pagemem"
)

// Value is an opaque managed-heap word held by a root cell.
type Value uint64

// Gen is the generation tag of a pool: the youngest values it may hold.
type Gen uint8

const (
	// Young pools may hold values the next minor collection has to see.
	Young Gen = iota
	// Old pools hold only values that survived at least one minor scan.
	Old
)

func (g Gen) String() string {
	if g == Young {
		return "young"
	}
	return "old"
}

var (
	// ErrNotLive indicates a free of a cell that is not occupied.
	ErrNotLive = errors.New("pool: cell is not occupied")

	// ErrNotInPool indicates a cell address outside the pool's cell range.
	ErrNotInPool = errors.New("pool: address is not a cell of this pool")

	// ErrCorrupt indicates a violated partition invariant.
	ErrCorrupt = errors.New("pool: invariant violated")
)

// Pool is one block of cells of a single width.
type Pool struct {
	block pagemem.Block
	cells unsafe.Pointer // first cell, just past the header

	id       uint32
	class    int
	words    int
	stride   uintptr
	capacity int

	nextUnused int // bump cursor
	freeHead   int // -1 when the free list is empty
	occupied   int

	gen    Gen
	poison bool

	live  bitmap
	fresh bitmap // allocated lazily; cells created during a running scan
}

// New formats block as a pool of cells words wide and returns it.
// The pool starts Young and empty.
func New(block pagemem.Block, id uint32, class, words int, poison bool) *Pool {
	capacity := format.CellsPerPool(block.Size(), words)
	base := block.Base()

	format.PutU32(base, format.HeaderMagicOffset, format.PoolMagic)
	format.PutU32(base, format.HeaderIDOffset, id)
	format.PutU32(base, format.HeaderClassOffset, uint32(class))
	format.PutU32(base, format.HeaderWordsOffset, uint32(words))

	return &Pool{
		block:    block,
		cells:    unsafe.Add(base, format.PoolHeaderSize),
		id:       id,
		class:    class,
		words:    words,
		stride:   uintptr(words * format.WordSize),
		capacity: capacity,
		freeHead: -1,
		gen:      Young,
		poison:   poison,
		live:     newBitmap(capacity),
	}
}

// Base returns the start of the pool block containing addr.
func Base(addr unsafe.Pointer, poolSize int) unsafe.Pointer {
	// The block is a mapping outside the Go heap, so masking the address
	// stays within one allocation.
	a := uintptr(addr)
	return unsafe.Add(addr, -int(a-format.AlignDown(a, uintptr(poolSize))))
}

// HeaderID reads the pool id stored in the header at base. ok is false when
// the magic word does not match.
func HeaderID(base unsafe.Pointer) (id uint32, ok bool) {
	if format.ReadU32(base, format.HeaderMagicOffset) != format.PoolMagic {
		return 0, false
	}
	return format.ReadU32(base, format.HeaderIDOffset), true
}

// HeaderWords reads the cell width stored in the header at base.
func HeaderWords(base unsafe.Pointer) int {
	return int(format.ReadU32(base, format.HeaderWordsOffset))
}

// Block returns the memory block backing the pool.
func (p *Pool) Block() pagemem.Block { return p.block }

// ID returns the pool id.
func (p *Pool) ID() uint32 { return p.id }

// Class returns the size class index.
func (p *Pool) Class() int { return p.class }

// Words returns the number of words per cell.
func (p *Pool) Words() int { return p.words }

// Capacity returns the number of cells in the pool.
func (p *Pool) Capacity() int { return p.capacity }

// Occupancy returns the number of occupied cells.
func (p *Pool) Occupancy() int { return p.occupied }

// Full reports whether no cell is available.
func (p *Pool) Full() bool { return p.occupied == p.capacity }

// Empty reports whether no cell is occupied.
func (p *Pool) Empty() bool { return p.occupied == 0 }

// Gen returns the generation tag.
func (p *Pool) Gen() Gen { return p.gen }

// SetGen updates the generation tag.
func (p *Pool) SetGen(g Gen) { p.gen = g }

// Cell returns a pointer to the first word of cell idx.
func (p *Pool) Cell(idx int) *Value {
	return (*Value)(unsafe.Add(p.cells, uintptr(idx)*p.stride))
}

// words returns the n-word view of the cell starting at c.
func words(c *Value, n int) []Value {
	return unsafe.Slice(c, n)
}

// CellWords returns the word view of cell idx.
func (p *Pool) CellWords(idx int) []Value {
	return words(p.Cell(idx), p.words)
}

// IndexOf maps a cell pointer back to its index.
func (p *Pool) IndexOf(c *Value) (int, error) {
	addr := uintptr(unsafe.Pointer(c))
	start := uintptr(p.cells)
	if addr < start {
		return 0, ErrNotInPool
	}
	off := addr - start
	if off%p.stride != 0 || off/p.stride >= uintptr(p.capacity) {
		return 0, ErrNotInPool
	}
	return int(off / p.stride), nil
}

// IsLive reports whether cell idx is occupied.
func (p *Pool) IsLive(idx int) bool { return p.live.test(idx) }

// Alloc takes a vacant cell, preferring the free list over the bump cursor
// so recently touched lines are reused first. The cell's words are zeroed.
// ok is false when the pool is full.
func (p *Pool) Alloc() (c *Value, idx int, ok bool) {
	switch {
	case p.freeHead >= 0:
		idx = p.freeHead
		c = p.Cell(idx)
		p.freeHead = format.DecodeLink(uint64(*c))
	case p.nextUnused < p.capacity:
		idx = p.nextUnused
		c = p.Cell(idx)
		p.nextUnused++
	default:
		return nil, 0, false
	}

	ws := words(c, p.words)
	for i := range ws {
		ws[i] = 0
	}
	p.live.set(idx)
	p.occupied++
	return c, idx, true
}

// Free returns cell idx to the head of the free list.
func (p *Pool) Free(idx int) error {
	if idx < 0 || idx >= p.capacity {
		return ErrNotInPool
	}
	if !p.live.test(idx) {
		return fmt.Errorf("%w: pool %d cell %d", ErrNotLive, p.id, idx)
	}
	ws := p.CellWords(idx)
	if p.poison {
		for i := 1; i < len(ws); i++ {
			ws[i] = Value(format.PoisonWord)
		}
	}
	ws[0] = Value(format.EncodeLink(p.freeHead, p.poison))
	p.freeHead = idx

	p.live.clear(idx)
	if p.fresh != nil {
		p.fresh.clear(idx)
	}
	p.occupied--
	return nil
}

// MarkFresh flags cell idx as created during the running scan so the
// scanner skips it.
func (p *Pool) MarkFresh(idx int) {
	if p.fresh == nil {
		p.fresh = newBitmap(p.capacity)
	}
	p.fresh.set(idx)
}

// ClearFresh drops all fresh marks at the end of a scan.
func (p *Pool) ClearFresh() {
	if p.fresh != nil {
		p.fresh.reset()
	}
}

// Scan calls visit once for every word of every occupied cell that was not
// created during the current scan, and returns the number of cells visited.
//
// visit may create or delete roots: a cell deleted before it is reached is
// skipped, and a cell created during the scan is fresh and skipped.
func (p *Pool) Scan(visit func(w *Value)) int {
	visited := 0
	for wi := range p.live {
		pending := p.live[wi]
		if p.fresh != nil {
			pending &^= p.fresh[wi]
		}
		for pending != 0 {
			bit := trailingZeros(pending)
			pending &= pending - 1

			idx := wi<<6 | bit
			// Re-check: visit may have deleted or recreated this cell.
			if !p.live.test(idx) || p.fresh.test(idx) {
				continue
			}
			ws := p.CellWords(idx)
			for i := range ws {
				visit(&ws[i])
			}
			visited++
		}
	}
	return visited
}

// Check verifies the occupied / free-list / untouched partition.
func (p *Pool) Check() error {
	if p.nextUnused < 0 || p.nextUnused > p.capacity {
		return fmt.Errorf("%w: pool %d bump cursor %d outside [0,%d]", ErrCorrupt, p.id, p.nextUnused, p.capacity)
	}
	if n := p.live.count(); n != p.occupied {
		return fmt.Errorf("%w: pool %d live bitmap has %d cells, counter %d", ErrCorrupt, p.id, n, p.occupied)
	}
	seen := newBitmap(p.capacity)
	free := 0
	for idx := p.freeHead; idx >= 0; {
		if idx >= p.nextUnused {
			return fmt.Errorf("%w: pool %d free cell %d beyond bump cursor %d", ErrCorrupt, p.id, idx, p.nextUnused)
		}
		if seen.test(idx) {
			return fmt.Errorf("%w: pool %d free list cycles at cell %d", ErrCorrupt, p.id, idx)
		}
		if p.live.test(idx) {
			return fmt.Errorf("%w: pool %d cell %d is both free and occupied", ErrCorrupt, p.id, idx)
		}
		link := uint64(*p.Cell(idx))
		if p.poison && !format.IsPoisonedLink(link) {
			return fmt.Errorf("%w: pool %d free cell %d lost its poison tag", ErrCorrupt, p.id, idx)
		}
		seen.set(idx)
		free++
		idx = format.DecodeLink(link)
	}
	for idx := p.nextUnused; idx < p.capacity; idx++ {
		if p.live.test(idx) {
			return fmt.Errorf("%w: pool %d untouched cell %d is occupied", ErrCorrupt, p.id, idx)
		}
	}
	if p.occupied+free != p.nextUnused {
		return fmt.Errorf("%w: pool %d occupied %d + free %d != bump cursor %d",
			ErrCorrupt, p.id, p.occupied, free, p.nextUnused)
	}
	return nil
}

func (p *Pool) String() string {
	return fmt.Sprintf("pool{id=%d class=%d words=%d occ=%d/%d gen=%s}",
		p.id, p.class, p.words, p.occupied, p.capacity, p.gen)
}
