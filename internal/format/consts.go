// Package format describes the in-memory layout of root pools: block sizes,
// the pool header, cell geometry and the words written into vacant cells.
// It has no knowledge of allocation policy so the pool, allocator and
// scanner packages can share one definition of the layout.
package format

const (
	// WordSize is the size of one managed value slot in bytes.
	WordSize = 8

	// CacheLine is the assumed cache line size. The pool header occupies
	// exactly one line so the first cell starts line-aligned.
	CacheLine = 64

	// PoolHeaderSize is the number of bytes reserved at the start of every
	// pool block before the first cell.
	PoolHeaderSize = CacheLine

	// DefaultPoolSize is the block size of a pool (16 KiB). Blocks are
	// aligned to their own size so a cell address masks down to its pool.
	DefaultPoolSize = 16 << 10

	// MinPoolSize is the smallest accepted pool block (one 4 KiB page).
	MinPoolSize = 4 << 10

	// MaxPoolSize is the largest accepted pool block.
	MaxPoolSize = 1 << 20

	// PoolMagic identifies a mapped pool header ("root" in ASCII).
	PoolMagic uint32 = 0x746f6f72
)

// Pool header field offsets. All fields are little-endian uint32.
const (
	HeaderMagicOffset = 0x00
	HeaderIDOffset    = 0x04
	HeaderClassOffset = 0x08
	HeaderWordsOffset = 0x0C
)

// Vacant cell encoding.
//
// Word 0 of a free cell holds the free-list link: the index of the next free
// cell plus one, so the zero word terminates the list. When poisoning is on
// the link carries PoisonLinkTag in its top 16 bits and every other word of
// the cell is overwritten with PoisonWord.
const (
	NilLink uint64 = 0

	PoisonLinkTag  uint64 = 0xdead_0000_0000_0000
	PoisonLinkMask uint64 = 0xffff_0000_0000_0000

	PoisonWord uint64 = 0xdeadbeef_deadbeef
)
