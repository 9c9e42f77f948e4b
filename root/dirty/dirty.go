package dirty

import "math/bits"

// defaultCapacity is the number of pool ids covered before the first grow.
const defaultCapacity = 64

// Range is a half-open interval of pool ids [Start, End).
type Range struct {
	Start uint32
	End   uint32
}

// Tracker is a growable bit set of pool ids.
type Tracker struct {
	bits  []uint64
	count int

	// all forces Has to report true for every id until the next Reset.
	all bool
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{bits: make([]uint64, defaultCapacity/64)}
}

// Add marks id. Adding an id twice is a no-op.
func (t *Tracker) Add(id uint32) {
	w := int(id >> 6)
	for w >= len(t.bits) {
		t.bits = append(t.bits, make([]uint64, len(t.bits)+1)...)
	}
	mask := uint64(1) << (id & 63)
	if t.bits[w]&mask == 0 {
		t.bits[w] |= mask
		t.count++
	}
}

// Remove unmarks id.
func (t *Tracker) Remove(id uint32) {
	w := int(id >> 6)
	if w >= len(t.bits) {
		return
	}
	mask := uint64(1) << (id & 63)
	if t.bits[w]&mask != 0 {
		t.bits[w] &^= mask
		t.count--
	}
}

// Has reports whether id is marked.
func (t *Tracker) Has(id uint32) bool {
	if t.all {
		return true
	}
	w := int(id >> 6)
	return w < len(t.bits) && t.bits[w]&(1<<(id&63)) != 0
}

// Len returns the number of marked ids.
func (t *Tracker) Len() int { return t.count }

// MarkAll makes every id count as marked until the next Reset. Used when the
// generation tags can no longer be trusted and the next minor scan must
// fall back to a full scan.
func (t *Tracker) MarkAll() { t.all = true }

// All reports whether MarkAll is in effect.
func (t *Tracker) All() bool { return t.all }

// Each calls fn for every marked id in ascending order. It does not report
// the ids implied by MarkAll.
func (t *Tracker) Each(fn func(id uint32)) {
	for wi, w := range t.bits {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			w &= w - 1
			fn(uint32(wi<<6 | b))
		}
	}
}

// Ranges returns the marked ids as sorted, coalesced ranges.
func (t *Tracker) Ranges() []Range {
	var out []Range
	t.Each(func(id uint32) {
		if n := len(out); n > 0 && out[n-1].End == id {
			out[n-1].End = id + 1
			return
		}
		out = append(out, Range{Start: id, End: id + 1})
	})
	return out
}

// Reset clears all marks, including MarkAll.
func (t *Tracker) Reset() {
	for i := range t.bits {
		t.bits[i] = 0
	}
	t.count = 0
	t.all = false
}
