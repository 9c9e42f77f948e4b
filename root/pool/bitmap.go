package pool

import "math/bits"

func trailingZeros(w uint64) int { return bits.TrailingZeros64(w) }

// bitmap is a fixed-size bit set with one bit per cell.
type bitmap []uint64

func newBitmap(n int) bitmap {
	return make(bitmap, (n+63)/64)
}

func (b bitmap) set(i int)   { b[i>>6] |= 1 << (uint(i) & 63) }
func (b bitmap) clear(i int) { b[i>>6] &^= 1 << (uint(i) & 63) }

func (b bitmap) test(i int) bool {
	if b == nil {
		return false
	}
	return b[i>>6]&(1<<(uint(i)&63)) != 0
}

func (b bitmap) count() int {
	n := 0
	for _, w := range b {
		n += bits.OnesCount64(w)
	}
	return n
}

func (b bitmap) reset() {
	for i := range b {
		b[i] = 0
	}
}
