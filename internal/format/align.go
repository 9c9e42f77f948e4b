package format

// IsPow2 reports whether n is a positive power of two.
func IsPow2(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// AlignUp returns n rounded up to a multiple of a. a must be a power of two.
//
// Example:
//
//	AlignUp(1, 64)  = 64
//	AlignUp(64, 64) = 64
//	AlignUp(65, 64) = 128
func AlignUp(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// AlignDown returns addr rounded down to a multiple of a (a power of two).
// Used to find the pool block containing a cell address.
func AlignDown(addr, a uintptr) uintptr {
	return addr &^ (a - 1)
}

// CellsPerPool returns how many cells of the given width fit in a pool block
// after the header.
//
// Example (16 KiB pool):
//
//	CellsPerPool(16384, 1) = 2040
//	CellsPerPool(16384, 8) = 255
func CellsPerPool(poolSize, words int) int {
	if words <= 0 {
		return 0
	}
	return (poolSize - PoolHeaderSize) / (words * WordSize)
}
