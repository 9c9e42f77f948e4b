package alloc

import (
	"fmt"
	"sort"
)

// SizeClassConfig defines the cell widths, in words, of the size classes.
// Class i holds roots of up to Words[i] values.
type SizeClassConfig struct {
	// Name for this configuration (for benchmarking and logs)
	Name string

	// Words per cell for each class, strictly ascending.
	Words []int
}

// Predefined configurations.
var (
	// ConfigSingle: one class of single-word roots, the common case.
	ConfigSingle = SizeClassConfig{
		Name:  "Single",
		Words: []int{1},
	}

	// ConfigBalanced: single-word roots plus small tuples.
	ConfigBalanced = SizeClassConfig{
		Name:  "Balanced",
		Words: []int{1, 2, 4, 8},
	}

	// ConfigWide: adds classes for larger root records.
	ConfigWide = SizeClassConfig{
		Name:  "Wide",
		Words: []int{1, 2, 4, 8, 16, 32},
	}

	// Default configuration (used if none specified).
	DefaultConfig = ConfigBalanced
)

// sizeClassTable holds the validated class widths.
type sizeClassTable struct {
	config     SizeClassConfig
	words      []int
	numClasses int
}

// newSizeClassTable validates config against the pool geometry.
// maxWords is the widest cell that still fits one cell per pool.
func newSizeClassTable(config SizeClassConfig, maxWords int) (*sizeClassTable, error) {
	if len(config.Words) == 0 {
		return nil, fmt.Errorf("%w: no size classes", ErrBadConfig)
	}
	for i, w := range config.Words {
		if w <= 0 || w > maxWords {
			return nil, fmt.Errorf("%w: class %d width %d outside [1,%d]", ErrBadConfig, i, w, maxWords)
		}
		if i > 0 && w <= config.Words[i-1] {
			return nil, fmt.Errorf("%w: class widths must be strictly ascending", ErrBadConfig)
		}
	}
	words := make([]int, len(config.Words))
	copy(words, config.Words)
	return &sizeClassTable{
		config:     config,
		words:      words,
		numClasses: len(words),
	}, nil
}

// getSizeClass returns the smallest class whose cells hold n words.
// Returns numClasses when no class is wide enough.
func (t *sizeClassTable) getSizeClass(n int) int {
	return sort.SearchInts(t.words, n)
}

// String returns a human-readable description of the size class table.
func (t *sizeClassTable) String() string {
	return t.config.Name
}

// NumClasses returns the number of size classes.
func (t *sizeClassTable) NumClasses() int {
	return t.numClasses
}
