package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClassTable_Presets(t *testing.T) {
	for _, cfg := range []SizeClassConfig{ConfigSingle, ConfigBalanced, ConfigWide} {
		t.Run(cfg.Name, func(t *testing.T) {
			st, err := newSizeClassTable(cfg, 2040)
			require.NoError(t, err)
			assert.Equal(t, len(cfg.Words), st.NumClasses())
			assert.Equal(t, cfg.Name, st.String())

			for i, w := range cfg.Words {
				assert.Equal(t, i, st.getSizeClass(w), "exact width maps to its own class")
			}
			assert.Equal(t, st.NumClasses(), st.getSizeClass(cfg.Words[len(cfg.Words)-1]+1))
		})
	}
}

func TestSizeClassTable_CopiesWidths(t *testing.T) {
	words := []int{1, 3}
	st, err := newSizeClassTable(SizeClassConfig{Name: "custom", Words: words}, 100)
	require.NoError(t, err)
	words[1] = 50
	assert.Equal(t, 1, st.getSizeClass(3))
}

func TestSizeClassTable_Invalid(t *testing.T) {
	cases := map[string][]int{
		"empty":      nil,
		"zero width": {0, 1},
		"descending": {4, 2},
		"duplicate":  {2, 2},
		"too wide":   {1, 101},
	}
	for name, words := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newSizeClassTable(SizeClassConfig{Name: name, Words: words}, 100)
			require.ErrorIs(t, err, ErrBadConfig)
		})
	}
}
