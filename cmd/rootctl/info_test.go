package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoCommand(t *testing.T) {
	tests := []struct {
		name        string
		poolSize    int
		classes     string
		json        bool
		wantErr     bool
		wantContain []string
	}{
		{
			name:        "default layout",
			poolSize:    16 << 10,
			classes:     "balanced",
			wantContain: []string{"16,384 bytes", "class 0:", "class 3:", "2,040 cells per pool"},
		},
		{
			name:        "wide preset",
			poolSize:    4096,
			classes:     "wide",
			wantContain: []string{"class 5: 32 words", "15 cells per pool"},
		},
		{
			name:     "bad pool size",
			poolSize: 5000,
			classes:  "balanced",
			wantErr:  true,
		},
		{
			name:     "unknown preset",
			poolSize: 4096,
			classes:  "tiny",
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			poolSize, classes = tt.poolSize, tt.classes

			out, err := captureOutput(t, runInfo)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, want := range tt.wantContain {
				require.Contains(t, out, want)
			}
		})
	}
}

func TestInfoCommand_JSON(t *testing.T) {
	resetFlags(t)
	jsonOut = true

	out, err := captureOutput(t, runInfo)
	require.NoError(t, err)
	assertJSON(t, out)

	var info LayoutInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Equal(t, 16<<10, info.PoolSize)
	require.Len(t, info.Classes, 4)
	require.Equal(t, 8, info.Classes[3].Words)
}
