package main

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRunStress(t *testing.T) {
	for _, moving := range []bool{true, false} {
		opts := StressOptions{
			Roots:    3000,
			Threads:  3,
			Phases:   3,
			Moving:   moving,
			PoolSize: 4096,
			Classes:  "balanced",
			Metrics:  true,
		}
		reg := prometheus.NewRegistry()
		report, err := runStress(opts, reg)
		require.NoError(t, err)

		require.Equal(t, 9000, report.Created)
		require.Equal(t, 1500, report.Survivors)
		require.Equal(t, 4500, report.Queued)
		require.Equal(t, 4500+3000, report.Deleted)
		require.Equal(t, 1500, report.HeapObjects)
		require.GreaterOrEqual(t, report.PeakPools, 6)
		require.Equal(t, uint64(3), report.MajorScans)
		require.GreaterOrEqual(t, report.MinorScans, uint64(3))

		require.Contains(t, report.Metrics, `rootkit_roots{arena="stress"} 1500`)
		require.Contains(t, report.Metrics, `rootkit_scans_total{arena="stress",phase="major"} 3`)

		// The collector must not outlive the arena it reads.
		mfs, err := reg.Gather()
		require.NoError(t, err)
		for _, mf := range mfs {
			require.False(t, strings.HasPrefix(mf.GetName(), "rootkit_"), mf.GetName())
		}
	}
}

func TestRunStress_RejectsBadOptions(t *testing.T) {
	_, err := runStress(StressOptions{Roots: 0, Threads: 1, Phases: 1}, nil)
	require.Error(t, err)
	_, err = runStress(StressOptions{Roots: 10, Threads: 1, Phases: 1, PoolSize: 4096, Classes: "huge"}, nil)
	require.Error(t, err)
}

func TestStressCommand_Output(t *testing.T) {
	resetFlags(t)
	stressOpts = StressOptions{Roots: 500, Threads: 2, Phases: 1, Moving: true, PoolSize: 4096, Classes: "balanced", Metrics: true}

	out, err := captureOutput(t, runStressCmd)
	require.NoError(t, err)
	require.Contains(t, out, "Survivors:       250")
	require.Contains(t, out, "✓ Every survivor reaches its object")
	require.Contains(t, out, "Metrics:")
	require.Contains(t, out, `rootkit_roots{arena="stress"} 250`)
}

func TestRunStress_NoMetricsByDefault(t *testing.T) {
	opts := StressOptions{Roots: 100, Threads: 1, Phases: 1, PoolSize: 4096, Classes: "balanced"}
	report, err := runStress(opts, prometheus.NewRegistry())
	require.NoError(t, err)
	require.Empty(t, report.Metrics)
}
