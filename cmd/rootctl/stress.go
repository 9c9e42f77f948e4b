package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/joshuapare/rootkit/cmd/rootctl/logger"
	"github.com/joshuapare/rootkit/root"
	"github.com/joshuapare/rootkit/root/gctest"
	"github.com/joshuapare/rootkit/root/metrics"
	"github.com/joshuapare/rootkit/root/scan"
)

// StressOptions configures a stress run.
type StressOptions struct {
	Roots    int  // Roots created per phase
	Threads  int  // Goroutines deleting through queues
	Phases   int  // Create/delete/collect rounds
	Moving   bool // Relocate survivors at every collection
	PoolSize int
	Classes  string
	Metrics  bool // Capture the arena metrics before the arena closes
}

// StressReport summarises a stress run.
type StressReport struct {
	Created     int           `json:"created"`
	Deleted     int           `json:"deleted"`
	Queued      int           `json:"queued_deletes"`
	Survivors   int           `json:"survivors"`
	PeakPools   int           `json:"peak_pools"`
	FinalPools  int           `json:"final_pools"`
	MinorScans  uint64        `json:"minor_scans"`
	MajorScans  uint64        `json:"major_scans"`
	Reallocs    uint64        `json:"modify_reallocs"`
	Demotions   uint64        `json:"modify_demotions"`
	HeapObjects int           `json:"heap_objects"`
	Duration    time.Duration `json:"duration_ns"`
	Metrics     string        `json:"metrics,omitempty"`
}

var stressOpts StressOptions

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressOpts.Roots, "roots", 10000, "Roots created per phase")
	cmd.Flags().IntVar(&stressOpts.Threads, "threads", 4, "Goroutines deleting without the lock")
	cmd.Flags().IntVar(&stressOpts.Phases, "phases", 4, "Number of create/delete/collect rounds")
	cmd.Flags().BoolVar(&stressOpts.Moving, "moving", true, "Relocate every surviving object at every collection")
	cmd.Flags().BoolVar(&stressOpts.Metrics, "metrics", false, "Dump arena metrics in Prometheus text format")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Run a create/scan/deferred-delete workload",
		Long: `The stress command creates roots to objects of a toy generational heap,
deletes half of them from several goroutines through deletion queues while
collections run, and verifies that every surviving root still reaches its
object after relocation.

Example:
  rootctl stress --roots 100000 --threads 8
  rootctl stress --moving=false --json
  rootctl stress --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stressOpts.PoolSize = poolSize
			stressOpts.Classes = classes
			return runStressCmd()
		},
	}
}

func runStressCmd() error {
	reg := prometheus.NewRegistry()
	report, err := runStress(stressOpts, reg)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(report)
	}
	printInfo("\nStress Run:\n")
	printInfo("  Roots created:   %d\n", report.Created)
	printInfo("  Deleted:         %d (%d queued)\n", report.Deleted, report.Queued)
	printInfo("  Survivors:       %d\n", report.Survivors)
	printInfo("  Pools:           %d peak, %d final\n", report.PeakPools, report.FinalPools)
	printInfo("  Scans:           %d minor, %d major\n", report.MinorScans, report.MajorScans)
	printInfo("  Modify:          %d moved, %d demoted\n", report.Reallocs, report.Demotions)
	printInfo("  Heap objects:    %d\n", report.HeapObjects)
	printInfo("  Duration:        %s\n", report.Duration)
	printInfo("\nVerification:\n")
	printInfo("  ✓ Every survivor reaches its object\n")
	printInfo("  ✓ Pool invariants hold\n")

	if report.Metrics != "" {
		printInfo("\nMetrics:\n")
		printInfo("%s", report.Metrics)
	}
	return nil
}

func payload(phase, i int) uint64 { return uint64(phase)<<32 | uint64(i) }

// runStress runs the workload with the arena collector registered with reg.
// The collector is unregistered before the arena closes; set opts.Metrics to
// keep a text snapshot of it in the report.
func runStress(opts StressOptions, reg *prometheus.Registry) (*StressReport, error) {
	if opts.Roots <= 0 || opts.Phases <= 0 || opts.Threads <= 0 {
		return nil, fmt.Errorf("roots, phases and threads must be positive")
	}
	cls, err := sizeClasses(opts.Classes)
	if err != nil {
		return nil, err
	}
	heap := gctest.New(opts.Moving)
	a, err := root.New(root.Config{
		PoolSize: opts.PoolSize,
		Classes:  cls,
		Logger:   logger.L,
	})
	if err != nil {
		return nil, err
	}
	defer a.Close()
	a.Attach(heap)
	if reg != nil {
		c := metrics.NewCollector(a, "stress")
		if err := reg.Register(c); err != nil {
			return nil, err
		}
		// Runs before Close: the collector reads mapped pools.
		defer reg.Unregister(c)
	}

	start := time.Now()
	report := &StressReport{}
	var survivors []root.Handle
	var expect []uint64

	for phase := 0; phase < opts.Phases; phase++ {
		a.Lock()
		// Survivors of the previous round are released under the lock.
		for _, h := range survivors {
			a.Delete(h)
			report.Deleted++
		}
		survivors, expect = survivors[:0], expect[:0]

		handles := make([]root.Handle, opts.Roots)
		for i := range handles {
			p := payload(phase, i)
			var err error
			if i%4 == 3 {
				handles[i], err = a.CreateN(heap.Alloc(p), gctest.Immediate(p))
			} else {
				handles[i], err = a.Create(heap.Alloc(p))
			}
			if err != nil {
				a.Unlock()
				return nil, fmt.Errorf("phase %d: create root %d: %w", phase, i, err)
			}
		}
		report.Created += len(handles)
		if pools := a.Pools(); pools > report.PeakPools {
			report.PeakPools = pools
		}
		heap.Collect(scan.Minor)
		// Repoint a few old roots at young objects.
		for i := 0; i < len(handles); i += 16 {
			p := payload(phase, i)
			a.Modify(&handles[i], heap.Alloc(p))
		}
		a.Unlock()

		var doomed []root.Handle
		for i, h := range handles {
			if i%2 == 0 {
				doomed = append(doomed, h)
			} else {
				survivors = append(survivors, h)
				expect = append(expect, payload(phase, i))
			}
		}
		queued := deleteConcurrently(a, heap, doomed, opts.Threads)
		report.Queued += queued
		report.Deleted += queued

		a.Lock()
		heap.Collect(scan.Major)
		for i, h := range survivors {
			got, ok := heap.Payload(h.Get())
			if !ok || got != expect[i] {
				a.Unlock()
				return nil, fmt.Errorf("phase %d: root %d lost its object (got %d, ok %v)", phase, i, got, ok)
			}
		}
		if err := a.Check(); err != nil {
			a.Unlock()
			return nil, fmt.Errorf("phase %d: %w", phase, err)
		}
		pools := a.Pools()
		a.Unlock()
		printVerbose("phase %d: %d survivors, %d pools\n", phase, len(survivors), pools)
	}

	a.Lock()
	st := a.Stats()
	a.Unlock()
	report.Survivors = len(survivors)
	report.FinalPools = st.Pools
	report.MinorScans = st.MinorScans
	report.MajorScans = st.MajorScans
	report.Reallocs = st.Reallocs
	report.Demotions = st.Demotions
	report.HeapObjects = heap.Live()
	report.Duration = time.Since(start)
	logger.L.Info("stress run complete",
		"created", report.Created,
		"survivors", report.Survivors,
		"peak_pools", report.PeakPools,
		"duration", report.Duration)

	if reg != nil && opts.Metrics {
		// Gathering takes the lock, so it must run unlocked.
		text, err := gatherText(reg)
		if err != nil {
			return nil, err
		}
		report.Metrics = text
	}
	return report, nil
}

// deleteConcurrently splits hs across threads that delete through their own
// queues while the calling goroutine keeps collecting.
func deleteConcurrently(a *root.Arena, heap *gctest.Heap, hs []root.Handle, threads int) int {
	var wg sync.WaitGroup
	chunk := (len(hs) + threads - 1) / threads
	for t := 0; t < threads; t++ {
		lo := min(t*chunk, len(hs))
		hi := min(lo+chunk, len(hs))
		wg.Add(1)
		go func(part []root.Handle) {
			defer wg.Done()
			q := a.NewQueue()
			defer q.Close()
			for _, h := range part {
				q.Delete(h)
			}
		}(hs[lo:hi])
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			return len(hs)
		default:
		}
		a.Lock()
		heap.Collect(scan.Minor)
		a.Unlock()
	}
}

// gatherText renders every metric family of g in Prometheus text format.
func gatherText(g prometheus.Gatherer) (string, error) {
	mfs, err := g.Gather()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&sb, mf); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}
