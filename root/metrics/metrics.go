// Package metrics exports arena statistics as Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuapare/rootkit/root"
)

// Source is the arena a Collector reads. Stats is called with the lock held.
type Source interface {
	Lock()
	Unlock()
	Stats() root.Stats
}

// Collector is a prometheus.Collector over one arena.
type Collector struct {
	src Source

	roots      *prometheus.Desc
	pools      *prometheus.Desc
	youngPools *prometheus.Desc
	pending    *prometheus.Desc
	queues     *prometheus.Desc
	allocs     *prometheus.Desc
	frees      *prometheus.Desc
	failures   *prometheus.Desc
	mapped     *prometheus.Desc
	released   *prometheus.Desc
	drained    *prometheus.Desc
	reallocs   *prometheus.Desc
	demotions  *prometheus.Desc
	scans      *prometheus.Desc
}

const metricsPrefix = "rootkit_"

// NewCollector returns a collector for src. name is attached as the arena
// label so several arenas can share a registry.
func NewCollector(src Source, name string) *Collector {
	constLabels := map[string]string{"arena": name}
	desc := func(n, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(metricsPrefix+n, help, labels, constLabels)
	}

	return &Collector{
		src: src,

		roots:      desc("roots", "The number of live roots, including queued deletions."),
		pools:      desc("pools", "The number of mapped pools, per size class.", "class"),
		youngPools: desc("young_pools", "The number of pools a minor scan visits."),
		pending:    desc("pending_deletions", "The number of queued deletions not drained yet."),
		queues:     desc("deletion_queues", "The number of registered deletion queues."),
		allocs:     desc("root_allocs_total", "The total number of roots created."),
		frees:      desc("root_frees_total", "The total number of roots released."),
		failures:   desc("alloc_failures_total", "The total number of failed pool allocations."),
		mapped:     desc("pools_mapped_total", "The total number of pools mapped."),
		released:   desc("pools_released_total", "The total number of pools released."),
		drained:    desc("drained_deletions_total", "The total number of queued deletions freed."),
		reallocs:   desc("modify_reallocs_total", "The total number of Modify calls that moved a root."),
		demotions:  desc("modify_demotions_total", "The total number of Modify calls that marked an old pool young."),
		scans:      desc("scans_total", "The total number of root scans, per phase.", "phase"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.roots
	ch <- c.pools
	ch <- c.youngPools
	ch <- c.pending
	ch <- c.queues
	ch <- c.allocs
	ch <- c.frees
	ch <- c.failures
	ch <- c.mapped
	ch <- c.released
	ch <- c.drained
	ch <- c.reallocs
	ch <- c.demotions
	ch <- c.scans
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.src.Lock()
	s := c.src.Stats()
	c.src.Unlock()

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	gauge(c.roots, float64(s.Live))
	for class, n := range s.PoolsByClass {
		gauge(c.pools, float64(n), strconv.Itoa(class))
	}
	gauge(c.youngPools, float64(s.YoungPools))
	gauge(c.pending, float64(s.Pending))
	gauge(c.queues, float64(s.Queues))
	counter(c.allocs, s.Allocs)
	counter(c.frees, s.Frees)
	counter(c.failures, s.Failures)
	counter(c.mapped, s.PoolsMapped)
	counter(c.released, s.PoolsReleased)
	counter(c.drained, s.Drained)
	counter(c.reallocs, s.Reallocs)
	counter(c.demotions, s.Demotions)
	counter(c.scans, s.MinorScans, "minor")
	counter(c.scans, s.MajorScans, "major")
}
