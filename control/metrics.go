// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Prometheus export of pool usage. Values are read from pool snapshots at
// scrape time, so the collector holds no state of its own.

package control

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/momentics/hioload-mem/pool"
)

// StatsSource yields pool snapshots.
type StatsSource func() []pool.PoolStats

var poolLabels = []string{"tier", "pool"}

var (
	capacityDesc = prometheus.NewDesc("hioload_mem_pool_capacity_bytes",
		"Arena size of the pool.", poolLabels, nil)
	usedDesc = prometheus.NewDesc("hioload_mem_pool_used_bytes",
		"Bytes currently handed out by the pool.", poolLabels, nil)
	largestFreeDesc = prometheus.NewDesc("hioload_mem_pool_largest_free_bytes",
		"Largest contiguous free block.", poolLabels, nil)
	liveDesc = prometheus.NewDesc("hioload_mem_pool_live_allocations",
		"Outstanding allocations served by the pool.", poolLabels, nil)
	fallbackDesc = prometheus.NewDesc("hioload_mem_pool_fallback_total",
		"Allocations served by the heap instead of the pool.", poolLabels, nil)
)

// PoolCollector is a prometheus.Collector over pool snapshots.
type PoolCollector struct {
	sources []StatsSource
}

var _ prometheus.Collector = (*PoolCollector)(nil)

// NewPoolCollector collects from sources, or from pool.Stats when none are
// given.
func NewPoolCollector(sources ...StatsSource) *PoolCollector {
	if len(sources) == 0 {
		sources = []StatsSource{pool.Stats}
	}
	return &PoolCollector{sources: sources}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- capacityDesc
	ch <- usedDesc
	ch <- largestFreeDesc
	ch <- liveDesc
	ch <- fallbackDesc
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, src := range c.sources {
		for _, s := range src() {
			ch <- prometheus.MustNewConstMetric(capacityDesc, prometheus.GaugeValue, float64(s.CapacityBytes), s.Tier, s.Pool)
			ch <- prometheus.MustNewConstMetric(usedDesc, prometheus.GaugeValue, float64(s.UsedBytes), s.Tier, s.Pool)
			ch <- prometheus.MustNewConstMetric(largestFreeDesc, prometheus.GaugeValue, float64(s.LargestFree), s.Tier, s.Pool)
			ch <- prometheus.MustNewConstMetric(liveDesc, prometheus.GaugeValue, float64(s.LiveAllocations), s.Tier, s.Pool)
			ch <- prometheus.MustNewConstMetric(fallbackDesc, prometheus.CounterValue, float64(s.Fallbacks), s.Tier, s.Pool)
		}
	}
}
