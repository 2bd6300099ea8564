// Package metrics provides Prometheus observability for GridKit: recompute
// stage counters and latency distributions, visible-row gauges, and
// server-side fetch/cache indicators.
//
// # Basic Usage
//
//	timer := metrics.NewStageTimer("sort")
//	rows := comparator.Sort(rows)
//	timer.Stop()
//
//	metrics.FetchesTotal.WithLabelValues("cancelled").Inc()
//	metrics.ResidentBlocks.Set(float64(cache.Len()))
//
// All collectors register on the default registry via promauto; recording is
// thread-safe and cheap enough to sit inside the recompute path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecomputesTotal counts pipeline stage executions, labeled by stage.
	RecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridkit_recomputes_total",
			Help: "Total number of pipeline stage recomputations",
		},
		[]string{"stage"},
	)

	// RecomputeDuration tracks per-stage recompute latency in seconds.
	RecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gridkit_recompute_duration_seconds",
			Help:    "Pipeline stage recompute latency distribution",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12),
		},
		[]string{"stage"},
	)

	// VisibleRows reports the row count of the final row model.
	VisibleRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridkit_visible_rows",
			Help: "Row count of the most recently computed final row model",
		},
	)

	// FetchesTotal counts server-side fetches by outcome
	// (success, cancelled, stale, error).
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gridkit_serverside_fetches_total",
			Help: "Total server-side window fetches by outcome",
		},
		[]string{"outcome"},
	)

	// FetchDuration tracks server-side fetch latency in seconds.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridkit_serverside_fetch_duration_seconds",
			Help:    "Server-side window fetch latency distribution",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
		},
	)

	// ResidentBlocks reports the number of blocks currently resident in the
	// server-side cache.
	ResidentBlocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gridkit_serverside_resident_blocks",
			Help: "Blocks currently resident in the server-side cache",
		},
	)

	// BlockEvictionsTotal counts blocks evicted by the retention policy.
	BlockEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gridkit_serverside_block_evictions_total",
			Help: "Total blocks evicted by the retention policy",
		},
	)
)

// StageTimer measures one stage execution and records both the counter and
// the latency histogram on Stop.
type StageTimer struct {
	stage string
	start time.Time
}

// NewStageTimer starts timing a pipeline stage.
func NewStageTimer(stage string) *StageTimer {
	return &StageTimer{stage: stage, start: time.Now()}
}

// Stop records the stage execution and returns the elapsed duration.
func (t *StageTimer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	RecomputesTotal.WithLabelValues(t.stage).Inc()
	RecomputeDuration.WithLabelValues(t.stage).Observe(elapsed.Seconds())
	return elapsed
}

// FetchTimer measures one server-side fetch.
type FetchTimer struct {
	start time.Time
}

// NewFetchTimer starts timing a server-side fetch.
func NewFetchTimer() *FetchTimer {
	return &FetchTimer{start: time.Now()}
}

// Stop records the fetch outcome and latency.
func (t *FetchTimer) Stop(outcome string) time.Duration {
	elapsed := time.Since(t.start)
	FetchesTotal.WithLabelValues(outcome).Inc()
	FetchDuration.Observe(elapsed.Seconds())
	return elapsed
}
