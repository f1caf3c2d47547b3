// Package metrics exposes the funnel's Prometheus instrumentation: stage
// throughput, pool occupancy, kernel latency, and shuffle cache hit rate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry is the custom prometheus registry for alphafunnel metrics.
	Registry = prometheus.NewRegistry()

	// ============================================
	// Pipeline stage metrics
	// ============================================

	// StageOutcomesTotal tracks every stage transition by outcome.
	StageOutcomesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alphafunnel",
			Subsystem: "pipeline",
			Name:      "stage_outcomes_total",
			Help:      "Count of stage outcomes by stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	// StageDuration tracks how long each stage takes to evaluate.
	StageDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "alphafunnel",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage evaluation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// CandidatesClaimedTotal tracks candidates claimed by workers.
	CandidatesClaimedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alphafunnel",
			Subsystem: "pipeline",
			Name:      "candidates_claimed_total",
			Help:      "Total candidates claimed by a worker",
		},
		[]string{"worker_id"},
	)

	// StaleClaimsReleasedTotal tracks claims recovered by the janitor.
	StaleClaimsReleasedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "alphafunnel",
			Subsystem: "pipeline",
			Name:      "stale_claims_released_total",
			Help:      "Total claims released by the stale-claim janitor",
		},
	)

	// ============================================
	// Kernel metrics
	// ============================================

	// KernelRunDuration tracks one backtest run's wall time.
	KernelRunDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alphafunnel",
			Subsystem: "kernel",
			Name:      "run_duration_seconds",
			Help:      "Single kernel.Run invocation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// KernelRunsTotal tracks every kernel invocation, across the
	// optimizer grid, evaluator (IS and OOS, including retests), and
	// walk-forward callers.
	KernelRunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alphafunnel",
			Subsystem: "kernel",
			Name:      "runs_total",
			Help:      "Total kernel.Run invocations by caller and outcome",
		},
		[]string{"caller", "outcome"},
	)

	// ============================================
	// Pool metrics
	// ============================================

	// PoolSize tracks the current ranked pool cardinality.
	PoolSize = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "alphafunnel",
			Subsystem: "pool",
			Name:      "size",
			Help:      "Current number of admitted pool members",
		},
	)

	// PoolMinScore tracks the lowest score currently admitted.
	PoolMinScore = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "alphafunnel",
			Subsystem: "pool",
			Name:      "min_score",
			Help:      "Lowest score currently held in the pool",
		},
	)

	// PoolAdmissionsTotal tracks admit/evict/reject decisions.
	PoolAdmissionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alphafunnel",
			Subsystem: "pool",
			Name:      "admissions_total",
			Help:      "Pool admission decisions by outcome",
		},
		[]string{"outcome"},
	)

	// ============================================
	// Shuffle tester metrics
	// ============================================

	// ShuffleCacheLookupsTotal tracks verdict cache hits vs misses.
	ShuffleCacheLookupsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alphafunnel",
			Subsystem: "shuffle",
			Name:      "cache_lookups_total",
			Help:      "Shuffle verdict cache lookups by result",
		},
		[]string{"result"}, // memory_hit, store_hit, miss
	)

	// ShuffleMatchRatio records the distribution of average match ratios,
	// one observation per computed (uncached) shuffle verdict.
	ShuffleMatchRatio = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alphafunnel",
			Subsystem: "shuffle",
			Name:      "match_ratio",
			Help:      "Average shuffled-vs-original signal match ratio",
			Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1.0},
		},
	)
)

// RecordStageOutcome increments the stage outcome counter.
func RecordStageOutcome(stage, outcome string) {
	StageOutcomesTotal.WithLabelValues(stage, outcome).Inc()
}

// RecordKernelRun records one kernel invocation's outcome and duration.
func RecordKernelRun(caller, outcome string, seconds float64) {
	KernelRunsTotal.WithLabelValues(caller, outcome).Inc()
	KernelRunDuration.Observe(seconds)
}

// SetPoolOccupancy updates the pool size and floor gauges together.
func SetPoolOccupancy(size int, minScore float64) {
	PoolSize.Set(float64(size))
	PoolMinScore.Set(minScore)
}

// RecordPoolAdmission increments the admission outcome counter.
func RecordPoolAdmission(outcome string) {
	PoolAdmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordShuffleCacheLookup increments the cache lookup counter.
func RecordShuffleCacheLookup(result string) {
	ShuffleCacheLookupsTotal.WithLabelValues(result).Inc()
}

// Init registers the standard Go/process collectors alongside the
// funnel's own metrics.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
