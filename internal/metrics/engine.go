package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Engine Prometheus metrics.
var (
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dedup",
			Name:      "engine_search_duration_seconds",
			Help:      "Index engine search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"index"},
	)

	MutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dedup",
			Name:      "engine_mutations_total",
			Help:      "Total number of index mutations",
		},
		[]string{"index", "op", "status"},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dedup",
			Name:      "engine_search_cache_total",
			Help:      "Search result cache hits and misses",
		},
		[]string{"index", "result"}, // "hit" / "miss"
	)

	RankedHits = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dedup",
			Name:      "ranked_hits",
			Help:      "Number of hits returned per duplicate query",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)
)

var registerEngineOnce sync.Once

// RegisterEngineMetrics registers Prometheus engine metrics with the default
// registry. Safe to call from every client construction.
func RegisterEngineMetrics() {
	registerEngineOnce.Do(func() {
		prometheus.MustRegister(SearchDuration, MutationsTotal, SearchCacheTotal, RankedHits)
	})
}
