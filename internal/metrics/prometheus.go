package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the offline cache
type Metrics struct {
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CachePurgesTotal     prometheus.Counter
	PreloadFailuresTotal prometheus.Counter
	CacheEntries         *prometheus.GaugeVec
	OpDuration           *prometheus.HistogramVec
}

// NewMetrics creates and registers all cache metrics against the given
// registerer. Passing a fresh registry keeps parallel test managers from
// colliding on registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scout",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache reads that returned valid data",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scout",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache reads that found no valid data",
		}),
		CachePurgesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scout",
			Subsystem: "cache",
			Name:      "purges_total",
			Help:      "Total number of background purges after a schema version mismatch",
		}),
		PreloadFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scout",
			Subsystem: "cache",
			Name:      "preload_failures_total",
			Help:      "Total number of background preloads that failed and were absorbed",
		}),
		CacheEntries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scout",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of records last written per collection",
		}, []string{"collection"}),
		OpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scout",
			Subsystem: "cache",
			Name:      "op_duration_seconds",
			Help:      "Histogram of cache operation durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
}
