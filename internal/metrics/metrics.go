// Package metrics holds the prometheus collectors of the catalog sync engine.
// They are registered on the default registry at init and exposed by the API
// server on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SyncRuns counts finished runs by terminal status.
	SyncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalogsync",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Finished catalog sync runs by terminal status.",
		},
		[]string{"status"},
	)

	// SyncRecords counts records by outcome: fetched, added, updated, failed.
	SyncRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalogsync",
			Subsystem: "sync",
			Name:      "records_total",
			Help:      "Supplier records processed by outcome.",
		},
		[]string{"outcome"},
	)

	SyncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "catalogsync",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "Wall time of catalog sync runs.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// RetryAttempts counts retries (not first attempts) per call kind.
	RetryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalogsync",
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Retried remote calls by call kind.",
		},
		[]string{"call"},
	)

	// NormalizerFallbacks counts payloads whose product list was only found
	// by the depth-first array search.
	NormalizerFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalogsync",
		Subsystem: "normalizer",
		Name:      "fallback_total",
		Help:      "Payloads resolved by the generic array search heuristic.",
	})

	Exports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalogsync",
			Subsystem: "export",
			Name:      "tasks_total",
			Help:      "Catalog export tasks by result.",
		},
		[]string{"result"},
	)

	// HTTPRequests counts API requests by method, route template and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalogsync",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by method, route and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "catalogsync",
		Subsystem: "http",
		Name:      "panics_total",
		Help:      "Handler panics recovered by the API server.",
	})
)

func init() {
	prometheus.MustRegister(
		SyncRuns,
		SyncRecords,
		SyncDuration,
		RetryAttempts,
		NormalizerFallbacks,
		Exports,
		HTTPRequests,
		HTTPPanics,
	)
}

// Handler returns the prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
