package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the cache maintenance worker: event-driven
// invalidations and periodic expiry purges.
type WorkerMetrics struct {
	registry *prometheus.Registry

	invalidationTotal    *prometheus.CounterVec
	invalidationDuration *prometheus.HistogramVec
	invalidatedEntries   prometheus.Counter
	eventLag             *prometheus.HistogramVec
	purgedRows           prometheus.Counter
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	invalidationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "biblerag",
			Subsystem: "worker",
			Name:      "cache_invalidation_total",
			Help:      "Total index-updated events handled by status.",
		},
		[]string{"service", "status"},
	)
	invalidationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "biblerag",
			Subsystem: "worker",
			Name:      "cache_invalidation_duration_seconds",
			Help:      "Cache invalidation duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	invalidatedEntries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "biblerag",
			Subsystem:   "worker",
			Name:        "cache_invalidated_entries_total",
			Help:        "Cached responses removed by invalidations.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "biblerag",
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between index update and cache invalidation.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	purgedRows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "biblerag",
			Subsystem:   "worker",
			Name:        "cache_purged_rows_total",
			Help:        "Expired query cache rows deleted.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(invalidationTotal, invalidationDuration, invalidatedEntries, eventLag, purgedRows)

	return &WorkerMetrics{
		registry:             registry,
		invalidationTotal:    invalidationTotal,
		invalidationDuration: invalidationDuration,
		invalidatedEntries:   invalidatedEntries,
		eventLag:             eventLag,
		purgedRows:           purgedRows,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) FinishInvalidation(service string, duration time.Duration, entries int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.invalidationTotal.WithLabelValues(service, status).Inc()
	m.invalidationDuration.WithLabelValues(service, status).Observe(duration.Seconds())
	if entries > 0 {
		m.invalidatedEntries.Add(float64(entries))
	}
}

func (m *WorkerMetrics) ObserveEventLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) AddPurged(rows int64) {
	if rows > 0 {
		m.purgedRows.Add(float64(rows))
	}
}
