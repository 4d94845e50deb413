package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchRequestsTotal *prometheus.CounterVec
	searchResults       *prometheus.HistogramVec
	searchDuration      *prometheus.HistogramVec
	searchCacheTotal    *prometheus.CounterVec
	rerankFallbackTotal *prometheus.CounterVec
	rateLimitedTotal    *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "biblerag",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "biblerag",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "biblerag",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "biblerag",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total successful searches by search method.",
		},
		[]string{"service", "endpoint", "method"},
	)
	searchResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "biblerag",
			Subsystem: "search",
			Name:      "results",
			Help:      "Distribution of returned passages per search.",
			Buckets:   []float64{0, 1, 3, 5, 10, 20, 50, 100},
		},
		[]string{"service", "endpoint"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "biblerag",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Search execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	searchCacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "biblerag",
			Subsystem: "search",
			Name:      "cache_total",
			Help:      "Response cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	rerankFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "biblerag",
			Subsystem: "search",
			Name:      "rerank_fallback_total",
			Help:      "Searches that returned fused order because reranking was skipped.",
		},
		[]string{"service"},
	)
	rateLimitedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "biblerag",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limit.",
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchRequestsTotal,
		searchResults,
		searchDuration,
		searchCacheTotal,
		rerankFallbackTotal,
		rateLimitedTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchRequestsTotal: searchRequestsTotal,
		searchResults:       searchResults,
		searchDuration:      searchDuration,
		searchCacheTotal:    searchCacheTotal,
		rerankFallbackTotal: rerankFallbackTotal,
		rateLimitedTotal:    rateLimitedTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps label cardinality bounded for unknown paths.
func normalizePath(path string) string {
	switch {
	case path == "/v1/search", path == "/v1/themes", path == "/v1/cache", path == "/v1/cache/stats",
		path == "/v1/translations", path == "/v1/books", path == "/healthz", path == "/metrics":
		return path
	case strings.HasPrefix(path, "/v1/verses/"):
		// Book, chapter and verse are unbounded.
		return "/v1/verses"
	case strings.HasPrefix(path, "/v1/"):
		return "/v1/other"
	default:
		return "other"
	}
}

// RecordSearch observes one completed search. method is the response's
// search_method, e.g. "hybrid+rerank".
func (m *HTTPServerMetrics) RecordSearch(service, endpoint, method string, results int, cached bool, duration time.Duration) {
	if method == "" {
		method = "unknown"
	}
	m.searchRequestsTotal.WithLabelValues(service, endpoint, method).Inc()
	m.searchResults.WithLabelValues(service, endpoint).Observe(float64(results))
	m.searchDuration.WithLabelValues(service, endpoint).Observe(duration.Seconds())

	result := "miss"
	if cached {
		result = "hit"
	}
	m.searchCacheTotal.WithLabelValues(service, result).Inc()

	if strings.HasSuffix(method, "+rerank-skipped") {
		m.rerankFallbackTotal.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordRateLimited(service string) {
	m.rateLimitedTotal.WithLabelValues(service).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
