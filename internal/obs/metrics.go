package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level instruments shared by every endpoint.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Domain instruments for the lookup service.
var (
	authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snitch_auth_attempts_total",
			Help: "Authentication attempts by outcome.",
		},
		[]string{"result"},
	)

	lookupRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snitch_lookup_requests_total",
			Help: "Lookup requests by outcome.",
		},
		[]string{"result"},
	)

	storeCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snitch_store_calls_total",
			Help: "Remote table store calls by operation and outcome.",
		},
		[]string{"op", "result"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authAttemptsTotal, lookupRequestsTotal, storeCallsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuthAttempt counts an authentication attempt outcome
// (granted, rejected, rate_limited, error).
func ObserveAuthAttempt(result string) {
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveLookup counts a lookup outcome
// (ok, no_matches, unauthorized, rate_limited, error).
func ObserveLookup(result string) {
	lookupRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveStoreCall counts one remote table store call.
func ObserveStoreCall(op, result string) {
	storeCallsTotal.WithLabelValues(op, result).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses request paths to stable metric labels so stray
// URLs cannot blow up label cardinality. All served routes are static;
// anything else is bucketed under /other.
func CanonicalPath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return "/"
	}
	switch path {
	case "/", "/healthz", "/readyz", "/metrics",
		"/v1/info", "/v1/auth", "/v1/lookup", "/v1/events":
		return path
	}
	return "/other"
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
