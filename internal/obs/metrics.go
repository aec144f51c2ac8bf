package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
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

// Init registers the shared metrics in the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps a handler with RPS, latency, and in-flight tracking.
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

// CanonicalPath collapses record ids in asset and analytics routes into
// placeholders so metric label cardinality stays bounded.
func CanonicalPath(raw string) string {
	path := raw
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "assets":
		// /v1/assets/{kind}/{id}
		return "/v1/assets/" + parts[2] + "/:id"
	case len(parts) == 5 && parts[0] == "v1" && parts[1] == "assets" && parts[4] == "meta":
		// /v1/assets/{kind}/{id}/meta
		return "/v1/assets/" + parts[2] + "/:id/meta"
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "principals":
		// /v1/principals/{id}/approve, /v1/principals/{id}/role
		return "/v1/principals/:id/" + parts[3]
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "roles" && parts[3] == "permissions":
		// /v1/roles/{id}/permissions
		return "/v1/roles/:id/permissions"
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "roles":
		// /v1/roles/{id}
		return "/v1/roles/:id"
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "principals":
		// /v1/principals/{id}
		return "/v1/principals/:id"
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "analytics" && parts[2] == "ip-history":
		// /v1/analytics/ip-history/{principal}
		return "/v1/analytics/ip-history/:id"
	}
	return path
}

// statusWriter is a local copy so the instrumented handler can observe the
// response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
