package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	RequestsCollectorName = "http_requests_total"
	LatencyCollectorName  = "http_request_duration_milliseconds"
)

var defaultBuckets = []float64{50, 300, 1000, 5000, 30000}

// Middleware exposes the number of requests and their latency partitioned by status code,
// method and route pattern.
type Middleware struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMiddleware returns a middleware for the named service. Accepting an offer may wait for a
// ledger confirmation, hence the long default buckets.
func NewMiddleware(name string, buckets ...float64) *Middleware {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	return &Middleware{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem:   marketplace,
			Name:        RequestsCollectorName,
			Help:        "Number of HTTP requests partitioned by status code, method and route.",
			ConstLabels: prometheus.Labels{"service": name},
		}, []string{"code", "method", "route"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Subsystem:   marketplace,
			Name:        LatencyCollectorName,
			Help:        "Time spent on the request partitioned by status code, method and route.",
			ConstLabels: prometheus.Labels{"service": name},
			Buckets:     buckets,
		}, []string{"code", "method", "route"}),
	}
}

// Handler returns a handler for the middleware pattern.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rctx := chi.RouteContext(r.Context())
		if rctx == nil {
			return
		}
		code := strconv.Itoa(ww.Status())
		route := rctx.RoutePattern()
		m.requests.WithLabelValues(code, r.Method, route).Inc()
		m.latency.WithLabelValues(code, r.Method, route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// MustRegister registers the collectors with reg, or with the default registerer when reg is nil.
func (m *Middleware) MustRegister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requests, m.latency)
}
