// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts generated price ticks across all instruments.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockx_price_ticks_total",
		Help: "Total number of price ticks generated",
	})

	// TickPassDuration tracks the duration of one full generator pass.
	TickPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stockx_tick_pass_duration_seconds",
		Help:    "Duration of one price generation pass in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// OrdersTotal counts orders by direction and terminal outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockx_orders_total",
		Help: "Total number of orders by direction and status",
	}, []string{"direction", "status"})

	// OrderLatency tracks submission-path latency by order type.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockx_order_latency_seconds",
		Help:    "Order submission latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// PendingOrders tracks the pending queue depth seen by the last sweep.
	PendingOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stockx_pending_orders",
		Help: "Number of PENDING orders at the last sweep",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
