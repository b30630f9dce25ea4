// Package metrics provides Prometheus instrumentation for the fulfillment
// service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FillsTotal counts executed sub-fills, partitioned by route.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perp_fills_total",
		Help: "Total number of sub-fills executed",
	}, []string{"route"})

	// FillLatency tracks fulfillment call latency.
	FillLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "perp_fill_latency_seconds",
		Help:    "Order fulfillment latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// SurplusTotal accumulates quote surplus earned by the curve per market.
	SurplusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perp_surplus_quote_total",
		Help: "Cumulative quote surplus booked to the curve",
	}, []string{"symbol"})

	// NetBaseAmount tracks the curve's user imbalance per market.
	NetBaseAmount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perp_net_base_amount",
		Help: "Net base position users hold against the curve",
	}, []string{"symbol"})

	// ActiveMarkets tracks the number of active markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "perp_active_markets",
		Help: "Number of currently active markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "perp_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perp_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "perp_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// ExposureLimitRejections counts orders rejected by the exposure limiter.
	ExposureLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "perp_exposure_limit_rejections_total",
		Help: "Orders rejected by the exposure limiter",
	})

	// MarketVolume tracks cumulative quote volume per market and route.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perp_market_volume_quote_total",
		Help: "Cumulative fill volume in quote units",
	}, []string{"symbol", "route"})
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
