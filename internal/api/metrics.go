package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/truthfeed/engine/internal/bus"
)

// Metrics holds the Prometheus instrumentation exposed at /metrics: request
// duration/count, open WebSocket connections, and per-type bus event
// counts.
type Metrics struct {
	registry        *prometheus.Registry
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	WSConnections   prometheus.Gauge
	BusEventsTotal  *prometheus.CounterVec
}

// NewMetrics builds and registers a fresh Metrics instance.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "truthfeed_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method", "status"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "truthfeed_http_requests_total",
			Help: "Total HTTP requests served",
		}, []string{"path", "method", "status"}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "truthfeed_websocket_connections",
			Help: "Currently open /api/signals/subscribe connections",
		}),
		BusEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "truthfeed_bus_events_total",
			Help: "Total events emitted on the in-process bus, by type",
		}, []string{"type"}),
	}

	registry.MustRegister(m.RequestDuration, m.RequestsTotal, m.WSConnections, m.BusEventsTotal)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBus counts every event emitted on b by type until the returned
// disposer is called.
func (m *Metrics) ObserveBus(b *bus.Bus) bus.Disposer {
	return b.Subscribe("", func(_ context.Context, ev bus.Event) {
		m.BusEventsTotal.WithLabelValues(string(ev.Type)).Inc()
	})
}

// instrumentMiddleware records request duration/count per (path, method,
// status).
func instrumentMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			status := strconv.Itoa(rec.status)
			m.RequestDuration.WithLabelValues(r.URL.Path, r.Method, status).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(r.URL.Path, r.Method, status).Inc()
		})
	}
}
