// Package monitoring exposes Prometheus metrics for the marketplace server.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build collectors without
// colliding on the global default.
type Metrics struct {
	registry *prometheus.Registry

	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	httpRequests   *prometheus.CounterVec
	wsClients      prometheus.Gauge
}

// NewMetrics builds and registers the marketplace collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_actions_total",
				Help: "Actions executed, by kind and outcome",
			},
			[]string{"action", "status"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketplace_action_duration_seconds",
				Help:    "Action execution latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_http_requests_total",
				Help: "HTTP requests served, by route and status code",
			},
			[]string{"method", "path", "code"},
		),
		wsClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketplace_ws_clients",
				Help: "Connected action-feed websocket clients",
			},
		),
	}
	m.registry.MustRegister(m.actionsTotal, m.actionDuration, m.httpRequests, m.wsClients)
	return m
}

// ObserveAction records one executed action.
func (m *Metrics) ObserveAction(action string, isError bool, elapsed time.Duration) {
	status := "ok"
	if isError {
		status = "error"
	}
	m.actionsTotal.WithLabelValues(action, status).Inc()
	m.actionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// WSClientConnected adjusts the connected-clients gauge.
func (m *Metrics) WSClientConnected(delta int) {
	m.wsClients.Add(float64(delta))
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests per route. Route templates keep the label
// cardinality bounded.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.httpRequests.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}
