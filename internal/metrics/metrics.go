// Package metrics exposes Prometheus instrumentation for the API server.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/apperror"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/events"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

// Manager owns the registry and the application collectors
type Manager struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec
	redemptions  *prometheus.CounterVec
}

// NewManager creates a registry with Go, process and application collectors.
// A non-nil store adds gauges for the dashboard counters.
func NewManager(store database.StatsStore) *Manager {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "license_events_total",
			Help: "Domain events published, by type",
		}, []string{"type"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "license_key_redemptions_total",
			Help: "Activation key redemption attempts, by result",
		}, []string{"result"}),
	}
	registry.MustRegister(m.httpRequests, m.httpDuration, m.events, m.redemptions)

	if store != nil {
		registry.MustRegister(NewStoreCollector(store))
	}

	logging.WithComponent("metrics").Info("Metrics manager initialized")
	return m
}

// GetRegistry returns the underlying registry
func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// GinMiddleware records request counts and latency per matched route
func (m *Manager) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Subscribe counts every event published on bus
func (m *Manager) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(func(e events.Event) {
		m.events.WithLabelValues(string(e.Type)).Inc()
	})
}

// ObserveRedemption records the outcome of one redemption attempt.
// Failures are labelled with their lowercase error code.
func (m *Manager) ObserveRedemption(err error) {
	m.redemptions.WithLabelValues(RedemptionResult(err)).Inc()
}

// RedemptionResult maps a redemption error to its metric label
func RedemptionResult(err error) string {
	if err == nil {
		return "success"
	}
	if appErr, ok := apperror.As(err); ok && appErr.Kind != apperror.KindInternal {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}
