// Package telemetry exposes Prometheus metrics for the HTTP surface and the
// clinical workflow.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fisiotrack"

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	userCreations      *prometheus.CounterVec
	sessionTransitions *prometheus.CounterVec
	progressReports    prometheus.Counter
	summaries          *prometheus.CounterVec
	gateConnections    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		userCreations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_creations_total",
			Help:      "createUser calls by outcome.",
		}, []string{"outcome"}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Therapy session state transitions by target state.",
		}, []string{"to"}),
		progressReports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_reports_total",
			Help:      "Patient self-reports recorded.",
		}),
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Progress summarization calls by outcome.",
		}, []string{"outcome"}),
		gateConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gate_connections",
			Help:      "Open session-gate WebSocket connections.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.userCreations,
		m.sessionTransitions,
		m.progressReports,
		m.summaries,
		m.gateConnections,
	)
	return m
}

// Registry is exposed for tests and for registering extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records one request count and latency observation per request,
// labelled with the matched route template rather than the raw path.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < 400 {
					status = 500
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func (m *Metrics) UserCreated(outcome string) {
	if m != nil {
		m.userCreations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SessionTransition(to string) {
	if m != nil {
		m.sessionTransitions.WithLabelValues(to).Inc()
	}
}

func (m *Metrics) ProgressRecorded() {
	if m != nil {
		m.progressReports.Inc()
	}
}

func (m *Metrics) Summary(outcome string) {
	if m != nil {
		m.summaries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) GateConnected() {
	if m != nil {
		m.gateConnections.Inc()
	}
}

func (m *Metrics) GateDisconnected() {
	if m != nil {
		m.gateConnections.Dec()
	}
}
