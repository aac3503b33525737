package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the request pipeline
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	RateLimitDecisionsTotal *prometheus.CounterVec
	StageShortCircuitsTotal *prometheus.CounterVec
	AuthResolutionsTotal    *prometheus.CounterVec

	// Business metrics
	UserOperationsTotal *prometheus.CounterVec
	RateLimitKeysActive prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userdeck_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "userdeck_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RateLimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userdeck_ratelimit_decisions_total",
				Help: "Rate limit admission decisions",
			},
			[]string{"outcome"},
		),
		StageShortCircuitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userdeck_stage_short_circuits_total",
				Help: "Requests terminated by a middleware stage",
			},
			[]string{"stage"},
		),
		AuthResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userdeck_auth_resolutions_total",
				Help: "Session resolution outcomes",
			},
			[]string{"outcome"},
		),
		UserOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "userdeck_user_operations_total",
				Help: "User CRUD operations by result",
			},
			[]string{"operation", "result"},
		),
		RateLimitKeysActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "userdeck_ratelimit_keys_active",
				Help: "Distinct keys currently tracked by the rate limit store",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitDecisionsTotal,
		m.StageShortCircuitsTotal,
		m.AuthResolutionsTotal,
		m.UserOperationsTotal,
		m.RateLimitKeysActive,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records a completed HTTP request
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
