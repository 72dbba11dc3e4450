package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzChecksTotal     *prometheus.CounterVec
	RecordChecksTotal    *prometheus.CounterVec
	ChatDecisionsTotal   *prometheus.CounterVec
	AuthzCheckDuration   *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	ActiveUsersTotal     prometheus.Gauge
	LinkedIdentitiesTotal prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics. A nil registry
// gets a fresh private one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealdesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_authz_checks_total",
				Help: "Scope authorization checks by outcome",
			},
			[]string{"allowed"},
		),
		RecordChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_record_checks_total",
				Help: "Record access checks by resource type and outcome",
			},
			[]string{"resource_type", "allowed"},
		),
		ChatDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_chat_decisions_total",
				Help: "Chat identity authorization decisions by reason",
			},
			[]string{"reason"},
		),
		AuthzCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealdesk_authz_check_duration_seconds",
				Help:    "Authorization check duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"check"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_cache_hits_total",
				Help: "Cache hits by cache name",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealdesk_cache_misses_total",
				Help: "Cache misses by cache name",
			},
			[]string{"cache"},
		),
		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dealdesk_db_connections_active",
			Help: "Active database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dealdesk_db_connections_idle",
			Help: "Idle database connections",
		}),
		ActiveUsersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dealdesk_active_users_total",
			Help: "Number of active platform users",
		}),
		LinkedIdentitiesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dealdesk_linked_identities_total",
			Help: "Number of linked chat identities",
		}),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzChecksTotal,
		m.RecordChecksTotal,
		m.ChatDecisionsTotal,
		m.AuthzCheckDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.ActiveUsersTotal,
		m.LinkedIdentitiesTotal,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// ObserveAuthzCheck records one scope authorization check.
func (m *Metrics) ObserveAuthzCheck(allowed bool, duration time.Duration) {
	m.AuthzChecksTotal.WithLabelValues(strconv.FormatBool(allowed)).Inc()
	m.AuthzCheckDuration.WithLabelValues("scope").Observe(duration.Seconds())
}

// ObserveRecordCheck records one record access check.
func (m *Metrics) ObserveRecordCheck(resourceType string, allowed bool) {
	m.RecordChecksTotal.WithLabelValues(resourceType, strconv.FormatBool(allowed)).Inc()
}

// ObserveChatDecision records one chat identity decision.
func (m *Metrics) ObserveChatDecision(reason string) {
	m.ChatDecisionsTotal.WithLabelValues(reason).Inc()
}

// CollectDBStats copies connection pool stats into the gauges. Call it
// periodically.
func (m *Metrics) CollectDBStats(db *sql.DB) {
	stats := db.Stats()
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}
