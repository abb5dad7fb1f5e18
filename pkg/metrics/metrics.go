// Package metrics exposes Prometheus metrics for the tracker.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ekaya-inc/ekaya-tracker/pkg/authz"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Membership metrics
	MembershipChangesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_authz_decisions_total",
				Help: "Authorization decisions by action and outcome",
			},
			[]string{"action", "decision"},
		),
		MembershipChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_membership_changes_total",
				Help: "Project membership mutations by operation",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.MembershipChangesTotal,
	)

	return m
}

// ObserveDecision counts an authorization decision.
func (m *Metrics) ObserveDecision(_ context.Context, action authz.Action, _ *authz.ProjectContext, decision authz.Decision) {
	m.AuthzDecisionsTotal.WithLabelValues(string(action), decision.String()).Inc()
}

// RecordMembershipChange counts a membership mutation ("add", "update", "remove").
func (m *Metrics) RecordMembershipChange(operation string) {
	m.MembershipChangesTotal.WithLabelValues(operation).Inc()
}

// RegisterPoolStats exposes connection pool gauges read from pool on every scrape.
func RegisterPoolStats(registry prometheus.Registerer, pool *pgxpool.Pool) {
	gauge := func(name, help string, value func(*pgxpool.Stat) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return value(pool.Stat()) },
		)
	}

	registry.MustRegister(
		gauge("tracker_db_connections_acquired", "Connections currently in use",
			func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("tracker_db_connections_idle", "Idle connections in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("tracker_db_connections_total", "Total connections in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("tracker_db_connections_max", "Maximum pool size",
			func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
	)
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments HTTP requests. Requests are labelled by the
// ServeMux route pattern rather than the raw path to keep cardinality bounded.
func HTTPMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterEndpoint registers the /metrics endpoint.
func RegisterEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// Ensure Metrics observes authorization decisions.
var _ authz.DecisionObserver = (*Metrics)(nil)
