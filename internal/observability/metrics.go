package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpErrors   *prometheus.CounterVec

	ticketsCreated  *prometheus.CounterVec
	assignments     *prometheus.CounterVec
	ticketsClosed   prometheus.Counter
	releases        *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	sweeps          *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	auditBacklog    prometheus.Gauge
	auditReconciled prometheus.Counter
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Domain errors returned to callers by code",
		}, []string{"method", "path", "code"}),
		ticketsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tickets_created_total",
			Help: "Ticket creation outcomes (created, reused, rate_limited)",
		}, []string{"outcome"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_assignments_total",
			Help: "Assignment outcomes by result code",
		}, []string{"result"}),
		ticketsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tickets_closed_total",
			Help: "Tickets closed",
		}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ticket_releases_total",
			Help: "Tickets returned to the queue by session end reason",
		}, []string{"reason"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_sessions_total",
			Help: "Session transitions (started, ended_logout, ended_timeout, ended_manual_release)",
		}, []string{"transition"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reaper_sweeps_total",
			Help: "Reaper sweeps by trigger",
		}, []string{"trigger"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "reaper_sweep_duration_seconds",
			Help:    "Reaper sweep duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		auditBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audit_backlog_depth",
			Help: "Audit entries waiting to be re-appended",
		}),
		auditReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_reconciled_total",
			Help: "Audit entries re-appended from the backlog",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration, m.httpErrors,
		m.ticketsCreated, m.assignments, m.ticketsClosed, m.releases,
		m.sessions, m.sweeps, m.sweepDuration, m.auditBacklog, m.auditReconciled,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(method, path, code).Inc()
}

// TicketCreated records a creation outcome.
func (m *Metrics) TicketCreated(outcome string) {
	if m == nil {
		return
	}
	m.ticketsCreated.WithLabelValues(outcome).Inc()
}

// Assignment records an assignment result ("assigned" or an error code).
func (m *Metrics) Assignment(result string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(result).Inc()
}

// TicketClosed records a closure.
func (m *Metrics) TicketClosed() {
	if m == nil {
		return
	}
	m.ticketsClosed.Inc()
}

// TicketsReleased records n released tickets.
func (m *Metrics) TicketsReleased(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.releases.WithLabelValues(reason).Add(float64(n))
}

// SessionTransition records a session start or end.
func (m *Metrics) SessionTransition(transition string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(transition).Inc()
}

// Sweep records one reaper pass.
func (m *Metrics) Sweep(trigger string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(trigger).Inc()
	m.sweepDuration.Observe(duration.Seconds())
}

// AuditBacklog sets the backlog depth gauge.
func (m *Metrics) AuditBacklog(depth int64) {
	if m == nil {
		return
	}
	m.auditBacklog.Set(float64(depth))
}

// AuditReconciled counts re-appended entries.
func (m *Metrics) AuditReconciled(n int) {
	if m == nil || n == 0 {
		return
	}
	m.auditReconciled.Add(float64(n))
}
