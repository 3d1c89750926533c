package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.TicketCreated("created")
	m.TicketCreated("created")
	m.TicketCreated("reused")
	m.TicketsReleased("timeout", 2)
	m.TicketsReleased("timeout", 0)
	m.Sweep("ticker", 10*time.Millisecond)
	m.AuditBacklog(3)

	if got := testutil.ToFloat64(m.ticketsCreated.WithLabelValues("created")); got != 2 {
		t.Fatalf("created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ticketsCreated.WithLabelValues("reused")); got != 1 {
		t.Fatalf("reused = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.releases.WithLabelValues("timeout")); got != 2 {
		t.Fatalf("released = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sweeps.WithLabelValues("ticker")); got != 1 {
		t.Fatalf("sweeps = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.auditBacklog); got != 3 {
		t.Fatalf("backlog = %v, want 3", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/v1/tickets", "POST", 201, time.Millisecond)
	m.RecordError("/v1/tickets", "POST", "RATE_LIMITED")
	m.TicketCreated("created")
	m.Assignment("assigned")
	m.TicketClosed()
	m.TicketsReleased("logout", 1)
	m.SessionTransition("started")
	m.Sweep("heartbeat", time.Millisecond)
	m.AuditBacklog(1)
	m.AuditReconciled(1)
}
