package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/outbound"
	"github.com/spec-kit/support-router/internal/repository"
	"github.com/spec-kit/support-router/internal/repository/sqlitestore"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t       *testing.T
	repos   *repository.Store
	clock   *fakeClock
	coord   *Coordinator
	backlog *MemoryBacklog
	metrics *observability.Metrics

	mu        sync.Mutex
	published []events.Event
}

func newHarness(t *testing.T, opts ...func(*config.RoutingPolicy)) *harness {
	t.Helper()
	s, err := sqlitestore.Open(filepath.Join(t.TempDir(), "coordinator.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	repos := s.Repositories()
	t.Cleanup(func() { repos.Close() })
	return newHarnessWithStore(t, repos, opts...)
}

func newHarnessWithStore(t *testing.T, repos *repository.Store, opts ...func(*config.RoutingPolicy)) *harness {
	t.Helper()
	policy := config.DefaultRoutingPolicy()
	policy.ReadRetryAttempts = 1
	for _, opt := range opts {
		opt(&policy)
	}
	h := &harness{
		t:       t,
		repos:   repos,
		clock:   &fakeClock{now: t0},
		backlog: NewMemoryBacklog(),
		metrics: observability.NewMetrics(),
	}
	dispatcher := events.NewInMemoryDispatcher()
	dispatcher.SubscribeAll(func(_ context.Context, e events.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.published = append(h.published, e)
		return nil
	})
	h.coord = NewCoordinator(CoordinatorDependencies{
		Store:      repos,
		Policy:     policy,
		Dispatcher: dispatcher,
		Formatter:  outbound.NewDeepLinkFormatter("https://wa.me/", "+15550100"),
		Backlog:    h.backlog,
		Metrics:    h.metrics,
		Clock:      h.clock.Now,
	})
	return h
}

func (h *harness) authorize(agentID string) {
	h.t.Helper()
	contact := "+1555000" + agentID
	h.putAgent(domain.Agent{ID: agentID, DisplayName: agentID, ContactHandle: &contact, AuthorizedForWork: true})
}

// putAgent writes flags straight to the store, bypassing the coordinator.
func (h *harness) putAgent(agent domain.Agent) {
	h.t.Helper()
	agent.UpdatedAt = h.clock.Now()
	if err := h.repos.Agents.Upsert(context.Background(), &agent); err != nil {
		h.t.Fatalf("upsert agent %s: %v", agent.ID, err)
	}
}

func (h *harness) startSession(actor domain.Actor) *domain.Session {
	h.t.Helper()
	res, err := h.coord.StartSession(context.Background(), actor)
	if err != nil {
		h.t.Fatalf("StartSession(%s): %v", actor.ID, err)
	}
	return res.Session
}

func (h *harness) createTicket(owner, summary string) *domain.Ticket {
	h.t.Helper()
	res, err := h.coord.CreateTicket(context.Background(),
		domain.Principal{ID: owner, Role: domain.RoleUser},
		CreateTicketInput{Category: "access", Summary: summary})
	if err != nil {
		h.t.Fatalf("CreateTicket(%s): %v", owner, err)
	}
	return res.Ticket
}

func (h *harness) ticket(publicID string) *domain.Ticket {
	h.t.Helper()
	tk, err := h.repos.Tickets.GetByPublicID(context.Background(), publicID)
	if err != nil {
		h.t.Fatalf("GetByPublicID(%s): %v", publicID, err)
	}
	return tk
}

func (h *harness) ticketEvents(tk *domain.Ticket) []domain.TicketEventType {
	h.t.Helper()
	trail, err := h.repos.Audit.ListTicketEvents(context.Background(), tk.ID)
	if err != nil {
		h.t.Fatalf("ListTicketEvents: %v", err)
	}
	types := make([]domain.TicketEventType, 0, len(trail))
	for _, e := range trail {
		types = append(types, e.EventType)
	}
	return types
}

func (h *harness) agentEvents(agentID string) []domain.AgentEvent {
	h.t.Helper()
	trail, err := h.repos.Audit.ListAgentEvents(context.Background(), agentID)
	if err != nil {
		h.t.Fatalf("ListAgentEvents: %v", err)
	}
	return trail
}

func (h *harness) publishedOf(eventType events.EventType) []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []events.Event
	for _, e := range h.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got success", code)
	}
	if got := apperrors.CodeOf(err); got != code {
		t.Fatalf("error code = %s (%v), want %s", got, err, code)
	}
}

func countOf[T comparable](items []T, want T) int {
	n := 0
	for _, item := range items {
		if item == want {
			n++
		}
	}
	return n
}

// Caller C1 opens T1; agent G1 claims it and is then refused a second ticket.
func TestScenarioAssignThenExclusivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize("g1")
	h.startSession(domain.AgentActor("g1"))

	t1 := h.createTicket("c1", "locked out")
	t2 := h.createTicket("c2", "billing question")

	res, err := h.coord.AssignTicket(ctx, domain.AgentActor("g1"), t1.PublicID, "")
	if err != nil {
		t.Fatalf("AssignTicket: %v", err)
	}
	if res.Ticket.Status != domain.TicketStatusAssigned || !res.Ticket.AssignedTo("g1") {
		t.Fatalf("unexpected ticket after assign: %+v", res.Ticket)
	}
	if res.Message == nil || res.Message.Recipient != "15550001" {
		t.Fatalf("expected deep link to the agent, got %+v", res.Message)
	}

	_, err = h.coord.AssignTicket(ctx, domain.AgentActor("g1"), t2.PublicID, "")
	expectCode(t, err, apperrors.CodeAgentHasActiveTicket)
	if h.ticket(t2.PublicID).Status != domain.TicketStatusNew {
		t.Fatal("refused assignment must leave the ticket untouched")
	}

	got := h.ticketEvents(t1)
	if len(got) != 2 || got[0] != domain.TicketEventCreated || got[1] != domain.TicketEventAssigned {
		t.Fatalf("ticket trail = %v", got)
	}
	if len(h.publishedOf(events.EventTicketAssigned)) != 1 {
		t.Fatal("expected one assignment event")
	}
}

// G1 goes silent for 11 minutes; the sweep ends the session and requeues T1.
func TestScenarioSweepReleasesStaleAgent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize("g1")
	session := h.startSession(domain.AgentActor("g1"))
	t1 := h.createTicket("c1", "locked out")
	if _, err := h.coord.AssignTicket(ctx, domain.AgentActor("g1"), t1.PublicID, ""); err != nil {
		t.Fatal(err)
	}

	h.clock.Advance(11 * time.Minute)
	report, err := h.coord.Sweep(ctx, SweepTriggerManual)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.TimedOut != 1 || report.TicketsReleased != 1 {
		t.Fatalf("report = %+v", report)
	}

	tk := h.ticket(t1.PublicID)
	if tk.Status != domain.TicketStatusQueued || tk.AssignedAgentID != nil {
		t.Fatalf("ticket not requeued: %+v", tk)
	}
	if countOf(h.ticketEvents(t1), domain.TicketEventAgentTimeoutRelease) != 1 {
		t.Fatalf("missing timeout release in %v", h.ticketEvents(t1))
	}

	if _, err := h.repos.Sessions.GetOpenByAgent(ctx, "g1"); err == nil {
		t.Fatal("session should be closed")
	}
	var logout *domain.AgentEvent
	trail := h.agentEvents("g1")
	for i := range trail {
		if trail[i].EventType == domain.AgentEventLogout {
			logout = &trail[i]
		}
	}
	if logout == nil || logout.SessionID != session.ID || logout.Details["reason"] != "timeout" {
		t.Fatalf("logout event = %+v", logout)
	}
	if logout.ActorRole != domain.RoleSystem {
		t.Fatalf("reaper events are attributed to the system, got %s", logout.ActorRole)
	}
}

// G1 tries to close a queued ticket it does not hold.
func TestScenarioCloseRequiresAssignment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.authorize("g1")
	h.startSession(domain.AgentActor("g1"))
	t1 := h.createTicket("c1", "locked out")
	if _, err := h.coord.AssignTicket(ctx, domain.AgentActor("g1"), t1.PublicID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := h.coord.EndSession(ctx, domain.AgentActor("g1"), "", ""); err != nil {
		t.Fatal(err)
	}

	_, err := h.coord.CloseTicket(ctx, domain.AgentActor("g1"), t1.PublicID, CloseTicketInput{Resolution: "fixed"})
	expectCode(t, err, apperrors.CodeNotAssigned)
	if h.ticket(t1.PublicID).Status != domain.TicketStatusQueued {
		t.Fatal("ticket must stay queued")
	}
}

// C1 opens a second ticket with a new key while T1 is still open.
func TestScenarioOpenTicketReuse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	caller := domain.Principal{ID: "c1", Role: domain.RoleUser}

	first, err := h.coord.CreateTicket(ctx, caller, CreateTicketInput{Summary: "locked out", IdempotencyKey: "k1"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.coord.CreateTicket(ctx, caller, CreateTicketInput{Summary: "something else", IdempotencyKey: "k3"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if !second.Reused || second.Ticket.PublicID != first.Ticket.PublicID {
		t.Fatalf("expected reuse of %s, got %+v", first.Ticket.PublicID, second)
	}
	if second.Message != nil {
		t.Fatal("reused tickets carry no outbound message")
	}
}
