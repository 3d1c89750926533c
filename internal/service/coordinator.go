package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/outbound"
	"github.com/spec-kit/support-router/internal/repository"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

// Coordinator owns ticket intake, assignment, closure and agent presence.
// Every state change goes through a conditional write in the store, so any
// number of replicas may run against the same backend.
type Coordinator struct {
	tickets    repository.TicketRepository
	agents     repository.AgentRepository
	sessions   repository.SessionRepository
	auditLog   repository.AuditLog
	audit      *AuditRecorder
	dispatcher events.Dispatcher
	formatter  outbound.Formatter
	gate       SweepGate
	policy     config.RoutingPolicy
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time

	lastHeartbeatSweep atomic.Int64
}

// CoordinatorDependencies bundles collaborators for the coordinator.
type CoordinatorDependencies struct {
	Store      *repository.Store
	Policy     config.RoutingPolicy
	Dispatcher events.Dispatcher
	Formatter  outbound.Formatter
	Gate       SweepGate
	Backlog    AuditBacklog
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(deps CoordinatorDependencies) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	formatter := deps.Formatter
	if formatter == nil {
		formatter = outbound.NewDeepLinkFormatter("", "")
	}
	gate := deps.Gate
	if gate == nil {
		gate = NewMemoryGate(clock)
	}
	backlog := deps.Backlog
	if backlog == nil {
		backlog = NewMemoryBacklog()
	}
	return &Coordinator{
		tickets:    deps.Store.Tickets,
		agents:     deps.Store.Agents,
		sessions:   deps.Store.Sessions,
		auditLog:   deps.Store.Audit,
		audit:      NewAuditRecorder(deps.Store.Audit, backlog, deps.Metrics, logger),
		dispatcher: dispatcher,
		formatter:  formatter,
		gate:       gate,
		policy:     deps.Policy,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        clock,
	}
}

// Policy returns the routing policy in force.
func (c *Coordinator) Policy() config.RoutingPolicy {
	return c.policy
}

// Audit exposes the recorder for reconciliation.
func (c *Coordinator) Audit() *AuditRecorder {
	return c.audit
}

func (c *Coordinator) clock() time.Time {
	return c.now().UTC()
}

func (c *Coordinator) publishEvent(ctx context.Context, event events.Event) {
	if c.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = c.clock()
	}
	if err := c.dispatcher.Publish(ctx, event); err != nil {
		c.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

func (c *Coordinator) recordTicketEvent(ctx context.Context, ticket *domain.Ticket, eventType domain.TicketEventType, actor domain.Actor, at time.Time, details map[string]any) {
	c.audit.RecordTicket(ctx, &domain.TicketEvent{
		ID:        uuid.NewString(),
		TicketID:  ticket.ID,
		EventType: eventType,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Details:   details,
		CreatedAt: at,
	})
}

func (c *Coordinator) recordAgentEvent(ctx context.Context, session *domain.Session, eventType domain.AgentEventType, actor domain.Actor, at time.Time, details map[string]any) {
	c.audit.RecordAgent(ctx, &domain.AgentEvent{
		ID:        uuid.NewString(),
		AgentID:   session.AgentID,
		SessionID: session.ID,
		EventType: eventType,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		Details:   details,
		CreatedAt: at,
	})
}

// loadTicket reads a ticket by public id, retrying transient store failures.
func (c *Coordinator) loadTicket(ctx context.Context, publicID string) (*domain.Ticket, error) {
	ticket, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) (*domain.Ticket, error) {
		return c.tickets.GetByPublicID(ctx, publicID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewThreadNotFound(publicID)
	}
	if err != nil {
		return nil, storeError("load ticket", err)
	}
	return ticket, nil
}

func (c *Coordinator) loadAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	agent, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) (*domain.Agent, error) {
		return c.agents.GetByID(ctx, agentID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("load agent", err)
	}
	return agent, nil
}

func (c *Coordinator) openSession(ctx context.Context, agentID string) (*domain.Session, error) {
	session, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) (*domain.Session, error) {
		return c.sessions.GetOpenByAgent(ctx, agentID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("load session", err)
	}
	return session, nil
}

// checkEligibility maps an agent's authorization flags to a precondition error.
func checkEligibility(agentID string, agent *domain.Agent, now time.Time) error {
	switch agent.WorkEligibility(now) {
	case domain.EligibilityNotAuthorized:
		return apperrors.NewAgentNotAuthorized(agentID)
	case domain.EligibilityExpired:
		return apperrors.NewAuthorizationExpired(agentID)
	}
	return nil
}

// storeError converts a repository failure into a caller-facing error.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, repository.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewUnavailable(wrapped)
	}
	return apperrors.NewInternalError(wrapped)
}

func generateTicketKey() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TCK-" + strings.ToUpper(raw[:8])
}

func ptrString(v string) *string {
	return &v
}
