package repository

import (
	"context"
	"time"

	"github.com/spec-kit/support-router/internal/domain"
)

// ClaimParams describes a conditional assignment. The write only lands when the
// row still carries ExpectedStatus and ExpectedAgentID.
type ClaimParams struct {
	TicketID        string
	AgentID         string
	ExpectedStatus  domain.TicketStatus
	ExpectedAgentID *string
	// Exclusive requires the agent to hold no other active ticket at write time.
	Exclusive bool
	At        time.Time
}

// TransitionParams moves an active ticket between progress statuses.
type TransitionParams struct {
	TicketID        string
	ExpectedStatus  domain.TicketStatus
	ExpectedAgentID string
	Status          domain.TicketStatus
	At              time.Time
}

// CloseParams closes a ticket from its observed pre-state.
type CloseParams struct {
	TicketID        string
	ExpectedStatus  domain.TicketStatus
	ExpectedAgentID *string
	Resolution      string
	RootCause       *string
	At              time.Time
}

// EndSessionParams ends an open session. When StaleBefore is set the write
// only lands if the session has not heartbeated since.
type EndSessionParams struct {
	SessionID   string
	Reason      domain.SessionEndReason
	At          time.Time
	StaleBefore *time.Time
}

// TicketRepository encapsulates ticket persistence. Every mutation is a single
// conditional write that returns ErrConflict when the expected pre-state no
// longer holds.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByPublicID(ctx context.Context, publicID string) (*domain.Ticket, error)
	GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.Ticket, error)
	FindOpenByOwner(ctx context.Context, ownerID string) (*domain.Ticket, error)
	CountCreatedSince(ctx context.Context, ownerID string, since time.Time) (int, error)
	ListActiveByAgent(ctx context.Context, agentID string) ([]domain.Ticket, error)
	Claim(ctx context.Context, params ClaimParams) (*domain.Ticket, error)
	Transition(ctx context.Context, params TransitionParams) (*domain.Ticket, error)
	Close(ctx context.Context, params CloseParams) (*domain.Ticket, error)
	// ReleaseByAgent returns every active ticket agentID claimed no later than
	// heldBefore to the queue, reporting the released rows.
	ReleaseByAgent(ctx context.Context, agentID string, heldBefore, at time.Time) ([]domain.Ticket, error)
	// ListOrphanedAgents names agents that hold active tickets without an open session.
	ListOrphanedAgents(ctx context.Context, limit int) ([]string, error)
	// ReleaseOrphaned requeues agentID's active tickets only while the agent has no open session.
	ReleaseOrphaned(ctx context.Context, agentID string, at time.Time) ([]domain.Ticket, error)
}

// AgentRepository reads authorization flags. Upsert is the administrative hook.
type AgentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	Upsert(ctx context.Context, agent *domain.Agent) error
}

// SessionRepository persists agent shifts.
type SessionRepository interface {
	// Open inserts a session; ErrDuplicate when the agent already has one open.
	Open(ctx context.Context, session *domain.Session) error
	GetOpenByAgent(ctx context.Context, agentID string) (*domain.Session, error)
	Touch(ctx context.Context, agentID string, at time.Time) (*domain.Session, error)
	// End reports false when the session was already ended or revived.
	End(ctx context.Context, params EndSessionParams) (bool, error)
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Session, error)
	// ListRevoked lists open, unprivileged sessions whose agent can no longer work at now.
	ListRevoked(ctx context.Context, now time.Time, limit int) ([]domain.Session, error)
}

// AuditLog is the append-only event sink. Appends are idempotent on event ID.
type AuditLog interface {
	AppendTicketEvent(ctx context.Context, event *domain.TicketEvent) error
	AppendAgentEvent(ctx context.Context, event *domain.AgentEvent) error
	ListTicketEvents(ctx context.Context, ticketID string) ([]domain.TicketEvent, error)
	ListAgentEvents(ctx context.Context, agentID string) ([]domain.AgentEvent, error)
}

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Tickets  TicketRepository
	Agents   AgentRepository
	Sessions SessionRepository
	Audit    AuditLog
	Health   Pinger
	Closer   func() error
}

// Ping checks the backend; a store without a health check is always ready.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.Health == nil {
		return nil
	}
	return s.Health.Ping(ctx)
}

// Close releases backend resources.
func (s *Store) Close() error {
	if s == nil || s.Closer == nil {
		return nil
	}
	return s.Closer()
}
