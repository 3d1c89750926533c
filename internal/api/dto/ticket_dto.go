package dto

import (
	"time"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/outbound"
)

// CreateTicketRequest payload. The Idempotency-Key header wins over the body field.
type CreateTicketRequest struct {
	Category       string                `json:"category"`
	Severity       domain.TicketSeverity `json:"severity"`
	Summary        string                `json:"summary"`
	Context        map[string]string     `json:"context"`
	IdempotencyKey string                `json:"idempotency_key"`
}

// AssignTicketRequest payload. An empty AgentID assigns to the caller.
type AssignTicketRequest struct {
	AgentID string `json:"agent_id"`
}

// TransitionTicketRequest payload.
type TransitionTicketRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// CloseTicketRequest payload.
type CloseTicketRequest struct {
	Resolution string `json:"resolution"`
	RootCause  string `json:"root_cause"`
}

// TicketResponse is the caller-facing view of a ticket. It carries the public
// id only.
type TicketResponse struct {
	ID              string                `json:"id"`
	Category        string                `json:"category"`
	Severity        domain.TicketSeverity `json:"severity"`
	Summary         string                `json:"summary"`
	Context         map[string]string     `json:"context,omitempty"`
	Status          domain.TicketStatus   `json:"status"`
	AssignedAgentID *string               `json:"assigned_agent_id"`
	Resolution      *string               `json:"resolution,omitempty"`
	RootCause       *string               `json:"root_cause,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	AssignedAt      *time.Time            `json:"assigned_at,omitempty"`
	ClosedAt        *time.Time            `json:"closed_at,omitempty"`
}

// CreateTicketResponse wraps a created or reused ticket.
type CreateTicketResponse struct {
	Ticket  TicketResponse    `json:"ticket"`
	Reused  bool              `json:"reused"`
	Message *outbound.Message `json:"message,omitempty"`
}

// AssignTicketResponse wraps an assigned ticket.
type AssignTicketResponse struct {
	Ticket  TicketResponse    `json:"ticket"`
	Message *outbound.Message `json:"message,omitempty"`
}

// TicketEventResponse is one audit trail entry.
type TicketEventResponse struct {
	EventType domain.TicketEventType `json:"event_type"`
	ActorRole domain.Role            `json:"actor_role"`
	ActorID   string                 `json:"actor_id"`
	Details   map[string]any         `json:"details,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:              t.PublicID,
		Category:        t.Category,
		Severity:        t.Severity,
		Summary:         t.Summary,
		Context:         t.Context,
		Status:          t.Status,
		AssignedAgentID: t.AssignedAgentID,
		Resolution:      t.Resolution,
		RootCause:       t.RootCause,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
		AssignedAt:      t.AssignedAt,
		ClosedAt:        t.ClosedAt,
	}
}

// NewTicketResponses maps a slice of tickets.
func NewTicketResponses(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}

// NewTicketEventResponses maps an audit trail. The storage ticket id is dropped.
func NewTicketEventResponses(trail []domain.TicketEvent) []TicketEventResponse {
	items := make([]TicketEventResponse, 0, len(trail))
	for _, event := range trail {
		items = append(items, TicketEventResponse{
			EventType: event.EventType,
			ActorRole: event.ActorRole,
			ActorID:   event.ActorID,
			Details:   event.Details,
			CreatedAt: event.CreatedAt,
		})
	}
	return items
}
