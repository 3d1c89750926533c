package events

import (
	"time"

	"github.com/spec-kit/support-router/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketClosed        EventType = "ticket_closed"
	EventTicketReleased      EventType = "ticket_released"
	EventSessionStarted      EventType = "agent_session_started"
	EventSessionEnded        EventType = "agent_session_ended"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role domain.Role `json:"role"`
	ID   string      `json:"id"`
}

// ActorFrom converts a coordinator actor.
func ActorFrom(a domain.Actor) Actor {
	return Actor{Role: a.Role, ID: a.ID}
}

// Event represents a domain event emitted by the coordinator. TicketID carries
// the public ticket identifier.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Category string                `json:"category"`
	Severity domain.TicketSeverity `json:"severity"`
	Summary  string                `json:"summary"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AgentID         string              `json:"agent_id"`
	PreviousAgentID *string             `json:"previous_agent_id,omitempty"`
	PreviousStatus  domain.TicketStatus `json:"previous_status"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Resolution string  `json:"resolution"`
	RootCause  *string `json:"root_cause,omitempty"`
}

// TicketReleasedPayload payload.
type TicketReleasedPayload struct {
	AgentID string                  `json:"agent_id"`
	Reason  domain.SessionEndReason `json:"reason"`
}

// SessionPayload payload for session start and end.
type SessionPayload struct {
	SessionID string                  `json:"session_id"`
	Reason    domain.SessionEndReason `json:"reason,omitempty"`
	Released  int                     `json:"released,omitempty"`
}
