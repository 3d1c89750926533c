package domain

import "time"

// TicketEventType captures what happened to a ticket.
type TicketEventType string

const (
	TicketEventCreated             TicketEventType = "created"
	TicketEventAssigned            TicketEventType = "assigned"
	TicketEventStatusChanged       TicketEventType = "status_changed"
	TicketEventClosed              TicketEventType = "closed"
	TicketEventAgentManualRelease  TicketEventType = "agent_manual_release"
	TicketEventAgentTimeoutRelease TicketEventType = "agent_timeout_release"
)

// AgentEventType captures presence transitions.
type AgentEventType string

const (
	AgentEventLogin  AgentEventType = "agent_login"
	AgentEventLogout AgentEventType = "agent_logout"
)

// TicketEvent is an immutable audit trail entry for a ticket.
type TicketEvent struct {
	ID        string
	TicketID  string
	EventType TicketEventType
	ActorRole Role
	ActorID   string
	Details   map[string]any
	CreatedAt time.Time
}

// AgentEvent is an immutable audit trail entry for an agent's presence.
type AgentEvent struct {
	ID        string
	AgentID   string
	SessionID string
	EventType AgentEventType
	ActorRole Role
	ActorID   string
	Details   map[string]any
	CreatedAt time.Time
}

// ReleaseEventFor maps a session end reason to the per-ticket release event.
func ReleaseEventFor(reason SessionEndReason) TicketEventType {
	if reason == SessionEndTimeout {
		return TicketEventAgentTimeoutRelease
	}
	return TicketEventAgentManualRelease
}
