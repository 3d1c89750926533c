package dto

import (
	"time"

	"github.com/spec-kit/support-router/internal/domain"
)

// EndSessionRequest payload. AgentID is honored for administrators only.
type EndSessionRequest struct {
	AgentID string                  `json:"agent_id"`
	Reason  domain.SessionEndReason `json:"reason"`
}

// SessionResponse describes an agent session.
type SessionResponse struct {
	ID         string                   `json:"id"`
	AgentID    string                   `json:"agent_id"`
	Privileged bool                     `json:"privileged"`
	StartAt    time.Time                `json:"start_at"`
	LastSeenAt time.Time                `json:"last_seen_at"`
	EndAt      *time.Time               `json:"end_at,omitempty"`
	EndReason  *domain.SessionEndReason `json:"end_reason,omitempty"`
}

// StartSessionResponse wraps a started or resumed session.
type StartSessionResponse struct {
	Session SessionResponse `json:"session"`
	Resumed bool            `json:"resumed"`
}

// EndSessionResponse lists the tickets returned to the queue.
type EndSessionResponse struct {
	Ended           bool             `json:"ended"`
	ReleasedTickets []TicketResponse `json:"released_tickets"`
}

// HeartbeatResponse reports whether the caller still holds an open session.
type HeartbeatResponse struct {
	Active     bool       `json:"active"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// NewSessionResponse maps a session.
func NewSessionResponse(s *domain.Session) SessionResponse {
	return SessionResponse{
		ID:         s.ID,
		AgentID:    s.AgentID,
		Privileged: s.Privileged,
		StartAt:    s.StartAt,
		LastSeenAt: s.LastSeenAt,
		EndAt:      s.EndAt,
		EndReason:  s.EndReason,
	}
}
