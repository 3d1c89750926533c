package dto

import (
	"time"

	"github.com/spec-kit/support-router/internal/domain"
)

// UpsertAgentRequest carries the authorization flags maintained by administrators.
type UpsertAgentRequest struct {
	DisplayName       string     `json:"display_name"`
	ContactHandle     *string    `json:"contact_handle"`
	AuthorizedForWork bool       `json:"authorized_for_work"`
	AuthorizedUntil   *time.Time `json:"authorized_until"`
	Blocked           bool       `json:"blocked"`
}

// AgentResponse describes an agent's authorization record.
type AgentResponse struct {
	ID                string     `json:"id"`
	DisplayName       string     `json:"display_name"`
	ContactHandle     *string    `json:"contact_handle,omitempty"`
	AuthorizedForWork bool       `json:"authorized_for_work"`
	AuthorizedUntil   *time.Time `json:"authorized_until,omitempty"`
	Blocked           bool       `json:"blocked"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// AgentEventResponse is one presence trail entry.
type AgentEventResponse struct {
	EventType domain.AgentEventType `json:"event_type"`
	SessionID string                `json:"session_id"`
	ActorRole domain.Role           `json:"actor_role"`
	ActorID   string                `json:"actor_id"`
	Details   map[string]any        `json:"details,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// ToAgent builds the domain record for id.
func (r UpsertAgentRequest) ToAgent(id string) domain.Agent {
	return domain.Agent{
		ID:                id,
		DisplayName:       r.DisplayName,
		ContactHandle:     r.ContactHandle,
		AuthorizedForWork: r.AuthorizedForWork,
		AuthorizedUntil:   r.AuthorizedUntil,
		Blocked:           r.Blocked,
	}
}

// NewAgentResponse maps an agent.
func NewAgentResponse(a *domain.Agent) AgentResponse {
	return AgentResponse{
		ID:                a.ID,
		DisplayName:       a.DisplayName,
		ContactHandle:     a.ContactHandle,
		AuthorizedForWork: a.AuthorizedForWork,
		AuthorizedUntil:   a.AuthorizedUntil,
		Blocked:           a.Blocked,
		UpdatedAt:         a.UpdatedAt,
	}
}

// NewAgentEventResponses maps a presence trail.
func NewAgentEventResponses(trail []domain.AgentEvent) []AgentEventResponse {
	items := make([]AgentEventResponse, 0, len(trail))
	for _, event := range trail {
		items = append(items, AgentEventResponse{
			EventType: event.EventType,
			SessionID: event.SessionID,
			ActorRole: event.ActorRole,
			ActorID:   event.ActorID,
			Details:   event.Details,
			CreatedAt: event.CreatedAt,
		})
	}
	return items
}
