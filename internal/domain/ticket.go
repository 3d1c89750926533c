package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew         TicketStatus = "new"
	TicketStatusQueued      TicketStatus = "queued"
	TicketStatusAssigned    TicketStatus = "assigned"
	TicketStatusInProgress  TicketStatus = "in_progress"
	TicketStatusWaitingUser TicketStatus = "waiting_user"
	TicketStatusClosed      TicketStatus = "closed"
)

// ActiveTicketStatuses are the statuses in which a ticket is bound to an agent.
var ActiveTicketStatuses = []TicketStatus{
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusWaitingUser,
}

// OpenTicketStatuses are all non-terminal statuses.
var OpenTicketStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusQueued,
	TicketStatusAssigned,
	TicketStatusInProgress,
	TicketStatusWaitingUser,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusNew, TicketStatusQueued, TicketStatusAssigned,
		TicketStatusInProgress, TicketStatusWaitingUser, TicketStatusClosed:
		return true
	}
	return false
}

// Active reports whether a ticket in this status must carry an assigned agent.
func (s TicketStatus) Active() bool {
	switch s {
	case TicketStatusAssigned, TicketStatusInProgress, TicketStatusWaitingUser:
		return true
	}
	return false
}

// Claimable reports whether an unassigned ticket in this status may be claimed.
func (s TicketStatus) Claimable() bool {
	return s == TicketStatusNew || s == TicketStatusQueued
}

// Terminal reports whether no further mutation is permitted.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusClosed
}

// TicketSeverity enumerates urgency.
type TicketSeverity string

const (
	TicketSeverityLow      TicketSeverity = "low"
	TicketSeverityMedium   TicketSeverity = "medium"
	TicketSeverityHigh     TicketSeverity = "high"
	TicketSeverityCritical TicketSeverity = "critical"
)

// Valid reports whether v is a known severity.
func (v TicketSeverity) Valid() bool {
	switch v {
	case TicketSeverityLow, TicketSeverityMedium, TicketSeverityHigh, TicketSeverityCritical:
		return true
	}
	return false
}

// Ticket is a support thread. ID is the storage key; PublicID is the only
// identifier handed to callers.
type Ticket struct {
	ID                 string
	PublicID           string
	OwnerID            string
	Tenant             string
	Category           string
	Severity           TicketSeverity
	Summary            string
	Context            map[string]string
	Status             TicketStatus
	AssignedAgentID    *string
	ExclusiveHold      bool
	IdempotencyKey     *string
	RequestFingerprint string
	Resolution         *string
	RootCause          *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ClosedAt           *time.Time
	// AssignedAt is when the current holder claimed the ticket.
	AssignedAt *time.Time
}

// AssignedTo reports whether the ticket is actively held by agentID.
func (t *Ticket) AssignedTo(agentID string) bool {
	return t.Status.Active() && t.AssignedAgentID != nil && *t.AssignedAgentID == agentID
}
