package domain

import "time"

// Agent carries the authorization flags an administrative process maintains
// for a support worker. The coordinator only reads them.
type Agent struct {
	ID                string
	DisplayName       string
	ContactHandle     *string
	AuthorizedForWork bool
	AuthorizedUntil   *time.Time
	Blocked           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Eligibility is the outcome of checking an agent's authorization flags.
type Eligibility int

const (
	EligibilityOK Eligibility = iota
	EligibilityNotAuthorized
	EligibilityExpired
)

// WorkEligibility evaluates the agent's flags at now.
func (a *Agent) WorkEligibility(now time.Time) Eligibility {
	if a == nil || a.Blocked || !a.AuthorizedForWork {
		return EligibilityNotAuthorized
	}
	if a.AuthorizedUntil != nil && !now.Before(*a.AuthorizedUntil) {
		return EligibilityExpired
	}
	return EligibilityOK
}

// SessionEndReason enumerates why a session ended.
type SessionEndReason string

const (
	SessionEndLogout        SessionEndReason = "logout"
	SessionEndTimeout       SessionEndReason = "timeout"
	SessionEndManualRelease SessionEndReason = "manual_release"
)

// Valid reports whether r is a known reason.
func (r SessionEndReason) Valid() bool {
	switch r {
	case SessionEndLogout, SessionEndTimeout, SessionEndManualRelease:
		return true
	}
	return false
}

// Session is one agent's shift, bounded by start and end and kept alive by
// heartbeats.
type Session struct {
	ID         string
	AgentID    string
	Privileged bool
	StartAt    time.Time
	EndAt      *time.Time
	EndReason  *SessionEndReason
	LastSeenAt time.Time
}

// Open reports whether the session has not ended.
func (s *Session) Open() bool {
	return s.EndAt == nil
}

// StaleAt reports whether the last heartbeat is older than cutoff.
func (s *Session) StaleAt(cutoff time.Time) bool {
	return s.LastSeenAt.Before(cutoff)
}
