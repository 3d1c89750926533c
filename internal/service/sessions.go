package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/repository"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

// StartSessionResult reports the open session and whether it already existed.
type StartSessionResult struct {
	Session *domain.Session
	Resumed bool
}

// EndSessionResult reports what an end request changed.
type EndSessionResult struct {
	Ended    bool
	Released []domain.Ticket
}

// HeartbeatResult reports whether the agent still had an open session.
type HeartbeatResult struct {
	Active  bool
	Session *domain.Session
}

// StartSession opens a shift for the acting agent, or returns the one already
// open. Administrators open privileged sessions that skip work eligibility.
func (c *Coordinator) StartSession(ctx context.Context, actor domain.Actor) (*StartSessionResult, error) {
	if !actor.CanWork() {
		return nil, apperrors.NewForbidden("only agents and administrators may start sessions")
	}
	now := c.clock()
	if !actor.IsAdmin() {
		agent, err := c.loadAgent(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if err := checkEligibility(actor.ID, agent, now); err != nil {
			return nil, err
		}
	}

	existing, err := c.resumeSession(ctx, actor.ID, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &StartSessionResult{Session: existing, Resumed: true}, nil
	}

	session := &domain.Session{
		ID:         uuid.NewString(),
		AgentID:    actor.ID,
		Privileged: actor.IsAdmin(),
		StartAt:    now,
		LastSeenAt: now,
	}
	if err := c.sessions.Open(ctx, session); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, storeError("open session", err)
		}
		existing, err = c.resumeSession(ctx, actor.ID, now)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, apperrors.NewConflict("session start raced with another request; retry", nil)
		}
		return &StartSessionResult{Session: existing, Resumed: true}, nil
	}

	c.recordAgentEvent(ctx, session, domain.AgentEventLogin, actor, now, map[string]any{
		"privileged": session.Privileged,
	})
	c.metrics.SessionTransition("started")
	c.logger.Info("agent session started",
		zap.String("agent_id", session.AgentID),
		zap.String("session_id", session.ID),
		zap.Bool("privileged", session.Privileged))
	c.publishEvent(ctx, events.Event{
		Type:      events.EventSessionStarted,
		AgentID:   session.AgentID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload:   events.SessionPayload{SessionID: session.ID},
	})
	return &StartSessionResult{Session: session}, nil
}

// resumeSession returns the agent's open session refreshed to now, or nil.
func (c *Coordinator) resumeSession(ctx context.Context, agentID string, now time.Time) (*domain.Session, error) {
	touched, err := c.sessions.Touch(ctx, agentID, now)
	switch {
	case err == nil:
		return touched, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, nil
	default:
		return nil, storeError("resume session", err)
	}
}

// EndSession ends agentID's open session and releases every ticket it holds.
// Ending an agent without an open session still runs the release.
func (c *Coordinator) EndSession(ctx context.Context, actor domain.Actor, agentID string, reason domain.SessionEndReason) (*EndSessionResult, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		agentID = actor.ID
	}
	if !actor.CanWork() || !actor.CanActFor(agentID) {
		return nil, apperrors.NewForbidden("not allowed to end this agent's session")
	}
	if reason == "" {
		reason = domain.SessionEndLogout
	}
	if reason != domain.SessionEndLogout && reason != domain.SessionEndManualRelease {
		return nil, apperrors.NewValidationError("reason must be logout or manual_release",
			map[string]any{"field": "reason", "value": string(reason)})
	}

	session, err := c.openSession(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return c.endAgentSession(ctx, actor, agentID, session, reason, nil)
}

// endAgentSession is the single release path shared by explicit ends and the
// reaper. With staleBefore set, nothing happens unless the conditional end
// wins, so a heartbeat racing the reaper keeps its tickets.
func (c *Coordinator) endAgentSession(ctx context.Context, actor domain.Actor, agentID string, session *domain.Session, reason domain.SessionEndReason, staleBefore *time.Time) (*EndSessionResult, error) {
	now := c.clock()
	result := &EndSessionResult{}

	if session != nil {
		ended, err := c.sessions.End(ctx, repository.EndSessionParams{
			SessionID:   session.ID,
			Reason:      reason,
			At:          now,
			StaleBefore: staleBefore,
		})
		if err != nil {
			return nil, storeError("end session", err)
		}
		result.Ended = ended
	}
	if staleBefore != nil && !result.Ended {
		return result, nil
	}

	// Tickets claimed after now belong to a newer session.
	released, err := c.tickets.ReleaseByAgent(ctx, agentID, now, now)
	if err != nil {
		return nil, storeError("release tickets", err)
	}
	result.Released = released
	sessionID := ""
	if session != nil {
		sessionID = session.ID
	}
	c.announceReleases(ctx, actor, agentID, sessionID, reason, now, released)

	if result.Ended {
		c.recordAgentEvent(ctx, session, domain.AgentEventLogout, actor, now, map[string]any{
			"reason":   string(reason),
			"released": len(released),
		})
		c.metrics.SessionTransition("ended_" + string(reason))
		c.publishEvent(ctx, events.Event{
			Type:      events.EventSessionEnded,
			AgentID:   agentID,
			Actor:     events.ActorFrom(actor),
			Timestamp: now,
			Payload:   events.SessionPayload{SessionID: session.ID, Reason: reason, Released: len(released)},
		})
	}
	if result.Ended || len(released) > 0 {
		c.logger.Info("agent session ended",
			zap.String("agent_id", agentID),
			zap.String("reason", string(reason)),
			zap.Bool("ended", result.Ended),
			zap.Int("released", len(released)))
	}
	return result, nil
}

// announceReleases records and publishes one release event per requeued ticket.
func (c *Coordinator) announceReleases(ctx context.Context, actor domain.Actor, agentID, sessionID string, reason domain.SessionEndReason, now time.Time, released []domain.Ticket) {
	releaseEvent := domain.ReleaseEventFor(reason)
	for i := range released {
		ticket := &released[i]
		details := map[string]any{"agent_id": agentID, "reason": string(reason)}
		if sessionID != "" {
			details["session_id"] = sessionID
		}
		c.recordTicketEvent(ctx, ticket, releaseEvent, actor, now, details)
		c.publishEvent(ctx, events.Event{
			Type:      events.EventTicketReleased,
			TicketID:  ticket.PublicID,
			AgentID:   agentID,
			Actor:     events.ActorFrom(actor),
			Timestamp: now,
			Payload:   events.TicketReleasedPayload{AgentID: agentID, Reason: reason},
		})
	}
	c.metrics.TicketsReleased(string(reason), len(released))
}

// Heartbeat refreshes the acting agent's session and opportunistically runs
// a throttled sweep.
func (c *Coordinator) Heartbeat(ctx context.Context, actor domain.Actor) (*HeartbeatResult, error) {
	if !actor.CanWork() {
		return nil, apperrors.NewForbidden("only agents and administrators send heartbeats")
	}
	result := &HeartbeatResult{}
	session, err := c.sessions.Touch(ctx, actor.ID, c.clock())
	switch {
	case err == nil:
		result.Active = true
		result.Session = session
	case !errors.Is(err, repository.ErrNotFound):
		return nil, storeError("heartbeat", err)
	}

	if _, err := c.SweepIfDue(ctx, SweepTriggerHeartbeat); err != nil {
		c.logger.Warn("heartbeat sweep failed", zap.Error(err))
	}
	return result, nil
}

// UpsertAgent records an agent's authorization flags. An agent that can no
// longer work loses its open session and tickets immediately, even when it
// has no session left to end.
func (c *Coordinator) UpsertAgent(ctx context.Context, actor domain.Actor, agent domain.Agent) (*domain.Agent, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("administrator role required")
	}
	agent.ID = strings.TrimSpace(agent.ID)
	if agent.ID == "" {
		return nil, apperrors.NewValidationError("agent id is required", map[string]any{"field": "id"})
	}
	now := c.clock()
	agent.UpdatedAt = now
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	if err := c.agents.Upsert(ctx, &agent); err != nil {
		return nil, storeError("upsert agent", err)
	}
	c.logger.Info("agent authorization updated",
		zap.String("agent_id", agent.ID),
		zap.Bool("authorized", agent.AuthorizedForWork),
		zap.Bool("blocked", agent.Blocked))

	if agent.WorkEligibility(now) != domain.EligibilityOK {
		session, err := c.openSession(ctx, agent.ID)
		if err != nil {
			return nil, err
		}
		if session == nil || !session.Privileged {
			if _, err := c.endAgentSession(ctx, actor, agent.ID, session, domain.SessionEndManualRelease, nil); err != nil {
				return nil, err
			}
		}
	}
	return &agent, nil
}

// GetAgent returns an agent's authorization record.
func (c *Coordinator) GetAgent(ctx context.Context, actor domain.Actor, agentID string) (*domain.Agent, error) {
	if !actor.CanWork() || !actor.CanActFor(agentID) {
		return nil, apperrors.NewForbidden("not allowed to read this agent")
	}
	agent, err := c.loadAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
	}
	return agent, nil
}
