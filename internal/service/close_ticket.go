package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/repository"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

const maxResolutionLen = 2000

// CloseTicketInput describes a closure.
type CloseTicketInput struct {
	Resolution string
	RootCause  string
}

// CloseTicket moves a ticket to its terminal state. Agents may only close
// tickets they hold; administrators may close any open ticket.
func (c *Coordinator) CloseTicket(ctx context.Context, actor domain.Actor, publicID string, input CloseTicketInput) (*domain.Ticket, error) {
	if !actor.CanWork() {
		return nil, apperrors.NewForbidden("only agents and administrators may close tickets")
	}
	resolution := strings.TrimSpace(input.Resolution)
	if resolution == "" {
		return nil, apperrors.NewValidationError("resolution is required", map[string]any{"field": "resolution"})
	}
	if utf8.RuneCountInString(resolution) > maxResolutionLen {
		return nil, apperrors.NewValidationError("resolution too long", map[string]any{"field": "resolution", "max": maxResolutionLen})
	}
	var rootCause *string
	if rc := strings.TrimSpace(input.RootCause); rc != "" {
		if utf8.RuneCountInString(rc) > maxResolutionLen {
			return nil, apperrors.NewValidationError("root cause too long", map[string]any{"field": "root_cause", "max": maxResolutionLen})
		}
		rootCause = &rc
	}

	ticket, err := c.loadTicket(ctx, strings.TrimSpace(publicID))
	if err != nil {
		return nil, err
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewThreadClosed(ticket.PublicID)
	}
	if !actor.IsAdmin() && !ticket.AssignedTo(actor.ID) {
		return nil, apperrors.NewNotAssigned(ticket.PublicID)
	}

	now := c.clock()
	previousStatus := ticket.Status
	previousAgent := ticket.AssignedAgentID
	closed, err := c.tickets.Close(ctx, repository.CloseParams{
		TicketID:        ticket.ID,
		ExpectedStatus:  ticket.Status,
		ExpectedAgentID: ticket.AssignedAgentID,
		Resolution:      resolution,
		RootCause:       rootCause,
		At:              now,
	})
	if errors.Is(err, repository.ErrConflict) {
		current, readErr := c.tickets.GetByID(ctx, ticket.ID)
		switch {
		case readErr == nil && current.Status.Terminal():
			return nil, apperrors.NewThreadClosed(ticket.PublicID)
		case readErr == nil && !actor.IsAdmin() && !current.AssignedTo(actor.ID):
			return nil, apperrors.NewNotAssigned(ticket.PublicID)
		}
		return nil, apperrors.NewStaleThread(ticket.PublicID)
	}
	if err != nil {
		return nil, storeError("close ticket", err)
	}

	details := map[string]any{
		"resolution":      resolution,
		"previous_status": string(previousStatus),
	}
	if rootCause != nil {
		details["root_cause"] = *rootCause
	}
	if previousAgent != nil {
		details["agent_id"] = *previousAgent
	}
	c.recordTicketEvent(ctx, closed, domain.TicketEventClosed, actor, now, details)
	c.metrics.TicketClosed()
	c.logger.Info("ticket closed",
		zap.String("ticket_id", closed.PublicID),
		zap.String("actor_id", actor.ID),
		zap.String("actor_role", string(actor.Role)))
	c.publishEvent(ctx, events.Event{
		Type:      events.EventTicketClosed,
		TicketID:  closed.PublicID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload:   events.TicketClosedPayload{Resolution: resolution, RootCause: rootCause},
	})
	return closed, nil
}

// GetTicket returns a ticket visible to the caller: its owner, or any agent
// or administrator.
func (c *Coordinator) GetTicket(ctx context.Context, caller domain.Principal, publicID string) (*domain.Ticket, error) {
	ticket, err := c.loadTicket(ctx, strings.TrimSpace(publicID))
	if err != nil {
		return nil, err
	}
	if !caller.Actor().CanWork() && ticket.OwnerID != caller.ID {
		return nil, apperrors.NewThreadNotFound(publicID)
	}
	return ticket, nil
}

// ListTicketEvents returns a ticket's audit trail in append order.
func (c *Coordinator) ListTicketEvents(ctx context.Context, actor domain.Actor, publicID string) ([]domain.TicketEvent, error) {
	if !actor.CanWork() {
		return nil, apperrors.NewForbidden("only agents and administrators may read the audit trail")
	}
	ticket, err := c.loadTicket(ctx, strings.TrimSpace(publicID))
	if err != nil {
		return nil, err
	}
	trail, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) ([]domain.TicketEvent, error) {
		return c.auditLog.ListTicketEvents(ctx, ticket.ID)
	})
	if err != nil {
		return nil, storeError("list ticket events", err)
	}
	return trail, nil
}

// ListAgentEvents returns an agent's presence trail. Agents may read their own.
func (c *Coordinator) ListAgentEvents(ctx context.Context, actor domain.Actor, agentID string) ([]domain.AgentEvent, error) {
	if !actor.CanWork() || !actor.CanActFor(agentID) {
		return nil, apperrors.NewForbidden("not allowed to read this agent's trail")
	}
	trail, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) ([]domain.AgentEvent, error) {
		return c.auditLog.ListAgentEvents(ctx, agentID)
	})
	if err != nil {
		return nil, storeError("list agent events", err)
	}
	return trail, nil
}
