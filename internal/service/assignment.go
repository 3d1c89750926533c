package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/outbound"
	"github.com/spec-kit/support-router/internal/repository"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

// AssignResult carries the assigned ticket and the hand-off message for the agent.
type AssignResult struct {
	Ticket  *domain.Ticket
	Message *outbound.Message
}

// AssignTicket binds a ticket to agentID. An empty agentID means the actor
// itself. Preconditions are checked in a fixed order and the first failure
// is reported: active session, work eligibility, exclusivity, ticket state.
func (c *Coordinator) AssignTicket(ctx context.Context, actor domain.Actor, publicID, agentID string) (*AssignResult, error) {
	result, err := c.assign(ctx, actor, strings.TrimSpace(publicID), strings.TrimSpace(agentID))
	if err != nil {
		c.metrics.Assignment(apperrors.CodeOf(err))
		return nil, err
	}
	c.metrics.Assignment("assigned")
	return result, nil
}

func (c *Coordinator) assign(ctx context.Context, actor domain.Actor, publicID, agentID string) (*AssignResult, error) {
	if agentID == "" {
		agentID = actor.ID
	}
	if !actor.CanWork() {
		return nil, apperrors.NewForbidden("only agents and administrators may assign tickets")
	}
	if !actor.CanActFor(agentID) {
		return nil, apperrors.NewForbidden("agents may only assign tickets to themselves")
	}
	if publicID == "" {
		return nil, apperrors.NewValidationError("ticket id is required", map[string]any{"field": "ticket_id"})
	}

	session, err := c.openSession(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.NewAgentSessionInactive(agentID)
	}

	now := c.clock()
	agent, err := c.loadAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		if err := checkEligibility(agentID, agent, now); err != nil {
			return nil, err
		}
	}

	exclusive := !(actor.IsAdmin() && c.policy.AdminBypassesExclusivity)
	if exclusive {
		held, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) ([]domain.Ticket, error) {
			return c.tickets.ListActiveByAgent(ctx, agentID)
		})
		if err != nil {
			return nil, storeError("list active tickets", err)
		}
		for _, t := range held {
			if t.PublicID != publicID {
				return nil, apperrors.NewAgentHasActiveTicket(agentID)
			}
		}
	}

	ticket, err := c.loadTicket(ctx, publicID)
	if err != nil {
		return nil, err
	}
	switch {
	case ticket.Status.Terminal():
		return nil, apperrors.NewThreadClosed(publicID)
	case ticket.AssignedTo(agentID):
		return &AssignResult{Ticket: ticket, Message: c.formatter.TicketAssigned(ticket, agent)}, nil
	case ticket.Status.Active() && !actor.IsAdmin():
		return nil, apperrors.NewThreadAssigned(publicID)
	}

	previousStatus := ticket.Status
	previousAgent := ticket.AssignedAgentID
	claimed, err := c.tickets.Claim(ctx, repository.ClaimParams{
		TicketID:        ticket.ID,
		AgentID:         agentID,
		ExpectedStatus:  ticket.Status,
		ExpectedAgentID: ticket.AssignedAgentID,
		Exclusive:       exclusive,
		At:              now,
	})
	switch {
	case errors.Is(err, repository.ErrConflict):
		return nil, c.explainLostClaim(ctx, ticket, agentID, exclusive)
	case errors.Is(err, repository.ErrDuplicate):
		return nil, apperrors.NewAgentHasActiveTicket(agentID)
	case err != nil:
		return nil, storeError("claim ticket", err)
	}

	details := map[string]any{
		"agent_id":        agentID,
		"previous_status": string(previousStatus),
		"exclusive":       exclusive,
	}
	if previousAgent != nil {
		details["previous_agent_id"] = *previousAgent
	}
	c.recordTicketEvent(ctx, claimed, domain.TicketEventAssigned, actor, now, details)
	c.logger.Info("ticket assigned",
		zap.String("ticket_id", claimed.PublicID),
		zap.String("agent_id", agentID),
		zap.String("actor_role", string(actor.Role)))
	c.publishEvent(ctx, events.Event{
		Type:      events.EventTicketAssigned,
		TicketID:  claimed.PublicID,
		AgentID:   agentID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload: events.TicketAssignedPayload{
			AgentID:         agentID,
			PreviousAgentID: previousAgent,
			PreviousStatus:  previousStatus,
		},
	})

	return &AssignResult{Ticket: claimed, Message: c.formatter.TicketAssigned(claimed, agent)}, nil
}

// explainLostClaim re-reads after a failed conditional claim and reports why
// the observed pre-state no longer held.
func (c *Coordinator) explainLostClaim(ctx context.Context, observed *domain.Ticket, agentID string, exclusive bool) error {
	if session, err := c.openSession(ctx, agentID); err == nil && session == nil {
		return apperrors.NewAgentSessionInactive(agentID)
	}
	current, err := c.tickets.GetByID(ctx, observed.ID)
	if err != nil {
		return apperrors.NewStaleThread(observed.PublicID)
	}
	if current.Status.Terminal() {
		return apperrors.NewThreadClosed(observed.PublicID)
	}
	if exclusive && !current.AssignedTo(agentID) {
		held, err := c.tickets.ListActiveByAgent(ctx, agentID)
		if err == nil {
			for _, t := range held {
				if t.ID != observed.ID {
					return apperrors.NewAgentHasActiveTicket(agentID)
				}
			}
		}
	}
	return apperrors.NewStaleThread(observed.PublicID)
}

// TransitionTicket moves an assigned ticket between its working statuses.
func (c *Coordinator) TransitionTicket(ctx context.Context, actor domain.Actor, publicID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if !actor.CanWork() {
		return nil, apperrors.NewForbidden("only agents and administrators may update tickets")
	}
	if !status.Active() {
		return nil, apperrors.NewValidationError("status must be one of assigned, in_progress, waiting_user",
			map[string]any{"field": "status", "value": string(status)})
	}

	ticket, err := c.loadTicket(ctx, strings.TrimSpace(publicID))
	if err != nil {
		return nil, err
	}
	if ticket.Status.Terminal() {
		return nil, apperrors.NewThreadClosed(ticket.PublicID)
	}
	if !ticket.Status.Active() || (!actor.IsAdmin() && !ticket.AssignedTo(actor.ID)) {
		return nil, apperrors.NewNotAssigned(ticket.PublicID)
	}
	if ticket.Status == status {
		return ticket, nil
	}

	now := c.clock()
	previous := ticket.Status
	updated, err := c.tickets.Transition(ctx, repository.TransitionParams{
		TicketID:        ticket.ID,
		ExpectedStatus:  ticket.Status,
		ExpectedAgentID: *ticket.AssignedAgentID,
		Status:          status,
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
		return nil, storeError("transition ticket", err)
	}

	c.recordTicketEvent(ctx, updated, domain.TicketEventStatusChanged, actor, now, map[string]any{
		"from": string(previous),
		"to":   string(status),
	})
	c.publishEvent(ctx, events.Event{
		Type:      events.EventTicketStatusChanged,
		TicketID:  updated.PublicID,
		AgentID:   *updated.AssignedAgentID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload:   events.TicketStatusChangedPayload{OldStatus: previous, NewStatus: status},
	})
	return updated, nil
}
