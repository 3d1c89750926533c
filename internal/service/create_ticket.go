package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/outbound"
	"github.com/spec-kit/support-router/internal/repository"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

const (
	defaultCategory      = "general"
	maxCategoryLen       = 64
	maxContextKeyLen     = 64
	maxIdempotencyKeyLen = 128
)

// CreateTicketInput describes a ticket creation request.
type CreateTicketInput struct {
	Category       string
	Severity       domain.TicketSeverity
	Summary        string
	Context        map[string]string
	IdempotencyKey string
}

// CreateTicketResult reports the ticket and whether an existing one was returned.
type CreateTicketResult struct {
	Ticket  *domain.Ticket
	Reused  bool
	Message *outbound.Message
}

// CreateTicket opens a ticket for the caller. A replayed idempotency key or
// an already open ticket is returned instead of creating a new one.
func (c *Coordinator) CreateTicket(ctx context.Context, caller domain.Principal, input CreateTicketInput) (*CreateTicketResult, error) {
	if strings.TrimSpace(caller.ID) == "" {
		return nil, apperrors.NewUnauthorized("caller identity required")
	}
	in, err := c.normalizeCreate(input)
	if err != nil {
		c.metrics.TicketCreated("rejected")
		return nil, err
	}
	fingerprint, err := requestFingerprint(in)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	existing, err := c.findReusable(ctx, caller.ID, in.IdempotencyKey, fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		c.metrics.TicketCreated("reused")
		return &CreateTicketResult{Ticket: existing, Reused: true}, nil
	}

	now := c.clock()
	count, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) (int, error) {
		return c.tickets.CountCreatedSince(ctx, caller.ID, now.Add(-c.policy.RateLimitWindow))
	})
	if err != nil {
		return nil, storeError("count recent tickets", err)
	}
	if count >= c.policy.RateLimitMax {
		c.metrics.TicketCreated("rate_limited")
		return nil, apperrors.NewRateLimited("too many tickets created recently", map[string]any{
			"limit":          c.policy.RateLimitMax,
			"window_seconds": int(c.policy.RateLimitWindow.Seconds()),
		})
	}

	ticket := &domain.Ticket{
		ID:                 uuid.NewString(),
		PublicID:           generateTicketKey(),
		OwnerID:            caller.ID,
		Tenant:             caller.Tenant,
		Category:           in.Category,
		Severity:           in.Severity,
		Summary:            in.Summary,
		Context:            in.Context,
		Status:             domain.TicketStatusNew,
		RequestFingerprint: fingerprint,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.IdempotencyKey != "" {
		ticket.IdempotencyKey = ptrString(in.IdempotencyKey)
	}

	if err := c.tickets.Create(ctx, ticket); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, storeError("create ticket", err)
		}
		// A concurrent request won the insert; surface its ticket.
		existing, findErr := c.findReusable(ctx, caller.ID, in.IdempotencyKey, fingerprint)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			c.metrics.TicketCreated("reused")
			return &CreateTicketResult{Ticket: existing, Reused: true}, nil
		}
		return nil, apperrors.NewConflict("ticket creation raced with another request; retry", nil)
	}

	actor := caller.Actor()
	details := map[string]any{
		"public_id": ticket.PublicID,
		"category":  ticket.Category,
		"severity":  string(ticket.Severity),
	}
	if ticket.IdempotencyKey != nil {
		details["idempotency_key"] = *ticket.IdempotencyKey
	}
	c.recordTicketEvent(ctx, ticket, domain.TicketEventCreated, actor, now, details)
	c.metrics.TicketCreated("created")
	c.logger.Info("ticket created",
		zap.String("ticket_id", ticket.PublicID),
		zap.String("owner_id", ticket.OwnerID),
		zap.String("category", ticket.Category))
	c.publishEvent(ctx, events.Event{
		Type:      events.EventTicketCreated,
		TicketID:  ticket.PublicID,
		Actor:     events.ActorFrom(actor),
		Timestamp: now,
		Payload: events.TicketCreatedPayload{
			Category: ticket.Category,
			Severity: ticket.Severity,
			Summary:  ticket.Summary,
		},
	})

	return &CreateTicketResult{
		Ticket:  ticket,
		Message: c.formatter.TicketCreated(ticket),
	}, nil
}

// findReusable returns the ticket a request should resolve to without
// inserting: the one recorded under the idempotency key, else the caller's
// open ticket. A keyed replay always resolves to its ticket, even when the
// payload changed. It returns nil when a new ticket may be created.
func (c *Coordinator) findReusable(ctx context.Context, ownerID, key, fingerprint string) (*domain.Ticket, error) {
	if key != "" {
		prior, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) (*domain.Ticket, error) {
			return c.tickets.GetByIdempotencyKey(ctx, ownerID, key)
		})
		switch {
		case err == nil:
			if prior.RequestFingerprint != fingerprint {
				c.metrics.TicketCreated("key_payload_mismatch")
				c.logger.Warn("idempotency key replayed with a different payload",
					zap.String("owner_id", ownerID),
					zap.String("idempotency_key", key),
					zap.String("ticket_id", prior.PublicID))
			}
			return prior, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, storeError("lookup idempotency key", err)
		}
	}

	open, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) (*domain.Ticket, error) {
		return c.tickets.FindOpenByOwner(ctx, ownerID)
	})
	switch {
	case err == nil:
		return open, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, nil
	default:
		return nil, storeError("lookup open ticket", err)
	}
}

func (c *Coordinator) normalizeCreate(input CreateTicketInput) (CreateTicketInput, error) {
	out := CreateTicketInput{
		Category:       strings.ToLower(strings.TrimSpace(input.Category)),
		Severity:       domain.TicketSeverity(strings.ToLower(strings.TrimSpace(string(input.Severity)))),
		Summary:        strings.TrimSpace(input.Summary),
		IdempotencyKey: strings.TrimSpace(input.IdempotencyKey),
	}

	if out.Summary == "" {
		return out, apperrors.NewValidationError("summary is required", map[string]any{"field": "summary"})
	}
	if n := utf8.RuneCountInString(out.Summary); n > c.policy.SummaryMaxLen {
		return out, apperrors.NewValidationError("summary too long", map[string]any{
			"field": "summary", "max": c.policy.SummaryMaxLen, "length": n,
		})
	}
	if out.Category == "" {
		out.Category = defaultCategory
	}
	if utf8.RuneCountInString(out.Category) > maxCategoryLen {
		return out, apperrors.NewValidationError("category too long", map[string]any{"field": "category", "max": maxCategoryLen})
	}
	if out.Severity == "" {
		out.Severity = domain.TicketSeverityMedium
	}
	if !out.Severity.Valid() {
		return out, apperrors.NewValidationError("unknown severity", map[string]any{"field": "severity", "value": string(out.Severity)})
	}
	if utf8.RuneCountInString(out.IdempotencyKey) > maxIdempotencyKeyLen {
		return out, apperrors.NewValidationError("idempotency key too long", map[string]any{"field": "idempotency_key", "max": maxIdempotencyKeyLen})
	}

	if len(input.Context) > c.policy.ContextMaxEntries {
		return out, apperrors.NewValidationError("too many context entries", map[string]any{
			"field": "context", "max": c.policy.ContextMaxEntries,
		})
	}
	out.Context = make(map[string]string, len(input.Context))
	for k, v := range input.Context {
		key := strings.TrimSpace(k)
		if key == "" || utf8.RuneCountInString(key) > maxContextKeyLen {
			return out, apperrors.NewValidationError("invalid context key", map[string]any{"field": "context", "key": k})
		}
		if utf8.RuneCountInString(v) > c.policy.ContextValueMax {
			return out, apperrors.NewValidationError("context value too long", map[string]any{
				"field": "context", "key": key, "max": c.policy.ContextValueMax,
			})
		}
		out.Context[key] = v
	}
	return out, nil
}
