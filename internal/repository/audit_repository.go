package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-router/internal/domain"
)

type auditLog struct {
	pool *pgxpool.Pool
}

// NewAuditLog builds the Postgres audit sink.
func NewAuditLog(pool *pgxpool.Pool) AuditLog {
	return &auditLog{pool: pool}
}

func (r *auditLog) AppendTicketEvent(ctx context.Context, e *domain.TicketEvent) error {
	const query = `
        INSERT INTO ticket_events (id, ticket_id, event_type, actor_role, actor_id, details, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.TicketID,
		e.EventType,
		e.ActorRole,
		e.ActorID,
		detailsOrEmpty(e.Details),
		e.CreatedAt,
	)
	return translatePgError(err)
}

func (r *auditLog) AppendAgentEvent(ctx context.Context, e *domain.AgentEvent) error {
	const query = `
        INSERT INTO agent_events (id, agent_id, session_id, event_type, actor_role, actor_id, details, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.AgentID,
		e.SessionID,
		e.EventType,
		e.ActorRole,
		e.ActorID,
		detailsOrEmpty(e.Details),
		e.CreatedAt,
	)
	return translatePgError(err)
}

func (r *auditLog) ListTicketEvents(ctx context.Context, ticketID string) ([]domain.TicketEvent, error) {
	const query = `
        SELECT id, ticket_id, event_type, actor_role, actor_id, details, created_at
        FROM ticket_events WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var result []domain.TicketEvent
	for rows.Next() {
		var e domain.TicketEvent
		if err := rows.Scan(
			&e.ID,
			&e.TicketID,
			&e.EventType,
			&e.ActorRole,
			&e.ActorID,
			&e.Details,
			&e.CreatedAt,
		); err != nil {
			return nil, translatePgError(err)
		}
		result = append(result, e)
	}
	return result, translatePgError(rows.Err())
}

func (r *auditLog) ListAgentEvents(ctx context.Context, agentID string) ([]domain.AgentEvent, error) {
	const query = `
        SELECT id, agent_id, session_id, event_type, actor_role, actor_id, details, created_at
        FROM agent_events WHERE agent_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var result []domain.AgentEvent
	for rows.Next() {
		var e domain.AgentEvent
		if err := rows.Scan(
			&e.ID,
			&e.AgentID,
			&e.SessionID,
			&e.EventType,
			&e.ActorRole,
			&e.ActorID,
			&e.Details,
			&e.CreatedAt,
		); err != nil {
			return nil, translatePgError(err)
		}
		result = append(result, e)
	}
	return result, translatePgError(rows.Err())
}

func detailsOrEmpty(details map[string]any) map[string]any {
	if details == nil {
		return map[string]any{}
	}
	return details
}
