package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-router/internal/domain"
)

const ticketColumns = `id, public_id, owner_id, tenant, category, severity, summary, context, status,
               assigned_agent_id, exclusive_hold, idempotency_key, request_fingerprint,
               resolution, root_cause, created_at, updated_at, closed_at, assigned_at`

const activeStatusList = `('assigned','in_progress','waiting_user')`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres ticket repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	contextValues := ticket.Context
	if contextValues == nil {
		contextValues = map[string]string{}
	}
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.PublicID,
		ticket.OwnerID,
		ticket.Tenant,
		ticket.Category,
		ticket.Severity,
		ticket.Summary,
		contextValues,
		ticket.Status,
		ticket.AssignedAgentID,
		ticket.ExclusiveHold,
		ticket.IdempotencyKey,
		ticket.RequestFingerprint,
		ticket.Resolution,
		ticket.RootCause,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ClosedAt,
		ticket.AssignedAt,
	)
	return translatePgError(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByPublicID(ctx context.Context, publicID string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE public_id=$1`
	return r.fetchSingle(ctx, query, publicID)
}

func (r *ticketRepository) GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE owner_id=$1 AND idempotency_key=$2`
	return r.fetchSingle(ctx, query, ownerID, key)
}

func (r *ticketRepository) FindOpenByOwner(ctx context.Context, ownerID string) (*domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + ` FROM tickets
        WHERE owner_id=$1 AND status <> 'closed'
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, ownerID)
}

func (r *ticketRepository) CountCreatedSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE owner_id=$1 AND created_at > $2`
	var count int
	if err := r.pool.QueryRow(ctx, query, ownerID, since).Scan(&count); err != nil {
		return 0, translatePgError(err)
	}
	return count, nil
}

func (r *ticketRepository) ListActiveByAgent(ctx context.Context, agentID string) ([]domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + ` FROM tickets
        WHERE assigned_agent_id=$1 AND status IN ` + activeStatusList + `
        ORDER BY updated_at ASC`
	rows, err := r.pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Claim(ctx context.Context, p ClaimParams) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets t
        SET status='assigned', assigned_agent_id=$2, exclusive_hold=$3, updated_at=$4, assigned_at=$4
        WHERE t.id=$1
          AND t.status=$5
          AND t.assigned_agent_id IS NOT DISTINCT FROM $6::text
          AND EXISTS (SELECT 1 FROM sessions s WHERE s.agent_id=$2 AND s.end_at IS NULL)
          AND (NOT $3::boolean OR NOT EXISTS (
                SELECT 1 FROM tickets o
                WHERE o.assigned_agent_id=$2 AND o.id <> t.id AND o.status IN ` + activeStatusList + `))
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query,
		p.TicketID, p.AgentID, p.Exclusive, p.At, p.ExpectedStatus, p.ExpectedAgentID))
	if err != nil {
		return nil, conditional(err)
	}
	return ticket, nil
}

func (r *ticketRepository) Transition(ctx context.Context, p TransitionParams) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET status=$2, updated_at=$3
        WHERE id=$1 AND status=$4 AND assigned_agent_id=$5
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query,
		p.TicketID, p.Status, p.At, p.ExpectedStatus, p.ExpectedAgentID))
	if err != nil {
		return nil, conditional(err)
	}
	return ticket, nil
}

func (r *ticketRepository) Close(ctx context.Context, p CloseParams) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets
        SET status='closed', assigned_agent_id=NULL, exclusive_hold=FALSE, assigned_at=NULL,
            resolution=$2, root_cause=$3, closed_at=$4, updated_at=$4
        WHERE id=$1 AND status=$5 AND assigned_agent_id IS NOT DISTINCT FROM $6::text
        RETURNING ` + ticketColumns
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query,
		p.TicketID, p.Resolution, p.RootCause, p.At, p.ExpectedStatus, p.ExpectedAgentID))
	if err != nil {
		return nil, conditional(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ReleaseByAgent(ctx context.Context, agentID string, heldBefore, at time.Time) ([]domain.Ticket, error) {
	const query = `
        UPDATE tickets
        SET status='queued', assigned_agent_id=NULL, exclusive_hold=FALSE, assigned_at=NULL, updated_at=$2
        WHERE assigned_agent_id=$1 AND status IN ` + activeStatusList + `
          AND (assigned_at IS NULL OR assigned_at <= $3)
        RETURNING ` + ticketColumns
	rows, err := r.pool.Query(ctx, query, agentID, at, heldBefore)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListOrphanedAgents(ctx context.Context, limit int) ([]string, error) {
	const query = `
        SELECT DISTINCT t.assigned_agent_id FROM tickets t
        WHERE t.assigned_agent_id IS NOT NULL AND t.status IN ` + activeStatusList + `
          AND NOT EXISTS (SELECT 1 FROM sessions s WHERE s.agent_id=t.assigned_agent_id AND s.end_at IS NULL)
        ORDER BY t.assigned_agent_id
        LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var agentID string
		if err := rows.Scan(&agentID); err != nil {
			return nil, translatePgError(err)
		}
		agents = append(agents, agentID)
	}
	return agents, translatePgError(rows.Err())
}

func (r *ticketRepository) ReleaseOrphaned(ctx context.Context, agentID string, at time.Time) ([]domain.Ticket, error) {
	const query = `
        UPDATE tickets
        SET status='queued', assigned_agent_id=NULL, exclusive_hold=FALSE, assigned_at=NULL, updated_at=$2
        WHERE assigned_agent_id=$1 AND status IN ` + activeStatusList + `
          AND NOT EXISTS (SELECT 1 FROM sessions s WHERE s.agent_id=$1 AND s.end_at IS NULL)
        RETURNING ` + ticketColumns
	rows, err := r.pool.Query(ctx, query, agentID, at)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translatePgError(err)
	}
	return ticket, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.PublicID,
		&ticket.OwnerID,
		&ticket.Tenant,
		&ticket.Category,
		&ticket.Severity,
		&ticket.Summary,
		&ticket.Context,
		&ticket.Status,
		&ticket.AssignedAgentID,
		&ticket.ExclusiveHold,
		&ticket.IdempotencyKey,
		&ticket.RequestFingerprint,
		&ticket.Resolution,
		&ticket.RootCause,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.AssignedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, translatePgError(err)
		}
		result = append(result, *ticket)
	}
	return result, translatePgError(rows.Err())
}
