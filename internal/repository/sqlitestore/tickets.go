package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/repository"
)

const ticketColumns = `id, public_id, owner_id, tenant, category, severity, summary, context, status,
	assigned_agent_id, exclusive_hold, idempotency_key, request_fingerprint,
	resolution, root_cause, created_at, updated_at, closed_at, assigned_at`

const activeStatusList = `('assigned','in_progress','waiting_user')`

type ticketStore struct {
	db *sql.DB
}

var _ repository.TicketRepository = (*ticketStore)(nil)

func (s *ticketStore) Create(ctx context.Context, t *domain.Ticket) error {
	contextValues := t.Context
	if contextValues == nil {
		contextValues = map[string]string{}
	}
	rawContext, err := encodeJSON(contextValues)
	if err != nil {
		return err
	}
	_, err = execWrite(ctx, s.db,
		`INSERT INTO tickets (`+ticketColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.PublicID, t.OwnerID, t.Tenant, t.Category, string(t.Severity), t.Summary, rawContext,
		string(t.Status), nullableString(t.AssignedAgentID), t.ExclusiveHold, nullableString(t.IdempotencyKey), t.RequestFingerprint,
		nullableString(t.Resolution), nullableString(t.RootCause), toNanos(t.CreatedAt), toNanos(t.UpdatedAt), nullableNanos(t.ClosedAt), nullableNanos(t.AssignedAt),
	)
	return translate(err)
}

func (s *ticketStore) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
}

func (s *ticketStore) GetByPublicID(ctx context.Context, publicID string) (*domain.Ticket, error) {
	return s.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE public_id = ?`, publicID)
}

func (s *ticketStore) GetByIdempotencyKey(ctx context.Context, ownerID, key string) (*domain.Ticket, error) {
	return s.fetchSingle(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE owner_id = ? AND idempotency_key = ?`, ownerID, key)
}

func (s *ticketStore) FindOpenByOwner(ctx context.Context, ownerID string) (*domain.Ticket, error) {
	return s.fetchSingle(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE owner_id = ? AND status <> 'closed'
		 ORDER BY created_at DESC LIMIT 1`, ownerID)
}

func (s *ticketStore) CountCreatedSince(ctx context.Context, ownerID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tickets WHERE owner_id = ? AND created_at > ?`, ownerID, toNanos(since),
	).Scan(&count)
	if err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func (s *ticketStore) ListActiveByAgent(ctx context.Context, agentID string) ([]domain.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets
		 WHERE assigned_agent_id = ? AND status IN `+activeStatusList+`
		 ORDER BY updated_at ASC`, agentID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (s *ticketStore) Claim(ctx context.Context, p repository.ClaimParams) (*domain.Ticket, error) {
	return s.conditionalUpdate(ctx,
		`UPDATE tickets
		 SET status = 'assigned', assigned_agent_id = ?, exclusive_hold = ?, updated_at = ?, assigned_at = ?
		 WHERE id = ? AND status = ? AND assigned_agent_id IS ?
		   AND EXISTS (SELECT 1 FROM sessions s WHERE s.agent_id = ? AND s.end_at IS NULL)
		   AND (? = 0 OR NOT EXISTS (
		         SELECT 1 FROM tickets o
		         WHERE o.assigned_agent_id = ? AND o.id <> tickets.id AND o.status IN `+activeStatusList+`))
		 RETURNING `+ticketColumns,
		p.AgentID, p.Exclusive, toNanos(p.At), toNanos(p.At),
		p.TicketID, string(p.ExpectedStatus), nullableString(p.ExpectedAgentID),
		p.AgentID, p.Exclusive, p.AgentID,
	)
}

func (s *ticketStore) Transition(ctx context.Context, p repository.TransitionParams) (*domain.Ticket, error) {
	return s.conditionalUpdate(ctx,
		`UPDATE tickets SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND assigned_agent_id = ?
		 RETURNING `+ticketColumns,
		string(p.Status), toNanos(p.At), p.TicketID, string(p.ExpectedStatus), p.ExpectedAgentID,
	)
}

func (s *ticketStore) Close(ctx context.Context, p repository.CloseParams) (*domain.Ticket, error) {
	at := toNanos(p.At)
	return s.conditionalUpdate(ctx,
		`UPDATE tickets
		 SET status = 'closed', assigned_agent_id = NULL, exclusive_hold = 0, assigned_at = NULL,
		     resolution = ?, root_cause = ?, closed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ? AND assigned_agent_id IS ?
		 RETURNING `+ticketColumns,
		p.Resolution, nullableString(p.RootCause), at, at, p.TicketID, string(p.ExpectedStatus), nullableString(p.ExpectedAgentID),
	)
}

func (s *ticketStore) ReleaseByAgent(ctx context.Context, agentID string, heldBefore, at time.Time) ([]domain.Ticket, error) {
	released, err := onContention(ctx, func() ([]domain.Ticket, error) {
		rows, err := s.db.QueryContext(ctx,
			`UPDATE tickets
			 SET status = 'queued', assigned_agent_id = NULL, exclusive_hold = 0, assigned_at = NULL, updated_at = ?
			 WHERE assigned_agent_id = ? AND status IN `+activeStatusList+`
			   AND (assigned_at IS NULL OR assigned_at <= ?)
			 RETURNING `+ticketColumns,
			toNanos(at), agentID, toNanos(heldBefore))
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanTickets(rows)
	})
	if err != nil {
		return nil, translate(err)
	}
	return released, nil
}

func (s *ticketStore) ListOrphanedAgents(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT t.assigned_agent_id FROM tickets t
		 WHERE t.assigned_agent_id IS NOT NULL AND t.status IN `+activeStatusList+`
		   AND NOT EXISTS (SELECT 1 FROM sessions s WHERE s.agent_id = t.assigned_agent_id AND s.end_at IS NULL)
		 ORDER BY t.assigned_agent_id
		 LIMIT ?`, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var agentID string
		if err := rows.Scan(&agentID); err != nil {
			return nil, translate(err)
		}
		agents = append(agents, agentID)
	}
	return agents, translate(rows.Err())
}

func (s *ticketStore) ReleaseOrphaned(ctx context.Context, agentID string, at time.Time) ([]domain.Ticket, error) {
	released, err := onContention(ctx, func() ([]domain.Ticket, error) {
		rows, err := s.db.QueryContext(ctx,
			`UPDATE tickets
			 SET status = 'queued', assigned_agent_id = NULL, exclusive_hold = 0, assigned_at = NULL, updated_at = ?
			 WHERE assigned_agent_id = ? AND status IN `+activeStatusList+`
			   AND NOT EXISTS (SELECT 1 FROM sessions s WHERE s.agent_id = ? AND s.end_at IS NULL)
			 RETURNING `+ticketColumns,
			toNanos(at), agentID, agentID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanTickets(rows)
	})
	if err != nil {
		return nil, translate(err)
	}
	return released, nil
}

func (s *ticketStore) conditionalUpdate(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := onContention(ctx, func() (*domain.Ticket, error) {
		return scanTicket(s.db.QueryRowContext(ctx, query, args...))
	})
	if err != nil {
		return nil, conditional(err)
	}
	return ticket, nil
}

func (s *ticketStore) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, translate(err)
	}
	return ticket, nil
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		t                                    domain.Ticket
		severity, status, rawContext         string
		assigned, key, resolution, rootCause sql.NullString
		createdAt, updatedAt                 int64
		closedAt, assignedAt                 sql.NullInt64
	)
	if err := row.Scan(
		&t.ID, &t.PublicID, &t.OwnerID, &t.Tenant, &t.Category, &severity, &t.Summary, &rawContext,
		&status, &assigned, &t.ExclusiveHold, &key, &t.RequestFingerprint,
		&resolution, &rootCause, &createdAt, &updatedAt, &closedAt, &assignedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rawContext), &t.Context); err != nil {
		return nil, err
	}
	t.Severity = domain.TicketSeverity(severity)
	t.Status = domain.TicketStatus(status)
	t.AssignedAgentID = stringPtr(assigned)
	t.IdempotencyKey = stringPtr(key)
	t.Resolution = stringPtr(resolution)
	t.RootCause = stringPtr(rootCause)
	t.CreatedAt = fromNanos(createdAt)
	t.UpdatedAt = fromNanos(updatedAt)
	t.ClosedAt = timePtr(closedAt)
	t.AssignedAt = timePtr(assignedAt)
	return &t, nil
}

func scanTickets(rows *sql.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *t)
	}
	return result, rows.Err()
}
