package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-router/internal/domain"
)

const sessionColumns = `id, agent_id, privileged, start_at, end_at, end_reason, last_seen_at`

type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository instantiates the Postgres session repository.
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

func (r *sessionRepository) Open(ctx context.Context, s *domain.Session) error {
	const query = `
        INSERT INTO sessions (` + sessionColumns + `)
        VALUES ($1,$2,$3,$4,NULL,NULL,$5)`
	_, err := r.pool.Exec(ctx, query, s.ID, s.AgentID, s.Privileged, s.StartAt, s.LastSeenAt)
	return translatePgError(err)
}

func (r *sessionRepository) GetOpenByAgent(ctx context.Context, agentID string) (*domain.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE agent_id=$1 AND end_at IS NULL`
	session, err := scanSession(r.pool.QueryRow(ctx, query, agentID))
	if err != nil {
		return nil, translatePgError(err)
	}
	return session, nil
}

func (r *sessionRepository) Touch(ctx context.Context, agentID string, at time.Time) (*domain.Session, error) {
	const query = `
        UPDATE sessions SET last_seen_at=GREATEST(last_seen_at, $2)
        WHERE agent_id=$1 AND end_at IS NULL
        RETURNING ` + sessionColumns
	session, err := scanSession(r.pool.QueryRow(ctx, query, agentID, at))
	if err != nil {
		return nil, translatePgError(err)
	}
	return session, nil
}

func (r *sessionRepository) End(ctx context.Context, p EndSessionParams) (bool, error) {
	const query = `
        UPDATE sessions SET end_at=$2, end_reason=$3
        WHERE id=$1 AND end_at IS NULL
          AND ($4::timestamptz IS NULL OR last_seen_at < $4::timestamptz)`
	cmd, err := r.pool.Exec(ctx, query, p.SessionID, p.At, p.Reason, p.StaleBefore)
	if err != nil {
		return false, translatePgError(err)
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *sessionRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Session, error) {
	const query = `
        SELECT ` + sessionColumns + ` FROM sessions
        WHERE end_at IS NULL AND last_seen_at < $1
        ORDER BY last_seen_at ASC LIMIT $2`
	return r.list(ctx, query, cutoff, limit)
}

func (r *sessionRepository) ListRevoked(ctx context.Context, now time.Time, limit int) ([]domain.Session, error) {
	const query = `
        SELECT s.id, s.agent_id, s.privileged, s.start_at, s.end_at, s.end_reason, s.last_seen_at
        FROM sessions s
        LEFT JOIN agents a ON a.id = s.agent_id
        WHERE s.end_at IS NULL AND NOT s.privileged
          AND (a.id IS NULL OR a.blocked OR NOT a.authorized_for_work
               OR (a.authorized_until IS NOT NULL AND a.authorized_until <= $1))
        ORDER BY s.start_at ASC LIMIT $2`
	return r.list(ctx, query, now, limit)
}

func (r *sessionRepository) list(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	var result []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, translatePgError(err)
		}
		result = append(result, *session)
	}
	return result, translatePgError(rows.Err())
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(
		&s.ID,
		&s.AgentID,
		&s.Privileged,
		&s.StartAt,
		&s.EndAt,
		&s.EndReason,
		&s.LastSeenAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}
