package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/repository"
)

const sessionColumns = `id, agent_id, privileged, start_at, end_at, end_reason, last_seen_at`

type sessionStore struct {
	db *sql.DB
}

var _ repository.SessionRepository = (*sessionStore)(nil)

func (s *sessionStore) Open(ctx context.Context, session *domain.Session) error {
	_, err := execWrite(ctx, s.db,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, NULL, NULL, ?)`,
		session.ID, session.AgentID, session.Privileged, toNanos(session.StartAt), toNanos(session.LastSeenAt),
	)
	return translate(err)
}

func (s *sessionStore) GetOpenByAgent(ctx context.Context, agentID string) (*domain.Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE agent_id = ? AND end_at IS NULL`, agentID))
	if err != nil {
		return nil, translate(err)
	}
	return session, nil
}

func (s *sessionStore) Touch(ctx context.Context, agentID string, at time.Time) (*domain.Session, error) {
	session, err := onContention(ctx, func() (*domain.Session, error) {
		return scanSession(s.db.QueryRowContext(ctx,
			`UPDATE sessions SET last_seen_at = MAX(last_seen_at, ?)
			 WHERE agent_id = ? AND end_at IS NULL
			 RETURNING `+sessionColumns, toNanos(at), agentID))
	})
	if err != nil {
		return nil, translate(err)
	}
	return session, nil
}

func (s *sessionStore) End(ctx context.Context, p repository.EndSessionParams) (bool, error) {
	res, err := execWrite(ctx, s.db,
		`UPDATE sessions SET end_at = ?, end_reason = ?
		 WHERE id = ? AND end_at IS NULL AND (? IS NULL OR last_seen_at < ?)`,
		toNanos(p.At), string(p.Reason), p.SessionID, nullableNanos(p.StaleBefore), nullableNanos(p.StaleBefore),
	)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, translate(err)
	}
	return n > 0, nil
}

func (s *sessionStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Session, error) {
	return s.list(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE end_at IS NULL AND last_seen_at < ?
		 ORDER BY last_seen_at ASC LIMIT ?`, toNanos(cutoff), limit)
}

func (s *sessionStore) ListRevoked(ctx context.Context, now time.Time, limit int) ([]domain.Session, error) {
	return s.list(ctx,
		`SELECT s.id, s.agent_id, s.privileged, s.start_at, s.end_at, s.end_reason, s.last_seen_at
		 FROM sessions s
		 LEFT JOIN agents a ON a.id = s.agent_id
		 WHERE s.end_at IS NULL AND s.privileged = 0
		   AND (a.id IS NULL OR a.blocked = 1 OR a.authorized_for_work = 0
		        OR (a.authorized_until IS NOT NULL AND a.authorized_until <= ?))
		 ORDER BY s.start_at ASC LIMIT ?`, toNanos(now), limit)
}

func (s *sessionStore) list(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, translate(err)
		}
		result = append(result, *session)
	}
	return result, translate(rows.Err())
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		session           domain.Session
		startAt, lastSeen int64
		endAt             sql.NullInt64
		endReason         sql.NullString
	)
	if err := row.Scan(&session.ID, &session.AgentID, &session.Privileged, &startAt, &endAt, &endReason, &lastSeen); err != nil {
		return nil, err
	}
	session.StartAt = fromNanos(startAt)
	session.EndAt = timePtr(endAt)
	session.LastSeenAt = fromNanos(lastSeen)
	if endReason.Valid {
		reason := domain.SessionEndReason(endReason.String)
		session.EndReason = &reason
	}
	return &session, nil
}
