package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/repository"
)

type agentStore struct {
	db *sql.DB
}

var _ repository.AgentRepository = (*agentStore)(nil)

func (s *agentStore) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	var (
		a                    domain.Agent
		contact              sql.NullString
		until                sql.NullInt64
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, contact_handle, authorized_for_work, authorized_until, blocked, created_at, updated_at
		 FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.DisplayName, &contact, &a.AuthorizedForWork, &until, &a.Blocked, &createdAt, &updatedAt)
	if err != nil {
		return nil, translate(err)
	}
	a.ContactHandle = stringPtr(contact)
	a.AuthorizedUntil = timePtr(until)
	a.CreatedAt = fromNanos(createdAt)
	a.UpdatedAt = fromNanos(updatedAt)
	return &a, nil
}

// Upsert creates or replaces the agent's flags. Idempotent via ON CONFLICT.
func (s *agentStore) Upsert(ctx context.Context, a *domain.Agent) error {
	now := toNanos(a.UpdatedAt)
	var createdAt int64
	_, err := onContention(ctx, func() (struct{}, error) {
		return struct{}{}, s.db.QueryRowContext(ctx,
			`INSERT INTO agents (id, display_name, contact_handle, authorized_for_work, authorized_until, blocked, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			     display_name = excluded.display_name,
			     contact_handle = excluded.contact_handle,
			     authorized_for_work = excluded.authorized_for_work,
			     authorized_until = excluded.authorized_until,
			     blocked = excluded.blocked,
			     updated_at = excluded.updated_at
			 RETURNING created_at`,
			a.ID, a.DisplayName, nullableString(a.ContactHandle), a.AuthorizedForWork, nullableNanos(a.AuthorizedUntil), a.Blocked, now, now,
		).Scan(&createdAt)
	})
	if err != nil {
		return translate(err)
	}
	a.CreatedAt = fromNanos(createdAt)
	return nil
}
