package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-router/internal/domain"
)

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository instantiates the Postgres agent repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	const query = `
        SELECT id, display_name, contact_handle, authorized_for_work, authorized_until, blocked, created_at, updated_at
        FROM agents WHERE id=$1`
	var agent domain.Agent
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&agent.ID,
		&agent.DisplayName,
		&agent.ContactHandle,
		&agent.AuthorizedForWork,
		&agent.AuthorizedUntil,
		&agent.Blocked,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, translatePgError(err)
	}
	return &agent, nil
}

func (r *agentRepository) Upsert(ctx context.Context, agent *domain.Agent) error {
	const query = `
        INSERT INTO agents (id, display_name, contact_handle, authorized_for_work, authorized_until, blocked, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
        ON CONFLICT (id) DO UPDATE SET
            display_name=EXCLUDED.display_name,
            contact_handle=EXCLUDED.contact_handle,
            authorized_for_work=EXCLUDED.authorized_for_work,
            authorized_until=EXCLUDED.authorized_until,
            blocked=EXCLUDED.blocked,
            updated_at=EXCLUDED.updated_at
        RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		agent.ID,
		agent.DisplayName,
		agent.ContactHandle,
		agent.AuthorizedForWork,
		agent.AuthorizedUntil,
		agent.Blocked,
		agent.UpdatedAt,
	).Scan(&agent.CreatedAt, &agent.UpdatedAt)
	return translatePgError(err)
}
