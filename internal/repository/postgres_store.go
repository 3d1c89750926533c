package repository

import "github.com/jackc/pgx/v5/pgxpool"

// NewPostgresStore wires the pgx-backed repositories around one pool.
func NewPostgresStore(pool *pgxpool.Pool) *Store {
	return &Store{
		Tickets:  NewTicketRepository(pool),
		Agents:   NewAgentRepository(pool),
		Sessions: NewSessionRepository(pool),
		Audit:    NewAuditLog(pool),
		Health:   pool,
		Closer: func() error {
			pool.Close()
			return nil
		},
	}
}
