// Package sqlitestore is the embedded SQLite backend for the coordinator. It
// mirrors the Postgres schema, including the partial unique indexes that
// back the one-open-session and one-active-ticket rules.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spec-kit/support-router/internal/repository"
)

// Store owns one SQLite database handle.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Conditional writes rely on SQLite's single writer; one connection keeps
	// reads consistent with them.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() *repository.Store {
	return &repository.Store{
		Tickets:  &ticketStore{db: s.db},
		Agents:   &agentStore{db: s.db},
		Sessions: &sessionStore{db: s.db},
		Audit:    &auditStore{db: s.db},
		Health:   s,
		Closer:   s.Close,
	}
}

// Ping verifies the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return translate(s.db.PingContext(ctx))
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id                  TEXT PRIMARY KEY,
		display_name        TEXT NOT NULL DEFAULT '',
		contact_handle      TEXT,
		authorized_for_work INTEGER NOT NULL DEFAULT 0,
		authorized_until    INTEGER,
		blocked             INTEGER NOT NULL DEFAULT 0,
		created_at          INTEGER NOT NULL,
		updated_at          INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tickets (
		id                  TEXT PRIMARY KEY,
		public_id           TEXT NOT NULL UNIQUE,
		owner_id            TEXT NOT NULL,
		tenant              TEXT NOT NULL DEFAULT '',
		category            TEXT NOT NULL,
		severity            TEXT NOT NULL,
		summary             TEXT NOT NULL,
		context             TEXT NOT NULL DEFAULT '{}',
		status              TEXT NOT NULL CHECK (status IN ('new','queued','assigned','in_progress','waiting_user','closed')),
		assigned_agent_id   TEXT,
		exclusive_hold      INTEGER NOT NULL DEFAULT 0,
		idempotency_key     TEXT,
		request_fingerprint TEXT NOT NULL DEFAULT '',
		resolution          TEXT,
		root_cause          TEXT,
		created_at          INTEGER NOT NULL,
		updated_at          INTEGER NOT NULL,
		closed_at           INTEGER,
		assigned_at         INTEGER,
		CHECK ((status IN ('assigned','in_progress','waiting_user')) = (assigned_agent_id IS NOT NULL))
	);
	CREATE UNIQUE INDEX IF NOT EXISTS tickets_owner_idempotency_key ON tickets(owner_id, idempotency_key) WHERE idempotency_key IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS tickets_one_open_per_owner ON tickets(owner_id) WHERE status <> 'closed';
	CREATE UNIQUE INDEX IF NOT EXISTS tickets_exclusive_hold ON tickets(assigned_agent_id) WHERE exclusive_hold = 1;
	CREATE INDEX IF NOT EXISTS tickets_owner_created ON tickets(owner_id, created_at);
	CREATE INDEX IF NOT EXISTS tickets_assigned_agent ON tickets(assigned_agent_id) WHERE assigned_agent_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS sessions (
		id           TEXT PRIMARY KEY,
		agent_id     TEXT NOT NULL,
		privileged   INTEGER NOT NULL DEFAULT 0,
		start_at     INTEGER NOT NULL,
		end_at       INTEGER,
		end_reason   TEXT CHECK (end_reason IS NULL OR end_reason IN ('logout','timeout','manual_release')),
		last_seen_at INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_open_per_agent ON sessions(agent_id) WHERE end_at IS NULL;
	CREATE INDEX IF NOT EXISTS sessions_open_last_seen ON sessions(last_seen_at) WHERE end_at IS NULL;

	CREATE TABLE IF NOT EXISTS ticket_events (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		ticket_id  TEXT NOT NULL REFERENCES tickets(id),
		event_type TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		actor_id   TEXT NOT NULL,
		details    TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS ticket_events_ticket ON ticket_events(ticket_id, seq);

	CREATE TABLE IF NOT EXISTS agent_events (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		agent_id   TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		actor_id   TEXT NOT NULL,
		details    TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS agent_events_agent ON agent_events(agent_id, seq);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Times are stored as unix nanoseconds so range predicates compare integers.

func toNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullableNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toNanos(*t)
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
