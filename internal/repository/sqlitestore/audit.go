package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/repository"
)

type auditStore struct {
	db *sql.DB
}

var _ repository.AuditLog = (*auditStore)(nil)

func (s *auditStore) AppendTicketEvent(ctx context.Context, e *domain.TicketEvent) error {
	details, err := encodeDetails(e.Details)
	if err != nil {
		return err
	}
	_, err = execWrite(ctx, s.db,
		`INSERT INTO ticket_events (id, ticket_id, event_type, actor_role, actor_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		e.ID, e.TicketID, string(e.EventType), string(e.ActorRole), e.ActorID, details, toNanos(e.CreatedAt),
	)
	return translate(err)
}

func (s *auditStore) AppendAgentEvent(ctx context.Context, e *domain.AgentEvent) error {
	details, err := encodeDetails(e.Details)
	if err != nil {
		return err
	}
	_, err = execWrite(ctx, s.db,
		`INSERT INTO agent_events (id, agent_id, session_id, event_type, actor_role, actor_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		e.ID, e.AgentID, e.SessionID, string(e.EventType), string(e.ActorRole), e.ActorID, details, toNanos(e.CreatedAt),
	)
	return translate(err)
}

func (s *auditStore) ListTicketEvents(ctx context.Context, ticketID string) ([]domain.TicketEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ticket_id, event_type, actor_role, actor_id, details, created_at
		 FROM ticket_events WHERE ticket_id = ? ORDER BY created_at ASC, seq ASC`, ticketID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.TicketEvent
	for rows.Next() {
		var (
			e                    domain.TicketEvent
			eventType, actorRole string
			details              string
			createdAt            int64
		)
		if err := rows.Scan(&e.ID, &e.TicketID, &eventType, &actorRole, &e.ActorID, &details, &createdAt); err != nil {
			return nil, translate(err)
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, err
		}
		e.EventType = domain.TicketEventType(eventType)
		e.ActorRole = domain.Role(actorRole)
		e.CreatedAt = fromNanos(createdAt)
		result = append(result, e)
	}
	return result, translate(rows.Err())
}

func (s *auditStore) ListAgentEvents(ctx context.Context, agentID string) ([]domain.AgentEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent_id, session_id, event_type, actor_role, actor_id, details, created_at
		 FROM agent_events WHERE agent_id = ? ORDER BY created_at ASC, seq ASC`, agentID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var result []domain.AgentEvent
	for rows.Next() {
		var (
			e                    domain.AgentEvent
			eventType, actorRole string
			details              string
			createdAt            int64
		)
		if err := rows.Scan(&e.ID, &e.AgentID, &e.SessionID, &eventType, &actorRole, &e.ActorID, &details, &createdAt); err != nil {
			return nil, translate(err)
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, err
		}
		e.EventType = domain.AgentEventType(eventType)
		e.ActorRole = domain.Role(actorRole)
		e.CreatedAt = fromNanos(createdAt)
		result = append(result, e)
	}
	return result, translate(rows.Err())
}

func encodeDetails(details map[string]any) (string, error) {
	if details == nil {
		return "{}", nil
	}
	return encodeJSON(details)
}
