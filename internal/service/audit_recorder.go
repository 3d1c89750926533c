package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/repository"
)

// AuditBacklog holds serialized audit entries whose append failed.
type AuditBacklog interface {
	Push(ctx context.Context, payload []byte) error
	// Pop returns nil when the backlog is empty.
	Pop(ctx context.Context) ([]byte, error)
	Len(ctx context.Context) (int64, error)
}

// AuditRecorder appends audit events after a state change has committed. A
// failed append never fails the operation; the entry is parked in the
// backlog and re-appended by Reconcile.
type AuditRecorder struct {
	log     repository.AuditLog
	backlog AuditBacklog
	metrics *observability.Metrics
	logger  *zap.Logger
}

type pendingAudit struct {
	Ticket *domain.TicketEvent `json:"ticket,omitempty"`
	Agent  *domain.AgentEvent  `json:"agent,omitempty"`
}

// NewAuditRecorder wires the recorder.
func NewAuditRecorder(log repository.AuditLog, backlog AuditBacklog, metrics *observability.Metrics, logger *zap.Logger) *AuditRecorder {
	return &AuditRecorder{log: log, backlog: backlog, metrics: metrics, logger: logger}
}

// RecordTicket appends a ticket event.
func (r *AuditRecorder) RecordTicket(ctx context.Context, event *domain.TicketEvent) {
	ctx = context.WithoutCancel(ctx)
	if err := r.log.AppendTicketEvent(ctx, event); err != nil {
		r.park(ctx, pendingAudit{Ticket: event}, err)
	}
}

// RecordAgent appends an agent presence event.
func (r *AuditRecorder) RecordAgent(ctx context.Context, event *domain.AgentEvent) {
	ctx = context.WithoutCancel(ctx)
	if err := r.log.AppendAgentEvent(ctx, event); err != nil {
		r.park(ctx, pendingAudit{Agent: event}, err)
	}
}

func (r *AuditRecorder) park(ctx context.Context, entry pendingAudit, cause error) {
	payload, err := json.Marshal(entry)
	if err == nil {
		err = r.backlog.Push(ctx, payload)
	}
	if err != nil {
		r.logger.Error("audit entry lost",
			zap.NamedError("append_error", cause),
			zap.Error(err),
			zap.Any("entry", entry))
		return
	}
	r.logger.Warn("audit append failed; entry queued for reconciliation", zap.Error(cause))
	r.observeDepth(ctx)
}

// Reconcile re-appends up to limit parked entries and reports how many landed.
// An entry that still cannot be appended is pushed back and the pass stops.
func (r *AuditRecorder) Reconcile(ctx context.Context, limit int) (int, error) {
	done := 0
	defer func() {
		r.metrics.AuditReconciled(done)
		r.observeDepth(ctx)
	}()
	for done < limit {
		payload, err := r.backlog.Pop(ctx)
		if err != nil {
			return done, fmt.Errorf("pop audit backlog: %w", err)
		}
		if payload == nil {
			return done, nil
		}
		var entry pendingAudit
		if err := json.Unmarshal(payload, &entry); err != nil {
			r.logger.Error("dropping undecodable audit entry", zap.ByteString("payload", payload), zap.Error(err))
			continue
		}
		if err := r.append(ctx, entry); err != nil {
			if pushErr := r.backlog.Push(ctx, payload); pushErr != nil {
				r.logger.Error("audit entry lost", zap.Error(pushErr), zap.Any("entry", entry))
			}
			return done, fmt.Errorf("re-append audit entry: %w", err)
		}
		done++
	}
	return done, nil
}

// Depth reports the number of parked entries.
func (r *AuditRecorder) Depth(ctx context.Context) (int64, error) {
	return r.backlog.Len(ctx)
}

func (r *AuditRecorder) append(ctx context.Context, entry pendingAudit) error {
	switch {
	case entry.Ticket != nil:
		return r.log.AppendTicketEvent(ctx, entry.Ticket)
	case entry.Agent != nil:
		return r.log.AppendAgentEvent(ctx, entry.Agent)
	}
	return nil
}

func (r *AuditRecorder) observeDepth(ctx context.Context) {
	if depth, err := r.backlog.Len(ctx); err == nil {
		r.metrics.AuditBacklog(depth)
	}
}

// MemoryBacklog is the in-process backlog used when Redis is not configured.
type MemoryBacklog struct {
	mu      sync.Mutex
	entries [][]byte
}

// NewMemoryBacklog builds an empty backlog.
func NewMemoryBacklog() *MemoryBacklog {
	return &MemoryBacklog{}
}

func (b *MemoryBacklog) Push(_ context.Context, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, append([]byte(nil), payload...))
	return nil
}

func (b *MemoryBacklog) Pop(_ context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil, nil
	}
	head := b.entries[0]
	b.entries = b.entries[1:]
	return head, nil
}

func (b *MemoryBacklog) Len(_ context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.entries)), nil
}
