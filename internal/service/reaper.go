package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
)

// Sweep triggers.
const (
	SweepTriggerTicker    = "ticker"
	SweepTriggerHeartbeat = "heartbeat"
	SweepTriggerManual    = "manual"
)

const heartbeatSweepLease = "heartbeat-sweep"

// SweepReport summarizes one reaper pass.
type SweepReport struct {
	Scanned         int `json:"scanned"`
	TimedOut        int `json:"timed_out"`
	Revoked         int `json:"revoked"`
	Orphaned        int `json:"orphaned"`
	TicketsReleased int `json:"tickets_released"`
}

// Sweep ends sessions whose heartbeat went silent past the staleness threshold
// and sessions whose agent lost work eligibility, releasing their tickets.
// Tickets still held by agents without an open session are requeued last. It
// is safe to run concurrently with itself and with EndSession.
func (c *Coordinator) Sweep(ctx context.Context, trigger string) (*SweepReport, error) {
	started := time.Now()
	defer func() { c.metrics.Sweep(trigger, time.Since(started)) }()

	now := c.clock()
	cutoff := now.Add(-c.policy.StaleAfter)
	report := &SweepReport{}
	var errs []error

	stale, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) ([]domain.Session, error) {
		return c.sessions.ListStale(ctx, cutoff, c.policy.SweepBatchSize)
	})
	if err != nil {
		return report, storeError("list stale sessions", err)
	}
	report.Scanned += len(stale)
	for i := range stale {
		session := &stale[i]
		result, err := c.endAgentSession(ctx, domain.SystemActor(), session.AgentID, session, domain.SessionEndTimeout, &cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("reap session %s: %w", session.ID, err))
			continue
		}
		if result.Ended {
			report.TimedOut++
		}
		report.TicketsReleased += len(result.Released)
	}

	revoked, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) ([]domain.Session, error) {
		return c.sessions.ListRevoked(ctx, now, c.policy.SweepBatchSize)
	})
	if err != nil {
		errs = append(errs, storeError("list revoked sessions", err))
		return report, errors.Join(errs...)
	}
	report.Scanned += len(revoked)
	for i := range revoked {
		session := &revoked[i]
		result, err := c.endAgentSession(ctx, domain.SystemActor(), session.AgentID, session, domain.SessionEndManualRelease, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("revoke session %s: %w", session.ID, err))
			continue
		}
		if result.Ended {
			report.Revoked++
		}
		report.TicketsReleased += len(result.Released)
	}

	orphaned, err := retryRead(ctx, c.policy.ReadRetryAttempts, func(ctx context.Context) ([]string, error) {
		return c.tickets.ListOrphanedAgents(ctx, c.policy.SweepBatchSize)
	})
	if err != nil {
		errs = append(errs, storeError("list orphaned tickets", err))
		return report, errors.Join(errs...)
	}
	for _, agentID := range orphaned {
		released, err := c.tickets.ReleaseOrphaned(ctx, agentID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("release orphaned tickets of %s: %w", agentID, err))
			continue
		}
		if len(released) == 0 {
			continue
		}
		c.announceReleases(ctx, domain.SystemActor(), agentID, "", domain.SessionEndManualRelease, now, released)
		c.logger.Warn("released tickets held without a session",
			zap.String("agent_id", agentID),
			zap.Int("released", len(released)))
		report.Orphaned += len(released)
		report.TicketsReleased += len(released)
	}

	if report.TimedOut > 0 || report.Revoked > 0 || report.Orphaned > 0 {
		c.logger.Info("sweep ended sessions",
			zap.String("trigger", trigger),
			zap.Int("timed_out", report.TimedOut),
			zap.Int("revoked", report.Revoked),
			zap.Int("orphaned", report.Orphaned),
			zap.Int("tickets_released", report.TicketsReleased))
	}
	return report, errors.Join(errs...)
}

// SweepIfDue runs a sweep unless one was started within the heartbeat sweep
// interval, here or on another replica sharing the gate. It returns nil when
// the sweep was skipped.
func (c *Coordinator) SweepIfDue(ctx context.Context, trigger string) (*SweepReport, error) {
	now := c.clock()
	every := c.policy.HeartbeatSweepEvery
	if last := c.lastHeartbeatSweep.Load(); last != 0 && now.Sub(time.Unix(0, last)) < every {
		return nil, nil
	}
	acquired, err := c.gate.TryAcquire(ctx, heartbeatSweepLease, every)
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !acquired {
		return nil, nil
	}
	c.lastHeartbeatSweep.Store(now.UnixNano())
	return c.Sweep(ctx, trigger)
}

// ReconcileAudit re-appends audit entries parked while the log was unavailable.
func (c *Coordinator) ReconcileAudit(ctx context.Context) (int, error) {
	return c.audit.Reconcile(ctx, c.policy.SweepBatchSize)
}
