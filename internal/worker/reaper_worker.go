package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/service"
)

// Sweeper is the part of the coordinator the reaper loop drives.
type Sweeper interface {
	Sweep(ctx context.Context, trigger string) (*service.SweepReport, error)
	ReconcileAudit(ctx context.Context) (int, error)
}

// Reaper runs the liveness sweep and audit reconciliation on a fixed interval
// so stale sessions are bounded even when no heartbeats arrive.
type Reaper struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

// NewReaper builds a reaper loop.
func NewReaper(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{sweeper: sweeper, interval: interval, logger: logger, done: make(chan struct{})}
}

// Start runs the loop until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		r.logger.Info("reaper started", zap.Duration("interval", r.interval))
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("reaper stopped")
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs one sweep and one reconciliation pass.
func (r *Reaper) RunOnce(ctx context.Context) {
	report, err := r.sweeper.Sweep(ctx, service.SweepTriggerTicker)
	if err != nil {
		r.logger.Error("sweep failed", zap.Error(err))
	} else if report.TimedOut > 0 || report.Revoked > 0 || report.Orphaned > 0 {
		r.logger.Debug("sweep report", zap.Any("report", report))
	}
	if n, err := r.sweeper.ReconcileAudit(ctx); err != nil {
		r.logger.Warn("audit reconciliation incomplete", zap.Int("reconciled", n), zap.Error(err))
	} else if n > 0 {
		r.logger.Info("audit entries reconciled", zap.Int("count", n))
	}
}

// Done is closed once the loop has exited.
func (r *Reaper) Done() <-chan struct{} {
	return r.done
}
