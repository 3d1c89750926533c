package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/service"
)

type countingSweeper struct {
	sweeps     atomic.Int32
	reconciles atomic.Int32
	fail       bool
}

func (s *countingSweeper) Sweep(_ context.Context, trigger string) (*service.SweepReport, error) {
	s.sweeps.Add(1)
	if trigger != service.SweepTriggerTicker {
		return nil, errors.New("unexpected trigger " + trigger)
	}
	if s.fail {
		return nil, errors.New("store down")
	}
	return &service.SweepReport{}, nil
}

func (s *countingSweeper) ReconcileAudit(context.Context) (int, error) {
	s.reconciles.Add(1)
	return 0, nil
}

func TestReaperRunsOnInterval(t *testing.T) {
	sweeper := &countingSweeper{}
	r := NewReaper(sweeper, 10*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for sweeper.sweeps.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
	if sweeper.sweeps.Load() < 2 || sweeper.reconciles.Load() < 2 {
		t.Fatalf("sweeps=%d reconciles=%d", sweeper.sweeps.Load(), sweeper.reconciles.Load())
	}
}

func TestReaperSurvivesSweepErrors(t *testing.T) {
	sweeper := &countingSweeper{fail: true}
	r := NewReaper(sweeper, time.Hour, zap.NewNop())
	r.RunOnce(context.Background())
	if sweeper.reconciles.Load() != 1 {
		t.Fatal("reconciliation should run even when the sweep fails")
	}
}
