package service

import (
	"context"
	"sync"
	"time"
)

// SweepGate hands out short named leases so that piggybacked sweeps do not
// pile up across requests or replicas.
type SweepGate interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
}

// MemoryGate is a process-local SweepGate.
type MemoryGate struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

// NewMemoryGate builds a gate reading time from clock.
func NewMemoryGate(clock func() time.Time) *MemoryGate {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryGate{leases: make(map[string]time.Time), now: clock}
}

func (g *MemoryGate) TryAcquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if until, ok := g.leases[name]; ok && now.Before(until) {
		return false, nil
	}
	g.leases[name] = now.Add(ttl)
	return true, nil
}
