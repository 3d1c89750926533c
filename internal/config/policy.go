package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RoutingPolicy holds the knobs of ticket intake, assignment and liveness.
type RoutingPolicy struct {
	// RateLimitWindow and RateLimitMax bound creations per caller.
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
	RateLimitMax    int           `yaml:"rate_limit_max"`

	SummaryMaxLen     int `yaml:"summary_max_len"`
	ContextMaxEntries int `yaml:"context_max_entries"`
	ContextValueMax   int `yaml:"context_value_max_len"`

	// StaleAfter is the heartbeat silence after which a session is reaped.
	StaleAfter time.Duration `yaml:"stale_after"`
	// SweepInterval drives the dedicated reaper ticker.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// HeartbeatSweepEvery throttles sweeps piggybacked on heartbeats.
	HeartbeatSweepEvery time.Duration `yaml:"heartbeat_sweep_every"`
	SweepBatchSize      int           `yaml:"sweep_batch_size"`

	// AdminBypassesExclusivity lets administrators hold more than one active ticket.
	AdminBypassesExclusivity bool `yaml:"admin_bypasses_exclusivity"`

	ReadRetryAttempts int `yaml:"read_retry_attempts"`
}

// DefaultRoutingPolicy returns the reference behavior.
func DefaultRoutingPolicy() RoutingPolicy {
	return RoutingPolicy{
		RateLimitWindow:          15 * time.Minute,
		RateLimitMax:             1,
		SummaryMaxLen:            500,
		ContextMaxEntries:        32,
		ContextValueMax:          1024,
		StaleAfter:               10 * time.Minute,
		SweepInterval:            time.Minute,
		HeartbeatSweepEvery:      30 * time.Second,
		SweepBatchSize:           200,
		AdminBypassesExclusivity: false,
		ReadRetryAttempts:        3,
	}
}

// MergeFile overlays the YAML document at path onto p. Keys absent from the
// file keep their current values.
func (p *RoutingPolicy) MergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read routing policy: %w", err)
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return fmt.Errorf("parse routing policy %s: %w", path, err)
	}
	return nil
}

func (p *RoutingPolicy) applyEnv() {
	p.RateLimitWindow = getEnvAsDuration("ROUTING_RATE_LIMIT_WINDOW", p.RateLimitWindow)
	p.RateLimitMax = getEnvAsInt("ROUTING_RATE_LIMIT_MAX", p.RateLimitMax)
	p.SummaryMaxLen = getEnvAsInt("ROUTING_SUMMARY_MAX_LEN", p.SummaryMaxLen)
	p.StaleAfter = getEnvAsDuration("ROUTING_STALE_AFTER", p.StaleAfter)
	p.SweepInterval = getEnvAsDuration("ROUTING_SWEEP_INTERVAL", p.SweepInterval)
	p.HeartbeatSweepEvery = getEnvAsDuration("ROUTING_HEARTBEAT_SWEEP_EVERY", p.HeartbeatSweepEvery)
	p.AdminBypassesExclusivity = getEnvAsBool("ROUTING_ADMIN_BYPASSES_EXCLUSIVITY", p.AdminBypassesExclusivity)
}

// Validate checks the policy is usable.
func (p RoutingPolicy) Validate() error {
	switch {
	case p.RateLimitWindow <= 0:
		return fmt.Errorf("rate_limit_window must be positive")
	case p.RateLimitMax < 1:
		return fmt.Errorf("rate_limit_max must be at least 1")
	case p.SummaryMaxLen < 1:
		return fmt.Errorf("summary_max_len must be at least 1")
	case p.StaleAfter <= 0:
		return fmt.Errorf("stale_after must be positive")
	case p.SweepInterval <= 0:
		return fmt.Errorf("sweep_interval must be positive")
	case p.SweepBatchSize < 1:
		return fmt.Errorf("sweep_batch_size must be at least 1")
	}
	return nil
}
