package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/config"
)

// Redis wraps the go-redis client. A nil *Redis means Redis is not configured.
type Redis struct {
	Client *redis.Client
	prefix string
}

// NewRedis connects to Redis using the provided configuration. It returns nil
// when no address is configured.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Info("REDIS_ADDR not set; using in-process sweep gate and audit backlog")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client, prefix: cfg.KeyPrefix}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) key(name string) string {
	return r.prefix + name
}

// SweepGate grants a short lease so that only one replica sweeps at a time.
type SweepGate struct {
	redis *Redis
	owner string
}

// NewSweepGate builds a lease gate identified by owner.
func NewSweepGate(r *Redis, owner string) *SweepGate {
	return &SweepGate{redis: r, owner: owner}
}

// TryAcquire takes the named lease for ttl if nobody holds it.
func (g *SweepGate) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	return g.redis.Client.SetNX(ctx, g.redis.key("lease:"+name), g.owner, ttl).Result()
}

// AuditBacklog is a Redis list of audit entries awaiting a retry.
type AuditBacklog struct {
	redis *Redis
}

// NewAuditBacklog builds the Redis-backed backlog.
func NewAuditBacklog(r *Redis) *AuditBacklog {
	return &AuditBacklog{redis: r}
}

// Push appends a serialized entry.
func (b *AuditBacklog) Push(ctx context.Context, payload []byte) error {
	return b.redis.Client.RPush(ctx, b.redis.key("audit:backlog"), payload).Err()
}

// Pop removes the oldest entry; it returns nil when the backlog is empty.
func (b *AuditBacklog) Pop(ctx context.Context) ([]byte, error) {
	payload, err := b.redis.Client.LPop(ctx, b.redis.key("audit:backlog")).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return payload, err
}

// Len reports the number of queued entries.
func (b *AuditBacklog) Len(ctx context.Context) (int64, error) {
	return b.redis.Client.LLen(ctx, b.redis.key("audit:backlog")).Result()
}
