// Package bootstrap assembles the coordinator and its collaborators from
// configuration. Both the API server and supportctl start here.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/outbound"
	"github.com/spec-kit/support-router/internal/persistence"
	"github.com/spec-kit/support-router/internal/repository"
	"github.com/spec-kit/support-router/internal/repository/sqlitestore"
	"github.com/spec-kit/support-router/internal/service"
)

// App holds the wired runtime.
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Store         *repository.Store
	Redis         *persistence.Redis
	Notifications *service.NotificationService
	Coordinator   *service.Coordinator
}

// New opens the configured backends and builds the coordinator.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg.Store, logger, cfg.Store.RunMigrations)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	redis := persistence.NewRedis(cfg.Redis, logger)
	dispatcher := events.NewInMemoryDispatcher()

	deps := service.CoordinatorDependencies{
		Store:      store,
		Policy:     cfg.Routing,
		Dispatcher: dispatcher,
		Formatter:  outbound.NewDeepLinkFormatter(cfg.Notification.DeepLinkBase, cfg.Notification.SupportContactNumber),
		Metrics:    metrics,
		Logger:     logger,
	}
	if redis != nil {
		deps.Gate = persistence.NewSweepGate(redis, instanceID())
		deps.Backlog = persistence.NewAuditBacklog(redis)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		Metrics:       metrics,
		Store:         store,
		Redis:         redis,
		Notifications: service.NewNotificationService(dispatcher, logger, cfg.Notification),
		Coordinator:   service.NewCoordinator(deps),
	}, nil
}

// OpenStore connects the configured backend. Postgres migrations run only
// when migrate is set; the SQLite schema is always applied on open.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger, migrate bool) (*repository.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if migrate {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return repository.NewPostgresStore(pg.Pool), nil
	case config.DriverSQLite:
		s, err := sqlitestore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		logger.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		return s.Repositories(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// Close releases backend connections.
func (a *App) Close() {
	a.Redis.Close()
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("close store", zap.Error(err))
	}
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "support-router"
	}
	return host + "/" + uuid.NewString()
}
