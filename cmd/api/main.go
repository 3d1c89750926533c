package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-router/internal/api/http"
	"github.com/spec-kit/support-router/internal/api/http/handlers"
	"github.com/spec-kit/support-router/internal/auth"
	"github.com/spec-kit/support-router/internal/bootstrap"
	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFiles := pflag.StringSlice("env-file", nil, "dotenv files to load before reading the environment")
	pflag.Parse()

	cfg, err := config.Load(*envFiles...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer rt.Close()

	notificationsDone := worker.StartNotificationWorker(ctx, rt.Notifications, logger)
	reaper := worker.NewReaper(rt.Coordinator, cfg.Routing.SweepInterval, logger)
	reaper.Start(ctx)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	var redis handlers.Pinger
	if rt.Redis != nil {
		redis = rt.Redis
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, rt.Metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, rt.Store, redis),
		Tickets:        handlers.NewTicketsHandler(rt.Coordinator),
		Sessions:       handlers.NewSessionsHandler(rt.Coordinator),
		Admin:          handlers.NewAdminHandler(rt.Coordinator),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		OpsKeys:        auth.NewOpsKeyVerifier(cfg.Auth.OpsKeyHash),
		Metrics:        rt.Metrics,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	<-reaper.Done()
	<-notificationsDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
