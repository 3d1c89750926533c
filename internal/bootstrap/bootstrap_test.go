package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/service"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App:     config.AppConfig{Name: "support-router"},
		Store:   config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "rt.db")},
		Auth:    config.AuthConfig{JWTSecret: "s"},
		Routing: config.DefaultRoutingPolicy(),
	}
}

func TestNewWiresSQLiteWithoutRedis(t *testing.T) {
	rt, err := New(context.Background(), sqliteConfig(t), zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rt.Close()

	if rt.Redis != nil {
		t.Fatal("redis should be disabled without an address")
	}
	if err := rt.Store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	res, err := rt.Coordinator.CreateTicket(context.Background(),
		domain.Principal{ID: "u1", Role: domain.RoleUser}, service.CreateTicketInput{Summary: "printer jam"})
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if res.Ticket.Status != domain.TicketStatusNew {
		t.Fatalf("status = %s", res.Ticket.Status)
	}
}

func TestOpenStoreRejectsUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StoreConfig{Driver: "mysql"}, zap.NewNop(), false)
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
