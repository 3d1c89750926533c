// Command supportctl runs maintenance tasks against the coordinator's store:
// schema migration, one-off sweeps and audit reconciliation, token minting
// for local testing, and ops key hashing.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/support-router/internal/auth"
	"github.com/spec-kit/support-router/internal/bootstrap"
	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/service"
)

const usage = `usage: supportctl <command> [flags]

commands:
  migrate         apply the store schema
  sweep           run one reaper pass and drain the audit backlog
  token           mint a bearer token for a principal
  hash-ops-key    print the bcrypt hash of an ops key
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "supportctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:])
	case "sweep":
		return runSweep(ctx, args[1:])
	case "token":
		return runToken(args[1:])
	case "hash-ops-key":
		return runHashOpsKey(args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return nil
	}
	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

func newFlagSet(name string) (*pflag.FlagSet, *[]string) {
	fs := pflag.NewFlagSet("supportctl "+name, pflag.ContinueOnError)
	envFiles := fs.StringSlice("env-file", nil, "dotenv files to load before reading the environment")
	return fs, envFiles
}

func loadConfig(envFiles []string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runMigrate(ctx context.Context, args []string) error {
	fs, envFiles := newFlagSet("migrate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := loadConfig(*envFiles)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := bootstrap.OpenStore(ctx, cfg.Store, logger, true)
	if err != nil {
		return err
	}
	return store.Close()
}

func runSweep(ctx context.Context, args []string) error {
	fs, envFiles := newFlagSet("sweep")
	skipAudit := fs.Bool("skip-audit", false, "do not drain the audit backlog")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, logger, err := loadConfig(*envFiles)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, sweepErr := rt.Coordinator.Sweep(ctx, service.SweepTriggerManual)
	out := map[string]any{"sweep": report}
	if !*skipAudit {
		n, err := rt.Coordinator.ReconcileAudit(ctx)
		out["audit_reconciled"] = n
		sweepErr = errors.Join(sweepErr, err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	return sweepErr
}

func runToken(args []string) error {
	fs, envFiles := newFlagSet("token")
	id := fs.String("id", "", "principal id")
	role := fs.String("role", string(domain.RoleAgent), "principal role (user, agent, admin)")
	tenant := fs.String("tenant", "", "optional tenant")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*envFiles...)
	if err != nil {
		return err
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	token, expiresAt, err := tokens.GenerateToken(domain.Principal{ID: *id, Role: domain.Role(*role), Tenant: *tenant})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	fmt.Fprintln(os.Stdout, token)
	return nil
}

func runHashOpsKey(args []string) error {
	fs := pflag.NewFlagSet("supportctl hash-ops-key", pflag.ContinueOnError)
	cost := fs.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("hash-ops-key takes exactly one key argument")
	}
	hash, err := auth.HashOpsKey(fs.Arg(0), *cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, hash)
	return nil
}
