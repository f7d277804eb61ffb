package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/maxeo-labs/canary-go/internal/cleanup"
	"github.com/maxeo-labs/canary-go/internal/platform/env"
	"github.com/maxeo-labs/canary-go/internal/platform/postgres"
	"github.com/maxeo-labs/canary-go/internal/repo"
	repopg "github.com/maxeo-labs/canary-go/internal/repo/postgres"
)

// The sweeper is the safety net behind per-run cleanup: it soft-deletes
// rows in the canary email namespace that outlived their run, typically
// because the runner was killed mid-flight. It runs from cron, touches
// nothing outside the namespace, and exits non-zero if anything it tried
// to delete is still there.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()

	emailDomain := env.String("CANARY_EMAIL_DOMAIN", "canary.maxeo.ai")
	retention, err := env.Duration("CANARY_SWEEP_RETENTION", 24*time.Hour)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	limit, err := env.Int("CANARY_SWEEP_LIMIT", 500)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	timeout, err := env.Duration("CANARY_SWEEP_TIMEOUT", 5*time.Minute)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	agent := cleanup.NewAgent(repopg.NewCleanupStore(db), logger)
	filter := repo.StaleFilter{
		EmailDomain: emailDomain,
		Before:      cleanup.Cutoff(time.Now(), retention),
		Limit:       limit,
	}
	logger.Info("sweep starting",
		"email_domain", filter.EmailDomain,
		"before", filter.Before.Format(time.RFC3339),
		"limit", filter.Limit)

	sweepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	report, err := agent.Sweep(sweepCtx, filter)

	logger.Info("sweep finished",
		"workspaces_deleted", report.WorkspacesDeleted,
		"users_deleted", report.UsersDeleted,
		"already_absent", report.AlreadyAbsent,
		"failures", report.Failures)
	if err != nil {
		logger.Error("sweep aborted", "error", err)
		os.Exit(1)
	}
	if report.Failures > 0 {
		os.Exit(1)
	}
}
