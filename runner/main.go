package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/maxeo-labs/canary-go/internal/alert"
	"github.com/maxeo-labs/canary-go/internal/browser"
	"github.com/maxeo-labs/canary-go/internal/canary"
	"github.com/maxeo-labs/canary-go/internal/cleanup"
	"github.com/maxeo-labs/canary-go/internal/domain"
	"github.com/maxeo-labs/canary-go/internal/evidence"
	"github.com/maxeo-labs/canary-go/internal/flow"
	"github.com/maxeo-labs/canary-go/internal/platform/env"
	"github.com/maxeo-labs/canary-go/internal/platform/logtail"
	"github.com/maxeo-labs/canary-go/internal/platform/objectstore"
	"github.com/maxeo-labs/canary-go/internal/platform/postgres"
	"github.com/maxeo-labs/canary-go/internal/preflight"
	repopg "github.com/maxeo-labs/canary-go/internal/repo/postgres"
	"github.com/maxeo-labs/canary-go/internal/secrets"
)

const logTailLines = 200

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// No signal handling on purpose: the run deadline is the only
	// cancellation mechanism, and a killed process leaves its artifacts
	// to the sweeper.
	ctx := context.Background()

	webhook := env.String("CANARY_SLACK_WEBHOOK", "")

	// Initialization failures still produce an alert: a canary that dies
	// silently before its first step is worse than a failing one.
	fatal := func(code int, msg string, err error) {
		logger.Error(msg, "error", err)
		alert.NotifyStartupFailure(ctx, webhook, err, logger)
		os.Exit(code)
	}

	cfg, err := canary.ConfigFromEnv()
	if err != nil {
		fatal(2, "invalid env", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	tail := logtail.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}), logTailLines)
	logger = slog.New(tail)

	environment := env.String("CANARY_ENVIRONMENT", "production")

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		fatal(2, "invalid database config", err)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		fatal(1, "database unavailable", err)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		fatal(2, "invalid object store config", err)
	}
	var store evidence.Store
	if storeCfg.Enabled() {
		storeClient, err := objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			fatal(2, "object store client", err)
		}
		bucketCtx, cancelBucket := context.WithTimeout(ctx, 15*time.Second)
		err = objectstore.EnsureBucket(bucketCtx, storeClient, storeCfg)
		cancelBucket()
		if err != nil {
			fatal(1, "object store unavailable", err)
		}
		store, err = evidence.NewMinioStoreWithClient(storeClient, storeCfg.BucketEvidence)
		if err != nil {
			fatal(2, "object store client", err)
		}
		logger.Info("evidence goes to object store",
			"endpoint", storeCfg.Endpoint, "bucket", storeCfg.BucketEvidence)
	} else {
		store, err = evidence.NewDirStore(cfg.EvidenceDir)
		if err != nil {
			fatal(1, "evidence dir unavailable", err)
		}
		logger.Info("evidence goes to local dir", "dir", cfg.EvidenceDir)
	}

	var vault *secrets.Vault
	if !cfg.SkipOTP {
		vault, err = secrets.NewVault(cfg.FernetKey)
		if err != nil {
			fatal(2, "invalid fernet key", err)
		}
	}

	chrome, err := browser.Launch(ctx, browser.Options{Headless: cfg.Headless}, logger)
	if err != nil {
		fatal(1, "browser launch failed", err)
	}
	defer func() { _ = chrome.Close() }()

	flowCfg := flow.Config{
		BaseURL:       cfg.BaseURL,
		BrandDomain:   cfg.BrandDomain,
		BrandName:     cfg.BrandName,
		FirstName:     cfg.FirstName,
		LastName:      cfg.LastName,
		Country:       cfg.Country,
		Language:      cfg.Language,
		MinCategories: cfg.MinCategories,
		MinPrompts:    cfg.MinPrompts,
		SkipOTP:       cfg.SkipOTP,
		CategoryWait:  cfg.CategoryWait,
		SnapshotWait:  cfg.SnapshotWait,
	}
	steps, err := flow.Catalog(flowCfg)
	if err != nil {
		fatal(2, "invalid flow", err)
	}
	overrides, err := flow.LoadOverrides(cfg.FlowConfigPath)
	if err != nil {
		fatal(2, "invalid flow overrides", err)
	}
	steps, err = flow.Apply(steps, overrides)
	if err != nil {
		fatal(2, "invalid flow overrides", err)
	}

	rt := &flow.Runtime{
		Browser:  chrome,
		DB:       repopg.NewInspectorStore(db),
		Vault:    vault,
		Log:      logger,
		Config:   flowCfg,
		Observed: &domain.Observations{},
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	checks := []preflight.Check{
		{Name: "database", Check: db.PingContext},
		{
			// Any HTTP response proves the product is reachable from
			// here; page health is the landing step's job.
			Name: "base_url",
			Check: func(ctx context.Context) error {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL, nil)
				if err != nil {
					return err
				}
				resp, err := httpClient.Do(req)
				if err != nil {
					return err
				}
				return resp.Body.Close()
			},
		},
		{
			Name: "browser",
			Check: func(ctx context.Context) error {
				var ua string
				return chrome.Evaluate(ctx, "navigator.userAgent", &ua)
			},
		},
	}

	notifier := alert.NewPublisher(alert.Options{
		SlackWebhook: cfg.SlackWebhook,
		SentryDSN:    cfg.SentryDSN,
		Environment:  environment,
		ArchivePath:  cfg.ArchivePath,
		MinPrompts:   cfg.MinPrompts,
		Log:          logger,
	})
	cleaner := cleanup.NewAgent(repopg.NewCleanupStore(db), logger)

	orch, err := canary.NewOrchestrator(canary.Params{
		Config:    cfg,
		Runtime:   rt,
		Steps:     steps,
		Evidence:  store,
		LogTail:   tail.Tail,
		Cleaner:   cleaner,
		Notifier:  notifier,
		Preflight: checks,
		Log:       logger,
	})
	if err != nil {
		fatal(2, "orchestrator init", err)
	}

	run := orch.Run(ctx)

	_ = chrome.Close()
	if run.Verdict != domain.VerdictSuccess {
		os.Exit(1)
	}
}
