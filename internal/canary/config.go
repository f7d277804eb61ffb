// Package canary owns one probe run end to end: it sequences the flow
// catalog through a small state machine, executes each step with its
// timeout and retry budget, polls the product database until async work
// converges, cleans up whatever the run created, and reports exactly
// once.
package canary

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/maxeo-labs/canary-go/internal/platform/env"
)

// Config is the runner's environment surface. Everything has a default
// except the database (platform/postgres reads that) and the fernet key
// when OTP submission is on.
type Config struct {
	BaseURL     string
	EmailDomain string
	BrandDomain string
	BrandName   string
	FirstName   string
	LastName    string
	Country     string
	Language    string

	MinCategories int
	MinPrompts    int

	RunDeadline  time.Duration
	PollInterval time.Duration
	CategoryWait time.Duration
	SnapshotWait time.Duration

	Headless bool
	SkipOTP  bool
	Debug    bool

	FernetKey    string
	SlackWebhook string
	SentryDSN    string

	FlowConfigPath string
	EvidenceDir    string
	ArchivePath    string

	AutoCleanup bool
}

func ConfigFromEnv() (Config, error) {
	minCategories, err := env.Int("CANARY_MIN_CATEGORIES", 3)
	if err != nil {
		return Config{}, err
	}
	minPrompts, err := env.Int("CANARY_MIN_PROMPTS", 15)
	if err != nil {
		return Config{}, err
	}

	runDeadline, err := env.Duration("CANARY_RUN_DEADLINE", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}
	pollInterval, err := env.Duration("CANARY_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	categoryWait, err := env.Duration("CANARY_CATEGORY_WAIT_TIMEOUT", 180*time.Second)
	if err != nil {
		return Config{}, err
	}
	snapshotWait, err := env.Duration("CANARY_SNAPSHOT_WAIT_TIMEOUT", 300*time.Second)
	if err != nil {
		return Config{}, err
	}

	headless, err := env.Bool("CANARY_HEADLESS", true)
	if err != nil {
		return Config{}, err
	}
	skipOTP, err := env.Bool("CANARY_SKIP_OTP", false)
	if err != nil {
		return Config{}, err
	}
	debug, err := env.Bool("CANARY_DEBUG", false)
	if err != nil {
		return Config{}, err
	}
	autoCleanup, err := env.Bool("CANARY_AUTO_CLEANUP", true)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		BaseURL:     env.String("CANARY_BASE_URL", "https://maxeo.ai"),
		EmailDomain: env.String("CANARY_EMAIL_DOMAIN", "canary.maxeo.ai"),
		BrandDomain: env.String("CANARY_BRAND_DOMAIN", "www.letsbecool.com"),
		BrandName:   env.String("CANARY_BRAND_NAME", "Maxeo Canary Test"),
		FirstName:   env.String("CANARY_FIRST_NAME", "Canary"),
		LastName:    env.String("CANARY_LAST_NAME", "Test"),
		Country:     env.String("CANARY_COUNTRY", "TR"),
		Language:    env.String("CANARY_LANGUAGE", "tr"),

		MinCategories: minCategories,
		MinPrompts:    minPrompts,

		RunDeadline:  runDeadline,
		PollInterval: pollInterval,
		CategoryWait: categoryWait,
		SnapshotWait: snapshotWait,

		Headless: headless,
		SkipOTP:  skipOTP,
		Debug:    debug,

		FernetKey:    env.String("FERNET_ENCRYPTION_KEY", ""),
		SlackWebhook: env.String("CANARY_SLACK_WEBHOOK", ""),
		SentryDSN:    env.String("SENTRY_DSN", ""),

		FlowConfigPath: env.String("CANARY_FLOW_CONFIG", ""),
		EvidenceDir:    env.String("CANARY_EVIDENCE_DIR", "./canary-evidence"),
		ArchivePath:    env.String("CANARY_ARCHIVE_PATH", ""),

		AutoCleanup: autoCleanup,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.BaseURL))
	if err != nil || u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("CANARY_BASE_URL must be an http(s) URL, got %q", c.BaseURL)
	}
	if strings.TrimSpace(c.EmailDomain) == "" {
		return errors.New("CANARY_EMAIL_DOMAIN is required")
	}
	if strings.Contains(c.EmailDomain, "@") {
		return fmt.Errorf("CANARY_EMAIL_DOMAIN must be a bare domain, got %q", c.EmailDomain)
	}
	if strings.TrimSpace(c.BrandDomain) == "" {
		return errors.New("CANARY_BRAND_DOMAIN is required")
	}
	if c.MinCategories < 1 {
		return errors.New("CANARY_MIN_CATEGORIES must be >= 1")
	}
	if c.MinPrompts < 1 {
		return errors.New("CANARY_MIN_PROMPTS must be >= 1")
	}
	if c.RunDeadline <= 0 {
		return errors.New("CANARY_RUN_DEADLINE must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("CANARY_POLL_INTERVAL must be positive")
	}
	if c.CategoryWait <= 0 {
		return errors.New("CANARY_CATEGORY_WAIT_TIMEOUT must be positive")
	}
	if c.SnapshotWait <= 0 {
		return errors.New("CANARY_SNAPSHOT_WAIT_TIMEOUT must be positive")
	}
	if !c.SkipOTP && strings.TrimSpace(c.FernetKey) == "" {
		return errors.New("FERNET_ENCRYPTION_KEY is required unless CANARY_SKIP_OTP is set")
	}
	if strings.TrimSpace(c.EvidenceDir) == "" {
		return errors.New("CANARY_EVIDENCE_DIR is required")
	}
	return nil
}
