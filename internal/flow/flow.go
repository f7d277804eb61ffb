// Package flow defines the signup journey the probe walks: an ordered
// catalog of steps, each pairing a browser action with an optional
// database predicate that proves the action had its intended effect.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maxeo-labs/canary-go/internal/browser"
	"github.com/maxeo-labs/canary-go/internal/domain"
	"github.com/maxeo-labs/canary-go/internal/repo"
	"github.com/maxeo-labs/canary-go/internal/secrets"
)

// Runtime bundles what steps need to act and verify. One Runtime exists
// per run; Observed accumulates what the database-facing steps saw.
type Runtime struct {
	Browser  browser.Driver
	DB       repo.Inspector
	Vault    *secrets.Vault
	Log      *slog.Logger
	Config   Config
	Observed *domain.Observations

	// Now is the clock; tests pin it. Nil means time.Now.
	Now func() time.Time
}

func (rt *Runtime) now() time.Time {
	if rt.Now != nil {
		return rt.Now()
	}
	return time.Now()
}

// otpCode derives the one-time code for the current validity window.
func (rt *Runtime) otpCode(secret string) (string, error) {
	return secrets.Code(secret, rt.now())
}

// Action performs the step's browser work. Created rows are returned as
// artifact refs; the executor records them on the run. Actions may stamp
// run marks (first write wins) but never touch results or artifacts
// directly.
type Action func(ctx context.Context, rt *Runtime, run *domain.Run) ([]domain.ArtifactRef, error)

// Predicate checks the database for the step's expected effect. It is
// polled on a fixed interval; returning artifacts on a not-yet-done poll
// is how a created row gets recorded before verification completes.
type Predicate func(ctx context.Context, rt *Runtime, run *domain.Run) (bool, []domain.ArtifactRef, error)

// Step is one unit of the flow. Fatal steps end the run on failure;
// tolerable ones degrade it.
type Step struct {
	Name      string
	Ordinal   int
	Fatal     bool
	Timeout   time.Duration
	Retries   int
	Backoff   time.Duration
	Skip      bool
	Action    Action
	Predicate Predicate
}

// Config carries the product-facing knobs steps read.
type Config struct {
	BaseURL        string
	BrandDomain    string
	BrandName      string
	FirstName      string
	LastName       string
	Country        string
	Language       string
	MinCategories  int
	MinPrompts     int
	MinCompetitors int
	SkipOTP        bool
	CategoryWait   time.Duration
	SnapshotWait   time.Duration
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base url is required")
	}
	if strings.TrimSpace(c.BrandDomain) == "" {
		return errors.New("brand domain is required")
	}
	if c.MinCategories < 1 {
		return errors.New("min categories must be >= 1")
	}
	if c.MinPrompts < 1 {
		return errors.New("min prompts must be >= 1")
	}
	return nil
}

// BrandURL is what goes into the signup form's website field.
func (c Config) BrandURL() string {
	domain := strings.TrimSpace(c.BrandDomain)
	if strings.Contains(domain, "://") {
		return domain
	}
	return "https://" + domain
}

// Catalog builds the full flow for one run. Defaults mirror how long
// each stage of onboarding is allowed to take in production; overrides
// can tighten or relax individual steps.
func Catalog(cfg Config) ([]Step, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	categoryWait := cfg.CategoryWait
	if categoryWait <= 0 {
		categoryWait = 180 * time.Second
	}
	snapshotWait := cfg.SnapshotWait
	if snapshotWait <= 0 {
		snapshotWait = 300 * time.Second
	}

	steps := []Step{
		{
			Name:    "landing",
			Fatal:   true,
			Timeout: 30 * time.Second,
			Retries: 2,
			Backoff: 2 * time.Second,
			Action:  openLanding,
		},
		{
			Name:    "open_report_form",
			Fatal:   true,
			Timeout: 30 * time.Second,
			Retries: 2,
			Backoff: 2 * time.Second,
			Action:  openReportForm,
		},
		{
			Name:    "submit_signup_form",
			Fatal:   true,
			Timeout: 90 * time.Second,
			Retries: 1,
			Backoff: 3 * time.Second,
			Action:  submitSignupForm,
		},
		{
			Name:      "verify_user_created",
			Fatal:     true,
			Timeout:   30 * time.Second,
			Predicate: userCreated,
		},
		{
			Name:    "submit_otp",
			Fatal:   true,
			Timeout: 120 * time.Second,
			Retries: 1,
			Backoff: 3 * time.Second,
			Skip:    cfg.SkipOTP,
			Action:  submitOTP,
		},
		{
			Name:      "await_workspace",
			Fatal:     true,
			Timeout:   60 * time.Second,
			Predicate: workspaceCreated,
		},
		{
			Name:      "await_categories",
			Fatal:     true,
			Timeout:   categoryWait,
			Predicate: categoriesReady,
		},
		{
			Name:      "confirm_prompts",
			Fatal:     true,
			Timeout:   120 * time.Second,
			Retries:   2,
			Backoff:   2 * time.Second,
			Action:    confirmPrompts,
			Predicate: promptsConfirmed,
		},
		{
			Name:      "await_snapshot",
			Fatal:     false,
			Timeout:   snapshotWait,
			Predicate: snapshotCompleted,
		},
		{
			Name:    "verify_dashboard",
			Fatal:   false,
			Timeout: 45 * time.Second,
			Retries: 1,
			Backoff: 2 * time.Second,
			Action:  verifyDashboard,
		},
		{
			Name:    "final_audit",
			Fatal:   false,
			Timeout: 30 * time.Second,
			Retries: 1,
			Backoff: 2 * time.Second,
			Action:  finalAudit,
		},
	}

	for i := range steps {
		steps[i].Ordinal = i + 1
	}
	if err := Validate(steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// Validate rejects catalogs a run could not execute deterministically.
func Validate(steps []Step) error {
	if len(steps) == 0 {
		return errors.New("flow has no steps")
	}

	seen := make(map[string]bool, len(steps))
	runnable := 0
	for i, step := range steps {
		if strings.TrimSpace(step.Name) == "" {
			return fmt.Errorf("step %d: name is required", i+1)
		}
		if seen[step.Name] {
			return fmt.Errorf("step %d: duplicate name %q", i+1, step.Name)
		}
		seen[step.Name] = true

		if step.Ordinal != i+1 {
			return fmt.Errorf("step %q: ordinal %d out of sequence, want %d", step.Name, step.Ordinal, i+1)
		}
		if step.Timeout <= 0 {
			return fmt.Errorf("step %q: timeout must be positive", step.Name)
		}
		if step.Retries < 0 {
			return fmt.Errorf("step %q: retries must be >= 0", step.Name)
		}
		if step.Backoff < 0 {
			return fmt.Errorf("step %q: backoff must be >= 0", step.Name)
		}
		if step.Action == nil && step.Predicate == nil {
			return fmt.Errorf("step %q: needs an action or a predicate", step.Name)
		}
		if !step.Skip {
			runnable++
		}
	}
	if runnable == 0 {
		return errors.New("every step is skipped")
	}
	return nil
}

// workspaceRef returns the workspace artifact recorded earlier in the
// run, if any. Steps after await_workspace depend on it.
func workspaceRef(run *domain.Run) (domain.ArtifactRef, bool) {
	for _, ref := range run.Artifacts {
		if ref.Kind == domain.ArtifactWorkspace {
			return ref, true
		}
	}
	return domain.ArtifactRef{}, false
}
