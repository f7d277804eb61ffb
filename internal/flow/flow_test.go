package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/maxeo-labs/canary-go/internal/domain"
)

func testConfig() Config {
	return Config{
		BaseURL:       "https://app.canary.test",
		BrandDomain:   "www.letsbecool.com",
		BrandName:     "Maxeo Canary Test",
		FirstName:     "Canary",
		LastName:      "Test",
		Country:       "TR",
		Language:      "tr",
		MinCategories: 1,
		MinPrompts:    15,
	}
}

func noopAction(_ context.Context, _ *Runtime, _ *domain.Run) ([]domain.ArtifactRef, error) {
	return nil, nil
}

func TestCatalog_Defaults(t *testing.T) {
	steps, err := Catalog(testConfig())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	wantNames := []string{
		"landing",
		"open_report_form",
		"submit_signup_form",
		"verify_user_created",
		"submit_otp",
		"await_workspace",
		"await_categories",
		"confirm_prompts",
		"await_snapshot",
		"verify_dashboard",
		"final_audit",
	}
	if len(steps) != len(wantNames) {
		t.Fatalf("expected %d steps, got %d", len(wantNames), len(steps))
	}
	for i, step := range steps {
		if step.Name != wantNames[i] {
			t.Fatalf("step %d: expected %s, got %s", i, wantNames[i], step.Name)
		}
		if step.Ordinal != i+1 {
			t.Fatalf("step %s: expected ordinal %d, got %d", step.Name, i+1, step.Ordinal)
		}
		if step.Skip {
			t.Fatalf("step %s: skipped by default", step.Name)
		}
	}

	fatal := map[string]bool{
		"landing":             true,
		"open_report_form":    true,
		"submit_signup_form":  true,
		"verify_user_created": true,
		"submit_otp":          true,
		"await_workspace":     true,
		"await_categories":    true,
		"confirm_prompts":     true,
		"await_snapshot":      false,
		"verify_dashboard":    false,
		"final_audit":         false,
	}
	for _, step := range steps {
		if step.Fatal != fatal[step.Name] {
			t.Fatalf("step %s: expected fatal=%v, got %v", step.Name, fatal[step.Name], step.Fatal)
		}
	}

	byName := make(map[string]Step, len(steps))
	for _, step := range steps {
		byName[step.Name] = step
	}
	if got := byName["await_categories"].Timeout; got != 180*time.Second {
		t.Fatalf("await_categories timeout: expected 180s, got %s", got)
	}
	if got := byName["await_snapshot"].Timeout; got != 300*time.Second {
		t.Fatalf("await_snapshot timeout: expected 300s, got %s", got)
	}
	if byName["confirm_prompts"].Predicate == nil || byName["confirm_prompts"].Action == nil {
		t.Fatal("confirm_prompts needs both an action and a predicate")
	}
}

func TestCatalog_WaitKnobs(t *testing.T) {
	cfg := testConfig()
	cfg.CategoryWait = 4 * time.Minute
	cfg.SnapshotWait = 10 * time.Minute

	steps, err := Catalog(cfg)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	for _, step := range steps {
		if step.Name == "await_categories" && step.Timeout != 4*time.Minute {
			t.Fatalf("await_categories timeout: expected 4m, got %s", step.Timeout)
		}
		if step.Name == "await_snapshot" && step.Timeout != 10*time.Minute {
			t.Fatalf("await_snapshot timeout: expected 10m, got %s", step.Timeout)
		}
	}
}

func TestCatalog_SkipOTP(t *testing.T) {
	cfg := testConfig()
	cfg.SkipOTP = true

	steps, err := Catalog(cfg)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	for _, step := range steps {
		if step.Name == "submit_otp" && !step.Skip {
			t.Fatal("submit_otp: expected skip with SkipOTP set")
		}
		if step.Name != "submit_otp" && step.Skip {
			t.Fatalf("step %s: unexpectedly skipped", step.Name)
		}
	}
}

func TestCatalog_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BaseURL = "  "
	if _, err := Catalog(cfg); err == nil {
		t.Fatal("expected error for blank base url")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"blank base url", func(c *Config) { c.BaseURL = "" }, "base url"},
		{"blank brand domain", func(c *Config) { c.BrandDomain = " " }, "brand domain"},
		{"zero min categories", func(c *Config) { c.MinCategories = 0 }, "min categories"},
		{"zero min prompts", func(c *Config) { c.MinPrompts = 0 }, "min prompts"},
	}

	for _, tc := range tests {
		cfg := testConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.wantErr, err)
		}
	}

	if err := testConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestBrandURL(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		want   string
	}{
		{"bare domain", "www.letsbecool.com", "https://www.letsbecool.com"},
		{"scheme kept", "http://staging.letsbecool.com", "http://staging.letsbecool.com"},
		{"padded", "  www.letsbecool.com  ", "https://www.letsbecool.com"},
	}

	for _, tc := range tests {
		cfg := testConfig()
		cfg.BrandDomain = tc.domain
		if got := cfg.BrandURL(); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func validSteps() []Step {
	return []Step{
		{Name: "one", Ordinal: 1, Timeout: time.Second, Action: noopAction},
		{Name: "two", Ordinal: 2, Timeout: time.Second, Action: noopAction},
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(validSteps()); err != nil {
		t.Fatalf("valid steps rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(s []Step) []Step
		wantErr string
	}{
		{"empty", func(s []Step) []Step { return nil }, "no steps"},
		{"blank name", func(s []Step) []Step { s[0].Name = " "; return s }, "name is required"},
		{"duplicate name", func(s []Step) []Step { s[1].Name = "one"; return s }, "duplicate name"},
		{"ordinal gap", func(s []Step) []Step { s[1].Ordinal = 5; return s }, "out of sequence"},
		{"zero timeout", func(s []Step) []Step { s[0].Timeout = 0; return s }, "timeout must be positive"},
		{"negative retries", func(s []Step) []Step { s[0].Retries = -1; return s }, "retries must be >= 0"},
		{"negative backoff", func(s []Step) []Step { s[0].Backoff = -time.Second; return s }, "backoff must be >= 0"},
		{"no work", func(s []Step) []Step { s[1].Action = nil; return s }, "needs an action or a predicate"},
		{"all skipped", func(s []Step) []Step { s[0].Skip = true; s[1].Skip = true; return s }, "every step is skipped"},
	}

	for _, tc := range tests {
		err := Validate(tc.mutate(validSteps()))
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.wantErr, err)
		}
	}
}
