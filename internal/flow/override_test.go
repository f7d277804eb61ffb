package flow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const overrideDoc = `
steps:
  await_snapshot:
    timeout: 10m
    fatal: true
  submit_otp:
    skip: true
  submit_signup_form:
    retries: 3
    backoff: 5s
`

func TestParseOverrides(t *testing.T) {
	o, err := ParseOverrides([]byte(overrideDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	snap, ok := o.Steps["await_snapshot"]
	if !ok {
		t.Fatal("await_snapshot override missing")
	}
	if snap.Timeout == nil || time.Duration(*snap.Timeout) != 10*time.Minute {
		t.Fatalf("timeout: expected 10m, got %v", snap.Timeout)
	}
	if snap.Fatal == nil || !*snap.Fatal {
		t.Fatal("fatal: expected true")
	}
	if snap.Retries != nil || snap.Skip != nil {
		t.Fatal("unset fields must stay nil")
	}

	otp := o.Steps["submit_otp"]
	if otp.Skip == nil || !*otp.Skip {
		t.Fatal("submit_otp skip: expected true")
	}

	form := o.Steps["submit_signup_form"]
	if form.Retries == nil || *form.Retries != 3 {
		t.Fatalf("retries: expected 3, got %v", form.Retries)
	}
	if form.Backoff == nil || time.Duration(*form.Backoff) != 5*time.Second {
		t.Fatalf("backoff: expected 5s, got %v", form.Backoff)
	}
}

func TestParseOverrides_BadDuration(t *testing.T) {
	_, err := ParseOverrides([]byte("steps:\n  landing:\n    timeout: banana\n"))
	if err == nil || !strings.Contains(err.Error(), "parse duration") {
		t.Fatalf("expected duration parse error, got %v", err)
	}
}

func TestParseOverrides_NegativeDuration(t *testing.T) {
	_, err := ParseOverrides([]byte("steps:\n  landing:\n    timeout: -5s\n"))
	if err == nil || !strings.Contains(err.Error(), "must be >= 0") {
		t.Fatalf("expected negative duration error, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	if err := os.WriteFile(path, []byte(overrideDoc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	o, err := LoadOverrides(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(o.Steps) != 3 {
		t.Fatalf("expected 3 step overrides, got %d", len(o.Steps))
	}
}

func TestLoadOverrides_EmptyPath(t *testing.T) {
	o, err := LoadOverrides("  ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(o.Steps) != 0 {
		t.Fatal("expected no overrides for empty path")
	}
}

func TestLoadOverrides_MissingFile(t *testing.T) {
	_, err := LoadOverrides(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read overrides") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestApply(t *testing.T) {
	steps, err := Catalog(testConfig())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	o, err := ParseOverrides([]byte(overrideDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	out, err := Apply(steps, o)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	byName := make(map[string]Step, len(out))
	for _, step := range out {
		byName[step.Name] = step
	}
	if got := byName["await_snapshot"]; got.Timeout != 10*time.Minute || !got.Fatal {
		t.Fatalf("await_snapshot: expected 10m fatal, got %s fatal=%v", got.Timeout, got.Fatal)
	}
	if !byName["submit_otp"].Skip {
		t.Fatal("submit_otp: expected skip")
	}
	if got := byName["submit_signup_form"]; got.Retries != 3 || got.Backoff != 5*time.Second {
		t.Fatalf("submit_signup_form: expected retries=3 backoff=5s, got %d %s", got.Retries, got.Backoff)
	}
	if byName["landing"].Timeout != 30*time.Second {
		t.Fatal("untouched step changed")
	}

	// The input catalog must not be mutated.
	for _, step := range steps {
		if step.Name == "await_snapshot" && step.Fatal {
			t.Fatal("apply mutated its input")
		}
	}
}

func TestApply_UnknownStep(t *testing.T) {
	steps, err := Catalog(testConfig())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	o := Overrides{Steps: map[string]StepOverride{"warp_drive": {}}}
	if _, err := Apply(steps, o); err == nil || !strings.Contains(err.Error(), "unknown step") {
		t.Fatalf("expected unknown step error, got %v", err)
	}
}

func TestApply_InvalidResult(t *testing.T) {
	steps, err := Catalog(testConfig())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	zero := Duration(0)
	o := Overrides{Steps: map[string]StepOverride{"landing": {Timeout: &zero}}}
	if _, err := Apply(steps, o); err == nil || !strings.Contains(err.Error(), "overridden flow invalid") {
		t.Fatalf("expected invalid flow error, got %v", err)
	}
}
