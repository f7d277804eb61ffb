package canary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/maxeo-labs/canary-go/internal/domain"
	"github.com/maxeo-labs/canary-go/internal/flow"
	"github.com/maxeo-labs/canary-go/internal/preflight"
)

type fakeCleaner struct {
	calls     int
	attempted []string
	warnID    string
}

func (f *fakeCleaner) Cleanup(_ context.Context, run *domain.Run) {
	f.calls++
	for i := len(run.Artifacts) - 1; i >= 0; i-- {
		ref := run.Artifacts[i]
		f.attempted = append(f.attempted, ref.ID)
		if ref.ID == f.warnID {
			run.AddWarning(domain.CleanupWarning{
				Resource: ref.Kind,
				ID:       ref.ID,
				Message:  "delete failed: connection reset",
			})
		}
	}
}

type fakeNotifier struct {
	calls int
	run   *domain.Run
	obs   *domain.Observations
}

func (f *fakeNotifier) Notify(_ context.Context, run *domain.Run, obs *domain.Observations) {
	f.calls++
	f.run = run
	f.obs = obs
}

func orchConfig() Config {
	return Config{
		BaseURL:      "https://app.canary.test",
		EmailDomain:  "canary.maxeo.ai",
		RunDeadline:  5 * time.Second,
		PollInterval: 2 * time.Millisecond,
		AutoCleanup:  true,
	}
}

func passAction(refs ...domain.ArtifactRef) flow.Action {
	return func(context.Context, *flow.Runtime, *domain.Run) ([]domain.ArtifactRef, error) {
		return refs, nil
	}
}

func failAction(msg string) flow.Action {
	return func(context.Context, *flow.Runtime, *domain.Run) ([]domain.ArtifactRef, error) {
		return nil, errors.New(msg)
	}
}

func truePredicate() flow.Predicate {
	return func(context.Context, *flow.Runtime, *domain.Run) (bool, []domain.ArtifactRef, error) {
		return true, nil, nil
	}
}

func neverPredicate() flow.Predicate {
	return func(context.Context, *flow.Runtime, *domain.Run) (bool, []domain.ArtifactRef, error) {
		return false, nil, nil
	}
}

type orchFixture struct {
	orch     *Orchestrator
	cleaner  *fakeCleaner
	notifier *fakeNotifier
	store    *memEvidence
}

func newFixture(t *testing.T, cfg Config, steps []flow.Step, checks []preflight.Check) *orchFixture {
	t.Helper()
	f := &orchFixture{
		cleaner:  &fakeCleaner{},
		notifier: &fakeNotifier{},
		store:    &memEvidence{},
	}
	orch, err := NewOrchestrator(Params{
		Config:    cfg,
		Runtime:   execRuntime(),
		Steps:     steps,
		Evidence:  f.store,
		LogTail:   func() []string { return []string{"level=INFO msg=tail"} },
		Cleaner:   f.cleaner,
		Notifier:  f.notifier,
		Preflight: checks,
		Log:       discardLog(),
	})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	f.orch = orch
	return f
}

func resultNames(run *domain.Run) []string {
	names := make([]string, 0, len(run.Results))
	for _, res := range run.Results {
		names = append(names, res.Name)
	}
	return names
}

func TestNewOrchestrator_Validation(t *testing.T) {
	steps := []flow.Step{{Name: "landing", Ordinal: 1, Timeout: time.Second, Action: passAction()}}

	_, err := NewOrchestrator(Params{Steps: steps, Cleaner: &fakeCleaner{}, Notifier: &fakeNotifier{}})
	if err == nil || !strings.Contains(err.Error(), "runtime") {
		t.Fatalf("expected runtime error, got %v", err)
	}

	_, err = NewOrchestrator(Params{Runtime: execRuntime(), Steps: steps, Notifier: &fakeNotifier{}})
	if err == nil || !strings.Contains(err.Error(), "cleaner") {
		t.Fatalf("expected cleaner error, got %v", err)
	}

	_, err = NewOrchestrator(Params{Runtime: execRuntime(), Steps: steps, Cleaner: &fakeCleaner{}})
	if err == nil || !strings.Contains(err.Error(), "notifier") {
		t.Fatalf("expected notifier error, got %v", err)
	}

	bad := []flow.Step{{Name: "landing", Ordinal: 1, Timeout: time.Second}}
	_, err = NewOrchestrator(Params{Runtime: execRuntime(), Steps: bad, Cleaner: &fakeCleaner{}, Notifier: &fakeNotifier{}})
	if err == nil {
		t.Fatal("expected invalid flow to be rejected")
	}
}

func TestRun_AllStepsPass(t *testing.T) {
	steps := []flow.Step{
		{Name: "landing", Ordinal: 1, Fatal: true, Timeout: time.Second,
			Action: passAction(domain.ArtifactRef{Kind: domain.ArtifactUser, ID: "user-1"})},
		{Name: "await_workspace", Ordinal: 2, Fatal: true, Timeout: time.Second,
			Action: passAction(domain.ArtifactRef{Kind: domain.ArtifactWorkspace, ID: "ws-1"})},
		{Name: "final_audit", Ordinal: 3, Timeout: time.Second,
			Action: passAction(), Predicate: truePredicate()},
	}
	f := newFixture(t, orchConfig(), steps, nil)

	run := f.orch.Run(context.Background())

	if run.Verdict != domain.VerdictSuccess {
		t.Fatalf("expected success, got %s", run.Verdict)
	}
	if run.State != domain.RunStateDone {
		t.Fatalf("expected done, got %s", run.State)
	}
	names := resultNames(run)
	want := []string{"landing", "await_workspace", "final_audit"}
	if len(names) != len(want) {
		t.Fatalf("expected %d results, got %v", len(want), names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("results out of order: %v", names)
		}
		if run.Results[i].Status != domain.StepPassed {
			t.Fatalf("%s: expected passed, got %s", name, run.Results[i].Status)
		}
	}
	if f.notifier.calls != 1 {
		t.Fatalf("expected exactly one notification, got %d", f.notifier.calls)
	}
	if f.notifier.run != run || f.notifier.obs == nil {
		t.Fatal("notifier got the wrong run context")
	}
	if f.cleaner.calls != 1 {
		t.Fatalf("expected one cleanup pass, got %d", f.cleaner.calls)
	}
	if len(f.cleaner.attempted) != 2 || f.cleaner.attempted[0] != "ws-1" || f.cleaner.attempted[1] != "user-1" {
		t.Fatalf("expected reverse-order cleanup, got %v", f.cleaner.attempted)
	}
	if !strings.HasPrefix(run.ID, "canary-") {
		t.Fatalf("unexpected run id %q", run.ID)
	}
	if !strings.HasSuffix(run.Email, "@canary.maxeo.ai") || !strings.HasPrefix(run.Email, run.ID) {
		t.Fatalf("unexpected run email %q", run.Email)
	}
	if run.EndedAt.IsZero() {
		t.Fatal("run end time not sealed")
	}
}

func TestRun_FatalStepFailureSkipsRest(t *testing.T) {
	steps := []flow.Step{
		{Name: "landing", Ordinal: 1, Fatal: true, Timeout: time.Second,
			Action: passAction(domain.ArtifactRef{Kind: domain.ArtifactUser, ID: "user-1"})},
		{Name: "open_report_form", Ordinal: 2, Fatal: true, Timeout: time.Second, Retries: 1,
			Action: failAction("report button missing")},
		{Name: "final_audit", Ordinal: 3, Timeout: time.Second, Action: passAction()},
	}
	f := newFixture(t, orchConfig(), steps, nil)

	run := f.orch.Run(context.Background())

	if run.Verdict != domain.VerdictFailure {
		t.Fatalf("expected failure, got %s", run.Verdict)
	}
	if len(run.Results) != 3 {
		t.Fatalf("expected a result per definition, got %v", resultNames(run))
	}
	if run.Results[0].Status != domain.StepPassed {
		t.Fatalf("landing: got %s", run.Results[0].Status)
	}
	if run.Results[1].Status != domain.StepFailed || run.Results[1].Attempts != 2 {
		t.Fatalf("open_report_form: got %s after %d attempts", run.Results[1].Status, run.Results[1].Attempts)
	}
	if run.Results[2].Status != domain.StepSkipped {
		t.Fatalf("final_audit: expected skipped, got %s", run.Results[2].Status)
	}
	if f.notifier.calls != 1 {
		t.Fatalf("expected exactly one notification, got %d", f.notifier.calls)
	}
	if f.cleaner.calls != 1 {
		t.Fatal("cleanup must run after a fatal failure")
	}
	if len(f.cleaner.attempted) != 1 || f.cleaner.attempted[0] != "user-1" {
		t.Fatalf("expected the recorded artifact cleaned, got %v", f.cleaner.attempted)
	}
	if len(run.Evidence) == 0 {
		t.Fatal("expected evidence captured for the failing step")
	}
	for _, ref := range run.Evidence {
		if ref.Step != "open_report_form" {
			t.Fatalf("evidence attributed to wrong step: %+v", ref)
		}
	}
	if run.State != domain.RunStateDone {
		t.Fatalf("run must still finish, got %s", run.State)
	}
}

func TestRun_TolerableTimeoutDegrades(t *testing.T) {
	steps := []flow.Step{
		{Name: "landing", Ordinal: 1, Fatal: true, Timeout: time.Second, Action: passAction()},
		{Name: "await_snapshot", Ordinal: 2, Timeout: 20 * time.Millisecond,
			Predicate: neverPredicate()},
		{Name: "final_audit", Ordinal: 3, Timeout: time.Second, Action: passAction()},
	}
	f := newFixture(t, orchConfig(), steps, nil)

	run := f.orch.Run(context.Background())

	if run.Verdict != domain.VerdictDegraded {
		t.Fatalf("expected degraded, got %s", run.Verdict)
	}
	if run.Results[1].Status != domain.StepTimedOut {
		t.Fatalf("await_snapshot: expected timed_out, got %s", run.Results[1].Status)
	}
	if run.Results[2].Status != domain.StepPassed {
		t.Fatalf("a tolerable timeout must not stop the flow, final_audit got %s", run.Results[2].Status)
	}
	if f.notifier.calls != 1 {
		t.Fatalf("expected exactly one notification, got %d", f.notifier.calls)
	}
}

func TestRun_DeadlineDuringPollSkipsRest(t *testing.T) {
	cfg := orchConfig()
	cfg.RunDeadline = 40 * time.Millisecond

	steps := []flow.Step{
		{Name: "landing", Ordinal: 1, Fatal: true, Timeout: time.Second,
			Action: passAction(domain.ArtifactRef{Kind: domain.ArtifactUser, ID: "user-1"})},
		// Tolerable on purpose: the remaining steps must be skipped by the
		// deadline gate, not by the fatal-failure exit.
		{Name: "await_snapshot", Ordinal: 2, Timeout: time.Hour,
			Predicate: neverPredicate()},
		{Name: "final_audit", Ordinal: 3, Timeout: time.Second, Action: passAction()},
	}
	f := newFixture(t, cfg, steps, nil)

	run := f.orch.Run(context.Background())

	if run.Results[1].Status != domain.StepTimedOut {
		t.Fatalf("await_snapshot: expected timed_out, got %s", run.Results[1].Status)
	}
	if run.Results[2].Status != domain.StepSkipped {
		t.Fatalf("final_audit: expected skipped past the deadline, got %s", run.Results[2].Status)
	}
	if run.Verdict != domain.VerdictDegraded {
		t.Fatalf("expected degraded, got %s", run.Verdict)
	}
	if f.cleaner.calls != 1 {
		t.Fatal("cleanup must still run after the deadline")
	}
	if len(f.cleaner.attempted) != 1 || f.cleaner.attempted[0] != "user-1" {
		t.Fatalf("expected recorded artifacts cleaned, got %v", f.cleaner.attempted)
	}
	if f.notifier.calls != 1 {
		t.Fatalf("expected exactly one notification, got %d", f.notifier.calls)
	}
}

func TestRun_CleanupWarningKeepsVerdict(t *testing.T) {
	steps := []flow.Step{
		{Name: "landing", Ordinal: 1, Fatal: true, Timeout: time.Second,
			Action: passAction(
				domain.ArtifactRef{Kind: domain.ArtifactUser, ID: "user-1"},
				domain.ArtifactRef{Kind: domain.ArtifactWorkspace, ID: "ws-1"},
				domain.ArtifactRef{Kind: domain.ArtifactWorkspace, ID: "ws-2"},
			)},
	}
	f := newFixture(t, orchConfig(), steps, nil)
	f.cleaner.warnID = "ws-2"

	run := f.orch.Run(context.Background())

	if run.Verdict != domain.VerdictSuccess {
		t.Fatalf("a cleanup warning must not change the verdict, got %s", run.Verdict)
	}
	if len(f.cleaner.attempted) != 3 {
		t.Fatalf("one failed delete must not stop the rest, got %v", f.cleaner.attempted)
	}
	if len(run.Warnings) != 1 {
		t.Fatalf("expected one cleanup warning, got %+v", run.Warnings)
	}
	if run.Warnings[0].ID != "ws-2" {
		t.Fatalf("warning for wrong artifact: %+v", run.Warnings[0])
	}
}

func TestRun_PreflightFailureSkipsEverything(t *testing.T) {
	steps := []flow.Step{
		{Name: "landing", Ordinal: 1, Fatal: true, Timeout: time.Second,
			Action: func(context.Context, *flow.Runtime, *domain.Run) ([]domain.ArtifactRef, error) {
				t.Fatal("no step may run after a preflight failure")
				return nil, nil
			}},
		{Name: "final_audit", Ordinal: 2, Timeout: time.Second, Action: passAction()},
	}
	checks := []preflight.Check{
		{Name: "database", Check: func(context.Context) error { return errors.New("connection refused") }},
	}
	f := newFixture(t, orchConfig(), steps, checks)

	run := f.orch.Run(context.Background())

	if run.Verdict != domain.VerdictFailure {
		t.Fatalf("expected failure, got %s", run.Verdict)
	}
	if run.Err == "" || !strings.Contains(run.Err, "database") {
		t.Fatalf("expected the preflight error on the run, got %q", run.Err)
	}
	if len(run.Results) != 2 {
		t.Fatalf("expected a result per definition, got %v", resultNames(run))
	}
	for _, res := range run.Results {
		if res.Status != domain.StepSkipped {
			t.Fatalf("%s: expected skipped, got %s", res.Name, res.Status)
		}
	}
	if f.notifier.calls != 1 {
		t.Fatalf("expected exactly one notification, got %d", f.notifier.calls)
	}
	if run.State != domain.RunStateDone {
		t.Fatalf("run must still finish, got %s", run.State)
	}
}

func TestRun_AutoCleanupDisabled(t *testing.T) {
	cfg := orchConfig()
	cfg.AutoCleanup = false

	steps := []flow.Step{
		{Name: "landing", Ordinal: 1, Fatal: true, Timeout: time.Second,
			Action: passAction(domain.ArtifactRef{Kind: domain.ArtifactUser, ID: "user-1"})},
	}
	f := newFixture(t, cfg, steps, nil)

	run := f.orch.Run(context.Background())

	if f.cleaner.calls != 0 {
		t.Fatalf("cleanup disabled but cleaner called %d times", f.cleaner.calls)
	}
	if run.Verdict != domain.VerdictSuccess {
		t.Fatalf("expected success, got %s", run.Verdict)
	}
	if f.notifier.calls != 1 {
		t.Fatalf("expected exactly one notification, got %d", f.notifier.calls)
	}
}

func TestRun_CancelledContextStillReports(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	steps := []flow.Step{
		{Name: "landing", Ordinal: 1, Fatal: true, Timeout: time.Second,
			Action: func(context.Context, *flow.Runtime, *domain.Run) ([]domain.ArtifactRef, error) {
				cancel()
				return []domain.ArtifactRef{{Kind: domain.ArtifactUser, ID: "user-1"}}, nil
			}},
		{Name: "final_audit", Ordinal: 2, Timeout: time.Second, Action: passAction()},
	}
	f := newFixture(t, orchConfig(), steps, nil)

	run := f.orch.Run(ctx)

	if run.Results[1].Status != domain.StepSkipped {
		t.Fatalf("final_audit: expected skipped after cancel, got %s", run.Results[1].Status)
	}
	if f.cleaner.calls != 1 {
		t.Fatal("cleanup must run on a detached context after cancel")
	}
	if f.notifier.calls != 1 {
		t.Fatalf("expected exactly one notification, got %d", f.notifier.calls)
	}
	if run.State != domain.RunStateDone {
		t.Fatalf("run must still finish, got %s", run.State)
	}
}
