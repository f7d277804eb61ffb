package domain

import (
	"testing"
	"time"
)

func testRun() *Run {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return NewRun("canary-1748779200-ab12", "canary-1748779200-ab12@canary.maxeo.ai", start, 15*time.Minute)
}

func TestRunTransition(t *testing.T) {
	run := testRun()
	if run.State != RunStateInitializing {
		t.Fatalf("new run state=%s, want initializing", run.State)
	}

	for _, next := range []RunState{RunStateRunning, RunStateVerifying, RunStateRunning, RunStateCleaningUp, RunStateReporting, RunStateDone} {
		if err := run.Transition(next); err != nil {
			t.Fatalf("Transition(%s) err=%v", next, err)
		}
	}

	if err := run.Transition(RunStateRunning); err == nil {
		t.Fatalf("Transition out of done expected error")
	}
}

func TestRecordResult_SealsOnce(t *testing.T) {
	run := testRun()
	if err := run.RecordResult(result("landing", true, StepPassed)); err != nil {
		t.Fatalf("RecordResult() err=%v", err)
	}
	if err := run.RecordResult(result("landing", true, StepFailed)); err == nil {
		t.Fatalf("RecordResult() expected error on second seal")
	}
	got, ok := run.Result("landing")
	if !ok || got.Status != StepPassed {
		t.Fatalf("Result(landing)=(%+v,%v), want sealed pass", got, ok)
	}
}

func TestRecordArtifact_Dedupes(t *testing.T) {
	run := testRun()
	ref := ArtifactRef{Kind: ArtifactWorkspace, ID: "ws-1"}
	run.RecordArtifact(ref)
	run.RecordArtifact(ref)
	run.RecordArtifact(ArtifactRef{Kind: ArtifactUser, ID: "u-1"})

	if len(run.Artifacts) != 2 {
		t.Fatalf("Artifacts len=%d, want 2", len(run.Artifacts))
	}
}

func TestMark_FirstWriteWins(t *testing.T) {
	run := testRun()
	first := run.StartedAt.Add(10 * time.Second)
	run.Mark("form_submitted", first)
	run.Mark("form_submitted", first.Add(time.Minute))

	if got := run.Marks["form_submitted"]; !got.Equal(first) {
		t.Fatalf("Marks[form_submitted]=%v, want %v", got, first)
	}
}

func TestDeadline(t *testing.T) {
	run := testRun()
	inside := run.StartedAt.Add(14 * time.Minute)
	outside := run.StartedAt.Add(15 * time.Minute)

	if run.DeadlineExceeded(inside) {
		t.Fatalf("DeadlineExceeded(inside)=true")
	}
	if !run.DeadlineExceeded(outside) {
		t.Fatalf("DeadlineExceeded(at deadline)=false")
	}
	if got := run.Remaining(inside); got != time.Minute {
		t.Fatalf("Remaining()=%v, want 1m", got)
	}
}
