package domain

import (
	"fmt"
	"time"
)

// Artifact kinds the flow can leave behind in the product database.
// Cleanup walks these in reverse recording order.
const (
	ArtifactUser      = "user"
	ArtifactWorkspace = "workspace"
)

// ArtifactRef names one row the run created, recorded the moment the row
// is first observed so cleanup can find it even when the run dies later.
type ArtifactRef struct {
	Kind       string    `json:"kind"`
	ID         string    `json:"id"`
	Label      string    `json:"label,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// EvidenceRef points at a captured diagnostic object (screenshot, page
// source, log tail) in the evidence store.
type EvidenceRef struct {
	Step        string    `json:"step"`
	Kind        string    `json:"kind"`
	Key         string    `json:"key"`
	SHA256      string    `json:"sha256"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	CapturedAt  time.Time `json:"captured_at"`
}

// CleanupWarning records a cleanup action that could not be completed.
// Warnings are reported but never change the run verdict.
type CleanupWarning struct {
	Resource string `json:"resource"`
	ID       string `json:"id"`
	Message  string `json:"message"`
}

// Run is the single mutable context of one probe execution. The
// orchestrator owns it exclusively; steps hand their observations back
// as return values and the orchestrator records them here.
type Run struct {
	ID        string
	Email     string
	StartedAt time.Time
	Deadline  time.Time
	EndedAt   time.Time

	State     RunState
	Verdict   Verdict
	Results   []StepResult
	Artifacts []ArtifactRef
	Evidence  []EvidenceRef
	Warnings  []CleanupWarning
	Marks     map[string]time.Time

	// Err holds a failure that happened outside any step, such as a
	// preflight probe refusing to pass.
	Err string
}

func NewRun(id, email string, startedAt time.Time, deadline time.Duration) *Run {
	return &Run{
		ID:        id,
		Email:     email,
		StartedAt: startedAt,
		Deadline:  startedAt.Add(deadline),
		State:     RunStateInitializing,
		Marks:     make(map[string]time.Time),
	}
}

// Transition moves the run to next, rejecting edges the lifecycle does
// not allow.
func (r *Run) Transition(next RunState) error {
	if !CanTransitionRunState(r.State, next) {
		return fmt.Errorf("run state %s cannot transition to %s", r.State, next)
	}
	r.State = next
	return nil
}

// RecordResult seals a step outcome. A step may be recorded once.
func (r *Run) RecordResult(res StepResult) error {
	for _, existing := range r.Results {
		if existing.Name == res.Name {
			return fmt.Errorf("step %s already recorded", res.Name)
		}
	}
	r.Results = append(r.Results, res)
	return nil
}

// RecordArtifact remembers a created row, ignoring duplicates so that
// poll loops can report the same row on every tick.
func (r *Run) RecordArtifact(ref ArtifactRef) {
	for _, existing := range r.Artifacts {
		if existing.Kind == ref.Kind && existing.ID == ref.ID {
			return
		}
	}
	r.Artifacts = append(r.Artifacts, ref)
}

func (r *Run) RecordEvidence(ref EvidenceRef) {
	r.Evidence = append(r.Evidence, ref)
}

func (r *Run) AddWarning(w CleanupWarning) {
	r.Warnings = append(r.Warnings, w)
}

// Mark stores a named timestamp the first time it is seen. Loading
// metrics are computed from pairs of marks after the run.
func (r *Run) Mark(name string, t time.Time) {
	if _, ok := r.Marks[name]; ok {
		return
	}
	r.Marks[name] = t
}

// Remaining returns how much of the run budget is left at now.
func (r *Run) Remaining(now time.Time) time.Duration {
	return r.Deadline.Sub(now)
}

func (r *Run) DeadlineExceeded(now time.Time) bool {
	return !now.Before(r.Deadline)
}

// Result returns the sealed result for a step name, if present.
func (r *Run) Result(name string) (StepResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return StepResult{}, false
}

func (r *Run) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
