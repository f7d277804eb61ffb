package domain

import (
	"strings"
	"time"
)

// StepStatus is the sealed outcome of one flow step.
type StepStatus string

const (
	// StepPassed means the action ran and, where one exists, the
	// database predicate confirmed the expected state.
	StepPassed StepStatus = "passed"
	// StepFailed means the action kept failing after its retry budget
	// was spent.
	StepFailed StepStatus = "failed"
	// StepTimedOut means the step's own window or the run deadline
	// expired before the action or predicate finished.
	StepTimedOut StepStatus = "timed_out"
	// StepSkipped means the step never ran: either configuration
	// disabled it or an earlier fatal failure ended the flow.
	StepSkipped StepStatus = "skipped"
)

func NormalizeStepStatus(v string) (StepStatus, bool) {
	switch StepStatus(strings.ToLower(strings.TrimSpace(v))) {
	case StepPassed:
		return StepPassed, true
	case StepFailed:
		return StepFailed, true
	case StepTimedOut:
		return StepTimedOut, true
	case StepSkipped:
		return StepSkipped, true
	default:
		return "", false
	}
}

// StepResult is the immutable record of one step's execution. It is
// created exactly once, when the step reaches a terminal status, and
// never modified afterwards.
type StepResult struct {
	Name      string
	Ordinal   int
	Fatal     bool
	Status    StepStatus
	Attempts  int
	StartedAt time.Time
	EndedAt   time.Time
	Error     string
}

func (r StepResult) Duration() time.Duration {
	if r.EndedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// IsFailure reports whether the result counts against the run verdict.
func (r StepResult) IsFailure() bool {
	return r.Status == StepFailed || r.Status == StepTimedOut
}
