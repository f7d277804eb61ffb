package domain

// Verdict is the overall outcome of a run.
type Verdict string

const (
	VerdictSuccess  Verdict = "success"
	VerdictDegraded Verdict = "degraded"
	VerdictFailure  Verdict = "failure"
)

// DeriveVerdict reduces sealed step results to a verdict. It looks at
// nothing but the (status, fatal) pairs:
//
//   - a fatal step that failed or timed out makes the run a failure
//   - otherwise any failed or timed out step degrades the run
//   - otherwise the run succeeded
//
// A run in which nothing executed proved nothing, so an empty or
// all-skipped result set is a failure.
func DeriveVerdict(results []StepResult) Verdict {
	executed := 0
	degraded := false
	for _, r := range results {
		if r.Status != StepSkipped {
			executed++
		}
		if r.IsFailure() {
			if r.Fatal {
				return VerdictFailure
			}
			degraded = true
		}
	}
	if executed == 0 {
		return VerdictFailure
	}
	if degraded {
		return VerdictDegraded
	}
	return VerdictSuccess
}
