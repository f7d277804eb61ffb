package canary

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/maxeo-labs/canary-go/internal/domain"
	"github.com/maxeo-labs/canary-go/internal/evidence"
	"github.com/maxeo-labs/canary-go/internal/flow"
)

const (
	defaultPollInterval = 5 * time.Second

	// queryTimeout bounds a single predicate poll; the step budget bounds
	// the whole wait.
	queryTimeout = 5 * time.Second

	// maxBackoff caps the linear retry backoff so a generous base cannot
	// eat a step's whole window.
	maxBackoff = 10 * time.Second

	// evidenceTimeout is a fresh budget for capturing evidence after the
	// step context is already dead.
	evidenceTimeout = 15 * time.Second
)

// Executor turns one step definition into one sealed result. The action
// runs under the step's retry budget, then the predicate is polled on a
// fixed interval; whichever phase gives up decides the status. Artifact
// refs handed back by either phase are recorded on the run the moment
// they appear.
type Executor struct {
	rt       *flow.Runtime
	evidence evidence.Store
	poll     time.Duration
	tail     func() []string
	log      *slog.Logger
	now      func() time.Time
}

func NewExecutor(rt *flow.Runtime, store evidence.Store, poll time.Duration, tail func() []string, log *slog.Logger) *Executor {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	if log == nil {
		log = slog.Default()
	}
	now := time.Now
	if rt != nil && rt.Now != nil {
		now = rt.Now
	}
	return &Executor{
		rt:       rt,
		evidence: store,
		poll:     poll,
		tail:     tail,
		log:      log,
		now:      now,
	}
}

// Execute runs one step to its sealed result. The budget is the step
// timeout clipped to what remains of the run deadline; exceeding either
// seals TimedOut.
func (e *Executor) Execute(ctx context.Context, step flow.Step, run *domain.Run) domain.StepResult {
	started := e.now()
	res := domain.StepResult{
		Name:      step.Name,
		Ordinal:   step.Ordinal,
		Fatal:     step.Fatal,
		StartedAt: started,
		EndedAt:   started,
	}
	log := e.log.With("step", step.Name)

	if step.Skip {
		res.Status = domain.StepSkipped
		log.Info("step skipped by configuration")
		return res
	}

	budget := step.Timeout
	if remaining := run.Remaining(started); remaining < budget {
		budget = remaining
	}
	if budget <= 0 {
		return e.fail(step, run, &res, domain.StepTimedOut, "run deadline exceeded", log)
	}

	stepCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	if step.Action != nil {
		status, detail := e.runAction(stepCtx, step, run, &res.Attempts, log)
		if status != domain.StepPassed {
			return e.fail(step, run, &res, status, detail, log)
		}
	} else {
		res.Attempts = 1
	}

	if step.Predicate != nil {
		if run.State == domain.RunStateRunning {
			if err := run.Transition(domain.RunStateVerifying); err != nil {
				log.Error("state transition", "error", err)
			}
		}
		status, detail := e.runPredicate(stepCtx, step, run, log)
		if status != domain.StepPassed {
			return e.fail(step, run, &res, status, detail, log)
		}
	}

	res.Status = domain.StepPassed
	res.EndedAt = e.now()
	return res
}

// runAction drives the browser work, retrying transient failures until
// the budget runs out. A dead step context ends the loop immediately:
// retrying into an expired window only burns the next step's time.
func (e *Executor) runAction(ctx context.Context, step flow.Step, run *domain.Run, attempts *int, log *slog.Logger) (domain.StepStatus, string) {
	var lastErr error
	for attempt := 1; attempt <= step.Retries+1; attempt++ {
		*attempts = attempt
		refs, err := step.Action(ctx, e.rt, run)
		e.record(run, refs)
		if err == nil {
			return domain.StepPassed, ""
		}
		lastErr = err

		if ctx.Err() != nil {
			log.Warn("step action timed out", "attempt", attempt, "error", err)
			return domain.StepTimedOut, err.Error()
		}
		log.Warn("step action failed", "attempt", attempt, "error", err)

		if attempt <= step.Retries {
			if !e.sleep(ctx, backoffFor(step.Backoff, attempt)) {
				return domain.StepTimedOut, lastErr.Error()
			}
		}
	}
	return domain.StepFailed, lastErr.Error()
}

// runPredicate polls the database condition on a fixed interval. The
// first check happens immediately so fast backends do not pay a full
// tick. A predicate error is terminal for the step: the condition
// queries are scoped to this run's rows and an error there is signal,
// not noise.
func (e *Executor) runPredicate(ctx context.Context, step flow.Step, run *domain.Run, log *slog.Logger) (domain.StepStatus, string) {
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()

	for {
		queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
		done, refs, err := step.Predicate(queryCtx, e.rt, run)
		cancel()
		e.record(run, refs)

		if err != nil {
			if ctx.Err() != nil {
				log.Warn("step verification timed out", "error", err)
				return domain.StepTimedOut, err.Error()
			}
			log.Warn("step verification failed", "error", err)
			return domain.StepFailed, err.Error()
		}
		if done {
			return domain.StepPassed, ""
		}

		select {
		case <-ctx.Done():
			log.Warn("step verification timed out")
			return domain.StepTimedOut, "condition not observed before timeout"
		case <-ticker.C:
		}
	}
}

func (e *Executor) fail(step flow.Step, run *domain.Run, res *domain.StepResult, status domain.StepStatus, detail string, log *slog.Logger) domain.StepResult {
	res.Status = status
	res.Error = detail
	res.EndedAt = e.now()
	e.capture(step, run, log)
	return *res
}

func (e *Executor) record(run *domain.Run, refs []domain.ArtifactRef) {
	for _, ref := range refs {
		if ref.RecordedAt.IsZero() {
			ref.RecordedAt = e.now()
		}
		run.RecordArtifact(ref)
	}
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func backoffFor(base time.Duration, attempt int) time.Duration {
	d := base * time.Duration(attempt)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// capture persists failure evidence under a fresh context: the step
// context is already dead by the time a failed result is sealed, and the
// pages the evidence describes must be read before cleanup tears them
// down.
func (e *Executor) capture(step flow.Step, run *domain.Run, log *slog.Logger) {
	if e.evidence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), evidenceTimeout)
	defer cancel()

	if e.rt != nil && e.rt.Browser != nil {
		if png, err := e.rt.Browser.Screenshot(ctx); err != nil {
			log.Warn("evidence screenshot", "error", err)
		} else {
			e.save(ctx, run, evidence.Item{
				RunID:       run.ID,
				Step:        step.Name,
				Kind:        evidence.KindScreenshot,
				ContentType: "image/png",
				Body:        png,
			}, log)
		}
		if html, err := e.rt.Browser.PageSource(ctx); err != nil {
			log.Warn("evidence page source", "error", err)
		} else {
			e.save(ctx, run, evidence.Item{
				RunID:       run.ID,
				Step:        step.Name,
				Kind:        evidence.KindPageSource,
				ContentType: "text/html",
				Body:        []byte(html),
			}, log)
		}
	}

	if body := e.tailBody(); len(body) > 0 {
		e.save(ctx, run, evidence.Item{
			RunID:       run.ID,
			Step:        step.Name,
			Kind:        evidence.KindLogTail,
			ContentType: "text/plain",
			Body:        body,
		}, log)
	}
}

// tailBody joins the recent process log with the browser console so one
// artifact shows both sides of the failure.
func (e *Executor) tailBody() []byte {
	var sections []string
	if e.tail != nil {
		if lines := e.tail(); len(lines) > 0 {
			sections = append(sections, "-- process log --")
			sections = append(sections, lines...)
		}
	}
	if e.rt != nil && e.rt.Browser != nil {
		if lines := e.rt.Browser.ConsoleTail(); len(lines) > 0 {
			sections = append(sections, "-- browser console --")
			sections = append(sections, lines...)
		}
	}
	if len(sections) == 0 {
		return nil
	}
	return []byte(strings.Join(sections, "\n"))
}

func (e *Executor) save(ctx context.Context, run *domain.Run, item evidence.Item, log *slog.Logger) {
	ref, err := e.evidence.Save(ctx, item)
	if err != nil {
		log.Warn("evidence save", "kind", item.Kind, "error", err)
		return
	}
	run.RecordEvidence(ref)
}
