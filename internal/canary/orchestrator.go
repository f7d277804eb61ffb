package canary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maxeo-labs/canary-go/internal/domain"
	"github.com/maxeo-labs/canary-go/internal/evidence"
	"github.com/maxeo-labs/canary-go/internal/flow"
	"github.com/maxeo-labs/canary-go/internal/platform/runid"
	"github.com/maxeo-labs/canary-go/internal/preflight"
)

// Cleaner removes the rows a run created. Implementations attach
// warnings to the run and never fail the caller.
type Cleaner interface {
	Cleanup(ctx context.Context, run *domain.Run)
}

// Notifier publishes the run outcome. It is called exactly once per run
// on every path and must swallow transport problems: a run that cannot
// alert still has its exit code.
type Notifier interface {
	Notify(ctx context.Context, run *domain.Run, obs *domain.Observations)
}

const (
	preflightCheckTimeout = 5 * time.Second
	cleanupTimeout        = 60 * time.Second
	notifyTimeout         = 30 * time.Second
)

// Params collects everything one run needs.
type Params struct {
	Config    Config
	Runtime   *flow.Runtime
	Steps     []flow.Step
	Evidence  evidence.Store
	LogTail   func() []string
	Cleaner   Cleaner
	Notifier  Notifier
	Preflight []preflight.Check
	Log       *slog.Logger
}

// Orchestrator walks one run through its lifecycle: initializing, then
// running and verifying each step in order, then cleaning up, reporting,
// done. Every path ends in Reporting with exactly one notification; the
// run's verdict is sealed before cleanup starts.
type Orchestrator struct {
	cfg      Config
	rt       *flow.Runtime
	steps    []flow.Step
	exec     *Executor
	cleaner  Cleaner
	notifier Notifier
	checks   []preflight.Check
	log      *slog.Logger
	now      func() time.Time
}

func NewOrchestrator(p Params) (*Orchestrator, error) {
	if p.Runtime == nil {
		return nil, errors.New("runtime is required")
	}
	if p.Cleaner == nil {
		return nil, errors.New("cleaner is required")
	}
	if p.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if err := flow.Validate(p.Steps); err != nil {
		return nil, err
	}

	log := p.Log
	if log == nil {
		log = slog.Default()
	}
	now := time.Now
	if p.Runtime.Now != nil {
		now = p.Runtime.Now
	}

	return &Orchestrator{
		cfg:      p.Config,
		rt:       p.Runtime,
		steps:    p.Steps,
		exec:     NewExecutor(p.Runtime, p.Evidence, p.Config.PollInterval, p.LogTail, log),
		cleaner:  p.Cleaner,
		notifier: p.Notifier,
		checks:   p.Preflight,
		log:      log.With("component", "orchestrator"),
		now:      now,
	}, nil
}

// Run executes one complete canary run and returns it finished: state
// Done, verdict sealed, one result per step. Failures along the way
// become step results or the run's Err, never a returned error.
func (o *Orchestrator) Run(ctx context.Context) *domain.Run {
	start := o.now()

	var initErr error
	id, err := runid.New(start)
	if err != nil {
		// Without a random suffix the run has no isolated namespace on
		// the shared backend, so nothing may be touched.
		id = fmt.Sprintf("canary-%d-seed", start.Unix())
		initErr = err
	}
	run := domain.NewRun(id, runid.Email(id, o.cfg.EmailDomain), start, o.cfg.RunDeadline)
	o.log.Info("run starting",
		"run_id", run.ID,
		"email", run.Email,
		"deadline", run.Deadline.Format(time.RFC3339),
		"steps", len(o.steps))

	if initErr == nil {
		initErr = o.runPreflight(ctx)
	}
	if initErr != nil {
		run.Err = initErr.Error()
		o.log.Error("initialization failed", "error", initErr)
		o.sealSkipped(run, o.steps)
	} else {
		o.mustTransition(run, domain.RunStateRunning)
		o.runSteps(ctx, run)
	}

	// The verdict is fixed here; cleanup and reporting cannot change it.
	run.Verdict = domain.DeriveVerdict(run.Results)

	o.mustTransition(run, domain.RunStateCleaningUp)
	o.runCleanup(ctx, run)

	o.mustTransition(run, domain.RunStateReporting)
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	o.notifier.Notify(notifyCtx, run, o.rt.Observed)
	cancel()

	o.mustTransition(run, domain.RunStateDone)
	run.EndedAt = o.now()
	o.log.Info("run finished",
		"run_id", run.ID,
		"verdict", string(run.Verdict),
		"duration", run.Duration(),
		"artifacts", len(run.Artifacts),
		"warnings", len(run.Warnings))
	return run
}

func (o *Orchestrator) runPreflight(ctx context.Context) error {
	if len(o.checks) == 0 {
		return nil
	}
	_, err := preflight.Run(ctx, o.log, preflightCheckTimeout, o.checks...)
	return err
}

func (o *Orchestrator) runSteps(ctx context.Context, run *domain.Run) {
	for i, step := range o.steps {
		if run.State == domain.RunStateVerifying {
			o.mustTransition(run, domain.RunStateRunning)
		}

		if ctx.Err() != nil {
			o.log.Warn("run context canceled", "from_step", step.Name)
			o.sealSkipped(run, o.steps[i:])
			return
		}
		if run.DeadlineExceeded(o.now()) {
			o.log.Warn("run deadline exceeded", "from_step", step.Name)
			o.sealSkipped(run, o.steps[i:])
			return
		}

		res := o.exec.Execute(ctx, step, run)
		o.seal(run, res)

		if res.IsFailure() && step.Fatal {
			o.log.Error("fatal step failed",
				"step", step.Name,
				"status", string(res.Status),
				"error", res.Error)
			o.sealSkipped(run, o.steps[i+1:])
			return
		}
	}
}

func (o *Orchestrator) runCleanup(ctx context.Context, run *domain.Run) {
	if !o.cfg.AutoCleanup {
		o.log.Warn("auto cleanup disabled, leaving artifacts behind", "artifacts", len(run.Artifacts))
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	o.cleaner.Cleanup(cleanupCtx, run)
}

func (o *Orchestrator) seal(run *domain.Run, res domain.StepResult) {
	if err := run.RecordResult(res); err != nil {
		o.log.Error("seal result", "step", res.Name, "error", err)
		return
	}
	o.log.Info("step sealed",
		"step", res.Name,
		"status", string(res.Status),
		"attempts", res.Attempts,
		"elapsed", res.Duration())
}

func (o *Orchestrator) sealSkipped(run *domain.Run, steps []flow.Step) {
	now := o.now()
	for _, step := range steps {
		if _, ok := run.Result(step.Name); ok {
			continue
		}
		o.seal(run, domain.StepResult{
			Name:      step.Name,
			Ordinal:   step.Ordinal,
			Fatal:     step.Fatal,
			Status:    domain.StepSkipped,
			StartedAt: now,
			EndedAt:   now,
		})
	}
}

// mustTransition keeps the lifecycle moving even past a bad edge, which
// would be an orchestrator bug: the run must still reach Reporting.
func (o *Orchestrator) mustTransition(run *domain.Run, next domain.RunState) {
	if err := run.Transition(next); err != nil {
		o.log.Error("state transition", "error", err)
		run.State = next
	}
}
