package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/maxeo-labs/canary-go/internal/domain"
	"github.com/maxeo-labs/canary-go/internal/report"
)

// Publisher assembles the run report and delivers it. It is the single
// notifier the orchestrator invokes, exactly once per run.
type Publisher struct {
	slack      *SlackClient
	archive    string
	minPrompts int
	sentry     bool
	log        *slog.Logger
}

type Options struct {
	SlackWebhook string
	SentryDSN    string
	Environment  string
	ArchivePath  string
	MinPrompts   int
	Log          *slog.Logger
}

// NewPublisher wires the delivery channels. A failed Sentry init
// disables that sink rather than failing the run.
func NewPublisher(o Options) *Publisher {
	log := o.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "alert")

	sentryOn, err := InitSentry(o.SentryDSN, o.Environment)
	if err != nil {
		log.Warn("sentry disabled", "error", err)
	}

	return &Publisher{
		slack:      NewSlackClient(o.SlackWebhook),
		archive:    o.ArchivePath,
		minPrompts: o.MinPrompts,
		sentry:     sentryOn,
		log:        log,
	}
}

// Notify builds and delivers the report. Transport problems are logged
// and swallowed; the report always lands somewhere, at worst in the
// process log.
func (p *Publisher) Notify(ctx context.Context, run *domain.Run, obs *domain.Observations) {
	r := report.Build(run, obs, report.Params{MinPrompts: p.minPrompts})

	p.log.Info("run report",
		"run", r.RunID,
		"verdict", r.Verdict,
		"duration_seconds", r.DurationSeconds,
		"failed_step", r.FailedStep,
		"warnings", len(r.Warnings),
		"anomalies", len(r.Anomalies))

	delivered := false
	if p.slack.Enabled() {
		if err := p.slack.Post(ctx, BuildMessage(r)); err != nil {
			p.log.Error("slack delivery failed", "error", err)
		} else {
			delivered = true
		}
	}
	if !delivered {
		p.logReport(r)
	}

	if p.sentry && r.Verdict != string(domain.VerdictSuccess) {
		captureRun(r)
	}

	if p.archive != "" {
		if err := report.AppendFile(p.archive, r); err != nil {
			p.log.Warn("report archive append failed", "path", p.archive, "error", err)
		}
	}
}

func (p *Publisher) logReport(r report.Report) {
	payload, err := json.Marshal(r)
	if err != nil {
		p.log.Error("report marshal failed", "error", err)
		return
	}
	p.log.Info("run report payload", "report", string(payload))
}

// NotifyStartupFailure posts a minimal alert when the probe cannot even
// assemble a run, such as on broken configuration. The runner calls it
// before any orchestrator exists.
func NotifyStartupFailure(ctx context.Context, webhook string, cause error, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	client := NewSlackClient(webhook)
	if !client.Enabled() {
		log.Error("startup failed and no webhook configured", "error", cause)
		return
	}
	msg := Message{
		Text: fmt.Sprintf("Canary failed to start: %v", cause),
		Attachments: []Attachment{{
			Color: colorFailure,
			Blocks: []Block{
				headerBlock(":rotating_light: Canary Startup FAILED"),
				section(fmt.Sprintf("```%v```", cause)),
			},
		}},
	}
	if err := client.Post(ctx, msg); err != nil {
		log.Error("startup failure alert not delivered", "error", err, "cause", cause)
	}
}
