package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/maxeo-labs/canary-go/internal/report"
)

const sentryFlushTimeout = 5 * time.Second

// InitSentry configures the error-tracking sink. A blank DSN leaves it
// disabled.
func InitSentry(dsn, environment string) (bool, error) {
	if strings.TrimSpace(dsn) == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return false, fmt.Errorf("init sentry: %w", err)
	}
	return true, nil
}

// captureRun sends one event for a run that did not pass, with the
// context an on-call responder needs before opening anything else.
func captureRun(r report.Report) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("canary_run", r.RunID)
		scope.SetTag("verdict", r.Verdict)
		if r.FailedStep != "" {
			scope.SetTag("failed_step", r.FailedStep)
		}
		scope.SetContext("run", sentry.Context{
			"run_id":           r.RunID,
			"verdict":          r.Verdict,
			"duration_seconds": r.DurationSeconds,
			"failed_step":      r.FailedStep,
			"error":            errorDetail(r),
		})
		if r.Store != nil {
			scope.SetContext("store", sentry.Context{
				"workspace_id":     r.Store.WorkspaceID,
				"workspace_status": r.Store.WorkspaceStatus,
				"categories":       r.Store.Categories,
				"prompts":          r.Store.Prompts,
				"competitors":      r.Store.Competitors,
				"snapshot_status":  r.Store.SnapshotStatus,
			})
		}
		level := sentry.LevelError
		if r.Verdict == "degraded" {
			level = sentry.LevelWarning
		}
		scope.SetLevel(level)
		sentry.CaptureMessage(fmt.Sprintf("canary run %s: %s", r.RunID, strings.ToUpper(r.Verdict)))
	})
	sentry.Flush(sentryFlushTimeout)
}
