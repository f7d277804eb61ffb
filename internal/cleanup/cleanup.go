// Package cleanup removes the rows a probe run created on the shared
// backend. Deletes are soft and idempotent: a row that is already gone
// counts as cleaned, and one failed delete never stops the rest. The
// run verdict is sealed before cleanup starts, so nothing here can
// change it; failures surface as warnings on the run instead.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/maxeo-labs/canary-go/internal/domain"
	"github.com/maxeo-labs/canary-go/internal/repo"
)

type Agent struct {
	db  repo.Cleaner
	log *slog.Logger
}

func NewAgent(db repo.Cleaner, log *slog.Logger) *Agent {
	if log == nil {
		log = slog.Default()
	}
	return &Agent{db: db, log: log.With("component", "cleanup")}
}

// Cleanup walks the run's recorded artifacts in reverse creation order,
// so dependent rows go before the rows they reference. Every artifact
// is attempted exactly once.
func (a *Agent) Cleanup(ctx context.Context, run *domain.Run) {
	if len(run.Artifacts) == 0 {
		a.log.Info("nothing to clean", "run", run.ID)
		return
	}

	for i := len(run.Artifacts) - 1; i >= 0; i-- {
		ref := run.Artifacts[i]

		var (
			done bool
			err  error
		)
		switch ref.Kind {
		case domain.ArtifactWorkspace:
			done, err = a.db.SoftDeleteWorkspace(ctx, ref.ID)
		case domain.ArtifactUser:
			done, err = a.db.SoftDeleteUser(ctx, ref.ID)
		default:
			run.AddWarning(domain.CleanupWarning{
				Resource: ref.Kind,
				ID:       ref.ID,
				Message:  "no delete handler for artifact kind",
			})
			a.log.Warn("unknown artifact kind", "kind", ref.Kind, "id", ref.ID)
			continue
		}

		if err != nil {
			run.AddWarning(domain.CleanupWarning{
				Resource: ref.Kind,
				ID:       ref.ID,
				Message:  err.Error(),
			})
			a.log.Warn("cleanup failed", "kind", ref.Kind, "id", ref.ID, "error", err)
			continue
		}
		if !done {
			a.log.Info("already absent", "kind", ref.Kind, "id", ref.ID)
			continue
		}
		a.log.Info("soft deleted", "kind", ref.Kind, "id", ref.ID)
	}
}

// SweepReport summarizes one pass over leftover rows from earlier runs.
type SweepReport struct {
	WorkspacesDeleted int
	UsersDeleted      int
	AlreadyAbsent     int
	Failures          int
}

// Sweep soft-deletes rows in the probe's email namespace older than the
// cutoff. It is the safety net for runs that died before their own
// cleanup; the namespace filter keeps it away from real customer data.
func (a *Agent) Sweep(ctx context.Context, filter repo.StaleFilter) (SweepReport, error) {
	var report SweepReport

	workspaces, err := a.db.StaleWorkspaces(ctx, filter)
	if err != nil {
		return report, err
	}
	for _, row := range workspaces {
		done, err := a.db.SoftDeleteWorkspace(ctx, row.ID)
		switch {
		case err != nil:
			report.Failures++
			a.log.Warn("stale workspace delete failed", "id", row.ID, "email", row.Email, "error", err)
		case done:
			report.WorkspacesDeleted++
			a.log.Info("stale workspace deleted", "id", row.ID, "email", row.Email)
		default:
			report.AlreadyAbsent++
		}
	}

	users, err := a.db.StaleUsers(ctx, filter)
	if err != nil {
		return report, err
	}
	for _, row := range users {
		done, err := a.db.SoftDeleteUser(ctx, row.ID)
		switch {
		case err != nil:
			report.Failures++
			a.log.Warn("stale user delete failed", "id", row.ID, "email", row.Email, "error", err)
		case done:
			report.UsersDeleted++
			a.log.Info("stale user deleted", "id", row.ID, "email", row.Email)
		default:
			report.AlreadyAbsent++
		}
	}

	return report, nil
}

// Cutoff converts a retention window into the absolute bound Sweep
// filters on.
func Cutoff(now time.Time, keep time.Duration) time.Time {
	return now.Add(-keep)
}
