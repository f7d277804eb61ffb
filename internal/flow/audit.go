package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxeo-labs/canary-go/internal/domain"
)

const (
	auditSampleLimit  = 10
	auditSlowestLimit = 5
)

type auditor struct {
	checks []domain.AuditCheck
}

func (a *auditor) record(name string, passed bool, detail string) {
	a.checks = append(a.checks, domain.AuditCheck{Name: name, Passed: passed, Detail: detail})
}

func (a *auditor) failed() []string {
	var names []string
	for _, c := range a.checks {
		if !c.Passed {
			names = append(names, c.Name)
		}
	}
	return names
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// finalAudit re-verifies straight from the database everything the flow
// claims to have caused, and pulls the usage numbers the report shows.
// Each failed check is named in the step error.
func finalAudit(ctx context.Context, rt *Runtime, run *domain.Run) ([]domain.ArtifactRef, error) {
	a := &auditor{}

	_, err := rt.DB.UserByEmail(ctx, run.Email)
	a.record("user_exists", err == nil, errDetail(err))

	ws, ok := workspaceRef(run)
	a.record("workspace_exists", ok, "")
	if !ok {
		rt.Observed.Audit = a.checks
		return nil, fmt.Errorf("audit failed: %s", strings.Join(a.failed(), ", "))
	}

	status, err := rt.DB.WorkspaceStatus(ctx, ws.ID)
	if err != nil {
		a.record("workspace_completed", false, errDetail(err))
	} else {
		rt.Observed.WorkspaceStatus = status
		a.record("workspace_completed", status == domain.WorkspaceStatusCompleted, "status "+status)
	}

	categories, err := rt.DB.CategoryCount(ctx, ws.ID)
	if err != nil {
		a.record("categories_populated", false, errDetail(err))
	} else {
		rt.Observed.CategoryCount = categories
		a.record("categories_populated", categories >= rt.Config.MinCategories,
			fmt.Sprintf("%d (min %d)", categories, rt.Config.MinCategories))
	}

	prompts, err := rt.DB.PromptCount(ctx, ws.ID)
	if err != nil {
		a.record("prompts_populated", false, errDetail(err))
	} else {
		rt.Observed.PromptCount = prompts
		a.record("prompts_populated", prompts >= rt.Config.MinPrompts,
			fmt.Sprintf("%d (min %d)", prompts, rt.Config.MinPrompts))
	}

	snap, err := rt.DB.LatestSnapshot(ctx, ws.ID)
	if err != nil {
		a.record("snapshot_completed", false, errDetail(err))
		a.record("snapshot_prompts_settled", false, "no snapshot")
	} else {
		rt.Observed.SnapshotStatus = snap.Status
		a.record("snapshot_completed", snap.Status == domain.SnapshotStatusCompleted, "status "+snap.Status)

		counts, err := rt.DB.SnapshotPromptCounts(ctx, snap.ID)
		if err != nil {
			a.record("snapshot_prompts_settled", false, errDetail(err))
		} else {
			rt.Observed.PromptCounts = counts
			a.record("snapshot_prompts_settled", counts.Settled() && counts.Failed == 0,
				fmt.Sprintf("%d total, %d pending, %d processing, %d failed",
					counts.Total, counts.Pending, counts.Processing, counts.Failed))
		}
	}

	minCompetitors := rt.Config.MinCompetitors
	if minCompetitors <= 0 {
		minCompetitors = 1
	}
	competitors, err := rt.DB.CompetitorCount(ctx, ws.ID)
	if err != nil {
		a.record("competitors_found", false, errDetail(err))
	} else {
		rt.Observed.CompetitorCount = competitors
		a.record("competitors_found", competitors >= minCompetitors,
			fmt.Sprintf("%d (min %d)", competitors, minCompetitors))
	}

	// Sample lists and usage numbers are informational. A failed read
	// costs the report detail, not the audit.
	if list, err := rt.DB.Categories(ctx, ws.ID, auditSampleLimit); err != nil {
		rt.Log.Warn("audit: list categories", "error", err)
	} else {
		rt.Observed.Categories = list
	}
	if list, err := rt.DB.Prompts(ctx, ws.ID, auditSampleLimit); err != nil {
		rt.Log.Warn("audit: list prompts", "error", err)
	} else {
		rt.Observed.Prompts = list
	}
	if list, err := rt.DB.Competitors(ctx, ws.ID, auditSampleLimit); err != nil {
		rt.Log.Warn("audit: list competitors", "error", err)
	} else {
		rt.Observed.Competitors = list
	}
	if usage, err := rt.DB.ModelUsage(ctx, ws.ID); err != nil {
		rt.Log.Warn("audit: model usage", "error", err)
	} else {
		rt.Observed.Usage = usage
	}
	if slowest, err := rt.DB.SlowestInvocations(ctx, ws.ID, auditSlowestLimit); err != nil {
		rt.Log.Warn("audit: slowest invocations", "error", err)
	} else {
		rt.Observed.Slowest = slowest
	}

	rt.Observed.Audit = a.checks
	if failed := a.failed(); len(failed) > 0 {
		return nil, fmt.Errorf("audit failed: %s", strings.Join(failed, ", "))
	}
	return nil, nil
}
