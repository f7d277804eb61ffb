package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/maxeo-labs/canary-go/internal/domain"
	"github.com/maxeo-labs/canary-go/internal/repo"
)

// workspaceReadyStatuses are the provisioning stages in which categories
// and prompts are expected to be populated.
var workspaceReadyStatuses = map[string]bool{
	domain.WorkspaceStatusInterStep1: true,
	domain.WorkspaceStatusInterStep2: true,
	domain.WorkspaceStatusCompleted:  true,
}

// userCreated proves the signup form produced a user row for the run's
// email. Not found means not yet, keep polling.
func userCreated(ctx context.Context, rt *Runtime, run *domain.Run) (bool, []domain.ArtifactRef, error) {
	user, err := rt.DB.UserByEmail(ctx, run.Email)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("user by email: %w", err)
	}

	refs := []domain.ArtifactRef{{Kind: domain.ArtifactUser, ID: user.ID, Label: user.Email}}
	return true, refs, nil
}

// workspaceCreated waits for onboarding to provision the workspace row.
// The ULID lands in the artifact label so browser steps can build the
// overview URL from it.
func workspaceCreated(ctx context.Context, rt *Runtime, run *domain.Run) (bool, []domain.ArtifactRef, error) {
	ws, err := rt.DB.WorkspaceByEmail(ctx, run.Email)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("workspace by email: %w", err)
	}

	rt.Observed.WorkspaceStatus = ws.Status
	refs := []domain.ArtifactRef{{Kind: domain.ArtifactWorkspace, ID: ws.ID, Label: ws.ULID}}
	if ws.Status == domain.WorkspaceStatusFailed {
		return false, refs, errors.New("workspace provisioning failed")
	}
	return true, refs, nil
}

// categoriesReady waits for the AI pipeline to populate the workspace:
// a ready provisioning status plus the configured floor of categories
// and prompts. Counts are re-read every poll so the report sees the
// latest numbers even when the step times out.
func categoriesReady(ctx context.Context, rt *Runtime, run *domain.Run) (bool, []domain.ArtifactRef, error) {
	ws, ok := workspaceRef(run)
	if !ok {
		return false, nil, errors.New("no workspace recorded for run")
	}

	status, err := rt.DB.WorkspaceStatus(ctx, ws.ID)
	if err != nil {
		return false, nil, fmt.Errorf("workspace status: %w", err)
	}
	rt.Observed.WorkspaceStatus = status
	if status == domain.WorkspaceStatusFailed {
		return false, nil, errors.New("workspace provisioning failed")
	}

	categories, err := rt.DB.CategoryCount(ctx, ws.ID)
	if err != nil {
		return false, nil, fmt.Errorf("category count: %w", err)
	}
	rt.Observed.CategoryCount = categories

	prompts, err := rt.DB.PromptCount(ctx, ws.ID)
	if err != nil {
		return false, nil, fmt.Errorf("prompt count: %w", err)
	}
	rt.Observed.PromptCount = prompts
	if prompts >= rt.Config.MinPrompts {
		run.Mark(MarkPromptsReady, rt.now())
	}

	done := workspaceReadyStatuses[status] &&
		categories >= rt.Config.MinCategories &&
		prompts >= rt.Config.MinPrompts
	return done, nil, nil
}

// promptsConfirmed waits for the backend to acknowledge the prompt
// confirmation click by advancing the workspace status.
func promptsConfirmed(ctx context.Context, rt *Runtime, run *domain.Run) (bool, []domain.ArtifactRef, error) {
	ws, ok := workspaceRef(run)
	if !ok {
		return false, nil, errors.New("no workspace recorded for run")
	}

	status, err := rt.DB.WorkspaceStatus(ctx, ws.ID)
	if err != nil {
		return false, nil, fmt.Errorf("workspace status: %w", err)
	}
	rt.Observed.WorkspaceStatus = status

	switch status {
	case domain.WorkspaceStatusFailed:
		return false, nil, errors.New("workspace provisioning failed")
	case domain.WorkspaceStatusInterStep2, domain.WorkspaceStatusCompleted:
		return true, nil, nil
	}
	return false, nil, nil
}

// snapshotCompleted waits for the first visibility snapshot to finish
// along with the workspace itself. A failed snapshot ends the wait
// early instead of burning the rest of the timeout.
func snapshotCompleted(ctx context.Context, rt *Runtime, run *domain.Run) (bool, []domain.ArtifactRef, error) {
	ws, ok := workspaceRef(run)
	if !ok {
		return false, nil, errors.New("no workspace recorded for run")
	}

	snap, err := rt.DB.LatestSnapshot(ctx, ws.ID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("latest snapshot: %w", err)
	}
	rt.Observed.SnapshotStatus = snap.Status
	if snap.Status == domain.SnapshotStatusFailed {
		return false, nil, errors.New("snapshot processing failed")
	}

	status, err := rt.DB.WorkspaceStatus(ctx, ws.ID)
	if err != nil {
		return false, nil, fmt.Errorf("workspace status: %w", err)
	}
	rt.Observed.WorkspaceStatus = status

	if snap.Status == domain.SnapshotStatusCompleted && status == domain.WorkspaceStatusCompleted {
		run.Mark(MarkDashboardReady, rt.now())
		return true, nil, nil
	}
	return false, nil, nil
}
