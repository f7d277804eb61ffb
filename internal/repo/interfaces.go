package repo

import (
	"context"
	"errors"
	"time"

	"github.com/maxeo-labs/canary-go/internal/domain"
)

var ErrNotFound = errors.New("not found")

// StaleFilter selects leftover probe rows for the sweeper: rows whose
// email belongs to the probe domain, older than Before, not yet deleted.
type StaleFilter struct {
	EmailDomain string
	Before      time.Time
	Limit       int
}

// StaleRow is one leftover row found by the sweeper.
type StaleRow struct {
	ID    string
	Email string
}

// Inspector reads the product database to confirm what the browser flow
// claims to have caused. Reads only; the probe never writes rows, it
// only soft-deletes its own.
type Inspector interface {
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	WorkspaceByEmail(ctx context.Context, email string) (domain.Workspace, error)
	WorkspaceStatus(ctx context.Context, workspaceID string) (string, error)
	CategoryCount(ctx context.Context, workspaceID string) (int, error)
	PromptCount(ctx context.Context, workspaceID string) (int, error)
	CompetitorCount(ctx context.Context, workspaceID string) (int, error)
	Categories(ctx context.Context, workspaceID string, limit int) ([]domain.Category, error)
	Prompts(ctx context.Context, workspaceID string, limit int) ([]domain.Prompt, error)
	Competitors(ctx context.Context, workspaceID string, limit int) ([]domain.Competitor, error)
	LatestSnapshot(ctx context.Context, workspaceID string) (domain.Snapshot, error)
	SnapshotPromptCounts(ctx context.Context, snapshotID string) (domain.PromptCounts, error)
	ModelUsage(ctx context.Context, workspaceID string) ([]domain.ModelUsage, error)
	SlowestInvocations(ctx context.Context, workspaceID string, limit int) ([]domain.ModelInvocation, error)
}

// Cleaner soft-deletes rows the probe created. Deletes are idempotent:
// deleting an already-deleted row reports done=false and no error.
type Cleaner interface {
	SoftDeleteWorkspace(ctx context.Context, workspaceID string) (bool, error)
	SoftDeleteUser(ctx context.Context, userID string) (bool, error)
	StaleWorkspaces(ctx context.Context, filter StaleFilter) ([]StaleRow, error)
	StaleUsers(ctx context.Context, filter StaleFilter) ([]StaleRow, error)
}
