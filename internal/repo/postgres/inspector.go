package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxeo-labs/canary-go/internal/domain"
)

// Queries match the product schema. Every read excludes soft-deleted
// rows; uuid columns are cast to text so scanning stays driver-neutral.
const (
	selectUserByEmailQuery = `
		SELECT id::text, email, COALESCE(totp_secret, ''), is_deleted, created_at
		FROM users
		WHERE email ILIKE $1 AND NOT is_deleted
		LIMIT 1`

	selectWorkspaceByEmailQuery = `
		SELECT id::text, COALESCE(ulid, ''), COALESCE(status, ''), email,
			COALESCE(first_name, ''), COALESCE(last_name, ''), is_deleted, created_at
		FROM workspaces
		WHERE email ILIKE $1 AND NOT is_deleted
		ORDER BY created_at DESC
		LIMIT 1`

	selectWorkspaceStatusQuery = `
		SELECT COALESCE(status, '')
		FROM workspaces
		WHERE id = $1 AND NOT is_deleted`

	countCategoriesQuery = `
		SELECT COUNT(*)
		FROM workspace_categories
		WHERE workspace_id = $1 AND NOT is_deleted`

	countPromptsQuery = `
		SELECT COUNT(*)
		FROM workspace_prompts
		WHERE workspace_id = $1 AND NOT is_deleted`

	countCompetitorsQuery = `
		SELECT COUNT(*)
		FROM workspace_competitors
		WHERE workspace_id = $1 AND NOT is_deleted`

	listCategoriesQuery = `
		SELECT id::text, COALESCE(name, ''), created_at
		FROM workspace_categories
		WHERE workspace_id = $1 AND NOT is_deleted
		ORDER BY created_at ASC
		LIMIT $2`

	listPromptsQuery = `
		SELECT id::text, COALESCE(name, ''), COALESCE(is_tracked, false), created_at
		FROM workspace_prompts
		WHERE workspace_id = $1 AND NOT is_deleted
		ORDER BY created_at ASC
		LIMIT $2`

	listCompetitorsQuery = `
		SELECT wc.id::text,
			COALESCE(NULLIF(bdi.name, ''), bdi.domain, 'Unknown'),
			COALESCE(bdi.domain, 'N/A'),
			wc.created_at
		FROM workspace_competitors wc
		LEFT JOIN brand_domain_info bdi ON wc.brand_domain_info_id = bdi.id
		WHERE wc.workspace_id = $1 AND NOT wc.is_deleted
		ORDER BY wc.created_at ASC
		LIMIT $2`

	selectLatestSnapshotQuery = `
		SELECT id::text, COALESCE(status, ''), created_at
		FROM snapshots
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	countSnapshotPromptsQuery = `
		SELECT LOWER(COALESCE(status, '')), COUNT(*)
		FROM snapshot_prompts
		WHERE snapshot_id = $1
		GROUP BY 1`

	modelUsageQuery = `
		SELECT model,
			COUNT(*),
			ROUND(COALESCE(AVG(time_elapsed), 0)::numeric, 2)::float8,
			ROUND(COALESCE(SUM(time_elapsed), 0)::numeric, 2)::float8,
			ROUND(COALESCE(SUM(total_cost), 0)::numeric, 4)::float8,
			COALESCE(SUM(total_tokens), 0)::bigint
		FROM model_invocations
		WHERE workspace_id = $1
		GROUP BY model
		ORDER BY 4 DESC`

	slowestInvocationsQuery = `
		SELECT model, time_elapsed::float8, COALESCE(total_tokens, 0), created_at
		FROM model_invocations
		WHERE workspace_id = $1 AND time_elapsed IS NOT NULL
		ORDER BY time_elapsed DESC
		LIMIT $2`
)

// InspectorStore answers read-only questions about rows the flow should
// have caused to exist.
type InspectorStore struct {
	db DB
}

func NewInspectorStore(db DB) *InspectorStore {
	if db == nil {
		return nil
	}
	return &InspectorStore{db: db}
}

func (s *InspectorStore) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	if s == nil || s.db == nil {
		return domain.User{}, fmt.Errorf("inspector store not initialized")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, fmt.Errorf("email is required")
	}

	var user domain.User
	row := s.db.QueryRowContext(ctx, selectUserByEmailQuery, email)
	if err := row.Scan(&user.ID, &user.Email, &user.TOTPSecret, &user.IsDeleted, &user.CreatedAt); err != nil {
		return domain.User{}, handleNotFound(err)
	}
	return user, nil
}

func (s *InspectorStore) WorkspaceByEmail(ctx context.Context, email string) (domain.Workspace, error) {
	if s == nil || s.db == nil {
		return domain.Workspace{}, fmt.Errorf("inspector store not initialized")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.Workspace{}, fmt.Errorf("email is required")
	}

	var ws domain.Workspace
	row := s.db.QueryRowContext(ctx, selectWorkspaceByEmailQuery, email)
	if err := row.Scan(&ws.ID, &ws.ULID, &ws.Status, &ws.Email, &ws.FirstName, &ws.LastName, &ws.IsDeleted, &ws.CreatedAt); err != nil {
		return domain.Workspace{}, handleNotFound(err)
	}
	return ws, nil
}

func (s *InspectorStore) WorkspaceStatus(ctx context.Context, workspaceID string) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("inspector store not initialized")
	}
	if strings.TrimSpace(workspaceID) == "" {
		return "", fmt.Errorf("workspace id is required")
	}

	var status string
	row := s.db.QueryRowContext(ctx, selectWorkspaceStatusQuery, workspaceID)
	if err := row.Scan(&status); err != nil {
		return "", handleNotFound(err)
	}
	return status, nil
}

func (s *InspectorStore) CategoryCount(ctx context.Context, workspaceID string) (int, error) {
	return s.count(ctx, countCategoriesQuery, workspaceID)
}

func (s *InspectorStore) PromptCount(ctx context.Context, workspaceID string) (int, error) {
	return s.count(ctx, countPromptsQuery, workspaceID)
}

func (s *InspectorStore) CompetitorCount(ctx context.Context, workspaceID string) (int, error) {
	return s.count(ctx, countCompetitorsQuery, workspaceID)
}

func (s *InspectorStore) count(ctx context.Context, query, workspaceID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("inspector store not initialized")
	}
	if strings.TrimSpace(workspaceID) == "" {
		return 0, fmt.Errorf("workspace id is required")
	}

	var n int
	row := s.db.QueryRowContext(ctx, query, workspaceID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *InspectorStore) Categories(ctx context.Context, workspaceID string, limit int) ([]domain.Category, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("inspector store not initialized")
	}
	if strings.TrimSpace(workspaceID) == "" {
		return nil, fmt.Errorf("workspace id is required")
	}
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, listCategoriesQuery, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *InspectorStore) Prompts(ctx context.Context, workspaceID string, limit int) ([]domain.Prompt, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("inspector store not initialized")
	}
	if strings.TrimSpace(workspaceID) == "" {
		return nil, fmt.Errorf("workspace id is required")
	}
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, listPromptsQuery, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var out []domain.Prompt
	for rows.Next() {
		var p domain.Prompt
		if err := rows.Scan(&p.ID, &p.Name, &p.Tracked, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *InspectorStore) Competitors(ctx context.Context, workspaceID string, limit int) ([]domain.Competitor, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("inspector store not initialized")
	}
	if strings.TrimSpace(workspaceID) == "" {
		return nil, fmt.Errorf("workspace id is required")
	}
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, listCompetitorsQuery, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list competitors: %w", err)
	}
	defer rows.Close()

	var out []domain.Competitor
	for rows.Next() {
		var c domain.Competitor
		if err := rows.Scan(&c.ID, &c.Name, &c.Domain, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *InspectorStore) LatestSnapshot(ctx context.Context, workspaceID string) (domain.Snapshot, error) {
	if s == nil || s.db == nil {
		return domain.Snapshot{}, fmt.Errorf("inspector store not initialized")
	}
	if strings.TrimSpace(workspaceID) == "" {
		return domain.Snapshot{}, fmt.Errorf("workspace id is required")
	}

	var snap domain.Snapshot
	row := s.db.QueryRowContext(ctx, selectLatestSnapshotQuery, workspaceID)
	if err := row.Scan(&snap.ID, &snap.Status, &snap.CreatedAt); err != nil {
		return domain.Snapshot{}, handleNotFound(err)
	}
	return snap, nil
}

func (s *InspectorStore) SnapshotPromptCounts(ctx context.Context, snapshotID string) (domain.PromptCounts, error) {
	if s == nil || s.db == nil {
		return domain.PromptCounts{}, fmt.Errorf("inspector store not initialized")
	}
	if strings.TrimSpace(snapshotID) == "" {
		return domain.PromptCounts{}, fmt.Errorf("snapshot id is required")
	}

	rows, err := s.db.QueryContext(ctx, countSnapshotPromptsQuery, snapshotID)
	if err != nil {
		return domain.PromptCounts{}, fmt.Errorf("count snapshot prompts: %w", err)
	}
	defer rows.Close()

	var counts domain.PromptCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return domain.PromptCounts{}, err
		}
		counts.Total += n
		switch status {
		case "pending":
			counts.Pending += n
		case "processing":
			counts.Processing += n
		case "completed":
			counts.Completed += n
		case "failed":
			counts.Failed += n
		}
	}
	return counts, rows.Err()
}

func (s *InspectorStore) ModelUsage(ctx context.Context, workspaceID string) ([]domain.ModelUsage, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("inspector store not initialized")
	}
	if strings.TrimSpace(workspaceID) == "" {
		return nil, fmt.Errorf("workspace id is required")
	}

	rows, err := s.db.QueryContext(ctx, modelUsageQuery, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("model usage: %w", err)
	}
	defer rows.Close()

	var out []domain.ModelUsage
	for rows.Next() {
		var u domain.ModelUsage
		if err := rows.Scan(&u.Model, &u.Calls, &u.AvgSeconds, &u.TotalSeconds, &u.TotalCost, &u.TotalTokens); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *InspectorStore) SlowestInvocations(ctx context.Context, workspaceID string, limit int) ([]domain.ModelInvocation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("inspector store not initialized")
	}
	if strings.TrimSpace(workspaceID) == "" {
		return nil, fmt.Errorf("workspace id is required")
	}
	if limit < 1 {
		limit = 3
	}

	rows, err := s.db.QueryContext(ctx, slowestInvocationsQuery, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("slowest invocations: %w", err)
	}
	defer rows.Close()

	var out []domain.ModelInvocation
	for rows.Next() {
		var inv domain.ModelInvocation
		if err := rows.Scan(&inv.Model, &inv.Seconds, &inv.TotalTokens, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
