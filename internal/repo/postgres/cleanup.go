package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maxeo-labs/canary-go/internal/repo"
)

// Soft deletes only. The guard on is_deleted makes a retry a no-op, so
// cleanup can run twice without touching anything new.
const (
	softDeleteWorkspaceQuery = `
		UPDATE workspaces
		SET is_deleted = true, deleted_at = NOW()
		WHERE id = $1 AND NOT is_deleted`

	softDeleteUserQuery = `
		UPDATE users
		SET is_deleted = true, deleted_at = NOW()
		WHERE id = $1 AND NOT is_deleted`

	staleWorkspacesQuery = `
		SELECT id::text, email
		FROM workspaces
		WHERE email LIKE $1 AND created_at < $2 AND NOT is_deleted
		ORDER BY created_at ASC
		LIMIT $3`

	staleUsersQuery = `
		SELECT id::text, email
		FROM users
		WHERE email LIKE $1 AND created_at < $2 AND NOT is_deleted
		ORDER BY created_at ASC
		LIMIT $3`
)

const defaultStaleLimit = 200

// CleanupStore removes rows the probe created, and nothing else: stale
// lookups are always scoped to the probe's email domain.
type CleanupStore struct {
	db DB
}

func NewCleanupStore(db DB) *CleanupStore {
	if db == nil {
		return nil
	}
	return &CleanupStore{db: db}
}

func (s *CleanupStore) SoftDeleteWorkspace(ctx context.Context, workspaceID string) (bool, error) {
	return s.softDelete(ctx, softDeleteWorkspaceQuery, workspaceID, "workspace")
}

func (s *CleanupStore) SoftDeleteUser(ctx context.Context, userID string) (bool, error) {
	return s.softDelete(ctx, softDeleteUserQuery, userID, "user")
}

func (s *CleanupStore) softDelete(ctx context.Context, query, id, resource string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("cleanup store not initialized")
	}
	if strings.TrimSpace(id) == "" {
		return false, fmt.Errorf("%s id is required", resource)
	}

	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("soft delete %s: %w", resource, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete %s: %w", resource, err)
	}
	return n > 0, nil
}

func (s *CleanupStore) StaleWorkspaces(ctx context.Context, filter repo.StaleFilter) ([]repo.StaleRow, error) {
	return s.stale(ctx, staleWorkspacesQuery, filter)
}

func (s *CleanupStore) StaleUsers(ctx context.Context, filter repo.StaleFilter) ([]repo.StaleRow, error) {
	return s.stale(ctx, staleUsersQuery, filter)
}

func (s *CleanupStore) stale(ctx context.Context, query string, filter repo.StaleFilter) ([]repo.StaleRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("cleanup store not initialized")
	}
	pattern, err := stalePattern(filter)
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit < 1 {
		limit = defaultStaleLimit
	}

	rows, err := s.db.QueryContext(ctx, query, pattern, filter.Before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale rows: %w", err)
	}
	defer rows.Close()

	var out []repo.StaleRow
	for rows.Next() {
		var r repo.StaleRow
		if err := rows.Scan(&r.ID, &r.Email); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// stalePattern builds the LIKE pattern for probe-owned emails. An empty
// domain would match every row in the table, so it is rejected outright.
func stalePattern(filter repo.StaleFilter) (string, error) {
	domain := strings.TrimSpace(filter.EmailDomain)
	if domain == "" {
		return "", fmt.Errorf("email domain is required")
	}
	if strings.ContainsAny(domain, "%_") {
		return "", fmt.Errorf("email domain must not contain wildcards: %q", domain)
	}
	if filter.Before.IsZero() {
		return "", fmt.Errorf("cutoff time is required")
	}
	return "%@" + domain, nil
}
