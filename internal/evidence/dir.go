package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maxeo-labs/canary-go/internal/domain"
)

// Store persists diagnostic blobs captured during a run.
type Store interface {
	Save(ctx context.Context, item Item) (domain.EvidenceRef, error)
}

// DirStore writes evidence under a local directory. It is the default
// when no object store is configured.
type DirStore struct {
	base string
}

func NewDirStore(base string) (*DirStore, error) {
	if base == "" {
		return nil, fmt.Errorf("evidence directory is required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence directory: %w", err)
	}
	return &DirStore{base: base}, nil
}

func (s *DirStore) Save(_ context.Context, item Item) (domain.EvidenceRef, error) {
	if s == nil || s.base == "" {
		return domain.EvidenceRef{}, fmt.Errorf("evidence store not initialized")
	}
	if err := item.Validate(); err != nil {
		return domain.EvidenceRef{}, err
	}

	key := objectKey(item)
	path := filepath.Join(s.base, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.EvidenceRef{}, fmt.Errorf("create run directory: %w", err)
	}
	if err := os.WriteFile(path, item.Body, 0o644); err != nil {
		return domain.EvidenceRef{}, fmt.Errorf("write evidence: %w", err)
	}
	return newRef(item, key, time.Now()), nil
}
