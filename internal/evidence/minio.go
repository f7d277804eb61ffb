package evidence

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/maxeo-labs/canary-go/internal/domain"
)

// MinioStore uploads evidence to the configured S3-compatible bucket.
// The caller owns the client and is expected to have ensured the bucket
// at startup.
type MinioStore struct {
	client *minio.Client
	bucket string
}

func NewMinioStoreWithClient(client *minio.Client, bucket string) (*MinioStore, error) {
	if client == nil {
		return nil, fmt.Errorf("minio client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

func (s *MinioStore) Save(ctx context.Context, item Item) (domain.EvidenceRef, error) {
	if s == nil || s.client == nil {
		return domain.EvidenceRef{}, fmt.Errorf("evidence store not initialized")
	}
	if err := item.Validate(); err != nil {
		return domain.EvidenceRef{}, err
	}

	key := objectKey(item)
	opts := minio.PutObjectOptions{ContentType: item.ContentType}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(item.Body), int64(len(item.Body)), opts)
	if err != nil {
		return domain.EvidenceRef{}, fmt.Errorf("put evidence object: %w", err)
	}
	return newRef(item, key, time.Now()), nil
}
