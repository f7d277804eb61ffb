// Package evidence persists the diagnostic blobs a run captures when a
// step goes wrong: screenshots, page source, the recent log tail.
// Capture happens before cleanup so the pages the evidence describes
// still exist when it is taken.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maxeo-labs/canary-go/internal/domain"
)

const (
	KindScreenshot = "screenshot"
	KindPageSource = "page_source"
	KindLogTail    = "log_tail"
)

// Item is one blob to persist.
type Item struct {
	RunID       string
	Step        string
	Kind        string
	ContentType string
	Body        []byte
}

func (i Item) Validate() error {
	if strings.TrimSpace(i.RunID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(i.Step) == "" {
		return fmt.Errorf("step is required")
	}
	if strings.TrimSpace(i.Kind) == "" {
		return fmt.Errorf("kind is required")
	}
	if len(i.Body) == 0 {
		return fmt.Errorf("body is empty")
	}
	return nil
}

// objectKey names the blob inside the store. The run id prefix keeps one
// run's evidence together; the random suffix keeps retries of the same
// step from overwriting each other.
func objectKey(item Item) string {
	ext := extensionFor(item.ContentType)
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("%s/%s-%s-%s%s", item.RunID, item.Step, item.Kind, suffix, ext)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "text/html":
		return ".html"
	default:
		return ".txt"
	}
}

func newRef(item Item, key string, capturedAt time.Time) domain.EvidenceRef {
	sum := sha256.Sum256(item.Body)
	return domain.EvidenceRef{
		Step:        item.Step,
		Kind:        item.Kind,
		Key:         key,
		SHA256:      hex.EncodeToString(sum[:]),
		Size:        int64(len(item.Body)),
		ContentType: item.ContentType,
		CapturedAt:  capturedAt.UTC(),
	}
}
