// Package alert delivers the one notification each probe run produces:
// a Slack report for operators, an error-tracking event on bad verdicts,
// and a local archive line. Delivery problems are logged and swallowed;
// nothing in this package may fail a run that already has its verdict.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrNoWebhook = fmt.Errorf("slack webhook not configured")

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("slack webhook error (status=%d)", e.StatusCode)
	}
	return fmt.Sprintf("slack webhook error (status=%d): %s", e.StatusCode, body)
}

// SlackClient posts messages to an incoming-webhook URL.
type SlackClient struct {
	webhookURL string
	http       *http.Client
	retryWait  time.Duration
}

func NewSlackClient(webhookURL string) *SlackClient {
	return &SlackClient{
		webhookURL: strings.TrimSpace(webhookURL),
		http:       &http.Client{Timeout: 15 * time.Second},
		retryWait:  2 * time.Second,
	}
}

func (c *SlackClient) Enabled() bool {
	return c != nil && c.webhookURL != ""
}

// Post sends one message, retrying once. More than one retry risks an
// alert storm from the alerting path itself.
func (c *SlackClient) Post(ctx context.Context, msg Message) error {
	if !c.Enabled() {
		return ErrNoWebhook
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		lastErr = c.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt == 1 {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(c.retryWait):
			}
		}
	}
	return lastErr
}

func (c *SlackClient) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
