// Package preflight verifies the probe's own dependencies before any
// step runs. A run that cannot reach the database or start a browser
// would report a product failure that is really a probe failure;
// preflight turns that into an explicit initialization error instead.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Check struct {
	Name  string
	Check func(context.Context) error
}

type Result struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Run executes every check in order, each under its own timeout. All
// checks run even after a failure so the log shows the full picture.
func Run(ctx context.Context, log *slog.Logger, timeout time.Duration, checks ...Check) ([]Result, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	results := make([]Result, 0, len(checks))
	var failed []string

	for _, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		err := check.Check(checkCtx)
		cancel()

		result := Result{
			Name:       check.Name,
			Status:     "ok",
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			result.Status = "fail"
			result.Error = err.Error()
			failed = append(failed, check.Name)
			log.Error("preflight check failed", "check", check.Name, "error", err)
		} else {
			log.Info("preflight check passed", "check", check.Name, "duration_ms", result.DurationMs)
		}
		results = append(results, result)
	}

	if len(failed) > 0 {
		return results, fmt.Errorf("preflight failed: %s", strings.Join(failed, ", "))
	}
	return results, nil
}
