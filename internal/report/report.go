// Package report assembles the single structured summary of a finished
// probe run: verdict, per-step timings against baseline, the loading
// metrics the product team watches, what the database showed, cleanup
// warnings, and detected anomalies. The run itself is discarded after
// reporting; this summary is its only durable trace.
package report

import (
	"math"
	"time"

	"github.com/maxeo-labs/canary-go/internal/domain"
	"github.com/maxeo-labs/canary-go/internal/flow"
)

const reportSchemaV1 = "maxeo.canary.run_report.v1"

type Report struct {
	Schema          string                  `json:"schema"`
	RunID           string                  `json:"run_id"`
	Email           string                  `json:"email"`
	Verdict         string                  `json:"verdict"`
	State           string                  `json:"state"`
	StartedAt       time.Time               `json:"started_at"`
	EndedAt         time.Time               `json:"ended_at"`
	DurationSeconds float64                 `json:"duration_seconds"`
	Error           string                  `json:"error,omitempty"`
	FailedStep      string                  `json:"failed_step,omitempty"`
	Steps           []StepRow               `json:"steps"`
	Loading         []LoadingMetric         `json:"loading,omitempty"`
	Store           *StoreSummary           `json:"store,omitempty"`
	Usage           []UsageRow              `json:"usage,omitempty"`
	Slowest         []SlowCall              `json:"slowest,omitempty"`
	Artifacts       []domain.ArtifactRef    `json:"artifacts,omitempty"`
	Evidence        []domain.EvidenceRef    `json:"evidence,omitempty"`
	Warnings        []domain.CleanupWarning `json:"cleanup_warnings,omitempty"`
	Anomalies       []Finding               `json:"anomalies,omitempty"`
}

// StepRow is one sealed step outcome with its baseline comparison.
type StepRow struct {
	Name            string  `json:"name"`
	Ordinal         int     `json:"ordinal"`
	Status          string  `json:"status"`
	Fatal           bool    `json:"fatal"`
	Attempts        int     `json:"attempts"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	BaselineSeconds float64 `json:"baseline_seconds,omitempty"`
	DeltaPct        float64 `json:"delta_pct,omitempty"`
	Pace            string  `json:"pace,omitempty"`
	Error           string  `json:"error,omitempty"`
}

const (
	GradeGreen  = "green"
	GradeYellow = "yellow"
	GradeRed    = "red"
)

// LoadingMetric is an end-to-end product latency measured between two
// run marks, graded against the thresholds operators page on.
type LoadingMetric struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Seconds float64 `json:"seconds"`
	Grade   string  `json:"grade"`
}

// StoreSummary is what the database-facing steps observed about the
// rows this run created.
type StoreSummary struct {
	UserID          string                `json:"user_id,omitempty"`
	WorkspaceID     string                `json:"workspace_id,omitempty"`
	WorkspaceULID   string                `json:"workspace_ulid,omitempty"`
	WorkspaceStatus string                `json:"workspace_status,omitempty"`
	Categories      int                   `json:"categories"`
	Prompts         int                   `json:"prompts"`
	Competitors     int                   `json:"competitors"`
	CategoryNames   []string              `json:"category_names,omitempty"`
	PromptSamples   []string              `json:"prompt_samples,omitempty"`
	CompetitorNames []string              `json:"competitor_names,omitempty"`
	SnapshotStatus  string                `json:"snapshot_status,omitempty"`
	SnapshotPrompts PromptBreakdown       `json:"snapshot_prompts"`
	Dashboard       *domain.DashboardProbe `json:"dashboard,omitempty"`
	Audit           []domain.AuditCheck   `json:"audit,omitempty"`
}

type PromptBreakdown struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

type UsageRow struct {
	Model        string  `json:"model"`
	Calls        int     `json:"calls"`
	AvgSeconds   float64 `json:"avg_seconds"`
	TotalSeconds float64 `json:"total_seconds"`
	TotalCost    float64 `json:"total_cost"`
	TotalTokens  int64   `json:"total_tokens"`
}

type SlowCall struct {
	Model   string  `json:"model"`
	Seconds float64 `json:"seconds"`
	Tokens  int64   `json:"tokens"`
}

type Params struct {
	MinPrompts int
}

// Build assembles the report from a sealed run. It is a pure function
// of the run and its observations; calling it twice yields the same
// report.
func Build(run *domain.Run, obs *domain.Observations, p Params) Report {
	if obs == nil {
		obs = &domain.Observations{}
	}
	if p.MinPrompts <= 0 {
		p.MinPrompts = 15
	}

	r := Report{
		Schema:          reportSchemaV1,
		RunID:           run.ID,
		Email:           run.Email,
		Verdict:         string(run.Verdict),
		State:           string(run.State),
		StartedAt:       run.StartedAt.UTC(),
		EndedAt:         run.EndedAt.UTC(),
		DurationSeconds: round1(run.Duration().Seconds()),
		Error:           run.Err,
		Artifacts:       run.Artifacts,
		Evidence:        run.Evidence,
		Warnings:        run.Warnings,
	}
	r.Steps = stepRows(run.Results)
	r.FailedStep = firstFailure(run.Results)
	r.Loading = loadingMetrics(run.Marks)
	r.Store = storeSummary(run, obs)
	for _, u := range obs.Usage {
		r.Usage = append(r.Usage, UsageRow{
			Model:        u.Model,
			Calls:        u.Calls,
			AvgSeconds:   round1(u.AvgSeconds),
			TotalSeconds: round1(u.TotalSeconds),
			TotalCost:    u.TotalCost,
			TotalTokens:  u.TotalTokens,
		})
	}
	for _, inv := range obs.Slowest {
		r.Slowest = append(r.Slowest, SlowCall{
			Model:   inv.Model,
			Seconds: round1(inv.Seconds),
			Tokens:  inv.TotalTokens,
		})
	}
	r.Anomalies = detect(obs, r.Steps, p.MinPrompts)
	return r
}

func stepRows(results []domain.StepResult) []StepRow {
	rows := make([]StepRow, 0, len(results))
	for _, res := range results {
		row := StepRow{
			Name:     res.Name,
			Ordinal:  res.Ordinal,
			Status:   string(res.Status),
			Fatal:    res.Fatal,
			Attempts: res.Attempts,
			Error:    res.Error,
		}
		if res.Status != domain.StepSkipped {
			row.ElapsedSeconds = round1(res.Duration().Seconds())
		}
		if base, ok := Baseline(res.Name); ok && res.Status == domain.StepPassed {
			row.BaselineSeconds = base
			delta := (row.ElapsedSeconds - base) / base
			row.DeltaPct = round1(delta * 100)
			row.Pace = paceFor(delta)
		}
		rows = append(rows, row)
	}
	return rows
}

func firstFailure(results []domain.StepResult) string {
	for _, res := range results {
		if res.IsFailure() {
			return res.Name
		}
	}
	return ""
}

func loadingMetrics(marks map[string]time.Time) []LoadingMetric {
	var out []LoadingMetric
	if d, ok := markSpan(marks, flow.MarkFormSubmitted, flow.MarkPromptsReady); ok {
		out = append(out, LoadingMetric{
			Name:    "form_to_prompts",
			Label:   "Form -> Prompts",
			Seconds: round1(d.Seconds()),
			Grade:   gradeFor(d, 60*time.Second, 120*time.Second),
		})
	}
	if d, ok := markSpan(marks, flow.MarkPromptsConfirmed, flow.MarkDashboardReady); ok {
		out = append(out, LoadingMetric{
			Name:    "confirm_to_dashboard",
			Label:   "Confirm -> Dashboard",
			Seconds: round1(d.Seconds()),
			Grade:   gradeFor(d, 90*time.Second, 180*time.Second),
		})
	}
	return out
}

func markSpan(marks map[string]time.Time, from, to string) (time.Duration, bool) {
	start, ok := marks[from]
	if !ok {
		return 0, false
	}
	end, ok := marks[to]
	if !ok {
		return 0, false
	}
	if end.Before(start) {
		return 0, false
	}
	return end.Sub(start), true
}

func gradeFor(d, green, yellow time.Duration) string {
	switch {
	case d < green:
		return GradeGreen
	case d < yellow:
		return GradeYellow
	default:
		return GradeRed
	}
}

func storeSummary(run *domain.Run, obs *domain.Observations) *StoreSummary {
	s := &StoreSummary{
		WorkspaceStatus: obs.WorkspaceStatus,
		Categories:      obs.CategoryCount,
		Prompts:         obs.PromptCount,
		Competitors:     obs.CompetitorCount,
		SnapshotStatus:  obs.SnapshotStatus,
		SnapshotPrompts: PromptBreakdown{
			Total:      obs.PromptCounts.Total,
			Pending:    obs.PromptCounts.Pending,
			Processing: obs.PromptCounts.Processing,
			Completed:  obs.PromptCounts.Completed,
			Failed:     obs.PromptCounts.Failed,
		},
		Audit: obs.Audit,
	}
	for _, ref := range run.Artifacts {
		switch ref.Kind {
		case domain.ArtifactUser:
			s.UserID = ref.ID
		case domain.ArtifactWorkspace:
			s.WorkspaceID = ref.ID
			s.WorkspaceULID = ref.Label
		}
	}
	for _, cat := range obs.Categories {
		s.CategoryNames = append(s.CategoryNames, cat.Name)
	}
	for _, p := range obs.Prompts {
		sample := truncate(p.Name, promptSampleLen)
		if p.Tracked {
			sample += " (tracked)"
		}
		s.PromptSamples = append(s.PromptSamples, sample)
	}
	for _, comp := range obs.Competitors {
		name := comp.Name
		if comp.Domain != "" {
			name += " (" + comp.Domain + ")"
		}
		s.CompetitorNames = append(s.CompetitorNames, name)
	}
	if obs.Dashboard != (domain.DashboardProbe{}) {
		probe := obs.Dashboard
		s.Dashboard = &probe
	}

	// Nothing observed means the run died before the database ever came
	// into play; omit the section instead of reporting zeroes.
	if s.UserID == "" && s.WorkspaceID == "" && s.WorkspaceStatus == "" {
		return nil
	}
	return s
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// promptSampleLen caps prompt text in the report; full prompts can run
// to paragraphs.
const promptSampleLen = 40

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
