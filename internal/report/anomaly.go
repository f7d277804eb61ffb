package report

import (
	"fmt"

	"github.com/maxeo-labs/canary-go/internal/domain"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// Finding is one anomaly the report builder noticed in the run's
// observations. Findings do not change the verdict; they give the
// on-call reader the product-level signal behind it.
type Finding struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

const (
	// Below minPrompts the run is broken; below the comfort floor the AI
	// pipeline is underdelivering without failing outright.
	promptComfortFloor = 20
	slowStepRatio      = 2.0
)

func detect(obs *domain.Observations, steps []StepRow, minPrompts int) []Finding {
	var findings []Finding
	add := func(check string, sev Severity, format string, args ...any) {
		findings = append(findings, Finding{
			Check:    check,
			Severity: sev,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	// Store checks only apply once the workspace was actually observed;
	// a run that died in the browser has nothing to audit here.
	if obs.WorkspaceStatus != "" {
		if obs.WorkspaceStatus != domain.WorkspaceStatusCompleted {
			add("workspace_status", SeverityCritical, "workspace status %s, want COMPLETED", obs.WorkspaceStatus)
		}
		switch {
		case obs.PromptCount < minPrompts:
			add("prompt_floor", SeverityCritical, "%d prompts generated, need at least %d", obs.PromptCount, minPrompts)
		case obs.PromptCount < promptComfortFloor:
			add("prompt_floor", SeverityWarning, "only %d prompts generated", obs.PromptCount)
		}
		switch {
		case obs.SnapshotStatus == "":
			add("snapshot", SeverityCritical, "no snapshot created")
		case obs.SnapshotStatus != domain.SnapshotStatusCompleted:
			add("snapshot", SeverityCritical, "snapshot status %s, want COMPLETED", obs.SnapshotStatus)
		}
		if obs.PromptCounts.Failed > 0 {
			add("snapshot_prompts", SeverityCritical, "%d snapshot prompts failed", obs.PromptCounts.Failed)
		}
		if obs.CompetitorCount == 0 {
			add("competitors", SeverityWarning, "no competitors discovered")
		}
	}

	for _, row := range steps {
		if row.Status != string(domain.StepPassed) || row.BaselineSeconds <= 0 {
			continue
		}
		if row.ElapsedSeconds > slowStepRatio*row.BaselineSeconds {
			add("step_pace", SeverityWarning, "%s took %.1fs against a %.1fs baseline",
				row.Name, row.ElapsedSeconds, row.BaselineSeconds)
		}
	}

	return findings
}

// Critical reports whether any finding is at critical severity.
func Critical(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
