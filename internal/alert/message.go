package alert

import (
	"fmt"
	"strings"

	"github.com/maxeo-labs/canary-go/internal/report"
)

const (
	colorSuccess  = "#36A64F"
	colorDegraded = "#FFA500"
	colorFailure  = "#FF0000"
)

// Message is a Slack webhook payload. Blocks ride inside a single
// attachment so the color bar reflects the verdict.
type Message struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Color  string  `json:"color,omitempty"`
	Blocks []Block `json:"blocks"`
}

type Block struct {
	Type     string `json:"type"`
	Text     *Text  `json:"text,omitempty"`
	Fields   []Text `json:"fields,omitempty"`
	Elements []Text `json:"elements,omitempty"`
}

type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func mrkdwn(text string) Text {
	return Text{Type: "mrkdwn", Text: text}
}

func section(text string) Block {
	t := mrkdwn(text)
	return Block{Type: "section", Text: &t}
}

func fieldsSection(fields ...Text) Block {
	return Block{Type: "section", Fields: fields}
}

func divider() Block {
	return Block{Type: "divider"}
}

func headerBlock(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text, Emoji: true}}
}

// BuildMessage renders a run report as the operator-facing Slack
// message.
func BuildMessage(r report.Report) Message {
	blocks := []Block{
		headerBlock(headerText(r.Verdict)),
		divider(),
		section(fmt.Sprintf("*When:* `%s UTC`", r.StartedAt.Format("02 Jan 2006 15:04"))),
		fieldsSection(
			mrkdwn(fmt.Sprintf("*Run:*\n`%s`", r.RunID)),
			mrkdwn(fmt.Sprintf("*Duration:*\n`%.1fs`", r.DurationSeconds)),
		),
	}
	if r.Store != nil {
		blocks = append(blocks, fieldsSection(
			mrkdwn(fmt.Sprintf("*Workspace:*\n`%s`", orNA(r.Store.WorkspaceULID))),
			mrkdwn(fmt.Sprintf("*Signup email:*\n`%s`", orNA(r.Email))),
		))
	}

	if len(r.Loading) > 0 {
		blocks = append(blocks, divider(), section("*Critical loading times*"))
		fields := make([]Text, 0, len(r.Loading))
		for i, m := range r.Loading {
			fields = append(fields, mrkdwn(fmt.Sprintf("*%s Loading %d:*\n`%.1fs`\n_%s_",
				gradeGlyph(m.Grade), i+1, m.Seconds, m.Label)))
		}
		blocks = append(blocks, fieldsSection(fields...))
	}

	if detail := errorDetail(r); detail != "" {
		blocks = append(blocks, divider(),
			section(fmt.Sprintf("*Error detail:*\n```%s```", detail)))
	}

	if len(r.Steps) > 0 {
		blocks = append(blocks, divider(), section("*Step timings*"),
			section(stepLines(r.Steps)))
	}

	if r.Store != nil {
		blocks = append(blocks, divider(), section("*Database state*"),
			section(storeLines(r.Store)))
	}

	if len(r.Usage) > 0 {
		blocks = append(blocks, divider(), section("*AI model usage*"),
			section(usageLines(r.Usage, r.Slowest)))
	}

	if len(r.Warnings) > 0 {
		lines := make([]string, 0, len(r.Warnings))
		for _, w := range r.Warnings {
			lines = append(lines, fmt.Sprintf("%s %s: %s", w.Resource, w.ID, w.Message))
		}
		blocks = append(blocks, divider(),
			section("*Cleanup warnings*\n"+strings.Join(lines, "\n")))
	}

	if len(r.Anomalies) > 0 {
		lines := make([]string, 0, len(r.Anomalies))
		for _, f := range r.Anomalies {
			lines = append(lines, fmt.Sprintf("[%s] %s", f.Severity, f.Message))
		}
		blocks = append(blocks, divider(),
			section("*Anomalies*\n"+strings.Join(lines, "\n")))
	}

	blocks = append(blocks, divider(), Block{
		Type: "context",
		Elements: []Text{
			mrkdwn(fmt.Sprintf("Maxeo Canary | maxeo.ai | %s", r.EndedAt.Format("2006-01-02 15:04:05 UTC"))),
		},
	})

	return Message{
		Text: fmt.Sprintf("Canary run %s: %s in %.0fs", r.RunID, strings.ToUpper(r.Verdict), r.DurationSeconds),
		Attachments: []Attachment{
			{Color: colorFor(r.Verdict), Blocks: blocks},
		},
	}
}

func headerText(verdict string) string {
	switch verdict {
	case "success":
		return ":white_check_mark: Canary Run PASSED"
	case "degraded":
		return ":warning: Canary Run DEGRADED"
	default:
		return ":rotating_light: Canary Run FAILED"
	}
}

func colorFor(verdict string) string {
	switch verdict {
	case "success":
		return colorSuccess
	case "degraded":
		return colorDegraded
	default:
		return colorFailure
	}
}

func gradeGlyph(grade string) string {
	switch grade {
	case report.GradeGreen:
		return ":large_green_circle:"
	case report.GradeYellow:
		return ":large_yellow_circle:"
	default:
		return ":red_circle:"
	}
}

func errorDetail(r report.Report) string {
	if r.FailedStep != "" {
		for _, row := range r.Steps {
			if row.Name == r.FailedStep {
				return fmt.Sprintf("%s: %s", row.Name, row.Error)
			}
		}
	}
	return r.Error
}

func stepLines(steps []report.StepRow) string {
	lines := make([]string, 0, len(steps))
	for _, row := range steps {
		switch row.Status {
		case "skipped":
			lines = append(lines, fmt.Sprintf("%d. `%s`: skipped", row.Ordinal, row.Name))
		case "passed":
			line := fmt.Sprintf("%d. `%s`: %.1fs", row.Ordinal, row.Name, row.ElapsedSeconds)
			if row.BaselineSeconds > 0 {
				line += fmt.Sprintf(" (baseline %.1fs", row.BaselineSeconds)
				if row.Pace != "" {
					line += fmt.Sprintf(", %s %+.0f%%", row.Pace, row.DeltaPct)
				}
				line += ")"
			}
			lines = append(lines, line)
		default:
			lines = append(lines, fmt.Sprintf("%d. `%s`: %s after %d attempt(s), %.1fs",
				row.Ordinal, row.Name, row.Status, row.Attempts, row.ElapsedSeconds))
		}
	}
	return strings.Join(lines, "\n")
}

func storeLines(s *report.StoreSummary) string {
	lines := []string{
		fmt.Sprintf("workspace: `%s` status `%s`", orNA(s.WorkspaceID), orNA(s.WorkspaceStatus)),
		fmt.Sprintf("categories: %d | prompts: %d | competitors: %d", s.Categories, s.Prompts, s.Competitors),
	}
	if len(s.CategoryNames) > 0 {
		lines = append(lines, "categories: "+strings.Join(firstN(s.CategoryNames, 5), ", "))
	}
	if len(s.PromptSamples) > 0 {
		lines = append(lines, "prompt samples: "+strings.Join(firstN(s.PromptSamples, 5), " | "))
	}
	if s.SnapshotStatus != "" {
		lines = append(lines, fmt.Sprintf("snapshot: `%s` (%d prompts: %d done, %d pending, %d failed)",
			s.SnapshotStatus, s.SnapshotPrompts.Total, s.SnapshotPrompts.Completed,
			s.SnapshotPrompts.Pending+s.SnapshotPrompts.Processing, s.SnapshotPrompts.Failed))
	} else {
		lines = append(lines, "snapshot: none")
	}
	if len(s.CompetitorNames) > 0 {
		lines = append(lines, "competitors: "+strings.Join(firstN(s.CompetitorNames, 5), ", "))
	}
	if s.Dashboard != nil {
		lines = append(lines, fmt.Sprintf("dashboard: loaded=%t charts=%t sections=%d cards=%d",
			s.Dashboard.Loaded, s.Dashboard.ChartsVisible, s.Dashboard.Sections, s.Dashboard.Cards))
	}
	return strings.Join(lines, "\n")
}

func usageLines(usage []report.UsageRow, slowest []report.SlowCall) string {
	lines := make([]string, 0, len(usage)+len(slowest)+1)
	for _, u := range usage {
		lines = append(lines, fmt.Sprintf("`%s`: %d calls, avg %.1fs, total %.1fs, $%.4f, %d tokens",
			u.Model, u.Calls, u.AvgSeconds, u.TotalSeconds, u.TotalCost, u.TotalTokens))
	}
	if len(slowest) > 0 {
		slow := make([]string, 0, len(slowest))
		for _, s := range slowest {
			slow = append(slow, fmt.Sprintf("`%s` %.1fs", s.Model, s.Seconds))
		}
		lines = append(lines, "slowest: "+strings.Join(slow, ", "))
	}
	return strings.Join(lines, "\n")
}

func orNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return "n/a"
	}
	return v
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
