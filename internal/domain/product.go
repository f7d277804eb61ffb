package domain

import "time"

// Workspace provisioning statuses the probe keys on. The backend moves a
// workspace through the INTER_STEP_* stages while the AI pipeline fills
// in categories and prompts, then marks it COMPLETED.
const (
	WorkspaceStatusInterStep1 = "INTER_STEP_1_READY"
	WorkspaceStatusInterStep2 = "INTER_STEP_2_READY"
	WorkspaceStatusCompleted  = "COMPLETED"
	WorkspaceStatusFailed     = "FAILED"
)

const (
	SnapshotStatusCompleted = "COMPLETED"
	SnapshotStatusFailed    = "FAILED"
)

// User is the product row created by the signup flow.
type User struct {
	ID         string
	Email      string
	TOTPSecret string
	IsDeleted  bool
	CreatedAt  time.Time
}

// Workspace is the product row the onboarding flow provisions.
type Workspace struct {
	ID        string
	ULID      string
	Status    string
	Email     string
	FirstName string
	LastName  string
	IsDeleted bool
	CreatedAt time.Time
}

type Snapshot struct {
	ID        string
	Status    string
	CreatedAt time.Time
}

// PromptCounts breaks a snapshot's prompts down by processing status.
type PromptCounts struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// Settled reports whether every prompt reached a terminal status.
func (c PromptCounts) Settled() bool {
	return c.Total > 0 && c.Pending == 0 && c.Processing == 0
}

// Category is one AI-discovered workspace category.
type Category struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Prompt is one generated workspace prompt. Tracked prompts feed the
// snapshot analysis.
type Prompt struct {
	ID        string
	Name      string
	Tracked   bool
	CreatedAt time.Time
}

type Competitor struct {
	ID        string
	Name      string
	Domain    string
	CreatedAt time.Time
}

// ModelUsage aggregates the AI calls one workspace triggered, per model.
type ModelUsage struct {
	Model        string
	Calls        int
	AvgSeconds   float64
	TotalSeconds float64
	TotalCost    float64
	TotalTokens  int64
}

// ModelInvocation is a single AI call, used to surface the slowest ones.
type ModelInvocation struct {
	Model       string
	Seconds     float64
	TotalTokens int64
	CreatedAt   time.Time
}

// AuditCheck is one named pass/fail from the end-of-run verification
// battery.
type AuditCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Observations collects everything the database-facing steps saw, for
// the report. Fields are filled in as the flow progresses; absent data
// stays zero.
type Observations struct {
	WorkspaceStatus string
	CategoryCount   int
	PromptCount     int
	CompetitorCount int
	SnapshotStatus  string
	PromptCounts    PromptCounts
	Categories      []Category
	Prompts         []Prompt
	Competitors     []Competitor
	Usage           []ModelUsage
	Slowest         []ModelInvocation
	Audit           []AuditCheck
	Dashboard       DashboardProbe
}

// DashboardProbe is what the in-page check of the workspace overview
// reported.
type DashboardProbe struct {
	Loaded        bool
	ChartsVisible bool
	Sections      int
	Cards         int
}
