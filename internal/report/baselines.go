package report

// Step duration baselines in seconds, measured from healthy production
// runs. A passed step more than paceBand off its baseline is flagged on
// the report; more than twice its baseline becomes an anomaly warning.
var stepBaselines = map[string]float64{
	"landing":             3,
	"open_report_form":    3,
	"submit_signup_form":  45,
	"verify_user_created": 3,
	"submit_otp":          70,
	"await_workspace":     5,
	"await_categories":    60,
	"confirm_prompts":     90,
	"await_snapshot":      300,
	"verify_dashboard":    5,
	"final_audit":         2,
}

const paceBand = 0.20

const (
	PaceSlow = "slow"
	PaceFast = "fast"
)

// Baseline returns the expected duration for a step, when one is known.
func Baseline(step string) (float64, bool) {
	base, ok := stepBaselines[step]
	return base, ok
}

func paceFor(delta float64) string {
	switch {
	case delta > paceBand:
		return PaceSlow
	case delta < -paceBand:
		return PaceFast
	default:
		return ""
	}
}
