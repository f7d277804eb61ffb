package flow

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/maxeo-labs/canary-go/internal/domain"
)

// Selectors for the public signup surface. Each carries fallbacks
// because the marketing pages restyle more often than they rename
// form fields.
const (
	selReportButton   = "[data-testid='get-report-button']"
	selBrandURLInput  = "input[name='brand_url'], input[placeholder*='Website'], input[placeholder*='URL']"
	selBrandNameInput = "input[name='brand_name'], input[placeholder*='Brand']"
	selFirstNameInput = "input[name='first_name'], input[placeholder*='First']"
	selLastNameInput  = "input[name='last_name'], input[placeholder*='Last']"
	selEmailInput     = "input[name='email'], input[type='email']"
	selSubmitButton   = "button[type='submit'], input[type='submit']"
	selOTPAnyInput    = "input[maxlength='1'], input[name='totp'], input[maxlength='6']"
)

// Mark names for the loading metrics. The report derives user-visible
// wait times from pairs of these.
const (
	MarkFormSubmitted    = "form_submitted"
	MarkPromptsReady     = "prompts_ready"
	MarkPromptsConfirmed = "prompts_confirmed"
	MarkDashboardReady   = "dashboard_ready"
)

func openLanding(ctx context.Context, rt *Runtime, _ *domain.Run) ([]domain.ArtifactRef, error) {
	return nil, rt.Browser.Navigate(ctx, rt.Config.BaseURL)
}

func openReportForm(ctx context.Context, rt *Runtime, _ *domain.Run) ([]domain.ArtifactRef, error) {
	clicked, err := rt.Browser.ClickByText(ctx, "get free report", "get report")
	if err != nil {
		return nil, err
	}
	if !clicked {
		if err := rt.Browser.Click(ctx, selReportButton); err != nil {
			return nil, fmt.Errorf("report button: %w", err)
		}
	}
	if err := rt.Browser.WaitVisible(ctx, selBrandURLInput); err != nil {
		return nil, fmt.Errorf("signup form did not open: %w", err)
	}
	return nil, nil
}

func submitSignupForm(ctx context.Context, rt *Runtime, run *domain.Run) ([]domain.ArtifactRef, error) {
	fields := []struct {
		name     string
		selector string
		value    string
	}{
		{"brand url", selBrandURLInput, rt.Config.BrandURL()},
		{"brand name", selBrandNameInput, rt.Config.BrandName},
		{"first name", selFirstNameInput, rt.Config.FirstName},
		{"last name", selLastNameInput, rt.Config.LastName},
		{"email", selEmailInput, run.Email},
	}
	for _, f := range fields {
		if err := rt.Browser.Fill(ctx, f.selector, f.value); err != nil {
			return nil, fmt.Errorf("fill %s: %w", f.name, err)
		}
	}

	// Locale pickers are custom widgets that come and go with redesigns.
	// Select them when a plain <select> exists, otherwise rely on the
	// form's defaults.
	selectIfPresent(ctx, rt, "country", rt.Config.Country)
	selectIfPresent(ctx, rt, "language", rt.Config.Language)

	clicked, err := rt.Browser.ClickByText(ctx, "get report", "submit")
	if err != nil {
		return nil, err
	}
	if !clicked {
		if err := rt.Browser.Click(ctx, selSubmitButton); err != nil {
			return nil, fmt.Errorf("submit signup form: %w", err)
		}
	}
	run.Mark(MarkFormSubmitted, rt.now())
	return nil, nil
}

func selectIfPresent(ctx context.Context, rt *Runtime, field, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector("select[name='%s']");
		if (!el) return false;
		el.value = %q;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, field, value)

	var selected bool
	if err := rt.Browser.Evaluate(ctx, script, &selected); err != nil {
		rt.Log.Warn("locale select failed", "field", field, "error", err)
		return
	}
	if !selected {
		rt.Log.Debug("locale select not present", "field", field)
	}
}

var otpCodePattern = regexp.MustCompile(`^[0-9]{6}$`)

func submitOTP(ctx context.Context, rt *Runtime, run *domain.Run) ([]domain.ArtifactRef, error) {
	if err := rt.Browser.WaitVisible(ctx, selOTPAnyInput); err != nil {
		return nil, fmt.Errorf("otp input did not appear: %w", err)
	}

	user, err := rt.DB.UserByEmail(ctx, run.Email)
	if err != nil {
		return nil, fmt.Errorf("load user for otp: %w", err)
	}
	secret, err := rt.Vault.Decrypt(user.TOTPSecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt totp secret: %w", err)
	}
	code, err := rt.otpCode(secret)
	if err != nil {
		return nil, err
	}
	if !otpCodePattern.MatchString(code) {
		return nil, fmt.Errorf("derived otp code has unexpected shape")
	}

	var filled bool
	if err := rt.Browser.Evaluate(ctx, fillOTPScript(code), &filled); err != nil {
		return nil, fmt.Errorf("fill otp: %w", err)
	}
	if !filled {
		return nil, fmt.Errorf("no otp inputs found on page")
	}

	clicked, err := rt.Browser.ClickByText(ctx, "verify", "submit", "continue")
	if err != nil {
		return nil, err
	}
	if !clicked {
		// Some builds auto-submit once the last digit lands.
		rt.Log.Debug("otp submit button not found, assuming auto-submit")
	}
	return nil, nil
}

// fillOTPScript writes the code into whichever OTP widget the page
// renders: six single-digit boxes or one six-char input. Values are set
// through the native setter so controlled inputs pick them up.
func fillOTPScript(code string) string {
	return fmt.Sprintf(`(() => {
		const code = %q;
		const set = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, 'value').set;
		const fire = (el) => {
			el.dispatchEvent(new Event('input', {bubbles: true}));
			el.dispatchEvent(new Event('change', {bubbles: true}));
		};
		const boxes = document.querySelectorAll("input[maxlength='1'][inputmode='numeric'], input[aria-label*='Digit'], input[maxlength='1'][type='text']");
		if (boxes.length >= code.length) {
			for (let i = 0; i < code.length; i++) {
				set.call(boxes[i], code[i]);
				fire(boxes[i]);
			}
			return true;
		}
		const single = document.querySelector("input[name='totp'], input[maxlength='6']");
		if (single) {
			set.call(single, code);
			fire(single);
			return true;
		}
		return false;
	})()`, code)
}

func confirmPrompts(ctx context.Context, rt *Runtime, run *domain.Run) ([]domain.ArtifactRef, error) {
	clicked, err := rt.Browser.ClickByText(ctx, "continue", "confirm", "submit", "next", "save", "proceed")
	if err != nil {
		return nil, err
	}
	if !clicked {
		return nil, fmt.Errorf("no continue button on prompts page")
	}
	run.Mark(MarkPromptsConfirmed, rt.now())
	return nil, nil
}

// dashboardProbeScript summarizes the overview page: is the shell up,
// are charts rendering, how much navigation and content exists.
const dashboardProbeScript = `(() => {
	const out = {loaded: false, charts: 0, sections: 0, cards: 0};
	if (document.querySelector('main') || document.body) out.loaded = true;
	out.charts = document.querySelectorAll('[class*="chart"], canvas, svg').length;
	const sidebar = document.querySelector('aside, nav, [class*="sidebar"]');
	if (sidebar) out.sections = sidebar.querySelectorAll('a').length;
	out.cards = document.querySelectorAll('[class*="card"]').length;
	return out;
})()`

type dashboardProbeResult struct {
	Loaded   bool `json:"loaded"`
	Charts   int  `json:"charts"`
	Sections int  `json:"sections"`
	Cards    int  `json:"cards"`
}

func verifyDashboard(ctx context.Context, rt *Runtime, run *domain.Run) ([]domain.ArtifactRef, error) {
	ws, ok := workspaceRef(run)
	if !ok {
		return nil, fmt.Errorf("no workspace recorded, cannot locate dashboard")
	}

	location, err := rt.Browser.Location(ctx)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(location, "/overview") && ws.Label != "" {
		overviewURL := fmt.Sprintf("%s/workspace/%s/overview", strings.TrimRight(rt.Config.BaseURL, "/"), ws.Label)
		if err := rt.Browser.Navigate(ctx, overviewURL); err != nil {
			return nil, fmt.Errorf("open overview: %w", err)
		}
	}

	var probe dashboardProbeResult
	if err := rt.Browser.Evaluate(ctx, dashboardProbeScript, &probe); err != nil {
		return nil, fmt.Errorf("probe dashboard: %w", err)
	}
	rt.Observed.Dashboard = domain.DashboardProbe{
		Loaded:        probe.Loaded,
		ChartsVisible: probe.Charts > 0,
		Sections:      probe.Sections,
		Cards:         probe.Cards,
	}
	if !probe.Loaded {
		return nil, fmt.Errorf("dashboard shell did not load")
	}
	if probe.Charts == 0 {
		return nil, fmt.Errorf("dashboard loaded without charts")
	}
	return nil, nil
}
