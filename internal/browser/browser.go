// Package browser drives a headless Chrome through the product's public
// pages. It exposes a small primitive surface; the flow package composes
// these into signup and onboarding actions.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Driver is what flow steps program against. The chromedp implementation
// below is the only real one; tests substitute fakes.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	ClickByText(ctx context.Context, patterns ...string) (bool, error)
	Fill(ctx context.Context, selector, value string) error
	Text(ctx context.Context, selector string) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	Evaluate(ctx context.Context, script string, out any) error
	Location(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	PageSource(ctx context.Context) (string, error)
	ConsoleTail() []string
	Close() error
}

type Options struct {
	Headless bool
	Width    int
	Height   int
}

const consoleTailSize = 50

// Chrome drives a real browser over the DevTools protocol.
type Chrome struct {
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	log         *slog.Logger

	mu      sync.Mutex
	console []string
}

// Launch starts Chrome and waits for it to come up. Console output is
// captured from the start so early page errors end up in the tail too.
func Launch(ctx context.Context, opts Options, log *slog.Logger) (*Chrome, error) {
	if opts.Width <= 0 {
		opts.Width = 1920
	}
	if opts.Height <= 0 {
		opts.Height = 1080
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...), "component", "chromedp")
		}),
	)

	c := &Chrome{
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		log:         log,
	}

	chromedp.ListenTarget(browserCtx, func(ev any) {
		msg, ok := ev.(*runtime.EventConsoleAPICalled)
		if !ok {
			return
		}
		var parts []string
		for _, arg := range msg.Args {
			if arg.Value != nil {
				parts = append(parts, string(arg.Value))
			}
		}
		c.appendConsole(fmt.Sprintf("[%s] %s", msg.Type, strings.Join(parts, " ")))
	})

	startCtx, startCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return c, nil
}

// run executes actions against the browser while honoring the caller's
// deadline and cancellation.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.browserCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string) error {
	if err := c.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	if err := c.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// ClickByText finds the first visible enabled button whose text contains
// one of the patterns (case-insensitive) and clicks it. Product pages
// vary their button labels, so steps pass several candidates.
func (c *Chrome) ClickByText(ctx context.Context, patterns ...string) (bool, error) {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		lowered = append(lowered, strings.ToLower(p))
	}
	encoded, err := json.Marshal(lowered)
	if err != nil {
		return false, fmt.Errorf("encode patterns: %w", err)
	}

	script := fmt.Sprintf(`(() => {
		const patterns = %s;
		const buttons = document.querySelectorAll("button, input[type='submit']");
		for (const btn of buttons) {
			if (btn.offsetParent === null || btn.disabled) continue;
			const text = (btn.textContent || btn.value || '').toLowerCase();
			for (const p of patterns) {
				if (text.includes(p)) { btn.click(); return true; }
			}
		}
		return false;
	})()`, encoded)

	var clicked bool
	if err := c.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, fmt.Errorf("click by text: %w", err)
	}
	return clicked, nil
}

func (c *Chrome) Fill(ctx context.Context, selector, value string) error {
	if err := c.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := c.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Text(selector, &text, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("text of %s: %w", selector, err)
	}
	return strings.TrimSpace(text), nil
}

func (c *Chrome) Count(ctx context.Context, selector string) (int, error) {
	var count int
	script := fmt.Sprintf("document.querySelectorAll(%q).length", selector)
	if err := c.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return 0, fmt.Errorf("count %s: %w", selector, err)
	}
	return count, nil
}

func (c *Chrome) Evaluate(ctx context.Context, script string, out any) error {
	if err := c.run(ctx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (c *Chrome) Location(ctx context.Context) (string, error) {
	var url string
	if err := c.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("location: %w", err)
	}
	return url, nil
}

func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := c.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (c *Chrome) PageSource(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("page source: %w", err)
	}
	return html, nil
}

func (c *Chrome) ConsoleTail() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.console))
	copy(out, c.console)
	return out
}

func (c *Chrome) appendConsole(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = append(c.console, line)
	if len(c.console) > consoleTailSize {
		c.console = c.console[len(c.console)-consoleTailSize:]
	}
}

func (c *Chrome) Close() error {
	if c == nil {
		return nil
	}
	err := chromedp.Cancel(c.browserCtx)
	c.cancel()
	c.allocCancel()
	return err
}
