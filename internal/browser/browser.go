// Package browser owns the Chrome session: allocator flags, the stealth init
// script, and the load-with-retry helpers the site flow builds on.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	cdbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"sm8extract/internal/retry"
)

// Pinned so repeated runs present the same identity to the site's anomaly
// detection. Must match the fingerprint captured on first login.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Options struct {
	Headless    bool
	UserDataDir string // optional Chrome profile dir; empty => temp
	DownloadDir string // optional downloads target
	Logger      *slog.Logger
	Quiet       bool // suppress chromedp debug/log output
}

// Browser wraps a live chromedp context. One tab, one run.
type Browser struct {
	ctx     context.Context
	cancels []context.CancelFunc
	logger  *slog.Logger
}

// Launch starts Chrome with the anti-automation flag set, retrying the whole
// setup on failure (3 attempts, 5s apart). Stray Chrome processes from a
// previous crashed run are killed first.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var b *Browser
	err := retry.Do(ctx, 3, 5*time.Second, func(attempt int) error {
		logger.Info("chrome setup", slog.Int("attempt", attempt))
		if b != nil {
			b.Close()
			b = nil
		}
		KillStrayChrome(logger)

		nb, err := launchOnce(ctx, opts, logger)
		if err != nil {
			logger.Error("chrome setup failed", slog.Int("attempt", attempt), slog.String("err", err.Error()))
			return err
		}
		b = nb
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func launchOnce(ctx context.Context, opts Options, logger *slog.Logger) (*Browser, error) {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(userAgent),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("window-size", "1920,1080"),
		chromedp.Flag("start-maximized", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("lang", "en-AU"),
		chromedp.Flag("accept-lang", "en-AU,en;q=0.9"),
		chromedp.Flag("force-device-scale-factor", "1"),
		// Stability set carried over from the server deployments.
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-domain-reliability", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-features", "TranslateUI,BlinkGenPropertyTrees,VizDisplayCompositor"),
		chromedp.Flag("force-color-profile", "srgb"),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("safebrowsing-disable-auto-update", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}

	actx, acancel := chromedp.NewExecAllocator(ctx, allocOpts...)

	var ctxOpts []chromedp.ContextOption
	if opts.Quiet {
		ctxOpts = append(ctxOpts,
			chromedp.WithLogf(func(string, ...any) {}),
			chromedp.WithDebugf(func(string, ...any) {}),
			chromedp.WithErrorf(func(string, ...any) {}),
		)
	} else {
		ctxOpts = append(ctxOpts,
			chromedp.WithLogf(func(f string, a ...any) { logger.Info(fmt.Sprintf(f, a...)) }),
			chromedp.WithDebugf(func(f string, a ...any) { logger.Debug(fmt.Sprintf(f, a...)) }),
			chromedp.WithErrorf(func(f string, a ...any) { logger.Warn(fmt.Sprintf(f, a...)) }),
		)
	}
	cctx, cancel := chromedp.NewContext(actx, ctxOpts...)

	b := &Browser{
		ctx:     cctx,
		cancels: []context.CancelFunc{cancel, acancel},
		logger:  logger,
	}

	// Enable network domain (HttpOnly cookies), install the stealth script,
	// then prove the browser works by opening a blank page.
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if opts.DownloadDir != "" {
		tasks = append(tasks, cdbrowser.
			SetDownloadBehavior(cdbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(opts.DownloadDir))
	}
	tasks = append(tasks, chromedp.Navigate("about:blank"))

	if err := chromedp.Run(cctx, tasks); err != nil {
		b.Close()
		return nil, fmt.Errorf("browser bootstrap: %w", err)
	}
	return b, nil
}

// Ctx is the chromedp context other packages run actions against.
func (b *Browser) Ctx() context.Context { return b.ctx }

func (b *Browser) Close() {
	for _, c := range b.cancels {
		c()
	}
}

// LoadPage navigates with retry: each attempt waits for the document to be
// complete with a body present, then checks the URL did not collapse to a
// data: placeholder. The first attempt also does a plain HTTP responsiveness
// probe so an outage shows up in the logs before Chrome times out.
func (b *Browser) LoadPage(url string, attempts int, delay time.Duration) error {
	return retry.Do(b.ctx, attempts, delay, func(attempt int) error {
		b.logger.Info("loading page", slog.Int("attempt", attempt), slog.String("url", url))
		if attempt == 1 && !checkResponsive(b.ctx, url) {
			b.logger.Warn("responsiveness check failed, continuing with browser load", slog.String("url", url))
		}

		tctx, cancel := context.WithTimeout(b.ctx, 30*time.Second)
		defer cancel()
		err := chromedp.Run(tctx,
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
		if err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		if err := b.WaitReadyState(15 * time.Second); err != nil {
			return err
		}
		cur, err := b.Location()
		if err != nil {
			return err
		}
		if cur == "" || strings.HasPrefix(cur, "data:") {
			return fmt.Errorf("page did not load correctly, url %q", cur)
		}
		return nil
	})
}

// WaitReadyState polls document.readyState until "complete" or timeout.
func (b *Browser) WaitReadyState(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var state string
		if err := chromedp.Run(b.ctx, chromedp.Evaluate("document.readyState", &state)); err != nil {
			return err
		}
		if state == "complete" {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("page never reached readyState complete")
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func (b *Browser) Location() (string, error) {
	var cur string
	err := chromedp.Run(b.ctx, chromedp.Location(&cur))
	return cur, err
}

func (b *Browser) Refresh() error {
	return chromedp.Run(b.ctx, chromedp.Reload())
}

func checkResponsive(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	httpc := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpc.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
