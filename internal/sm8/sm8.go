// Package sm8 drives the ServiceM8 web UI: the login form, the ExtJS
// popups and masks that block it, and the hunt for the Dispatch Board.
package sm8

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"sm8extract/internal/browser"
	"sm8extract/internal/config"
	"sm8extract/internal/cookies"
	"sm8extract/internal/retry"
)

// ErrAccessDenied means the account cannot see the Dispatch Board at all.
// Retrying will not help, the caller should fail the run immediately.
var ErrAccessDenied = errors.New("access denied on dispatch board")

// ErrNoAuthCode means the site raised a 2FA challenge and AUTH_CODE is not
// set. Re-typing the credentials only triggers the same challenge, so this
// one aborts the login retry loop.
var ErrNoAuthCode = errors.New("2fa code required but AUTH_CODE is not set")

// Site wraps a launched browser with the ServiceM8 page flows.
type Site struct {
	b      *browser.Browser
	cfg    config.Config
	logger *slog.Logger
}

func New(b *browser.Browser, cfg config.Config, logger *slog.Logger) *Site {
	return &Site{b: b, cfg: cfg, logger: logger}
}

func (s *Site) LoginURL() string    { return s.cfg.BaseURL }
func (s *Site) DispatchURL() string { return s.cfg.BaseURL + s.cfg.DispatchPath }

func (s *Site) retryDelay() time.Duration {
	return time.Duration(s.cfg.RetryDelaySeconds) * time.Second
}

// ResumeSession tries the saved cookie jar before touching the login form.
// On a stale jar the file is cleared so the next run goes straight to
// credentials.
func (s *Site) ResumeSession() bool {
	cs, err := cookies.Load(s.cfg.CookiesPath)
	if err != nil || len(cs) == 0 {
		return false
	}
	s.logger.Info("found saved cookies, attempting session resume", slog.Int("count", len(cs)))

	if err := s.b.LoadPage(s.LoginURL(), s.cfg.MaxRetries, s.retryDelay()); err != nil {
		s.logger.Warn("could not open site for cookie restore", slog.String("err", err.Error()))
		return false
	}
	if n := cookies.Restore(s.b.Ctx(), cs, s.LoginURL(), s.logger); n == 0 {
		cookies.Clear(s.cfg.CookiesPath)
		return false
	}
	if err := s.b.Refresh(); err != nil {
		s.logger.Warn("refresh after cookie restore failed", slog.String("err", err.Error()))
		return false
	}
	_ = s.b.WaitReadyState(15 * time.Second)
	time.Sleep(3 * time.Second)

	if s.loggedIn() {
		s.logger.Info("session resumed from saved cookies")
		return true
	}
	s.logger.Info("saved cookies are stale, clearing jar")
	cookies.Clear(s.cfg.CookiesPath)
	return false
}

// Login performs the credential flow with retry. Each attempt reloads the
// login page, closes the Updates popup if it appears, types the credentials
// with a human keystroke cadence, submits, and answers the 2FA prompt when
// the site challenges an unrecognized device.
func (s *Site) Login(creds config.Credentials) error {
	return retry.Do(s.b.Ctx(), s.cfg.MaxRetries, s.retryDelay(), func(attempt int) error {
		s.logger.Info("login attempt", slog.Int("attempt", attempt), slog.Int("max", s.cfg.MaxRetries))

		if err := s.b.LoadPage(s.LoginURL(), s.cfg.MaxRetries, s.retryDelay()); err != nil {
			return fmt.Errorf("load login page: %w", err)
		}
		s.closeUpdatesPopup()

		tctx, cancel := context.WithTimeout(s.b.Ctx(), 2*time.Minute)
		defer cancel()

		if err := chromedp.Run(tctx, chromedp.WaitVisible("#user_email", chromedp.ByID)); err != nil {
			return fmt.Errorf("login form did not appear: %w", err)
		}

		if err := s.typeSlowly(tctx, "#user_email", creds.Email); err != nil {
			return fmt.Errorf("type email: %w", err)
		}
		time.Sleep(2 * time.Second)
		if err := s.typeSlowly(tctx, "#user_password", creds.Password); err != nil {
			return fmt.Errorf("type password: %w", err)
		}
		time.Sleep(2 * time.Second)

		if err := chromedp.Run(tctx, chromedp.Click(`button[type="submit"]`, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("click submit: %w", err)
		}
		time.Sleep(5 * time.Second)
		s.b.Screenshot(s.cfg.ScreenshotsDir, "after_login_submit")

		if ok, err := s.handle2FA(creds.AuthCode); err != nil {
			if errors.Is(err, ErrNoAuthCode) {
				return retry.Abort(err)
			}
			return err
		} else if ok {
			s.b.Screenshot(s.cfg.ScreenshotsDir, "after_2fa")
		}

		// Give the app shell time to settle before judging the URL.
		waitTotal := time.Duration(s.cfg.LoginWaitSeconds) * time.Second
		deadline := time.Now().Add(waitTotal)
		for !s.loggedIn() {
			if time.Now().After(deadline) {
				cur, _ := s.b.Location()
				return fmt.Errorf("still on login page after %s, url %q", waitTotal, cur)
			}
			time.Sleep(2 * time.Second)
		}
		s.logger.Info("login successful")
		s.b.Screenshot(s.cfg.ScreenshotsDir, "login_success")
		return nil
	})
}

// loggedIn reports whether the URL is off the login form but still on the
// site.
func (s *Site) loggedIn() bool {
	cur, err := s.b.Location()
	if err != nil {
		return false
	}
	lower := strings.ToLower(cur)
	return !strings.Contains(lower, "login") && strings.Contains(lower, "servicem8.com")
}

// typeSlowly clears the field and sends one keystroke per typing interval.
// Pasting the whole string at once trips the site's bot heuristics.
func (s *Site) typeSlowly(ctx context.Context, sel, text string) error {
	delay := time.Duration(s.cfg.TypingDelayMS) * time.Millisecond
	if err := chromedp.Run(ctx,
		chromedp.Click(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
	); err != nil {
		return err
	}
	time.Sleep(time.Second)
	for _, r := range text {
		if err := chromedp.Run(ctx, chromedp.SendKeys(sel, string(r), chromedp.ByQuery)); err != nil {
			return err
		}
		time.Sleep(delay)
	}
	return nil
}

// closeUpdatesPopup dismisses the ExtJS "Updates" window that sometimes
// covers the login form. Selector chain first, Escape as the last resort.
// Failure here is never fatal.
func (s *Site) closeUpdatesPopup() {
	const closeJS = `(function() {
		var sels = [
			'.x-tool.x-tool-close',
			'.x-window-header .x-tool-close',
			'[class*="x-tool-close"]'
		];
		for (var i = 0; i < sels.length; i++) {
			var el = document.querySelector(sels[i]);
			if (el) { el.click(); return sels[i]; }
		}
		return '';
	})()`

	var hit string
	if err := chromedp.Run(s.b.Ctx(), chromedp.Evaluate(closeJS, &hit)); err != nil {
		s.logger.Debug("popup probe failed", slog.String("err", err.Error()))
		return
	}
	if hit != "" {
		s.logger.Info("closed updates popup", slog.String("selector", hit))
		time.Sleep(2 * time.Second)
		return
	}
	// No close tool found. Escape closes focused ExtJS windows and is
	// harmless on the bare login form.
	if err := chromedp.Run(s.b.Ctx(), chromedp.KeyEvent(kb.Escape)); err == nil {
		s.logger.Debug("sent escape to dismiss any popup")
	}
}

// handle2FA fills the authentication code prompt when present. Returns true
// when a 2FA page was detected and answered.
func (s *Site) handle2FA(authCode string) (bool, error) {
	var src string
	if err := chromedp.Run(s.b.Ctx(),
		chromedp.Evaluate("document.body ? document.body.innerText : ''", &src),
	); err != nil {
		return false, nil
	}
	lower := strings.ToLower(src)
	if !strings.Contains(lower, "authentication code") && !strings.Contains(lower, "enter your authentication") {
		return false, nil
	}

	s.logger.Info("2fa page detected")
	s.b.Screenshot(s.cfg.ScreenshotsDir, "2fa_page")
	if authCode == "" {
		return true, ErrNoAuthCode
	}

	fillJS := fmt.Sprintf(`(function() {
		var sels = [
			'input[name*="code"]', 'input[id*="code"]',
			'input[placeholder*="code"]', 'input[placeholder*="digit"]',
			'input[type="number"]', 'input[type="text"]'
		];
		for (var i = 0; i < sels.length; i++) {
			var el = document.querySelector(sels[i]);
			if (el) {
				el.value = %s;
				el.dispatchEvent(new Event('input', {bubbles: true}));
				return true;
			}
		}
		return false;
	})()`, jsString(authCode))

	var filled bool
	if err := chromedp.Run(s.b.Ctx(), chromedp.Evaluate(fillJS, &filled)); err != nil || !filled {
		return true, errors.New("could not find 2fa code input")
	}

	const submitJS = `(function() {
		var el = document.querySelector('button[type="submit"], input[type="submit"]');
		if (!el) {
			var btns = document.querySelectorAll('button, input[type="button"]');
			for (var i = 0; i < btns.length; i++) {
				var t = (btns[i].textContent || btns[i].value || '').toLowerCase();
				if (t.indexOf('continue') >= 0 || t.indexOf('verify') >= 0) { el = btns[i]; break; }
			}
		}
		if (el) { el.click(); return true; }
		return false;
	})()`

	var clicked bool
	if err := chromedp.Run(s.b.Ctx(), chromedp.Evaluate(submitJS, &clicked)); err != nil || !clicked {
		return true, errors.New("could not find 2fa continue button")
	}
	time.Sleep(5 * time.Second)

	if !s.loggedIn() {
		return true, errors.New("2fa code was not accepted")
	}
	s.logger.Info("2fa accepted")
	return true, nil
}

// NavigateDispatch walks the strategies for reaching the Dispatch Board:
// the direct URL, then the menu link selector chain, then a brute scan of
// every anchor on the page. An access-denied page aborts without retrying.
func (s *Site) NavigateDispatch() error {
	delay := time.Duration(s.cfg.NavigationDelaySeconds) * time.Second
	var lastErr error

	for attempt := 1; attempt <= s.cfg.NavigationRetries; attempt++ {
		s.logger.Info("dispatch board navigation", slog.Int("attempt", attempt), slog.Int("max", s.cfg.NavigationRetries))

		ok, err := s.tryDispatchOnce()
		if errors.Is(err, ErrAccessDenied) {
			s.b.Screenshot(s.cfg.ScreenshotsDir, "access_denied")
			return err
		}
		if ok {
			s.logger.Info("dispatch board reached")
			s.b.Screenshot(s.cfg.ScreenshotsDir, "dispatch_board")
			return nil
		}
		if err != nil {
			lastErr = err
			s.logger.Warn("navigation attempt failed", slog.Int("attempt", attempt), slog.String("err", err.Error()))
		} else {
			lastErr = errors.New("dispatch board not reached")
		}

		if attempt < s.cfg.NavigationRetries {
			_ = s.b.Refresh()
			_ = s.b.WaitReadyState(15 * time.Second)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("all %d navigation attempts failed: %w", s.cfg.NavigationRetries, lastErr)
}

func (s *Site) tryDispatchOnce() (bool, error) {
	// Strategy 1: the direct URL.
	if err := s.b.LoadPage(s.DispatchURL(), 1, 0); err != nil {
		s.logger.Warn("direct dispatch url failed", slog.String("err", err.Error()))
	} else {
		time.Sleep(10 * time.Second)
		if denied, err := s.accessDenied(); err == nil && denied {
			return false, ErrAccessDenied
		}
		if s.onDispatch() {
			return true, nil
		}
	}

	// Strategy 2: the dispatch link in the app menu.
	s.removeMasks()
	if s.clickDispatchLink() {
		time.Sleep(10 * time.Second)
		if s.onDispatch() {
			return true, nil
		}
	}

	// Strategy 3: scan every anchor for anything dispatch-shaped.
	if s.clickAnyDispatchAnchor() {
		time.Sleep(10 * time.Second)
		if s.onDispatch() {
			return true, nil
		}
	}
	return false, nil
}

func (s *Site) onDispatch() bool {
	cur, err := s.b.Location()
	if err != nil {
		return false
	}
	lower := strings.ToLower(cur)
	return strings.Contains(lower, "job_dispatch") || strings.Contains(lower, "dispatch")
}

func (s *Site) accessDenied() (bool, error) {
	const js = `(function() {
		var t = (document.title || '').toLowerCase();
		var b = document.body ? document.body.innerText.toLowerCase() : '';
		return t.indexOf('access denied') >= 0 || b.indexOf('access denied') >= 0;
	})()`
	var denied bool
	if err := chromedp.Run(s.b.Ctx(), chromedp.Evaluate(js, &denied)); err != nil {
		return false, err
	}
	if denied {
		cur, _ := s.b.Location()
		s.logger.Error("access denied on dispatch board", slog.String("url", cur))
	}
	return denied, nil
}

// removeMasks hides the ExtJS loading masks that swallow clicks on the menu.
func (s *Site) removeMasks() {
	const js = `(function() {
		var masks = document.querySelectorAll('.ext-el-mask, .x-mask, [id*="ext-gen"]');
		var n = 0;
		for (var i = 0; i < masks.length; i++) {
			var z = parseInt(masks[i].style.zIndex || '0', 10);
			if (z > 1000) { masks[i].style.display = 'none'; n++; }
		}
		return n;
	})()`
	var n int
	if err := chromedp.Run(s.b.Ctx(), chromedp.Evaluate(js, &n)); err == nil && n > 0 {
		s.logger.Info("removed extjs masks", slog.Int("count", n))
		time.Sleep(time.Second)
	}
}

func (s *Site) clickDispatchLink() bool {
	const js = `(function() {
		var sels = [
			'a[href*="job_dispatch"]',
			'a[href*="dispatch"]',
			'.ThemeMainMenu a[href*="dispatch"]'
		];
		for (var i = 0; i < sels.length; i++) {
			var el = document.querySelector(sels[i]);
			if (el) {
				el.scrollIntoView({block: 'center'});
				el.click();
				return sels[i];
			}
		}
		var all = document.querySelectorAll('a, span, div');
		for (var i = 0; i < all.length; i++) {
			if ((all[i].textContent || '').trim().toLowerCase() === 'dispatch') {
				var a = all[i].closest('a');
				if (a) { a.click(); return 'text:dispatch'; }
			}
		}
		return '';
	})()`
	var hit string
	if err := chromedp.Run(s.b.Ctx(), chromedp.Evaluate(js, &hit)); err != nil {
		s.logger.Warn("dispatch link probe failed", slog.String("err", err.Error()))
		return false
	}
	if hit == "" {
		return false
	}
	s.logger.Info("clicked dispatch link", slog.String("selector", hit))
	return true
}

func (s *Site) clickAnyDispatchAnchor() bool {
	const js = `(function() {
		var links = document.querySelectorAll('a');
		for (var i = 0; i < links.length; i++) {
			var href = (links[i].href || '').toLowerCase();
			var text = (links[i].textContent || '').toLowerCase();
			if (href.indexOf('dispatch') >= 0 || text.indexOf('dispatch') >= 0) {
				links[i].click();
				return href || text;
			}
		}
		return '';
	})()`
	var hit string
	if err := chromedp.Run(s.b.Ctx(), chromedp.Evaluate(js, &hit)); err != nil || hit == "" {
		return false
	}
	s.logger.Info("clicked dispatch anchor from full page scan", slog.String("match", hit))
	return true
}

// jsString quotes a Go string as a JS string literal.
func jsString(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'', '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}
