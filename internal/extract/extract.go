// Package extract finds the per-session s_auth tokens in the rendered
// Dispatch Board page. Harvesting (script bodies, window globals, page HTML)
// happens in one JS evaluation; all pattern matching runs Go-side so it can
// be tested against fixture pages.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"

	"sm8extract/internal/retry"
)

// Token map keys. The first three are the RPC names the templates need; the
// rest are the fallback buckets used when none of them appear.
const (
	KeyCalendar       = "CalendarStoreRequest"
	KeyUpdateReminder = "UpdateReminderForJobActivity"
	KeySaveSchedule   = "SaveRecurringJobSchedule"
	KeyGeneralAuth    = "GeneralAuth"
	KeyFallbackAuth   = "FallbackAuth"
	KeyEndpointAuth   = "EndpointAuth"
)

// Harvest is the raw material pulled out of the page in one evaluation.
type Harvest struct {
	Scripts []string `json:"scripts"` // inline <script> bodies
	Globals []string `json:"globals"` // string-valued window properties containing "s_auth="
	HTML    string   `json:"html"`    // body innerHTML, fallback search space
}

var (
	authRe = regexp.MustCompile(`(?i)s_auth=([a-f0-9]+)`)
	urlRe  = regexp.MustCompile(`(?i)https?://[^'"]+\.servicem8\.com[^'"]*s_auth=([a-f0-9]+)`)
)

type rpcMatcher struct {
	key string
	res []*regexp.Regexp
}

// Matching rule: for each RPC name, the literal name followed (within the
// same string/attribute value) by s_auth=<hex>. Quoted variants catch the
// name appearing as a JS string literal.
var rpcMatchers = []rpcMatcher{
	{KeyCalendar, compileVariants("CalendarStoreRequest")},
	{KeyUpdateReminder, compileVariants("PluginReminders_UpdateReminderForJobActivity", "UpdateReminderForJobActivity")},
	{KeySaveSchedule, compileVariants("PluginReminders_SaveRecurringJobSchedule", "SaveRecurringJobSchedule")},
}

func compileVariants(names ...string) []*regexp.Regexp {
	var res []*regexp.Regexp
	for _, name := range names {
		res = append(res,
			regexp.MustCompile(`(?i)`+name+`[^'"]*s_auth=([a-f0-9]+)`),
			regexp.MustCompile(`(?i)'`+name+`'[^']*s_auth=([a-f0-9]+)`),
			regexp.MustCompile(`(?i)"`+name+`"[^"]*s_auth=([a-f0-9]+)`),
			// Loose variant for minified bundles where the name and token
			// sit in different string literals on the same line.
			regexp.MustCompile(`(?i)`+name+`.*?s_auth=([a-f0-9]+)`),
		)
	}
	return res
}

// FindTokens applies the matching rule to a harvest. First match per RPC name
// wins, scripts before globals. When none of the three names match anywhere,
// the fallback buckets are filled instead: GeneralAuth from the first bare
// s_auth in a script, FallbackAuth from the first in page HTML, EndpointAuth
// from the first servicem8.com URL carrying a token. Empty map means failure.
func FindTokens(h Harvest) map[string]string {
	tokens := make(map[string]string)
	sources := make([]string, 0, len(h.Scripts)+len(h.Globals))
	sources = append(sources, h.Scripts...)
	sources = append(sources, h.Globals...)

	for _, m := range rpcMatchers {
		for _, src := range sources {
			if tok := firstMatch(m.res, src); tok != "" {
				tokens[m.key] = tok
				break
			}
		}
	}
	if len(tokens) > 0 {
		return tokens
	}

	// No specific RPC name found anywhere: fall back to a single bare
	// token, buckets tried in order. At most one fallback fires, so the
	// result carries at most one fallback endpoint.
	for _, src := range h.Scripts {
		if mm := authRe.FindStringSubmatch(src); mm != nil {
			tokens[KeyGeneralAuth] = mm[1]
			return tokens
		}
	}
	if mm := authRe.FindStringSubmatch(h.HTML); mm != nil {
		tokens[KeyFallbackAuth] = mm[1]
		return tokens
	}
	if mm := urlRe.FindStringSubmatch(h.HTML); mm != nil {
		tokens[KeyEndpointAuth] = mm[1]
	}
	return tokens
}

func firstMatch(res []*regexp.Regexp, src string) string {
	for _, re := range res {
		if mm := re.FindStringSubmatch(src); mm != nil {
			return mm[1]
		}
	}
	return ""
}

const harvestJS = `
(() => {
	const scripts = [];
	const tags = document.getElementsByTagName('script');
	for (let i = 0; i < tags.length; i++) {
		if (tags[i].innerHTML) scripts.push(tags[i].innerHTML);
	}
	const globals = [];
	for (const prop in window) {
		try {
			const v = window[prop];
			if (typeof v === 'string' && v.indexOf('s_auth=') !== -1) globals.push(v);
		} catch (e) {}
	}
	return {
		scripts: scripts,
		globals: globals,
		html: document.body ? document.body.innerHTML : ''
	};
})()
`

// Scrape pulls a Harvest out of the live page.
func Scrape(ctx context.Context) (Harvest, error) {
	var h Harvest
	if err := chromedp.Run(ctx, chromedp.Evaluate(harvestJS, &h)); err != nil {
		return h, fmt.Errorf("harvest page: %w", err)
	}
	return h, nil
}

// Tokens scrapes and matches with retry, refreshing the page between failed
// attempts in case the board had not finished rendering its inline scripts.
func Tokens(ctx context.Context, attempts int, delay time.Duration, refresh func() error, logger *slog.Logger) (map[string]string, error) {
	var tokens map[string]string
	err := retry.Do(ctx, attempts, delay, func(attempt int) error {
		logger.Info("token extraction", slog.Int("attempt", attempt))
		h, err := Scrape(ctx)
		if err != nil {
			return err
		}
		tokens = FindTokens(h)
		if len(tokens) == 0 {
			if refresh != nil && attempt < attempts {
				if rerr := refresh(); rerr != nil {
					logger.Warn("page refresh failed", slog.String("err", rerr.Error()))
				} else {
					time.Sleep(3 * time.Second)
				}
			}
			return fmt.Errorf("no auth tokens found (scripts=%d globals=%d)", len(h.Scripts), len(h.Globals))
		}
		logger.Info("found auth tokens", slog.Int("count", len(tokens)), slog.Any("keys", keys(tokens)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
