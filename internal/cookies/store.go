// Package cookies persists the ServiceM8 session cookie jar across runs and
// replays it into a fresh Chrome session so most runs skip the login form.
package cookies

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Cookie mirrors the on-disk servicem8_cookies.json record.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expiry   float64 `json:"expiry,omitempty"` // unix seconds, 0 = session cookie
	Secure   bool    `json:"secure,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
}

func Save(path string, cs []Cookie) error {
	b, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func Load(path string) ([]Cookie, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cs []Cookie
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cs, nil
}

// Clear removes the cookie file after a failed cookie login so the next run
// goes straight to credentials.
func Clear(path string) {
	_ = os.Remove(path)
}

// DomainVariants returns the domains to try when restoring a cookie, in
// order: the stored domain, the domain without its leading dot, the app
// host, the bare site domain, and finally no domain at all (page host).
// Saved jars regularly carry subdomain mismatches, hence the chain.
func DomainVariants(domain string) []string {
	variants := []string{domain}
	if trimmed := strings.TrimPrefix(domain, "."); trimmed != domain {
		variants = append(variants, trimmed)
	}
	for _, fallback := range []string{"go.servicem8.com", "servicem8.com", ""} {
		seen := false
		for _, v := range variants {
			if v == fallback {
				seen = true
				break
			}
		}
		if !seen {
			variants = append(variants, fallback)
		}
	}
	return variants
}

// Restore injects each cookie into the browser, walking the domain variant
// chain until one sticks. Returns how many cookies were set.
func Restore(ctx context.Context, cs []Cookie, pageURL string, logger *slog.Logger) int {
	restored := 0
	for _, c := range cs {
		if setCookie(ctx, c, pageURL) {
			restored++
		} else {
			logger.Warn("failed to restore cookie with all domain variants", slog.String("name", c.Name))
		}
	}
	logger.Info("restored cookies", slog.Int("count", restored), slog.Int("total", len(cs)))
	return restored
}

func setCookie(ctx context.Context, c Cookie, pageURL string) bool {
	for _, domain := range DomainVariants(c.Domain) {
		p := network.SetCookie(c.Name, c.Value).
			WithPath(orDefault(c.Path, "/")).
			WithSecure(c.Secure).
			WithHTTPOnly(c.HTTPOnly)
		if domain != "" {
			p = p.WithDomain(domain)
		} else {
			p = p.WithURL(pageURL)
		}
		if c.Expiry > 0 {
			exp := cdp.TimeSinceEpoch(timeFromUnix(c.Expiry))
			p = p.WithExpires(&exp)
		}
		err := chromedp.Run(ctx, p)
		if err == nil {
			return true
		}
	}
	return false
}

// FromPage exports the live session's cookies (HttpOnly included) for the
// given URLs.
func FromPage(ctx context.Context, urls ...string) ([]Cookie, error) {
	var cs []Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		ncs, err := network.GetCookies().WithURLs(urls).Do(ctx)
		if err != nil {
			return err
		}
		for _, nc := range ncs {
			cs = append(cs, Cookie{
				Name:     nc.Name,
				Value:    nc.Value,
				Domain:   nc.Domain,
				Path:     nc.Path,
				Expiry:   nc.Expires,
				Secure:   nc.Secure,
				HTTPOnly: nc.HTTPOnly,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return cs, nil
}

// HeaderString renders cookies as a single Cookie header value,
// "name=value; name2=value2", the form the scraped API templates need.
func HeaderString(cs []Cookie) string {
	var sb strings.Builder
	for i, c := range cs {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(c.Name)
		sb.WriteByte('=')
		sb.WriteString(c.Value)
	}
	return sb.String()
}

func timeFromUnix(sec float64) time.Time {
	return time.Unix(int64(sec), 0)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
