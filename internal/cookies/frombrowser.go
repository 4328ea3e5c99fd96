package cookies

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register finders (Chrome, Chromium, Edge, Brave, Opera, etc.)
)

// FromBrowser loads ServiceM8 cookies for baseURL from a local browser
// profile ("chrome", "chromium", "edge", "brave", "opera"), yt-dlp style.
// Handy when the automated login keeps tripping 2FA: sign in manually once,
// then seed the jar from the real profile.
//
// Decryption across macOS/Windows/Linux is handled by kooky; Chrome can be
// running, kooky reads a snapshot of the DB if needed.
func FromBrowser(browser, baseURL string) ([]Cookie, error) {
	if baseURL == "" {
		return nil, errors.New("baseURL required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse baseURL: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("invalid baseURL host in %q", baseURL)
	}
	// Match on the apex domain so cookies scoped to .servicem8.com are
	// picked up alongside the go. subdomain's.
	if labels := strings.Split(host, "."); len(labels) > 2 {
		host = strings.Join(labels[len(labels)-2:], ".")
	}

	want := normalizeBrowser(browser)

	stores := kooky.FindAllCookieStores()
	var use []kooky.CookieStore
	for _, s := range stores {
		if normalizeBrowser(s.Browser()) != want {
			continue
		}
		use = append(use, s)
	}
	if len(use) == 0 {
		return nil, fmt.Errorf("no %s cookie stores found", want)
	}
	defer func() {
		for _, s := range use {
			_ = s.Close()
		}
	}()

	// Session cookies (no expiry) are included: the ServiceM8 web session
	// rides on them.
	var out []Cookie
	seen := map[string]bool{}
	for _, s := range use {
		cc, _ := s.ReadCookies(kooky.DomainHasSuffix(host))
		for _, kc := range cc {
			key := strings.ToLower(kc.Domain) + "\t" + kc.Path + "\t" + kc.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			c := Cookie{
				Name:     kc.Name,
				Value:    kc.Value,
				Domain:   kc.Domain,
				Path:     kc.Path,
				Secure:   kc.Secure,
				HTTPOnly: kc.HttpOnly,
			}
			if !kc.Expires.IsZero() {
				c.Expiry = float64(kc.Expires.Unix())
			}
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no cookies for %q found in %s", host, want)
	}
	return out, nil
}

func normalizeBrowser(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "chrome", "google chrome":
		return "chrome"
	case "chromium":
		return "chromium"
	case "edge", "microsoft edge":
		return "edge"
	case "brave":
		return "brave"
	case "opera":
		return "opera"
	default:
		return "chrome"
	}
}
