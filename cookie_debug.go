package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register finders for major browsers
)

// Row is one cookie found in a local browser store. Used to debug why a
// --cookies-from-browser import did not produce a working session.
type Row struct {
	Browser     string `json:"browser"`
	ProfilePath string `json:"profile_path"`
	StoreFile   string `json:"store_file"`
	Domain      string `json:"domain"`
	HostOnly    bool   `json:"host_only"`
	Path        string `json:"path"`
	Name        string `json:"name"`
	Value       string `json:"value"`
	Secure      bool   `json:"secure"`
	HttpOnly    bool   `json:"http_only"`
	SameSite    string `json:"same_site"`
	Expires     string `json:"expires"` // RFC3339 or "session"
}

func main() {
	matchFlag := flag.String("match", "servicem8", "comma-separated substrings to match in cookie domain (case-insensitive)")
	fullFlag := flag.Bool("full", false, "print full cookie values (default truncates to 80 chars)")
	jsonFlag := flag.Bool("json", false, "output JSON instead of pretty text")
	flag.Parse()

	matches := splitList(*matchFlag)
	if len(matches) == 0 {
		fmt.Fprintln(os.Stderr, "No match substrings provided via -match")
		os.Exit(2)
	}

	stores := kooky.FindAllCookieStores()
	if len(stores) == 0 {
		fmt.Fprintln(os.Stderr, "No browser cookie stores found")
		os.Exit(1)
	}
	defer func() {
		for _, s := range stores {
			_ = s.Close()
		}
	}()

	var rows []Row
	now := time.Now()
	for _, s := range stores {
		kcs, _ := s.ReadCookies(kooky.Valid)
		for _, kc := range kcs {
			if !domainHasAny(kc.Domain, matches) {
				continue
			}
			r := Row{
				Browser:     s.Browser(),
				ProfilePath: s.Profile(),
				StoreFile:   s.FilePath(),
				Domain:      kc.Domain,
				HostOnly:    hostOnlyHeuristic(kc.Domain),
				Path:        kc.Path,
				Name:        kc.Name,
				Value:       maybeTruncate(kc.Value, *fullFlag),
				Secure:      kc.Secure,
				HttpOnly:    kc.HttpOnly,
				SameSite:    sameSiteToString(kc.SameSite),
				Expires:     expiresToString(kc.Expires),
			}
			if !kc.Expires.IsZero() && now.After(kc.Expires) {
				r.Expires += " (expired)"
			}
			rows = append(rows, r)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Browser != b.Browser {
			return a.Browser < b.Browser
		}
		if a.StoreFile != b.StoreFile {
			return a.StoreFile < b.StoreFile
		}
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Name < b.Name
	})

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", " ")
		_ = enc.Encode(map[string]any{
			"env": map[string]any{
				"go":       runtime.Version(),
				"os":       runtime.GOOS,
				"arch":     runtime.GOARCH,
				"time_utc": time.Now().UTC().Format(time.RFC3339),
				"match":    matches,
			},
			"count": len(rows),
			"rows":  rows,
		})
		return
	}

	fmt.Printf("Cookie debug (%s %s, %s) match=%v\n", runtime.GOOS, runtime.GOARCH, time.Now().UTC().Format(time.RFC3339), matches)
	fmt.Printf("Found %d matching cookies across %d stores.\n\n", len(rows), len(stores))

	lastStore := ""
	for _, r := range rows {
		storeKey := r.Browser + " :: " + r.StoreFile
		if storeKey != lastStore {
			fmt.Printf("=== %s\n", storeKey)
			if r.ProfilePath != "" {
				fmt.Printf(" profile: %s\n", prettifyPath(r.ProfilePath))
			}
			lastStore = storeKey
		}
		fmt.Printf("- domain: %s path: %s name: %s\n", r.Domain, r.Path, r.Name)
		fmt.Printf("  value : %s\n", r.Value)
		fmt.Printf("  flags : secure=%v httpOnly=%v sameSite=%s hostOnly=%v\n", r.Secure, r.HttpOnly, r.SameSite, r.HostOnly)
		fmt.Printf("  times : expires=%s\n", r.Expires)
	}

	if len(rows) == 0 {
		fmt.Println("No matching cookies. Log in to ServiceM8 in your browser, close it, and re-run.")
	}
}

// ------- helpers -------

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func domainHasAny(domain string, subs []string) bool {
	d := strings.ToLower(strings.TrimSpace(domain))
	for _, sub := range subs {
		if strings.Contains(d, sub) {
			return true
		}
	}
	return false
}

func hostOnlyHeuristic(domain string) bool {
	// Browsers usually store host-only cookies without a leading dot.
	d := strings.TrimSpace(domain)
	return d != "" && !strings.HasPrefix(d, ".")
}

func maybeTruncate(v string, full bool) string {
	if full || len(v) <= 80 {
		return v
	}
	return v[:80] + "…"
}

func expiresToString(t time.Time) string {
	if t.IsZero() {
		return "session"
	}
	return t.UTC().Format(time.RFC3339)
}

func sameSiteToString(ss http.SameSite) string {
	switch ss {
	case http.SameSiteDefaultMode:
		return "Default"
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}

func prettifyPath(p string) string {
	if p == "" {
		return ""
	}
	home, _ := os.UserHomeDir()
	if home != "" {
		if rel, err := filepath.Rel(home, p); err == nil && !strings.HasPrefix(rel, "..") {
			return "~/" + rel
		}
	}
	return p
}
