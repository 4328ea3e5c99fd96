// Package fingerprint captures and replays the browser-identity record that
// keeps repeated automated logins looking like the same returning device.
package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MaxAge is the informal freshness window; an older record is discarded and
// recaptured after the next successful login.
const MaxAge = 30 * 24 * time.Hour

// Fingerprint is the flat identity record persisted as
// device_fingerprint.json. Field names match the historical file layout so
// existing deployments keep their fingerprints.
type Fingerprint struct {
	UserAgent           string   `json:"user_agent"`
	Platform            string   `json:"platform"`
	Language            string   `json:"language"`
	Languages           []string `json:"languages"`
	Timezone            string   `json:"timezone"`
	ScreenResolution    string   `json:"screen_resolution"` // "1920x1080"
	ColorDepth          int      `json:"color_depth"`
	PixelRatio          float64  `json:"pixel_ratio"`
	WebGLVendor         string   `json:"webgl_vendor"`
	WebGLRenderer       string   `json:"webgl_renderer"`
	HardwareConcurrency int      `json:"hardware_concurrency,omitempty"`
	MaxTouchPoints      int      `json:"max_touch_points,omitempty"`
	CookieEnabled       bool     `json:"cookie_enabled,omitempty"`
	DoNotTrack          string   `json:"do_not_track,omitempty"`
	Timestamp           int64    `json:"timestamp"`
	CaptureMethod       string   `json:"capture_method,omitempty"`
}

const captureJS = `
(() => {
	const gl = (() => {
		try {
			const canvas = document.createElement('canvas');
			return canvas.getContext('webgl') || canvas.getContext('experimental-webgl');
		} catch (e) { return null; }
	})();
	return {
		user_agent: navigator.userAgent,
		platform: navigator.platform,
		language: navigator.language,
		languages: Array.from(navigator.languages || []),
		timezone: Intl.DateTimeFormat().resolvedOptions().timeZone,
		screen_resolution: screen.width + 'x' + screen.height,
		color_depth: screen.colorDepth,
		pixel_ratio: window.devicePixelRatio,
		webgl_vendor: gl ? gl.getParameter(gl.VENDOR) : 'unknown',
		webgl_renderer: gl ? gl.getParameter(gl.RENDERER) : 'unknown',
		hardware_concurrency: navigator.hardwareConcurrency || 0,
		max_touch_points: navigator.maxTouchPoints || 0,
		cookie_enabled: navigator.cookieEnabled,
		do_not_track: navigator.doNotTrack || '',
	};
})()
`

// Capture reads the identity attributes out of the live page.
func Capture(ctx context.Context, method string) (*Fingerprint, error) {
	var fp Fingerprint
	if err := chromedp.Run(ctx, chromedp.Evaluate(captureJS, &fp)); err != nil {
		return nil, fmt.Errorf("capture fingerprint: %w", err)
	}
	fp.Timestamp = time.Now().Unix()
	fp.CaptureMethod = method
	return &fp, nil
}

func (fp *Fingerprint) Save(path string) error {
	b, err := json.MarshalIndent(fp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Load reads a saved fingerprint. A missing file or a record past MaxAge
// returns (nil, nil): both mean "capture a new one after login".
func Load(path string, now time.Time) (*Fingerprint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var fp Fingerprint
	if err := json.Unmarshal(b, &fp); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if !fp.Fresh(now) {
		return nil, nil
	}
	return &fp, nil
}

func (fp *Fingerprint) Fresh(now time.Time) bool {
	if fp.Timestamp == 0 {
		return false
	}
	return now.Sub(time.Unix(fp.Timestamp, 0)) <= MaxAge
}

// Apply replays the fingerprint into the current page via property
// overrides. Best-effort: the pinned launch flags already cover most of it,
// this catches the rest (screen metrics, pixel ratio).
func (fp *Fingerprint) Apply(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.Evaluate(fp.applyScript(), nil))
}

func (fp *Fingerprint) applyScript() string {
	width, height := fp.screenDims()
	langs, _ := json.Marshal(fp.Languages)
	var sb strings.Builder
	sb.WriteString("(() => {\n")
	defineGetter(&sb, "navigator", "userAgent", strconv.Quote(fp.UserAgent))
	defineGetter(&sb, "navigator", "platform", strconv.Quote(fp.Platform))
	defineGetter(&sb, "navigator", "language", strconv.Quote(fp.Language))
	defineGetter(&sb, "navigator", "languages", string(langs))
	defineGetter(&sb, "screen", "width", strconv.Itoa(width))
	defineGetter(&sb, "screen", "height", strconv.Itoa(height))
	defineGetter(&sb, "screen", "colorDepth", strconv.Itoa(fp.ColorDepth))
	defineGetter(&sb, "window", "devicePixelRatio", strconv.FormatFloat(fp.PixelRatio, 'g', -1, 64))
	sb.WriteString("})()")
	return sb.String()
}

func defineGetter(sb *strings.Builder, obj, prop, valueJS string) {
	fmt.Fprintf(sb, "Object.defineProperty(%s, '%s', { get: function() { return %s; } });\n", obj, prop, valueJS)
}

func (fp *Fingerprint) screenDims() (int, int) {
	parts := strings.SplitN(fp.ScreenResolution, "x", 2)
	if len(parts) != 2 {
		return 1920, 1080
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 1920, 1080
	}
	return w, h
}
