package fingerprint

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sample(ts int64) *Fingerprint {
	return &Fingerprint{
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0",
		Platform:         "Win32",
		Language:         "en-AU",
		Languages:        []string{"en-AU", "en"},
		Timezone:         "Australia/Sydney",
		ScreenResolution: "1920x1080",
		ColorDepth:       24,
		PixelRatio:       1,
		WebGLVendor:      "Intel Inc.",
		WebGLRenderer:    "Intel Iris OpenGL Engine",
		Timestamp:        ts,
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_fingerprint.json")
	now := time.Now()
	in := sample(now.Unix())
	if err := in.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := Load(path, now)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out == nil {
		t.Fatal("fresh fingerprint should load")
	}
	if out.UserAgent != in.UserAgent || out.ScreenResolution != in.ScreenResolution {
		t.Fatalf("roundtrip mismatch: %+v", out)
	}
}

func TestLoadMissingIsNil(t *testing.T) {
	fp, err := Load(filepath.Join(t.TempDir(), "none.json"), time.Now())
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if fp != nil {
		t.Fatal("missing file should yield nil fingerprint")
	}
}

func TestLoadRejectsStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_fingerprint.json")
	now := time.Now()
	old := sample(now.Add(-31 * 24 * time.Hour).Unix())
	if err := old.Save(path); err != nil {
		t.Fatal(err)
	}
	fp, err := Load(path, now)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fp != nil {
		t.Fatal("31-day-old fingerprint should be discarded")
	}
}

func TestFreshBoundary(t *testing.T) {
	now := time.Now()
	if !sample(now.Add(-29 * 24 * time.Hour).Unix()).Fresh(now) {
		t.Fatal("29 days should be fresh")
	}
	if sample(0).Fresh(now) {
		t.Fatal("zero timestamp should not be fresh")
	}
}

func TestApplyScript(t *testing.T) {
	fp := sample(time.Now().Unix())
	js := fp.applyScript()
	for _, want := range []string{
		`'userAgent'`,
		`"Win32"`,
		`return 1920`,
		`return 1080`,
		`["en-AU","en"]`,
	} {
		if !strings.Contains(js, want) {
			t.Fatalf("apply script missing %q:\n%s", want, js)
		}
	}
}

func TestScreenDimsFallback(t *testing.T) {
	fp := sample(0)
	fp.ScreenResolution = "garbage"
	w, h := fp.screenDims()
	if w != 1920 || h != 1080 {
		t.Fatalf("fallback dims got %dx%d", w, h)
	}
}
