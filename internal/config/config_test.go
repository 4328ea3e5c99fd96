package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.BaseURL != "https://go.servicem8.com" {
		t.Fatalf("default base_url got %s", cfg.BaseURL)
	}
	if cfg.MaxRetries != 3 || cfg.NavigationRetries != 5 {
		t.Fatalf("default retries got %d/%d", cfg.MaxRetries, cfg.NavigationRetries)
	}
}

func TestLoadOverridesAndValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "base_url: \"https://go.servicem8.com/\"\nmax_retries: 4\ntyping_delay_ms: 50\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "https://go.servicem8.com" {
		t.Fatalf("trailing slash not trimmed: %s", cfg.BaseURL)
	}
	if cfg.MaxRetries != 4 || cfg.TypingDelayMS != 50 {
		t.Fatalf("overrides not applied: %d %d", cfg.MaxRetries, cfg.TypingDelayMS)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := []string{
		"base_url: \"not a url\"\n",
		"dispatch_path: \"job_dispatch\"\n",
		"max_retries: 0\n",
		"port: 99999\n",
	}
	for i, body := range cases {
		path := filepath.Join(dir, "c.yaml")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_MODE", "TRUE")
	t.Setenv("WEBHOOK", "https://example.com/hook")
	t.Setenv("DOWNLOAD_DIR", "/tmp/dl")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Headless {
		t.Fatal("SERVER_MODE=true should force headless")
	}
	if cfg.WebhookURL != "https://example.com/hook" || cfg.DownloadDir != "/tmp/dl" {
		t.Fatalf("env overrides not applied: %q %q", cfg.WebhookURL, cfg.DownloadDir)
	}
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("EMAIL", "")
	t.Setenv("PASSWORD", "")
	if _, err := CredentialsFromEnv(); err == nil {
		t.Fatal("expected error without EMAIL/PASSWORD")
	}
	t.Setenv("EMAIL", "ops@example.com")
	t.Setenv("PASSWORD", "hunter2")
	c, err := CredentialsFromEnv()
	if err != nil {
		t.Fatalf("creds: %v", err)
	}
	if c.AuthCode != "" {
		t.Fatalf("auth code should default empty, got %q", c.AuthCode)
	}
}
