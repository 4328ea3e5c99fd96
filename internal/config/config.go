package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL                string `yaml:"base_url"`
	DispatchPath           string `yaml:"dispatch_path"`
	LogLevel               string `yaml:"log_level"`
	LogFile                string `yaml:"log_file"`
	ResultPath             string `yaml:"result_path"`
	CookiesPath            string `yaml:"cookies_path"`
	FingerprintPath        string `yaml:"fingerprint_path"`
	ScreenshotsDir         string `yaml:"screenshots_dir"`
	DownloadDir            string `yaml:"download_dir"`
	WebhookURL             string `yaml:"webhook_url"`
	Port                   int    `yaml:"port"`
	MaxRetries             int    `yaml:"max_retries"`
	NavigationRetries      int    `yaml:"navigation_retries"`
	RetryDelaySeconds      int    `yaml:"retry_delay_seconds"`
	NavigationDelaySeconds int    `yaml:"navigation_delay_seconds"`
	TypingDelayMS          int    `yaml:"typing_delay_ms"`
	LoginWaitSeconds       int    `yaml:"login_wait_seconds"`
	Headless               bool   `yaml:"headless"`
}

// Credentials come from the process environment (.env via godotenv), never
// from config.yaml, so the yaml file can be committed.
type Credentials struct {
	Email    string
	Password string
	AuthCode string // optional 2FA code
}

func defaults() Config {
	return Config{
		BaseURL:                "https://go.servicem8.com",
		DispatchPath:           "/job_dispatch",
		LogLevel:               "info",
		LogFile:                "./servicem8_extractor.log",
		ResultPath:             "./result.json",
		CookiesPath:            "./servicem8_cookies.json",
		FingerprintPath:        "./device_fingerprint.json",
		ScreenshotsDir:         "./screenshots",
		Port:                   8086,
		MaxRetries:             3,
		NavigationRetries:      5,
		RetryDelaySeconds:      5,
		NavigationDelaySeconds: 15,
		TypingDelayMS:          100,
		LoginWaitSeconds:       15,
	}
}

// Load reads config.yaml and applies environment overrides. A missing file is
// not an error: the tool has to run from a bare checkout with only a .env.
func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}

	applyEnv(&cfg)

	// Validation & normalization
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return cfg, errors.New("base_url must be an absolute URL")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasPrefix(cfg.DispatchPath, "/") {
		return cfg, errors.New(`dispatch_path must start with "/"`)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, errors.New("invalid port")
	}
	if cfg.MaxRetries < 1 {
		return cfg, errors.New("max_retries must be >=1")
	}
	if cfg.NavigationRetries < 1 {
		return cfg, errors.New("navigation_retries must be >=1")
	}
	if cfg.TypingDelayMS < 0 {
		return cfg, errors.New("typing_delay_ms must be >=0")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SERVER_MODE"); strings.EqualFold(v, "true") {
		cfg.Headless = true
	}
	if v := os.Getenv("DOWNLOAD_DIR"); v != "" {
		cfg.DownloadDir = v
	}
	if v := os.Getenv("WEBHOOK"); v != "" {
		cfg.WebhookURL = v
	}
}

// CredentialsFromEnv validates EMAIL/PASSWORD are present. AUTH_CODE stays
// optional because 2FA only triggers on unrecognized devices.
func CredentialsFromEnv() (Credentials, error) {
	c := Credentials{
		Email:    os.Getenv("EMAIL"),
		Password: os.Getenv("PASSWORD"),
		AuthCode: os.Getenv("AUTH_CODE"),
	}
	if c.Email == "" || c.Password == "" {
		return c, errors.New("EMAIL and PASSWORD environment variables are required (create a .env file)")
	}
	return c, nil
}

// NewLogger builds a slog logger writing to stdout and, when logFile is set,
// a size-rotated log file.
func NewLogger(level, logFile string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var w io.Writer = os.Stdout
	if logFile != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
		})
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
