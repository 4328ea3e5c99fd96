package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sm8extract/internal/browser"
	"sm8extract/internal/config"
	"sm8extract/internal/cookies"
	"sm8extract/internal/extract"
	"sm8extract/internal/fingerprint"
	"sm8extract/internal/result"
	"sm8extract/internal/server"
	"sm8extract/internal/sm8"
	"sm8extract/internal/state"
	"sm8extract/internal/webhook"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	cfg, err := config.Load("config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config.yaml: %v\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel, cfg.LogFile)

	logger.Info("servicem8 extractor starting",
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("headless", cfg.Headless),
		slog.String("result_path", cfg.ResultPath),
	)

	// Optional: seed the cookie jar from a local browser, like yt-dlp:
	//
	//   sm8extract --cookies-from-browser chrome
	//
	var importBrowser string
	var serveMode bool
	var captureMode bool
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--cookies-from-browser":
			if i+1 < len(args) {
				importBrowser = args[i+1]
				i++
			}
		case "--serve":
			serveMode = true
		case "--capture-fingerprint":
			captureMode = true
		}
	}
	if strings.EqualFold(os.Getenv("CAPTURE_FINGERPRINT"), "true") {
		captureMode = true
	}

	if importBrowser != "" {
		if cs, err := cookies.FromBrowser(importBrowser, cfg.BaseURL); err != nil {
			logger.Error("cookie import failed", slog.String("err", err.Error()))
		} else if err := cookies.Save(cfg.CookiesPath, cs); err != nil {
			logger.Error("cookie jar write failed", slog.String("err", err.Error()))
		} else {
			logger.Info("imported cookies from browser",
				slog.String("browser", importBrowser),
				slog.Int("count", len(cs)),
				slog.String("jar", cfg.CookiesPath),
			)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info("shutdown signal received")
		cancel()
	}()

	if captureMode {
		if err := captureFingerprint(ctx, cfg, logger); err != nil {
			logger.Error("fingerprint capture failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		return
	}

	st := state.New()

	if serveMode {
		serve(ctx, cfg, st, logger)
		return
	}

	// One-shot mode: run the pipeline once and exit.
	st.TryStart()
	n, err := runOnce(ctx, cfg, func(stage string) { st.SetStage(stage, 0) }, logger)
	st.FinishRun(n, err)
	if err != nil {
		logger.Error("extraction failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	logger.Info("extraction complete", slog.Int("endpoints", n))
}

// runOnce executes the whole pipeline: browser, session, dispatch board,
// token scrape, result file, webhook. setStage reports each transition (to
// the run state, and in serve mode to the /ws clients too). On any failure
// result.json still gets a valid empty array.
func runOnce(ctx context.Context, cfg config.Config, setStage func(stage string), logger *slog.Logger) (int, error) {
	retryDelay := time.Duration(cfg.RetryDelaySeconds) * time.Second

	setStage(state.StageBrowser)
	b, err := browser.Launch(ctx, browser.Options{
		Headless:    cfg.Headless,
		DownloadDir: cfg.DownloadDir,
		Logger:      logger,
	})
	if err != nil {
		return failRun(cfg, logger, fmt.Errorf("browser setup: %w", err))
	}
	defer browser.KillStrayChrome(logger)
	defer b.Close()

	// Replay the saved device identity before the site sees any request.
	fp, err := fingerprint.Load(cfg.FingerprintPath, time.Now())
	if err != nil {
		logger.Warn("fingerprint load failed", slog.String("err", err.Error()))
	}
	if fp != nil {
		if err := fp.Apply(b.Ctx()); err != nil {
			logger.Warn("fingerprint apply failed", slog.String("err", err.Error()))
		} else {
			logger.Info("device fingerprint applied")
		}
	}

	setStage(state.StageLogin)
	site := sm8.New(b, cfg, logger)
	if !site.ResumeSession() {
		creds, err := config.CredentialsFromEnv()
		if err != nil {
			return failRun(cfg, logger, err)
		}
		if err := site.Login(creds); err != nil {
			return failRun(cfg, logger, fmt.Errorf("login: %w", err))
		}
	}

	// A fresh login on a new identity is the moment to record it.
	if fp == nil {
		if nfp, err := fingerprint.Capture(b.Ctx(), "automatic"); err != nil {
			logger.Warn("fingerprint capture failed", slog.String("err", err.Error()))
		} else if err := nfp.Save(cfg.FingerprintPath); err != nil {
			logger.Warn("fingerprint save failed", slog.String("err", err.Error()))
		} else {
			logger.Info("device fingerprint captured", slog.String("path", cfg.FingerprintPath))
		}
	}

	if cs, err := cookies.FromPage(b.Ctx(), cfg.BaseURL); err != nil {
		logger.Warn("cookie export failed", slog.String("err", err.Error()))
	} else if err := cookies.Save(cfg.CookiesPath, cs); err != nil {
		logger.Warn("cookie jar write failed", slog.String("err", err.Error()))
	} else {
		logger.Info("session cookies saved", slog.Int("count", len(cs)))
	}

	setStage(state.StageNavigation)
	if err := site.NavigateDispatch(); err != nil {
		return failRun(cfg, logger, fmt.Errorf("dispatch board: %w", err))
	}

	setStage(state.StageExtraction)
	tokens, err := extract.Tokens(b.Ctx(), cfg.MaxRetries, retryDelay, b.Refresh, logger)
	if err != nil {
		return failRun(cfg, logger, fmt.Errorf("token extraction: %w", err))
	}

	cs, err := cookies.FromPage(b.Ctx(), cfg.BaseURL, "https://ap-southeast-2.go.servicem8.com")
	if err != nil {
		logger.Warn("cookie header export failed", slog.String("err", err.Error()))
	}
	res := extract.BuildResult(tokens, cookies.HeaderString(cs))

	if err := result.Write(cfg.ResultPath, res); err != nil {
		return 0, fmt.Errorf("write result: %w", err)
	}
	logger.Info("result written",
		slog.String("path", cfg.ResultPath),
		slog.Int("endpoints", len(res.APIEndpoints)),
	)

	setStage(state.StageDelivery)
	if err := webhook.NewSender(cfg.WebhookURL, logger).Send(ctx, res); err != nil {
		logger.Error("webhook delivery failed", slog.String("err", err.Error()))
	}
	return len(res.APIEndpoints), nil
}

// failRun writes the empty-array result before surfacing the error, so
// downstream consumers never see a stale or missing file.
func failRun(cfg config.Config, logger *slog.Logger, err error) (int, error) {
	if werr := result.Write(cfg.ResultPath, nil); werr != nil {
		logger.Error("could not write empty result", slog.String("err", werr.Error()))
	}
	return 0, err
}

// serve runs the pipeline once, then keeps the status server up so runs can
// be re-triggered over HTTP.
func serve(ctx context.Context, cfg config.Config, st *state.State, logger *slog.Logger) {
	var srv *server.HTTPServer
	trigger := func() bool {
		if !st.TryStart() {
			return false
		}
		go func() {
			setStage := func(stage string) {
				st.SetStage(stage, 0)
				srv.BroadcastStage(stage, 0)
			}
			n, err := runOnce(ctx, cfg, setStage, logger)
			st.FinishRun(n, err)
			if err != nil {
				srv.BroadcastError(err.Error())
			} else {
				srv.BroadcastDone(n)
			}
		}()
		return true
	}
	srv = server.NewHTTPServer(cfg, st, trigger, logger)

	httpSrv := &http.Server{
		Addr:    srv.Addr(),
		Handler: srv.Router(),
	}

	done := make(chan struct{})
	go func() {
		logger.Info("status server listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
		}
		close(done)
	}()

	trigger()

	<-ctx.Done()
	logger.Info("shutting down...")
	shCtx, shCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shCancel()
	_ = httpSrv.Shutdown(shCtx)
	<-done
	logger.Info("bye")
}

// captureFingerprint opens a visible browser on the site and records the
// device attributes the stealth layer will replay on later runs.
func captureFingerprint(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	b, err := browser.Launch(ctx, browser.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.LoadPage(cfg.BaseURL, cfg.MaxRetries, time.Duration(cfg.RetryDelaySeconds)*time.Second); err != nil {
		return err
	}
	fp, err := fingerprint.Capture(b.Ctx(), "manual")
	if err != nil {
		return err
	}
	if err := fp.Save(cfg.FingerprintPath); err != nil {
		return err
	}
	logger.Info("device fingerprint saved",
		slog.String("path", cfg.FingerprintPath),
		slog.String("user_agent", fp.UserAgent),
		slog.String("screen", fp.ScreenResolution),
	)
	return nil
}
