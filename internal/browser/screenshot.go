package browser

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

// Screenshot captures the current viewport into dir with a timestamped name,
// e.g. screenshots/20260830_141502_after_login.png. Failures are logged and
// swallowed: a missing screenshot must never fail the run.
func (b *Browser) Screenshot(dir, description string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		b.logger.Warn("screenshot dir", slog.String("err", err.Error()))
		return
	}
	var buf []byte
	if err := chromedp.Run(b.ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		b.logger.Warn("screenshot capture failed", slog.String("description", description), slog.String("err", err.Error()))
		return
	}
	name := fmt.Sprintf("%s_%s.png", time.Now().Format("20060102_150405"), description)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		b.logger.Warn("screenshot write failed", slog.String("path", path), slog.String("err", err.Error()))
		return
	}
	b.logger.Info("screenshot saved", slog.String("path", path))
}
