package browser

import (
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// KillStrayChrome force-kills leftover chrome/chromedriver processes from a
// previous crashed run. Headless Chrome on small servers does not always die
// with its parent, and a stale instance holds the profile lock.
func KillStrayChrome(logger *slog.Logger) {
	procs, err := process.Processes()
	if err != nil {
		logger.Debug("process scan failed", slog.String("err", err.Error()))
		return
	}
	killed := 0
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		lower := strings.ToLower(name)
		if strings.Contains(lower, "chrome") || strings.Contains(lower, "chromedriver") {
			if err := p.Kill(); err == nil {
				killed++
			}
		}
	}
	if killed > 0 {
		logger.Info("killed stray chrome processes", slog.Int("count", killed))
		time.Sleep(2 * time.Second)
	}
}
