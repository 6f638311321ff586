package automation

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// Screenshot captures the current viewport into the debug directory, keyed
// by stage name and timestamp. Only active when the run has screenshots
// enabled; failures are swallowed so evidence capture never breaks a run.
func (s *Session) Screenshot(stage string, rl *RunLog) {
	if !s.opts.Screenshots {
		return
	}
	if err := os.MkdirAll(s.opts.ScreenshotsDir, 0o755); err != nil {
		return
	}
	name := fmt.Sprintf("%d-%s.png", time.Now().UnixMilli(), stage)
	path := filepath.Join(s.opts.ScreenshotsDir, name)
	if _, err := s.page.Screenshot(pw.PageScreenshotOptions{
		Path:     pw.String(path),
		FullPage: pw.Bool(false),
	}); err != nil {
		rl.Debug("[screenshot] %s failed: %v", stage, err)
	}
}

// DumpVisibleText logs a bounded sample of the page's visible text nodes.
// Debug aid for understanding the portal DOM when a locator misses.
func (s *Session) DumpVisibleText(rl *RunLog) {
	if !s.opts.Debug {
		return
	}
	spans := collectTexts(s.page, narrowSelector)
	shown := make([]string, 0, 30)
	for _, t := range spans {
		if t != "" && len(t) < maxTargetTextLen {
			shown = append(shown, t)
			if len(shown) == 30 {
				break
			}
		}
	}
	rl.Debug("[debug] visible spans: %q", shown)
}
