package automation

import (
	"fmt"
	"os"
	"strings"
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// evaluator is satisfied by both pw.Page and pw.Frame; the engine runs its
// in-page JavaScript against whichever context holds the target element.
type evaluator interface {
	Evaluate(expression string, options ...interface{}) (interface{}, error)
}

// Session is one controlled browser instance plus its document/frame tree.
// It is owned exclusively by a single automation run. When a manual
// challenge is outstanding the session outlives the run (KeepOpen).
type Session struct {
	pwRun   *pw.Playwright
	browser pw.BrowserContext
	page    pw.Page
	opts    Options

	// keepOpen is set once a human challenge is pending; Close becomes a
	// no-op so the operator never loses an in-progress authentication.
	keepOpen bool
}

// OpenSession launches the persistent browser profile for the flavor and
// logs into the portal. Credentials are checked before any browser resource
// is acquired so a failure here never leaks a half-open session.
func OpenSession(flavor Flavor, opts Options, rl *RunLog) (*Session, error) {
	if opts.User == "" || opts.Pass == "" {
		return nil, ErrMissingCredentials
	}

	rl.Info("Opening browser...")
	run, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launchOpts := pw.BrowserTypeLaunchPersistentContextOptions{
		Headless: pw.Bool(opts.Headless),
		Viewport: &pw.Size{Width: 1400, Height: 900},
		Args:     []string{"--no-sandbox", "--disable-setuid-sandbox"},
	}
	if path := browserExecutable(); path != "" {
		launchOpts.ExecutablePath = pw.String(path)
		rl.Debug("[session] using browser executable: %s", path)
	}

	browser, err := run.Chromium.LaunchPersistentContext(flavor.ProfileDir(), launchOpts)
	if err != nil {
		run.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	var page pw.Page
	if pages := browser.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = browser.NewPage()
		if err != nil {
			browser.Close()
			run.Stop()
			return nil, fmt.Errorf("create page: %w", err)
		}
	}

	s := &Session{pwRun: run, browser: browser, page: page, opts: opts}
	if err := s.login(rl); err != nil {
		s.Close(rl)
		return nil, err
	}
	return s, nil
}

// browserExecutable resolves the Chromium binary: explicit env var first,
// then the usual install locations.
func browserExecutable() string {
	if path := os.Getenv("PLAYWRIGHT_EXECUTABLE_PATH"); path != "" {
		return path
	}
	for _, p := range []string{
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// login drives the portal's authentication screen: the credential form lives
// in an iframe that loads asynchronously and has no stable address, so the
// frame is identified by content, polled up to 10 times at 500ms. The first
// two inputs of that frame are username and password.
func (s *Session) login(rl *RunLog) error {
	rl.Info("Starting portal login...")
	if _, err := s.page.Goto(s.opts.LoginURL, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigate to login: %w", err)
	}
	time.Sleep(4 * time.Second)

	var frame pw.Frame
	for i := 0; i < 10 && frame == nil; i++ {
		for _, f := range s.page.Frames() {
			html, err := f.Content()
			if err != nil {
				continue
			}
			if strings.Contains(html, "usuario") || strings.Contains(html, "contraseña") {
				frame = f
				break
			}
		}
		if frame == nil {
			time.Sleep(500 * time.Millisecond)
		}
	}
	if frame == nil {
		frame = s.page.MainFrame()
	}

	inputs := frame.Locator("input")
	count, err := inputs.Count()
	if err != nil || count < 2 {
		return fmt.Errorf("login fields not detected (%d inputs): %w", count, ErrLoginTimeout)
	}

	keyDelay := pw.LocatorPressSequentiallyOptions{Delay: pw.Float(70)}
	if err := inputs.Nth(0).PressSequentially(s.opts.User, keyDelay); err != nil {
		return fmt.Errorf("type username: %w", err)
	}
	if err := inputs.Nth(1).PressSequentially(s.opts.Pass, keyDelay); err != nil {
		return fmt.Errorf("type password: %w", err)
	}

	submit := frame.Locator("button[type='submit']")
	if n, _ := submit.Count(); n > 0 {
		_ = submit.First().Click()
	} else if n, _ := frame.Locator("button").Count(); n > 0 {
		_ = frame.Locator("button").First().Click()
	} else {
		_ = s.page.Keyboard().Press("Enter")
	}

	// The authenticated landing page is recognized by its accounts marker.
	if !pollCondition(s.page, `() => /cuentas/i.test(document.body?.innerText || "")`, 60*time.Second, 500*time.Millisecond) {
		return ErrLoginTimeout
	}
	rl.Info("Login successful.")
	return nil
}

// Page returns the session's active page.
func (s *Session) Page() pw.Page { return s.page }

// Frames returns the page's current frame tree.
func (s *Session) Frames() []pw.Frame { return s.page.Frames() }

// LeaveOpen marks the session as owned by a pending human interaction;
// subsequent Close calls will not tear the browser down.
func (s *Session) LeaveOpen() { s.keepOpen = true }

// Close tears down the browser unless a human challenge holds it open.
func (s *Session) Close(rl *RunLog) {
	if s.keepOpen {
		rl.Info("Browser left open for manual challenge/verification.")
		return
	}
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.pwRun != nil {
		_ = s.pwRun.Stop()
	}
	rl.Info("Browser closed.")
}

// pollCondition evaluates a boolean JS predicate on the context until it
// returns true or the deadline passes. All engine waiting is bounded polling
// like this; there are no indefinite blocking calls.
func pollCondition(ctx evaluator, expr string, timeout, interval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if evalBool(ctx, expr) {
			return true
		}
		time.Sleep(interval)
	}
	return false
}

func evalBool(ctx evaluator, expr string, args ...interface{}) bool {
	res, err := ctx.Evaluate(expr, args...)
	if err != nil {
		return false
	}
	b, _ := res.(bool)
	return b
}

func evalString(ctx evaluator, expr string, args ...interface{}) string {
	res, err := ctx.Evaluate(expr, args...)
	if err != nil {
		return ""
	}
	s, _ := res.(string)
	return s
}
