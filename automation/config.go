package automation

import (
	"os"
	"strconv"
	"time"
)

// Flavor selects which portal flow a run drives. Each flavor owns a fixed
// browser profile directory so portal-side device trust survives restarts;
// two simultaneous runs of the same flavor would collide on that profile and
// are not supported.
type Flavor string

const (
	FlavorChecks    Flavor = "checks"
	FlavorTransfers Flavor = "transfers"
)

// ProfileDir returns the persistent browser profile path for the flavor.
func (f Flavor) ProfileDir() string {
	if f == FlavorTransfers {
		return ".chrome-portal-transfers"
	}
	return ".chrome-portal-checks"
}

// Options is the immutable configuration for one automation run. Construct
// it once (OptionsFromEnv) and thread it through every component; nothing in
// the engine reads ambient state after that.
type Options struct {
	User string
	Pass string

	LoginURL string

	// ManualOTP leaves the session open for a human to type the security
	// code. Safer default: true. When false, OTPCode is typed automatically.
	ManualOTP bool
	OTPCode   string

	// Fast halves the human-scale interaction delays. Debug enables verbose
	// trace lines; Screenshots additionally captures stage screenshots.
	Fast        bool
	Debug       bool
	Screenshots bool

	ScreenshotsDir string
	Headless       bool

	KeyDelay        time.Duration
	PostFieldDelay  time.Duration
	AfterFillDelay  time.Duration
	AfterAddDelay   time.Duration
	AddWaitTimeout  time.Duration
	MenuSettleDelay time.Duration

	OTPDetectTimeout time.Duration
	ConfirmTimeout   time.Duration
	// ManualConfirmTimeout is the floor applied to ConfirmTimeout when a
	// human must resolve the challenge (they may take arbitrary time).
	ManualConfirmTimeout time.Duration

	// Notify, when set, receives stage names as the run progresses. Used by
	// the dispatch layer to surface "awaiting challenge" to operators.
	Notify func(stage string)
}

const defaultLoginURL = "https://empresas.bancogalicia.com.ar/login"

// OptionsFromEnv builds run options from the environment, mirroring the
// documented ECHECK_* knobs. Credentials are PORTAL_USER / PORTAL_PASS.
func OptionsFromEnv() Options {
	fast := envBool("ECHECK_FAST", true)
	debug := envBool("ECHECK_DEBUG", false)

	opts := Options{
		User:        os.Getenv("PORTAL_USER"),
		Pass:        os.Getenv("PORTAL_PASS"),
		LoginURL:    envStr("PORTAL_LOGIN_URL", defaultLoginURL),
		ManualOTP:   true,
		OTPCode:     os.Getenv("OTP_CODE"),
		Fast:        fast,
		Debug:       debug,
		Screenshots: debug && envBool("ECHECK_SCREENSHOTS", false),

		ScreenshotsDir: envStr("ECHECK_SCREENSHOTS_DIR", "debug-screenshots"),
		Headless:       envBool("ECHECK_HEADLESS", false),

		KeyDelay:        envMillis("ECHECK_KEY_DELAY_MS", pick(fast, 5, 50)),
		PostFieldDelay:  envMillis("ECHECK_POST_FIELD_DELAY_MS", pick(fast, 150, 800)),
		AfterFillDelay:  envMillis("ECHECK_AFTER_FILLED_DELAY_MS", pick(fast, 200, 1500)),
		AfterAddDelay:   envMillis("ECHECK_AFTER_ADD_CHECK_DELAY_MS", pick(fast, 150, 400)),
		AddWaitTimeout:  envMillis("ECHECK_ADD_CHECK_WAIT_TIMEOUT_MS", pick(fast, 3000, 15000)),
		MenuSettleDelay: envMillis("ECHECK_MENU_SETTLE_DELAY_MS", pick(fast, 3500, 7000)),

		OTPDetectTimeout:     envMillis("OTP_DETECT_TIMEOUT_MS", 180000),
		ConfirmTimeout:       envMillis("SUCCESS_DETECT_TIMEOUT_MS", 120000),
		ManualConfirmTimeout: envMillis("MANUAL_SUCCESS_DETECT_TIMEOUT_MS", 1800000),
	}
	return opts
}

// EffectiveConfirmTimeout applies the manual-mode floor: a human may take
// tens of minutes to act, so the short automated timeout never governs.
func (o Options) EffectiveConfirmTimeout() time.Duration {
	if o.ManualOTP || o.OTPCode == "" {
		if o.ManualConfirmTimeout > o.ConfirmTimeout {
			return o.ManualConfirmTimeout
		}
	}
	return o.ConfirmTimeout
}

func (o Options) notify(stage string) {
	if o.Notify != nil {
		o.Notify(stage)
	}
}

func pick(fast bool, fastVal, slowVal int) int {
	if fast {
		return fastVal
	}
	return slowVal
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "1" || v == "true"
}

func envMillis(key string, defMS int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return time.Duration(defMS) * time.Millisecond
}
