package automation

import (
	"testing"
	"time"
)

func TestEffectiveConfirmTimeoutManualFloor(t *testing.T) {
	opts := Options{
		ManualOTP:            true,
		ConfirmTimeout:       2 * time.Minute,
		ManualConfirmTimeout: 30 * time.Minute,
	}
	if got := opts.EffectiveConfirmTimeout(); got != 30*time.Minute {
		t.Errorf("manual mode timeout = %v, want 30m", got)
	}

	opts.ManualOTP = false
	opts.OTPCode = "123456"
	if got := opts.EffectiveConfirmTimeout(); got != 2*time.Minute {
		t.Errorf("automated mode timeout = %v, want 2m", got)
	}

	// No code available means a human resolves the challenge even when
	// manual mode is off, so the floor still applies.
	opts.OTPCode = ""
	if got := opts.EffectiveConfirmTimeout(); got != 30*time.Minute {
		t.Errorf("automated-without-code timeout = %v, want 30m", got)
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("PORTAL_USER", "empresa01")
	t.Setenv("PORTAL_PASS", "s3cret")
	t.Setenv("ECHECK_FAST", "false")
	t.Setenv("ECHECK_KEY_DELAY_MS", "120")

	opts := OptionsFromEnv()
	if opts.User != "empresa01" || opts.Pass != "s3cret" {
		t.Errorf("credentials not read: %q / %q", opts.User, opts.Pass)
	}
	if !opts.ManualOTP {
		t.Error("ManualOTP must default to true")
	}
	if opts.Fast {
		t.Error("ECHECK_FAST=false not honored")
	}
	if opts.KeyDelay != 120*time.Millisecond {
		t.Errorf("KeyDelay = %v, want 120ms", opts.KeyDelay)
	}
	if opts.LoginURL == "" {
		t.Error("LoginURL default missing")
	}
}

func TestNotifyNilSafe(t *testing.T) {
	var opts Options
	opts.notify("authenticated") // must not panic

	var got []string
	opts.Notify = func(stage string) { got = append(got, stage) }
	opts.notify("confirmed")
	if len(got) != 1 || got[0] != "confirmed" {
		t.Errorf("notify callback not invoked: %v", got)
	}
}

func TestFlavorProfileDirsDistinct(t *testing.T) {
	if FlavorChecks.ProfileDir() == FlavorTransfers.ProfileDir() {
		t.Error("flavors must not share a browser profile")
	}
}
