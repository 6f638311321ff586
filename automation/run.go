package automation

import (
	"strconv"
	"time"
)

// completeAuthorization drives the shared tail of both flows after the
// Continue stage: terms acceptance, authorization prep, the OTP handshake
// and the confirmation wait. Returns whether the portal confirmed.
//
// In manual mode the session is handed over to a human as soon as the
// challenge shows and is never auto-closed afterwards: losing an in-progress
// authentication is worse than leaking a browser window.
func completeAuthorization(s *Session, opts Options, rl *RunLog) bool {
	page := s.Page()

	_ = page.Keyboard().Press("Escape")
	time.Sleep(600 * time.Millisecond)

	AcceptTermsIfPresent(page, rl)
	opts.notify(StageTermsAccepted)

	ClickAuthorizePrep(page, rl)
	opts.notify(StageAuthPrepared)
	time.Sleep(700 * time.Millisecond)

	confirmed := false
	otp := WaitForOTPScreen(page, opts, rl)
	if otp != nil {
		s.Screenshot("otp-screen", rl)

		code := ""
		if !opts.ManualOTP {
			code = opts.OTPCode
		}
		if opts.ManualOTP || code == "" {
			s.LeaveOpen()
			opts.notify(StageAwaitingOTP)
			rl.Info("[otp] Waiting for a human to type the code; the window stays open.")
		} else {
			EnterOTPCode(otp, code, rl)
		}

		confirmed = WaitForPortalSuccess(page, opts.EffectiveConfirmTimeout(), true, rl)
		if confirmed {
			rl.Info("[done] Portal confirmation detected.")
		} else {
			rl.Warn("[done] No portal confirmation detected.")
		}
	} else {
		rl.Warn("Challenge screen not detected; leaving evidence.")
		if opts.ManualOTP {
			s.LeaveOpen()
		}
		s.Screenshot("otp-not-detected", rl)
	}

	time.Sleep(2 * time.Second)
	s.Screenshot("post-otp-wait", rl)
	return confirmed
}

// formatAmount renders an instruction amount for form entry; the filler's
// money normalizer derives both decimal notations from it.
func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
