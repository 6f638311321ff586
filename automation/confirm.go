package automation

import (
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// Confirmation detection is the run's single source of truth for "sent": an
// instruction is never marked successful because the form filler finished,
// only because the portal itself showed its success vocabulary.

// hasSuccessJS matches the portal's success markers. With requireOTPGone the
// match is rejected while challenge vocabulary or a challenge-shaped input
// is still present, preventing false positives from banners that render
// before the challenge is resolved.
const hasSuccessJS = `(requireOTPGone) => {
	const t = (document.body?.innerText || "").toLowerCase();
	const success =
		t.includes("operación realizada") ||
		t.includes("operacion realizada") ||
		t.includes("emitidos correctamente") ||
		t.includes("cheques emitidos") ||
		t.includes("transferencia realizada") ||
		t.includes("comprobante") ||
		t.includes("número de operación") ||
		t.includes("numero de operacion");

	if (!success) return false;
	if (!requireOTPGone) return true;

	const otpWords = t.includes("código") || t.includes("codigo") || t.includes("token");
	const otpInput = !!document.querySelector(
		'input[autocomplete="one-time-code"], input[inputmode="numeric"], input[type="tel"], input[type="password"], input[type="number"]'
	);
	return !(otpWords || otpInput);
}`

// WaitForPortalSuccess polls page and all frames for an authoritative
// success marker until the timeout. The timeout is long in manual-OTP mode
// (a human may take arbitrary time) and short in automated mode.
func WaitForPortalSuccess(page pw.Page, timeout time.Duration, requireOTPGone bool, rl *RunLog) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if evalBool(page, hasSuccessJS, requireOTPGone) {
			return true
		}
		for _, f := range page.Frames() {
			if evalBool(f, hasSuccessJS, requireOTPGone) {
				return true
			}
		}
		time.Sleep(750 * time.Millisecond)
	}
	return false
}
