package automation

import (
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// OTPContext records where the challenge screen was detected so the code can
// be typed into the same document.
type OTPContext struct {
	Where string // "page" or "frame"
	Ctx   evaluatorHandle
	URL   string
}

// evaluatorHandle keeps the page/frame behind the common Evaluate surface.
type evaluatorHandle = evaluator

// hasOTPJS is the challenge-screen heuristic: an explicit one-time-code
// input, or a numeric/tel/password input with a short maxlength (4-8)
// combined with challenge vocabulary in the visible text. Either half alone
// is too weak: success banners mention "autorización" too, and password
// inputs exist on every screen.
const hasOTPJS = `() => {
	const text = (document.body?.innerText || "").toLowerCase();
	const hasText = text.includes("código") || text.includes("codigo") || text.includes("seguridad") ||
		text.includes("token") || text.includes("autoriz") || text.includes("firma");

	const sels = [
		'input[autocomplete="one-time-code"]',
		'input[inputmode="numeric"]',
		'input[type="tel"]',
		'input[type="password"]',
	];
	const hasInput = sels.some((s) => document.querySelector(s));

	const heuristic = Array.from(document.querySelectorAll("input")).some((el) => {
		const ml = Number(el.getAttribute("maxlength") || 0);
		const im = (el.getAttribute("inputmode") || "").toLowerCase();
		return ml >= 4 && ml <= 8 && (im === "numeric" || el.type === "tel" || el.type === "password");
	});

	return (hasInput || heuristic) && (hasText || heuristic);
}`

// WaitForOTPScreen polls page and frames for the challenge screen up to the
// configured detection timeout. Returns nil when no challenge appeared.
func WaitForOTPScreen(page pw.Page, opts Options, rl *RunLog) *OTPContext {
	deadline := time.Now().Add(opts.OTPDetectTimeout)
	for time.Now().Before(deadline) {
		if evalBool(page, hasOTPJS) {
			rl.Info("[otp] Challenge screen detected (page).")
			return &OTPContext{Where: "page", Ctx: page}
		}
		for _, f := range page.Frames() {
			if evalBool(f, hasOTPJS) {
				rl.Info("[otp] Challenge screen detected (frame: %s).", f.URL())
				return &OTPContext{Where: "frame", Ctx: f, URL: f.URL()}
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	rl.Info("[otp] Timed out waiting for the challenge screen.")
	return nil
}

const fillOTPJS = `(code) => {
	const inputs = Array.from(document.querySelectorAll("input"));
	const preferred =
		inputs.find((i) => i.getAttribute("autocomplete") === "one-time-code") ||
		inputs.find((i) => i.inputMode === "numeric") ||
		inputs.find((i) => i.type === "tel") ||
		inputs.find((i) => i.type === "password") ||
		inputs.find((i) => i.type === "text");
	if (!preferred) return false;
	preferred.focus();
	const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, "value");
	if (setter && setter.set) setter.set.call(preferred, code);
	else preferred.value = code;
	preferred.dispatchEvent(new Event("input", { bubbles: true }));
	preferred.dispatchEvent(new Event("change", { bubbles: true }));
	preferred.blur();
	return true;
}`

const clickOTPConfirmJS = `() => {
	const re = /confirmar|autorizar|firmar|continuar|enviar/i;
	const b = Array.from(document.querySelectorAll("button")).find((x) =>
		re.test((x.innerText || "").toLowerCase()) && !x.disabled && x.getAttribute("aria-disabled") !== "true");
	if (!b) return false;
	b.click();
	return true;
}`

// EnterOTPCode fills the challenge input with an out-of-band code and clicks
// a plausible confirm action. Only used in automated mode; in manual mode
// the input is never touched.
func EnterOTPCode(otp *OTPContext, code string, rl *RunLog) {
	if code == "" {
		rl.Info("[otp] Waiting for a human to type the code in the browser.")
		return
	}
	rl.Info("[otp] Code supplied out-of-band, typing it automatically...")
	if !evalBool(otp.Ctx, fillOTPJS, code) {
		rl.Info("[otp] Could not find a challenge input to type into.")
		return
	}
	time.Sleep(400 * time.Millisecond)
	_ = evalBool(otp.Ctx, clickOTPConfirmJS)
}
