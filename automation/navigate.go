package automation

import (
	"fmt"
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// Run stages, in order. The portal offers no programmatic "ready" signal, so
// transitions are text-pattern clicks followed by an empirically tuned
// settle delay, with bounded keyword polling for the later stages.
const (
	StageLoggedOut       = "logged_out"
	StageAuthenticated   = "authenticated"
	StageSectionOpen     = "section_open"
	StageSubsectionOpen  = "subsection_open"
	StageFormReady       = "form_ready"
	StageAllItemsEntered = "all_items_entered"
	StageContinued       = "continued"
	StageTermsAccepted   = "terms_accepted"
	StageAuthPrepared    = "authorization_requested"
	StageAwaitingOTP     = "awaiting_challenge"
	StageConfirmed       = "confirmed"
	StageUnconfirmed     = "unconfirmed"
)

// Navigator sequences the discrete portal stages for a run.
type Navigator struct {
	page pw.Page
	opts Options
	rl   *RunLog
}

func NewNavigator(page pw.Page, opts Options, rl *RunLog) *Navigator {
	return &Navigator{page: page, opts: opts, rl: rl}
}

// OpenMenu clicks a menu entry and waits for the portal to settle. The
// primary target is tried first, then same-intent alternate phrasings (menu
// labels drift between portal releases). A miss on all phrasings is fatal
// for the transition.
func (n *Navigator) OpenMenu(name string, primary Target, alternates ...Target) error {
	n.rl.Info("Looking for menu %q...", name)
	clicked := ClickByText(n.page, primary, n.rl)
	for i := 0; !clicked && i < len(alternates); i++ {
		clicked = ClickByText(n.page, alternates[i], n.rl)
	}
	if !clicked {
		return fmt.Errorf("menu %q not found on page: %w", name, ErrTransitionFailed)
	}
	n.rl.Info("Clicked %q. Waiting for the portal to settle...", name)
	time.Sleep(n.opts.MenuSettleDelay)
	return nil
}

// clickContinueInFrameJS prefers enabled real buttons with exactly
// "continuar", then any enabled button containing it, then text-bearing
// clickables. The handler often hangs off the button, not the inner span.
const clickContinueInFrameJS = `() => {
	const enabled = (b) => !b.disabled && b.getAttribute("aria-disabled") !== "true";
	const btns = Array.from(document.querySelectorAll("button"));
	for (const b of btns) {
		const text = (b.innerText || "").trim();
		if (/^continuar$/i.test(text) && enabled(b)) {
			b.scrollIntoView({ block: "center" });
			b.click();
			return true;
		}
	}
	for (const b of btns) {
		const text = (b.innerText || "").trim();
		if (/continuar/i.test(text) && enabled(b)) {
			b.scrollIntoView({ block: "center" });
			b.click();
			return true;
		}
	}
	for (const el of Array.from(document.querySelectorAll("a, span, div"))) {
		const text = (el.innerText || "").trim();
		if (/^continuar$/i.test(text)) {
			if (el.scrollIntoView) el.scrollIntoView({ block: "center" });
			el.click();
			return true;
		}
	}
	return false;
}`

const progressMarkerJS = `() => /confirmar|resumen|firmar|validar|preparar/i.test(document.body?.innerText || "")`

// ClickContinue advances past the item-entry form. Retried up to 3 times:
// each attempt clicks inside the form frame first, falls back to the main
// page, then polls for a confirmation/summary keyword as the readiness
// signal. A popover can swallow the click, so Escape is pressed between
// attempts.
func (n *Navigator) ClickContinue(formFrame evaluator) bool {
	_ = n.page.Keyboard().Press("Escape")
	time.Sleep(200 * time.Millisecond)

	for attempt := 1; attempt <= 3; attempt++ {
		if attempt > 1 {
			n.rl.Info("[retry] Retrying 'Continuar' click (attempt %d/3)...", attempt)
		}

		clicked := false
		if formFrame != nil {
			clicked = evalBool(formFrame, clickContinueInFrameJS)
		}
		if !clicked {
			clicked = ClickByText(n.page, Target{Pattern: "continuar"}, n.rl)
		}
		if !clicked {
			time.Sleep(400 * time.Millisecond)
			continue
		}
		n.rl.Debug("[click] 'Continuar' click dispatched")

		if pollCondition(n.page, progressMarkerJS, 12*time.Second, 500*time.Millisecond) {
			return true
		}

		_ = n.page.Keyboard().Press("Escape")
		time.Sleep(350 * time.Millisecond)
	}
	return false
}

// addSnapshotJS captures the form state used to confirm an "add to batch"
// click took effect: the key field's value and the pending-items row count.
const addSnapshotJS = `() => {
	const cuit = document.querySelector('input[name*="cuit" i]');
	return {
		cuit: cuit ? cuit.value || "" : "",
		rows: document.querySelectorAll("table tbody tr").length,
	};
}`

type addSnapshot struct {
	cuit string
	rows int
}

func takeAddSnapshot(frame evaluator) addSnapshot {
	res, err := frame.Evaluate(addSnapshotJS)
	if err != nil {
		return addSnapshot{}
	}
	m, _ := res.(map[string]interface{})
	snap := addSnapshot{}
	snap.cuit, _ = m["cuit"].(string)
	snap.rows = asInt(m["rows"])
	return snap
}

// WaitForItemAdded polls until the form reacts to the add click: either the
// detail fields cleared or the pending-items list grew. Timing out here is
// not fatal (the portal sometimes reacts without either signal); the caller
// logs a warning and carries on.
func (n *Navigator) WaitForItemAdded(frame evaluator, before addSnapshot) bool {
	time.Sleep(n.opts.AfterAddDelay)
	deadline := time.Now().Add(n.opts.AddWaitTimeout)
	for time.Now().Before(deadline) {
		now := takeAddSnapshot(frame)
		if (before.cuit != "" && now.cuit == "") || now.rows > before.rows {
			return true
		}
		time.Sleep(400 * time.Millisecond)
	}
	return false
}
