package automation

import (
	"fmt"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"echeq/model"
)

// Check-issuing flow. The portal's check form lives in an iframe and its
// inputs carry stable names, so fields are addressed by selector where
// possible and by attribute fragments otherwise.

const checkCUITSelector = `input[name="cheques_emitir_cuit"]`

const checkFormFramePredicateJS = `() => {
	if (document.querySelector('input[name="cheques_emitir_cuit"]')) return true;
	return Array.from(document.querySelectorAll("input")).some((i) => (i.name || "").toLowerCase().includes("cheque"));
}`

// clickAddCheckJS clicks the add-to-batch control. The visible text often
// sits in an inner div/span whose click does not reach the handler, so
// explicit button selectors come first and text matches resolve to the
// closest real button.
const clickAddCheckJS = `() => {
	const sels = [
		'button[data-tour="add_check"]',
		'button[aria-label="Agregar cheque"]',
		'button[aria-label*="Agregar" i]',
	];
	for (const sel of sels) {
		const btn = document.querySelector(sel);
		if (btn) {
			btn.scrollIntoView({ block: "center", inline: "center" });
			btn.click();
			return true;
		}
	}
	const re = /agregar\s+cheque/i;
	for (const n of Array.from(document.querySelectorAll('button, [role="button"], a, span, div'))) {
		const txt = (n.innerText || "").trim();
		if (!re.test(txt) || txt.length > 60) continue;
		const btn = n.closest('button, [role="button"], a');
		const target = btn || n;
		if (target.scrollIntoView) target.scrollIntoView({ block: "center", inline: "center" });
		target.click();
		return true;
	}
	return false;
}`

// RunChecks executes one automation run over a batch of checks: login,
// navigation, sequential per-item form entry, the all-or-nothing Continue
// gate, and the authorization/confirmation tail. The caller always gets a
// result for every check it submitted, plus the full ordered log.
func RunChecks(checks []model.CheckEntry, opts Options) *BatchResult {
	rl := NewRunLog(opts.Debug)
	results := make([]ItemResult, 0, len(checks))
	ids := make([]string, len(checks))
	for i, c := range checks {
		ids[i] = c.ID
	}

	// Credentials are validated before any browser resource is acquired.
	if opts.User == "" || opts.Pass == "" {
		rl.Warn("ERROR: %v", ErrMissingCredentials)
		results = fillMissingResults(results, ids, ErrMissingCredentials.Error())
		return newBatchResult(results, rl.Lines())
	}

	s, err := OpenSession(FlavorChecks, opts, rl)
	if err != nil {
		rl.Warn("ERROR: %v", err)
		results = fillMissingResults(results, ids, err.Error())
		return newBatchResult(results, rl.Lines())
	}
	defer s.Close(rl)
	opts.notify(StageAuthenticated)
	s.Screenshot("post-login", rl)

	nav := NewNavigator(s.Page(), opts, rl)
	filler := NewFiller(s.Page(), opts, rl)

	confirmed := false
	runErr := func() error {
		rl.Info("Waiting for the dashboard to render...")
		time.Sleep(opts.MenuSettleDelay)
		s.DumpVisibleText(rl)
		s.Screenshot("dashboard", rl)

		if err := nav.OpenMenu("Cuentas", Target{Exact: "Cuentas", Pattern: `^Cuentas$`}); err != nil {
			s.Screenshot("cuentas-not-found", rl)
			return err
		}
		opts.notify(StageSectionOpen)
		s.DumpVisibleText(rl)

		if err := nav.OpenMenu("Emitir cheques",
			Target{Exact: "Emitir cheques", Pattern: `emitir cheques`},
			Target{Pattern: `emitir echeq`},
			Target{Pattern: `emisi.n.*cheque`},
		); err != nil {
			s.Screenshot("emitir-not-found", rl)
			return err
		}
		opts.notify(StageSubsectionOpen)
		s.Screenshot("check-form", rl)
		rl.Info("On the check-issuing screen.")

		formFrame := FindFrameWhere(s.Page(), checkFormFramePredicateJS, rl)
		if formFrame == nil {
			rl.Warn("Check form not found in any frame")
			return fmt.Errorf("check form not found in any frame: %w", ErrTransitionFailed)
		}
		opts.notify(StageFormReady)

		// Per-item entry is strictly sequential: item n+1 never starts
		// before item n's outcome is known.
		for i, check := range checks {
			current := FindFrameWhere(s.Page(), checkFormFramePredicateJS, rl)
			if current == nil {
				current = formFrame
			}
			if err := fillCheck(s, nav, filler, current, check, i, rl); err != nil {
				rl.Warn("Error on check %s: %v", check.PayeeName, err)
				results = append(results, ItemResult{ID: check.ID, Success: false, Error: err.Error()})
				s.Screenshot(fmt.Sprintf("error-check-%d", i+1), rl)
				continue
			}
			results = append(results, ItemResult{ID: check.ID, Success: true})
		}

		// All-or-nothing gate: a partial batch is never submitted to the
		// bank, so any item failure refuses the Continue stage.
		sent, failed := tally(results)
		if sent == 0 {
			rl.Warn("No check was added; skipping 'Continuar'.")
			s.Screenshot("no-checks-added", rl)
			return nil
		}
		if failed > 0 {
			rl.Warn("Some checks failed to load; refusing to continue to avoid an incomplete submission.")
			s.Screenshot("errors-before-continue", rl)
			downgradeUnconfirmed(results, "batch was not submitted: a sibling check failed during data entry")
			return nil
		}
		opts.notify(StageAllItemsEntered)

		finalFrame := FindFrameWhere(s.Page(), checkFormFramePredicateJS, rl)
		if finalFrame == nil {
			finalFrame = formFrame
		}
		rl.Info("All checks added. Clicking 'Continuar'...")
		if !nav.ClickContinue(finalFrame) {
			s.Screenshot("continue-not-found", rl)
			rl.Warn("Could not land an effective 'Continuar' click")
		}
		opts.notify(StageContinued)

		confirmed = completeAuthorization(s, opts, rl)
		return nil
	}()

	if runErr != nil {
		rl.Warn("ERROR: %v", runErr)
	}
	results = fillMissingResults(results, ids, errReason(runErr))

	if !confirmed {
		downgradeUnconfirmed(results, "portal did not confirm the check issuance (operation unconfirmed)")
		rl.Info("Run finished: no issuance confirmation (review in the portal).")
		if runErr == nil {
			opts.notify(StageUnconfirmed)
		}
		return newBatchResult(results, rl.Lines())
	}

	opts.notify(StageConfirmed)
	rl.Info("Run finished: issuance confirmed by the portal.")
	out := newBatchResult(results, rl.Lines())
	out.ConfirmedAt = nowISO()
	return out
}

func errReason(err error) string {
	if err == nil {
		return "run aborted before this instruction was processed"
	}
	return err.Error()
}

// fillCheck enters one check into the form. The add click failing outright
// is fatal for the item; the add merely not being confirmed within its
// bounded wait is only a warning.
func fillCheck(s *Session, nav *Navigator, filler *Filler, frame evaluator, check model.CheckEntry, index int, rl *RunLog) error {
	rl.Info("--- Check %d: %s (CUIT: %s) ---", index+1, check.PayeeName, check.CUIT)

	filler.FillSelector(frame, checkCUITSelector, check.CUIT, "CUIT")

	emailSel := FindInputSelector(frame, "mail")
	if emailSel == "" {
		rl.Warn("Email input not found by attributes, trying labeltext fallback")
		emailSel = `input[labeltext*="Mail" i]`
	}
	filler.FillSelector(frame, emailSel, check.Email, "Email")

	filler.FillNamedAmount(frame, formatAmount(check.Amount))
	filler.FillDate(frame, check.PaymentDate)
	filler.DismissPopovers(frame)

	time.Sleep(filler.opts.AfterFillDelay)
	s.Screenshot(fmt.Sprintf("check-%d-filled", index+1), rl)

	rl.Info("Clicking 'Agregar cheque'...")
	before := takeAddSnapshot(frame)
	if !clickAddCheck(s.Page(), frame, rl) {
		s.Screenshot(fmt.Sprintf("add-not-found-%d", index+1), rl)
		return fmt.Errorf("add-check control not found or not clickable for check %d", index+1)
	}
	if !nav.WaitForItemAdded(frame, before) {
		rl.Warn("Add not confirmed for check %d (%s): fields did not clear and list did not grow", index+1, check.PayeeName)
	}

	time.Sleep(filler.opts.AfterAddDelay)
	s.Screenshot(fmt.Sprintf("check-%d-added", index+1), rl)
	rl.Info("Check %d for %s added.", index+1, check.PayeeName)
	return nil
}

func clickAddCheck(page pw.Page, frame evaluator, rl *RunLog) bool {
	if evalBool(frame, clickAddCheckJS) {
		rl.Debug("[click] add-check clicked inside form frame")
		return true
	}
	// Last resort: the button occasionally renders on the main page.
	if ClickByText(page, Target{Pattern: `agregar cheque`}, rl) {
		rl.Info("[click] add-check clicked via page text")
		return true
	}
	return false
}
