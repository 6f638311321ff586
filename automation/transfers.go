package automation

import (
	"fmt"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"echeq/model"
)

// Wire-transfer flow. Unlike the check form, transfer inputs carry no stable
// names: the destination account is located through label association and the
// amount through geometry inside the transfers card.

const transferFormPredicateJS = `() => {
	const t = (document.body?.innerText || "").toLowerCase();
	if (t.includes("cuenta destino") || t.includes("nueva transferencia")) return true;
	return Array.from(document.querySelectorAll("input")).some((i) => {
		const hay = [i.name, i.id, i.placeholder, i.getAttribute("aria-label")].filter(Boolean).join(" ").toLowerCase();
		return hay.includes("destino") || hay.includes("cbu") || hay.includes("monto");
	});
}`

// RunTransfers executes one automation run over a batch of wire transfers.
// Same shape as the check flow: login, navigation, sequential item entry,
// all-or-nothing Continue gate, then the shared authorization tail.
func RunTransfers(transfers []model.TransferEntry, opts Options) *BatchResult {
	rl := NewRunLog(opts.Debug)
	results := make([]ItemResult, 0, len(transfers))
	ids := make([]string, len(transfers))
	for i, t := range transfers {
		ids[i] = t.ID
	}

	if opts.User == "" || opts.Pass == "" {
		rl.Warn("ERROR: %v", ErrMissingCredentials)
		results = fillMissingResults(results, ids, ErrMissingCredentials.Error())
		return newBatchResult(results, rl.Lines())
	}

	s, err := OpenSession(FlavorTransfers, opts, rl)
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

		if err := nav.OpenMenu("Transferencias", Target{Exact: "Transferencias", Pattern: `^Transferencias$`}); err != nil {
			s.Screenshot("transferencias-not-found", rl)
			return err
		}
		opts.notify(StageSectionOpen)
		s.DumpVisibleText(rl)

		if err := nav.OpenMenu("Nueva transferencia",
			Target{Exact: "Nueva transferencia", Pattern: `nueva transferencia`},
			Target{Pattern: `nueva\s+transf`},
			Target{Pattern: `crear\s+transferencia`},
		); err != nil {
			s.Screenshot("nueva-not-found", rl)
			return err
		}
		opts.notify(StageSubsectionOpen)
		s.Screenshot("transfer-form", rl)
		rl.Info("On the new-transfer screen.")

		formFrame := findTransferContext(s.Page(), rl)
		opts.notify(StageFormReady)

		for i, transfer := range transfers {
			current := findTransferContext(s.Page(), rl)
			if current == nil {
				current = formFrame
			}
			if current == nil {
				current = s.Page()
			}
			if err := fillTransfer(s, nav, filler, current, transfer, i, len(transfers), rl); err != nil {
				rl.Warn("Error on transfer %s: %v", transfer.ProviderName, err)
				results = append(results, ItemResult{ID: transfer.ID, Success: false, Error: err.Error()})
				s.Screenshot(fmt.Sprintf("error-transfer-%d", i+1), rl)
				continue
			}
			results = append(results, ItemResult{ID: transfer.ID, Success: true})
		}

		sent, failed := tally(results)
		if sent == 0 {
			rl.Warn("No transfer was loaded; skipping 'Continuar'.")
			s.Screenshot("no-transfers-added", rl)
			return nil
		}
		if failed > 0 {
			rl.Warn("Some transfers failed to load; refusing to continue to avoid an incomplete submission.")
			s.Screenshot("errors-before-continue", rl)
			downgradeUnconfirmed(results, "batch was not submitted: a sibling transfer failed during data entry")
			return nil
		}
		opts.notify(StageAllItemsEntered)

		finalFrame := findTransferContext(s.Page(), rl)
		if finalFrame == nil {
			finalFrame = formFrame
		}
		rl.Info("All transfers loaded. Clicking 'Continuar'...")
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
		downgradeUnconfirmed(results, "portal did not confirm the transfer submission (operation unconfirmed)")
		rl.Info("Run finished: no transfer confirmation (review in the portal).")
		if runErr == nil {
			opts.notify(StageUnconfirmed)
		}
		return newBatchResult(results, rl.Lines())
	}

	opts.notify(StageConfirmed)
	rl.Info("Run finished: transfers confirmed by the portal.")
	out := newBatchResult(results, rl.Lines())
	out.ConfirmedAt = nowISO()
	return out
}

// findTransferContext returns the frame hosting the transfer form, or nil
// when it renders directly on the main page.
func findTransferContext(page pw.Page, rl *RunLog) evaluator {
	if f := FindFrameWhere(page, transferFormPredicateJS, rl); f != nil {
		return f
	}
	if evalBool(page, transferFormPredicateJS) {
		return page
	}
	return nil
}

// fillTransfer enters one wire transfer. Field order matters: the portal
// resolves the destination account asynchronously after the CBU commits, so
// the CBU goes first with a resolution pause, and the date goes last because
// its picker popover overlaps the amount column.
func fillTransfer(s *Session, nav *Navigator, filler *Filler, frame evaluator, transfer model.TransferEntry, index, total int, rl *RunLog) error {
	rl.Info("--- Transfer %d: %s (CBU: %s) ---", index+1, transfer.ProviderName, transfer.CBU)

	if !filler.FillLabeled(frame, `cuenta\s*destino`, transfer.CBU, "Cuenta destino") {
		sel := FindInputSelector(frame, "destino|cbu|alias")
		if sel == "" || !filler.CommitValue(frame, sel, transfer.CBU, false) {
			return fmt.Errorf("destination account input not found for transfer %d", index+1)
		}
	}
	// The portal looks up the account holder from the CBU before the rest
	// of the row becomes editable.
	time.Sleep(2 * time.Second)

	if !filler.FillScopedAmount(frame, formatAmount(transfer.Amount)) {
		return fmt.Errorf("amount could not be committed for transfer %d", index+1)
	}

	filler.FillDate(frame, transfer.PaymentDate)
	filler.DismissPopovers(frame)

	time.Sleep(filler.opts.AfterFillDelay)
	s.Screenshot(fmt.Sprintf("transfer-%d-filled", index+1), rl)

	// "Agregar otra transferencia" exists only between items; the last row
	// stays open for the Continue stage.
	if index < total-1 {
		rl.Info("Clicking 'Agregar otra transferencia'...")
		before := takeAddSnapshot(frame)
		clicked := ClickByText(s.Page(), Target{Pattern: `agregar\s+otra\s+transferencia`}, rl) ||
			ClickByText(s.Page(), Target{Pattern: `agregar\s+transferencia`}, rl)
		if !clicked {
			s.Screenshot(fmt.Sprintf("add-row-not-found-%d", index+1), rl)
			return fmt.Errorf("add-another-transfer control not found after transfer %d", index+1)
		}
		if !nav.WaitForItemAdded(frame, before) {
			rl.Warn("New transfer row not confirmed after item %d (%s)", index+1, transfer.ProviderName)
		}
		time.Sleep(filler.opts.AfterAddDelay)
	}

	s.Screenshot(fmt.Sprintf("transfer-%d-done", index+1), rl)
	rl.Info("Transfer %d for %s loaded.", index+1, transfer.ProviderName)
	return nil
}
