package automation

import (
	"strings"
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// Filler commits values into the portal's framework-managed inputs. Plain
// keystroke injection is ignored by the portal's reactive UI layer, so the
// primary path is the platform's native value setter plus synthetic
// input/change events and a blur; only that mutation chain is observed by
// the framework. A keystroke-based fallback covers fields where the setter
// does not stick.
type Filler struct {
	page pw.Page
	opts Options
	rl   *RunLog
}

func NewFiller(page pw.Page, opts Options, rl *RunLog) *Filler {
	return &Filler{page: page, opts: opts, rl: rl}
}

// commitJS sets the value through the native HTMLInputElement setter and
// dispatches the events the UI framework listens for, then reports the
// value the element actually holds.
const commitJS = `(args) => {
	const input = document.querySelector(args.sel);
	if (!input) return { ok: false, value: "" };
	if (input.scrollIntoView) input.scrollIntoView({ block: "center" });
	input.focus();
	if (input.click) input.click();
	const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, "value");
	if (setter && setter.set) setter.set.call(input, args.val);
	else input.value = args.val;
	input.dispatchEvent(new Event("input", { bubbles: true }));
	input.dispatchEvent(new Event("change", { bubbles: true }));
	input.blur();
	return { ok: true, value: input.value };
}`

const readValueJS = `(sel) => {
	const input = document.querySelector(sel);
	return input ? input.value || "" : "";
}`

// CommitValue commits value into the input addressed by selector and
// verifies it stuck: exact match, or prefix match when prefixOK is set
// (date fields, which the portal may reformat). Falls back to keyboard
// emulation before reporting failure.
func (f *Filler) CommitValue(frame evaluator, selector, value string, prefixOK bool) bool {
	res, err := frame.Evaluate(commitJS, map[string]interface{}{"sel": selector, "val": value})
	if err == nil {
		if m, ok := res.(map[string]interface{}); ok {
			got, _ := m["value"].(string)
			if okFlag, _ := m["ok"].(bool); okFlag && valueMatches(got, value, prefixOK) {
				return true
			}
		}
	}

	// Setter did not stick; re-focus and type the value key by key.
	if !evalBool(frame, `(sel) => { const i = document.querySelector(sel); if (!i) return false; i.focus(); return true; }`, selector) {
		return false
	}
	f.typeFallback(value)
	got := evalString(frame, readValueJS, selector)
	return valueMatches(got, value, prefixOK)
}

// typeFallback emulates a human re-entering the field: select all, type with
// an inter-key delay, commit with Enter, Escape to dismiss any popover the
// typing opened.
func (f *Filler) typeFallback(value string) {
	kb := f.page.Keyboard()
	_ = kb.Press("ControlOrMeta+a")
	time.Sleep(150 * time.Millisecond)
	_ = kb.Type(value, pw.KeyboardTypeOptions{Delay: pw.Float(float64(f.opts.KeyDelay.Milliseconds()))})
	time.Sleep(250 * time.Millisecond)
	_ = kb.Press("Enter")
	time.Sleep(250 * time.Millisecond)
	_ = kb.Press("Escape")
	time.Sleep(250 * time.Millisecond)
}

// valueMatches applies the verification rule: exact, or (for reformattable
// fields) the committed value starting with the intended value's head.
func valueMatches(got, want string, prefixOK bool) bool {
	if got == want {
		return true
	}
	if !prefixOK {
		return false
	}
	head := want
	if len(head) > 5 {
		head = head[:5]
	}
	return head != "" && strings.Contains(got, head)
}

// FillSelector clears and types into the input addressed by selector. Used
// for fields with stable names where keystrokes are accepted after the
// clear-through-events prime.
func (f *Filler) FillSelector(frame evaluator, selector, value, fieldName string) bool {
	f.rl.Info("Filling %q (%s) with: %s", fieldName, selector, value)
	primed := evalBool(frame, `(sel) => {
		const input = document.querySelector(sel);
		if (!input) return false;
		input.focus();
		if (input.click) input.click();
		const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, "value");
		if (setter && setter.set) setter.set.call(input, "");
		else input.value = "";
		input.dispatchEvent(new Event("input", { bubbles: true }));
		input.dispatchEvent(new Event("change", { bubbles: true }));
		return true;
	}`, selector)
	if !primed {
		f.rl.Warn("Input %q not found with selector %q", fieldName, selector)
		return false
	}
	_ = f.page.Keyboard().Type(value, pw.KeyboardTypeOptions{Delay: pw.Float(float64(f.opts.KeyDelay.Milliseconds()))})
	time.Sleep(f.opts.PostFieldDelay)
	return true
}

// FillLabeled locates the field through the label-association chain and
// commits the value with the native setter. Some portal fields only commit
// on Tab, so focus is moved off afterwards.
func (f *Filler) FillLabeled(frame evaluator, labelPattern, value, fieldName string) bool {
	f.rl.Info("Filling %q by label with: %s", fieldName, value)
	if !FocusFieldByLabel(frame, labelPattern) {
		f.rl.Warn("No input found for %q by label %q", fieldName, labelPattern)
		return false
	}
	ok := evalBool(frame, `(val) => {
		const input = document.activeElement;
		if (!input || input.tagName !== "INPUT") return false;
		const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, "value");
		if (setter && setter.set) setter.set.call(input, val);
		else input.value = val;
		input.dispatchEvent(new Event("input", { bubbles: true }));
		input.dispatchEvent(new Event("change", { bubbles: true }));
		input.blur();
		return true;
	}`, value)
	if ok {
		time.Sleep(120 * time.Millisecond)
		_ = f.page.Keyboard().Press("Tab")
		time.Sleep(180 * time.Millisecond)
	}
	return ok
}

// pickAmountInputJS chooses the amount input inside the transfers card by
// label geometry (the input aligned under the "Monto" column header),
// avoiding the portal's global search box. Falls back to semantic
// attributes. Returns the input's index or -1.
const pickAmountInputJS = `() => {
	const headers = Array.from(document.querySelectorAll("h1,h2,h3,h4,div,span"));
	const title = headers.find((el) => {
		const t = (el.textContent || "").trim().toLowerCase();
		return t === "transferencia/s" || t === "transferencias";
	});
	let scope = document;
	if (title) scope = title.closest("section,div,main,article") || document;

	const labelEls = Array.from(scope.querySelectorAll("label,div,span,th"));
	const montoLabel = labelEls.find((el) => (el.textContent || "").trim().toLowerCase() === "monto") || null;
	const labelRect = montoLabel ? montoLabel.getBoundingClientRect() : null;

	const all = Array.from(document.querySelectorAll("input"));
	const visibles = [];
	for (const el of Array.from(scope.querySelectorAll("input"))) {
		const r = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		if (r.width > 20 && r.height > 18 && style.visibility !== "hidden" && style.display !== "none" &&
			!el.disabled && el.type !== "hidden") {
			visibles.push(el);
		}
	}

	if (labelRect) {
		const labelCx = labelRect.left + labelRect.width / 2;
		let best = null;
		let bestScore = Infinity;
		for (const el of visibles) {
			const r = el.getBoundingClientRect();
			const cx = r.left + r.width / 2;
			const dy = Math.max(0, r.top - labelRect.bottom);
			const dx = Math.abs(cx - labelCx);
			const score = dy + dx * 0.5;
			if (dy >= 0 && dx < 250 && score < bestScore) {
				bestScore = score;
				best = el;
			}
		}
		if (best) return all.indexOf(best);
	}

	for (const el of visibles) {
		const hay = [el.name, el.id, el.getAttribute("aria-label"), el.placeholder, el.getAttribute("inputmode")]
			.filter(Boolean).join(" ").toLowerCase();
		if (hay.includes("monto") || hay.includes("importe") || hay.includes("amount")) return all.indexOf(el);
	}
	return -1;
}`

const commitNthJS = `(args) => {
	const input = Array.from(document.querySelectorAll("input"))[args.idx];
	if (!input) return { ok: false, value: "" };
	input.focus();
	if (input.select) input.select();
	const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, "value");
	if (setter && setter.set) setter.set.call(input, args.val);
	else input.value = args.val;
	input.dispatchEvent(new Event("input", { bubbles: true }));
	input.dispatchEvent(new Event("change", { bubbles: true }));
	input.blur();
	return { ok: true, value: input.value };
}`

const readNthValueJS = `(idx) => {
	const input = Array.from(document.querySelectorAll("input"))[idx];
	return input ? input.value || "" : "";
}`

// FillScopedAmount commits a monetary amount into the transfers card's
// amount input, attempting decimal-point then decimal-comma notation: the
// portal's numeric mask format is unknown in advance and the wrong guess
// silently truncates the value.
func (f *Filler) FillScopedAmount(frame evaluator, raw string) bool {
	candidates := NormalizeMoney(raw)

	res, err := frame.Evaluate(pickAmountInputJS)
	if err != nil {
		return false
	}
	idx := asInt(res)
	if idx < 0 {
		f.rl.Warn("Amount input not found inside the transfers card (avoiding global search box)")
		return false
	}

	for _, val := range []string{candidates.Dot, candidates.Comma} {
		f.rl.Debug("[amount] trying notation: %q", val)
		_, _ = frame.Evaluate(commitNthJS, map[string]interface{}{"idx": idx, "val": val})

		// Numeric masks often need a keystroke + blur to settle.
		time.Sleep(120 * time.Millisecond)
		_ = f.page.Keyboard().Press("Tab")
		time.Sleep(150 * time.Millisecond)

		final := evalString(frame, readNthValueJS, idx)
		f.rl.Debug("[amount] field now holds: %q", final)
		if strings.ContainsAny(final, "0123456789") {
			return true
		}
	}
	f.rl.Warn("Could not commit amount %q in either decimal notation", raw)
	return false
}

// FillNamedAmount commits an amount into an input found by attribute
// fragments (monto/importe), used by the check form where inputs carry
// stable names. Same dual-notation sequence as FillScopedAmount.
func (f *Filler) FillNamedAmount(frame evaluator, raw string) bool {
	candidates := NormalizeMoney(raw)
	selector := FindInputSelector(frame, "monto|importe")
	if selector == "" {
		f.rl.Warn("Amount input not found by name, trying labeltext fallback")
		selector = `input[labeltext*="Monto" i]`
	}
	for _, val := range []string{candidates.Dot, candidates.Comma} {
		if f.CommitValue(frame, selector, val, false) {
			return true
		}
		got := evalString(frame, readValueJS, selector)
		if strings.ContainsAny(got, "0123456789") {
			return true
		}
	}
	f.rl.Warn("Could not commit amount %q in either decimal notation", raw)
	return false
}

func asInt(value interface{}) int {
	switch v := value.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	default:
		return -1
	}
}
