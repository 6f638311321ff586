package automation

import (
	"strings"
	"time"
)

// Date fields open a datepicker popover that is prone to remaining open and
// intercepting every subsequent click, sometimes rendered outside the form
// frame entirely. Every date fill therefore ends with an explicit dismissal
// sequence: Escape, focus moved to an unrelated field, a click on a neutral
// screen coordinate.

// focusDateInputJS locates the date input through ranked attribute
// strategies and reports how it was found plus the input's type (native
// type=date inputs take ISO values, text inputs take DD/MM/YYYY).
const focusDateInputJS = `() => {
	const focusIt = (input, via) => {
		if (input.scrollIntoView) input.scrollIntoView({ block: "center" });
		input.focus();
		if (input.click) input.click();
		return { found: true, via: via, type: input.type || "" };
	};

	let input = document.querySelector('input[placeholder*="fecha" i]');
	if (input) return focusIt(input, "placeholder");
	input = document.querySelector('input[labeltext*="fecha" i]');
	if (input) return focusIt(input, "labeltext");
	input = document.querySelector('input[name*="fecha" i]');
	if (input) return focusIt(input, "name");
	input = document.querySelector('input[type="date"]');
	if (input) return focusIt(input, "type=date");

	for (const el of Array.from(document.querySelectorAll("label, span, div"))) {
		const text = (el.innerText || el.textContent || "").trim().toLowerCase();
		if (!text.includes("fecha") || text.length >= 80) continue;
		const container = el.closest("div") || el.parentElement;
		const near = container ? container.querySelector("input") : null;
		if (near) return focusIt(near, "label-search");
	}
	return { found: false, via: "", type: "" };
}`

const commitActiveDateJS = `(val) => {
	const active = document.activeElement;
	const input = active && active.tagName === "INPUT" ? active :
		(document.querySelector('input[placeholder*="fecha" i]') ||
		 document.querySelector('input[labeltext*="fecha" i]') ||
		 document.querySelector('input[name*="fecha" i]') ||
		 document.querySelector('input[type="date"]'));
	if (!input) return { ok: false, value: "" };
	const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, "value");
	if (setter && setter.set) setter.set.call(input, val);
	else input.value = val;
	input.dispatchEvent(new Event("input", { bubbles: true }));
	input.dispatchEvent(new Event("change", { bubbles: true }));
	input.blur();
	return { ok: true, value: input.value };
}`

const readDateValueJS = `() => {
	const input = document.querySelector('input[placeholder*="fecha" i]') ||
		document.querySelector('input[labeltext*="fecha" i]') ||
		document.querySelector('input[name*="fecha" i]') ||
		document.querySelector('input[type="date"]');
	return input ? input.value || "" : "";
}`

// FillDate normalizes and commits the payment date, then dismisses the
// datepicker. Returns false only when no date field could be located.
func (f *Filler) FillDate(frame evaluator, rawDate string) bool {
	ddmmyyyy := NormalizeDateDDMMYYYY(rawDate)
	iso := NormalizeDateISO(rawDate)

	res, err := frame.Evaluate(focusDateInputJS)
	if err != nil {
		return false
	}
	info, _ := res.(map[string]interface{})
	found, _ := info["found"].(bool)
	if !found {
		f.rl.Warn("Date input not found by any selector")
		return false
	}
	inputType, _ := info["type"].(string)
	via, _ := info["via"].(string)

	value := ddmmyyyy
	if strings.EqualFold(inputType, "date") {
		value = iso
	}
	f.rl.Info("Filling payment date with: %s (type=%s)", value, inputType)
	f.rl.Debug("[date] field found via: %s", via)

	committed := false
	if r, err := frame.Evaluate(commitActiveDateJS, value); err == nil {
		if m, ok := r.(map[string]interface{}); ok {
			got, _ := m["value"].(string)
			okFlag, _ := m["ok"].(bool)
			committed = okFlag && valueMatches(got, value, true)
			f.rl.Debug("[date] setter ok=%v value=%q", okFlag, got)
		}
	}

	if !committed {
		time.Sleep(150 * time.Millisecond)
		f.typeFallback(value)
	}

	f.DismissPopovers(frame)

	final := evalString(frame, readDateValueJS)
	f.rl.Debug("[date] final field value: %q", final)
	return true
}

// DismissPopovers closes any open datepicker/popover: Escape twice, focus an
// unrelated field inside the form, then a click on a neutral corner of the
// top document (the popover may live outside the frame).
func (f *Filler) DismissPopovers(frame evaluator) {
	kb := f.page.Keyboard()
	time.Sleep(150 * time.Millisecond)
	_ = kb.Press("Escape")
	time.Sleep(120 * time.Millisecond)
	_ = kb.Press("Escape")

	_, _ = frame.Evaluate(`() => {
		const neutral = document.querySelector('input[name*="descripcion" i]');
		if (neutral) {
			neutral.focus();
			if (neutral.click) neutral.click();
			return;
		}
		if (document.activeElement && document.activeElement.blur) document.activeElement.blur();
		if (document.body && document.body.click) document.body.click();
	}`)

	_, _ = f.page.Evaluate(`() => { if (document.body && document.body.click) document.body.click(); }`)
	_ = f.page.Mouse().Click(5, 5)

	time.Sleep(150 * time.Millisecond)
	_ = kb.Press("Tab")
	time.Sleep(200 * time.Millisecond)
}
