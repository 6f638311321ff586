package automation

import (
	"regexp"
	"strings"

	pw "github.com/playwright-community/playwright-go"
)

// The portal's DOM is neither documented nor stable, so element location is
// layered defense-in-depth rather than a single selector: exact text against
// a narrow element set, then a bounded pattern match against a broad set,
// then the same inside every embedded frame, and for form fields a label
// association chain. Each layer trades specificity for recall. A miss is
// never an error here; callers decide whether a miss is fatal.

const (
	narrowSelector = "span"
	broadSelector  = "span, a, button, div, h5, h4, h3, li, p"

	// Text nodes longer than this are containers, not labels.
	maxTargetTextLen = 60
)

// Target describes an element by its visible text: an optional exact string
// and a case-insensitive pattern fallback.
type Target struct {
	Exact   string
	Pattern string
}

// pickCandidate ranks a snapshot of candidate texts against the target.
// Exact match wins; otherwise the first bounded pattern match. Pure function
// so the ranking is testable without a browser, and idempotent for an
// unchanged snapshot.
func pickCandidate(texts []string, t Target) (int, bool) {
	if t.Exact != "" {
		for i, text := range texts {
			if strings.TrimSpace(text) == t.Exact {
				return i, true
			}
		}
	}
	if t.Pattern == "" {
		return 0, false
	}
	re, err := regexp.Compile("(?i)" + t.Pattern)
	if err != nil {
		return 0, false
	}
	for i, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || len(trimmed) >= maxTargetTextLen {
			continue
		}
		if re.MatchString(trimmed) {
			return i, true
		}
	}
	return 0, false
}

const collectTextsJS = `(sel) => Array.from(document.querySelectorAll(sel)).map((e) => (e.innerText || "").trim())`

const clickNthJS = `(args) => {
	const els = document.querySelectorAll(args.sel);
	const el = els[args.idx];
	if (!el) return false;
	if (el.scrollIntoView) el.scrollIntoView({ block: "center", inline: "center" });
	el.click();
	return true;
}`

func collectTexts(ctx evaluator, selector string) []string {
	res, err := ctx.Evaluate(collectTextsJS, selector)
	if err != nil {
		return nil
	}
	raw, ok := res.([]interface{})
	if !ok {
		return nil
	}
	texts := make([]string, 0, len(raw))
	for _, v := range raw {
		s, _ := v.(string)
		texts = append(texts, s)
	}
	return texts
}

func clickNth(ctx evaluator, selector string, idx int) bool {
	return evalBool(ctx, clickNthJS, map[string]interface{}{"sel": selector, "idx": idx})
}

// clickInContext applies the exact-then-pattern strategies inside one
// document (main page or a single frame).
func clickInContext(ctx evaluator, t Target) (string, bool) {
	if t.Exact != "" {
		texts := collectTexts(ctx, narrowSelector)
		if idx, ok := pickCandidate(texts, Target{Exact: t.Exact}); ok && clickNth(ctx, narrowSelector, idx) {
			return texts[idx], true
		}
	}
	texts := collectTexts(ctx, broadSelector)
	if idx, ok := pickCandidate(texts, Target{Exact: t.Exact, Pattern: t.Pattern}); ok && clickNth(ctx, broadSelector, idx) {
		return texts[idx], true
	}
	return "", false
}

// ClickByText finds and clicks the best element matching the target,
// searching the main document first and then every embedded frame. Frames
// that raise access errors (cross-origin, torn down) are skipped. Returns
// false on a miss; never an error.
func ClickByText(page pw.Page, t Target, rl *RunLog) bool {
	if text, ok := clickInContext(page, t); ok {
		rl.Debug("[click] matched in main frame: %q", text)
		return true
	}
	for _, frame := range page.Frames() {
		if frame == page.MainFrame() {
			continue
		}
		if text, ok := clickInContext(frame, t); ok {
			rl.Debug("[click] matched in frame %s: %q", frame.URL(), text)
			return true
		}
	}
	rl.Debug("[click] no match: pattern=%q exact=%q", t.Pattern, t.Exact)
	return false
}

// focusFieldByLabelJS resolves a form field from a label description:
// matching <label> first (explicit for= association, nested input, container
// input, sibling input, in that priority order), then generic text-bearing
// elements with the nearest container's input. The matched input is focused
// and cleared through framework-observable events.
const focusFieldByLabelJS = `(pattern) => {
	const re = new RegExp(pattern, "i");

	const prime = (input) => {
		input.focus();
		input.click && input.click();
		const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, "value");
		if (setter && setter.set) setter.set.call(input, "");
		else input.value = "";
		input.dispatchEvent(new Event("input", { bubbles: true }));
		input.dispatchEvent(new Event("change", { bubbles: true }));
		return true;
	};

	for (const label of Array.from(document.querySelectorAll("label"))) {
		if (!re.test((label.textContent || "").trim())) continue;
		let input = null;
		if (label.htmlFor) input = document.getElementById(label.htmlFor);
		if (!input) input = label.querySelector("input");
		if (!input) {
			const div = label.closest("div");
			input = div ? div.querySelector("input") : null;
		}
		if (!input && label.parentElement) input = label.parentElement.querySelector("input");
		if (input) return prime(input);
	}

	for (const el of Array.from(document.querySelectorAll("span, div, p"))) {
		const text = (el.innerText || "").trim();
		if (!text || text.length > 50 || !re.test(text)) continue;
		const container = el.closest("div");
		const input = container ? container.querySelector("input") : null;
		if (input) return prime(input);
	}

	// Last layer: match the input's own attributes.
	for (const inp of Array.from(document.querySelectorAll("input"))) {
		const hay = [inp.name, inp.getAttribute("labeltext"), inp.placeholder, inp.getAttribute("aria-label")]
			.filter(Boolean).join(" ");
		if (re.test(hay)) return prime(inp);
	}
	return false;
}`

// FocusFieldByLabel locates a form field by label/attribute description,
// focuses it and clears it. Returns false on a miss.
func FocusFieldByLabel(ctx evaluator, pattern string) bool {
	return evalBool(ctx, focusFieldByLabelJS, pattern)
}

// FindFrameWhere returns the first frame (main frame included, checked last)
// whose document satisfies the JS predicate. Inaccessible frames are skipped.
func FindFrameWhere(page pw.Page, predicateJS string, rl *RunLog) pw.Frame {
	for _, frame := range page.Frames() {
		if frame == page.MainFrame() {
			continue
		}
		if evalBool(frame, predicateJS) {
			rl.Debug("[frame] matched frame: %s", frame.URL())
			return frame
		}
	}
	if evalBool(page, predicateJS) {
		rl.Debug("[frame] matched main frame")
		return page.MainFrame()
	}
	return nil
}

// findInputSelectorJS resolves a stable CSS selector for an input whose
// name/labeltext/placeholder matches the pattern. Returns "" on a miss.
const findInputSelectorJS = `(pattern) => {
	const re = new RegExp(pattern, "i");
	const inputs = Array.from(document.querySelectorAll("input"));
	for (const inp of inputs) {
		const n = (inp.name || "").toLowerCase();
		const lt = (inp.getAttribute("labeltext") || "").toLowerCase();
		const ph = (inp.placeholder || "").toLowerCase();
		if (re.test(n) || re.test(lt) || re.test(ph)) {
			if (inp.name) return 'input[name="' + inp.name + '"]';
			if (inp.id) return "input#" + inp.id;
		}
	}
	return "";
}`

// FindInputSelector locates an input by attribute fragments and returns a
// selector that can address it again, or "" when nothing matches.
func FindInputSelector(ctx evaluator, pattern string) string {
	return evalString(ctx, findInputSelectorJS, pattern)
}
