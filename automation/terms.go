package automation

import (
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// acceptTermsJS checks the terms-and-conditions box wherever the portal
// renders it: aria checkboxes, label+checkbox pairs (for= association,
// nested, nearby), or a clickable container when the real checkbox is
// invisible. Already-checked boxes are left alone.
const acceptTermsJS = `(pattern) => {
	const re = new RegExp(pattern, "i");

	const scrollAndClick = (el) => {
		if (!el) return false;
		try {
			if (el.scrollIntoView) el.scrollIntoView({ block: "center", inline: "center" });
			if (el.click) el.click();
			return true;
		} catch (e) {
			return false;
		}
	};

	for (const el of Array.from(document.querySelectorAll('[role="checkbox"], [aria-checked]'))) {
		const txt = ((el.innerText || "") + " " + (el.getAttribute("aria-label") || "")).trim();
		if (!re.test(txt)) continue;
		if (el.getAttribute("aria-checked") === "true") return true;
		if (scrollAndClick(el)) return true;
	}

	for (const label of Array.from(document.querySelectorAll("label"))) {
		const txt = (label.textContent || "").trim();
		if (!re.test(txt)) continue;

		const forId = label.getAttribute("for");
		if (forId) {
			const input = document.getElementById(forId);
			if (input && input.type === "checkbox") {
				if (!input.checked) input.click();
				return true;
			}
		}
		const inside = label.querySelector('input[type="checkbox"]');
		if (inside) {
			if (!inside.checked) inside.click();
			return true;
		}
		if (label.parentElement) {
			const near = label.parentElement.querySelector('input[type="checkbox"]');
			if (near) {
				if (!near.checked) near.click();
				return true;
			}
		}
		if (scrollAndClick(label)) return true;
	}

	for (const n of Array.from(document.querySelectorAll('button, [role="button"], a, div, span, p'))) {
		const t = (n.textContent || "").trim();
		if (!re.test(t) || t.length > 200) continue;
		const host = n.closest('[role="checkbox"], label, [role="button"], button, a, div') || n;
		const cb = host.querySelector('input[type="checkbox"]');
		if (cb) {
			if (!cb.checked) cb.click();
			return true;
		}
		if (scrollAndClick(host)) return true;
	}
	return false;
}`

const confirmAfterTermsJS = `() => {
	const isGood = (txt) => {
		const s = (txt || "").trim().toLowerCase();
		return s === "aceptar" || s === "acepto" || s.includes("acept") ||
			s.includes("confirm") || s.includes("continuar") || s.includes("firm");
	};
	const el = Array.from(document.querySelectorAll('button, [role="button"], a'))
		.find((n) => isGood(n.textContent || ""));
	if (!el) return false;
	el.click();
	return true;
}`

const termsPattern = `t[eé]rminos|condiciones|acepto|declaro|he le[ií]do`

// AcceptTermsIfPresent accepts the portal's terms screen when it appears.
// Some flows need an additional confirmation click after the box is checked.
// Not finding any terms is fine; not every flow asks.
func AcceptTermsIfPresent(page pw.Page, rl *RunLog) bool {
	tryContext := func(ctx evaluator, where string) bool {
		if !evalBool(ctx, acceptTermsJS, termsPattern) {
			return false
		}
		rl.Info("[terms] Terms accepted (%s)", where)
		// Give the UI time to enable the follow-up button.
		time.Sleep(500 * time.Millisecond)
		if evalBool(ctx, confirmAfterTermsJS) {
			rl.Info("[terms] Extra confirmation click (%s)", where)
		}
		return true
	}

	if tryContext(page, "page") {
		time.Sleep(600 * time.Millisecond)
		return true
	}
	for _, f := range page.Frames() {
		if f.URL() == "" {
			continue
		}
		if tryContext(f, "frame:"+f.URL()) {
			time.Sleep(600 * time.Millisecond)
			return true
		}
	}
	rl.Info("[terms] No terms screen found (fine if the flow does not ask).")
	return false
}

// clickAuthorizePrepJS targets the "Preparar y autorizar" control: explicit
// button text/aria first, then an inner span resolved to its closest button.
const clickAuthorizePrepJS = `(pattern) => {
	const re = new RegExp(pattern, "i");
	for (const b of Array.from(document.querySelectorAll("button"))) {
		const t = ((b.innerText || "") + " " + (b.getAttribute("aria-label") || "")).trim();
		if (re.test(t)) {
			b.scrollIntoView({ block: "center", inline: "center" });
			b.click();
			return true;
		}
	}
	for (const s of Array.from(document.querySelectorAll("span"))) {
		const t = (s.textContent || "").trim();
		if (!re.test(t)) continue;
		const btn = s.closest("button");
		if (btn) {
			btn.scrollIntoView({ block: "center", inline: "center" });
			btn.click();
			return true;
		}
	}
	return false;
}`

// ClickAuthorizePrep clicks the authorization-prep action that usually
// appears after the terms screen, searching the page then every frame.
func ClickAuthorizePrep(page pw.Page, rl *RunLog) bool {
	const pattern = `preparar\s+y\s+autorizar`
	if evalBool(page, clickAuthorizePrepJS, pattern) {
		rl.Debug("[click] authorization-prep clicked (page)")
		return true
	}
	for _, f := range page.Frames() {
		if evalBool(f, clickAuthorizePrepJS, pattern) {
			rl.Debug("[click] authorization-prep clicked (frame: %s)", f.URL())
			return true
		}
	}
	rl.Warn("Authorization-prep button not found.")
	return false
}
