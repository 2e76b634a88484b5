package browser

import (
	"encoding/json"
	"fmt"
)

// RefAttribute is stamped on resolved elements so CDP input targets exactly that node
const RefAttribute = "data-e2e-ref"

// prelude is shared by every locator expression. Steps receive the current
// root (document or element) and these helpers, and return an element or null.
const prelude = `
const __norm = (s) => (s || "").replace(/\s+/g, " ").trim();
const __skip = new Set(["SCRIPT", "STYLE", "NOSCRIPT", "TEMPLATE", "HEAD"]);
const __visible = (el) => {
	if (!(el instanceof Element)) return false;
	const style = getComputedStyle(el);
	if (style.visibility === "hidden" || style.display === "none") return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
};
const __candidates = (root) => {
	const scope = root.body || root;
	const all = Array.from(scope.querySelectorAll("*"));
	if (scope instanceof Element) all.unshift(scope);
	return all.filter((el) => !__skip.has(el.tagName));
};
const __deepest = (matches) => {
	const set = new Set(matches);
	return matches.filter((el) => !Array.from(el.children).some((c) => set.has(c)));
};
const __pick = (matches) => {
	const deepest = __deepest(matches);
	return deepest.find(__visible) || deepest[0] || null;
};
const __hasExact = (el, text) => __candidates(el).some((c) => __norm(c.textContent) === text);
`

// jsString encodes s as a JavaScript string literal
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		// json.Marshal cannot fail for a string
		panic(err)
	}
	return string(b)
}

func textStep(text string) string {
	return fmt.Sprintf(`(root) => {
	const needle = %s.toLowerCase();
	return __pick(__candidates(root).filter((el) => __norm(el.textContent).toLowerCase().includes(needle)));
}`, jsString(normalizeText(text)))
}

func exactTextStep(text string) string {
	return fmt.Sprintf(`(root) => {
	const needle = %s;
	return __pick(__candidates(root).filter((el) => __norm(el.textContent) === needle));
}`, jsString(normalizeText(text)))
}

func cssStep(selector string) string {
	return fmt.Sprintf(`(root) => root.querySelector(%s)`, jsString(selector))
}

func idStep(id string) string {
	return fmt.Sprintf(`(root) => (root.ownerDocument || root).getElementById(%s)`, jsString(id))
}

func ancestorWithTextStep(text string) string {
	return fmt.Sprintf(`(root) => {
	const needle = %s;
	let el = root instanceof Element ? root.parentElement : null;
	while (el) {
		if (__hasExact(el, needle)) return el;
		el = el.parentElement;
	}
	return null;
}`, jsString(normalizeText(text)))
}

// fillFunction sets the value through the native setter so framework change
// tracking (React) sees the update, then fires input and change.
const fillFunction = `(selector, value) => {
	const el = document.querySelector(selector);
	if (!el) throw new Error("element not found: " + selector);
	el.focus();
	const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
	const setter = Object.getOwnPropertyDescriptor(proto, "value").set;
	setter.call(el, value);
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	return el.value;
}`

const checkedFunction = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) throw new Error("element not found: " + selector);
	if (el.type === "checkbox" || el.type === "radio") return el.checked;
	const input = el.querySelector("input[type='checkbox'], input[type='radio']");
	if (input) return input.checked;
	return el.getAttribute("aria-checked") === "true";
}`

const textFunction = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) throw new Error("element not found: " + selector);
	return (el.textContent || "").replace(/\s+/g, " ").trim();
}`

// call renders an immediately invoked function with JSON-encoded arguments
func call(fn string, args ...string) string {
	encoded := ""
	for i, a := range args {
		if i > 0 {
			encoded += ", "
		}
		encoded += jsString(a)
	}
	return fmt.Sprintf("(%s)(%s)", fn, encoded)
}
