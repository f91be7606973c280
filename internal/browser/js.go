// File: internal/browser/js.go
package browser

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var jsonFast = jsoniter.ConfigCompatibleWithStandardLibrary

// jsArgs encodes Go values as a comma separated JavaScript argument list.
// Encoding through JSON keeps selector strings and user input safe to
// interpolate into script templates.
func jsArgs(args ...interface{}) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		encoded, err := jsonFast.MarshalToString(a)
		if err != nil {
			// Marshal of plain strings/ints/bools cannot fail; guard anyway.
			encoded = "null"
		}
		parts = append(parts, encoded)
	}
	return strings.Join(parts, ", ")
}

func jsQueryTexts(selector string) string {
	return fmt.Sprintf(`(function(sel) {
		const out = [];
		document.querySelectorAll(sel).forEach(el => {
			out.push((el.innerText || el.textContent || '').trim());
		});
		return out;
	})(%s)`, jsArgs(selector))
}

func jsElementText(selector string, index int) string {
	return fmt.Sprintf(`(function(sel, idx) {
		const els = document.querySelectorAll(sel);
		if (idx < 0 || idx >= els.length) { return null; }
		return (els[idx].innerText || els[idx].textContent || '').trim();
	})(%s)`, jsArgs(selector, index))
}

func jsExists(selector string) string {
	return fmt.Sprintf(`(function(sel) {
		return document.querySelector(sel) !== null;
	})(%s)`, jsArgs(selector))
}

func jsClickIndexed(selector string, index int) string {
	return fmt.Sprintf(`(function(sel, idx) {
		const els = document.querySelectorAll(sel);
		if (idx < 0 || idx >= els.length) { return false; }
		els[idx].scrollIntoView({block: 'center'});
		els[idx].click();
		return true;
	})(%s)`, jsArgs(selector, index))
}

// jsClickMatching scopes to the idx-th element of scopeSel, then clicks the
// first descendant matching candidateSel whose text contains textContains
// (case insensitive). An empty textContains matches any candidate.
func jsClickMatching(scopeSel string, scopeIndex int, candidateSel, textContains string) string {
	return fmt.Sprintf(`(function(scopeSel, scopeIdx, candSel, needle) {
		const scopes = document.querySelectorAll(scopeSel);
		if (scopeIdx < 0 || scopeIdx >= scopes.length) { return false; }
		const cands = scopes[scopeIdx].querySelectorAll(candSel);
		needle = needle.toLowerCase();
		for (const c of cands) {
			const text = (c.innerText || c.textContent || c.value || '').toLowerCase();
			if (needle === '' || text.includes(needle)) {
				c.scrollIntoView({block: 'center'});
				c.click();
				return true;
			}
		}
		return false;
	})(%s)`, jsArgs(scopeSel, scopeIndex, candidateSel, textContains))
}

// jsSetValue writes the value through the DOM property and fires input and
// change events so framework bindings pick the new value up.
func jsSetValue(selector, value string) string {
	return fmt.Sprintf(`(function(sel, val) {
		const el = document.querySelector(sel);
		if (!el) { return false; }
		el.focus();
		el.value = val;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		el.blur();
		return true;
	})(%s)`, jsArgs(selector, value))
}

func jsReadValue(selector string) string {
	return fmt.Sprintf(`(function(sel) {
		const el = document.querySelector(sel);
		if (!el) { return null; }
		return el.value !== undefined ? String(el.value) : null;
	})(%s)`, jsArgs(selector))
}

func jsSetChecked(selector string, checked bool) string {
	return fmt.Sprintf(`(function(sel, want) {
		const el = document.querySelector(sel);
		if (!el) { return false; }
		if (el.checked !== want) {
			el.click();
			if (el.checked !== want) {
				el.checked = want;
				el.dispatchEvent(new Event('change', {bubbles: true}));
			}
		}
		return el.checked === want;
	})(%s)`, jsArgs(selector, checked))
}

func jsSelectOptions(selector string) string {
	return fmt.Sprintf(`(function(sel) {
		const el = document.querySelector(sel);
		if (!el || !el.options) { return []; }
		const out = [];
		for (const opt of el.options) {
			out.push({value: opt.value, text: (opt.innerText || opt.textContent || '').trim()});
		}
		return out;
	})(%s)`, jsArgs(selector))
}

func jsSelectByValue(selector, value string) string {
	return fmt.Sprintf(`(function(sel, val) {
		const el = document.querySelector(sel);
		if (!el) { return false; }
		el.value = val;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return el.value === val;
	})(%s)`, jsArgs(selector, value))
}

func jsIsEnabledVisible(selector string) string {
	return fmt.Sprintf(`(function(sel) {
		const el = document.querySelector(sel);
		if (!el) { return false; }
		if (el.disabled) { return false; }
		const rect = el.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	})(%s)`, jsArgs(selector))
}

func jsPageText() string {
	return `(function() {
		return document.body ? (document.body.innerText || document.body.textContent || '') : '';
	})()`
}
