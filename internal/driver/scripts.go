package driver

import (
	"encoding/json"
	"fmt"
)

func jsonEncode(v string) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func clearScript(selector string) string {
	return fmt.Sprintf(`(function(selector) {
	const el = document.querySelector(selector);
	if (!el || el.disabled || el.readOnly) return false;
	el.value = "";
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s)`, jsonEncode(selector))
}

// selectScript picks the option whose value matches and reports whether one did.
func selectScript(selector, value string) string {
	return fmt.Sprintf(`(function(selector, value) {
	const el = document.querySelector(selector);
	if (!el || !el.options) return false;
	const option = Array.from(el.options).find(o => o.value === value);
	if (!option) return false;
	el.value = value;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})(%s, %s)`, jsonEncode(selector), jsonEncode(value))
}

func scrollScript(offset int) string {
	return fmt.Sprintf("window.scrollTo(0, %d)", offset)
}
