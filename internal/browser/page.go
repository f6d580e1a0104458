package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Page is the set of primitives flows use to drive a remote UI. *Session
// implements it against Chrome; browsertest.Page implements it in memory.
//
// A selector starting with "/" or "(" is XPath; anything else is CSS.
// Index-based methods address the i-th match of sel at the time of the call.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Location(ctx context.Context) (string, error)

	// Visible reports whether sel becomes visible within timeout. Absence is
	// (false, nil), not an error. A timeout of zero checks once without
	// waiting.
	Visible(ctx context.Context, sel string, timeout time.Duration) (bool, error)
	Count(ctx context.Context, sel string) (int, error)

	Click(ctx context.Context, sel string) error
	ClickNth(ctx context.Context, sel string, i int) error
	Text(ctx context.Context, sel string) (string, error)
	Attribute(ctx context.Context, sel, name string) (string, error)
	Attributes(ctx context.Context, sel, name string) ([]string, error)
	Checked(ctx context.Context, sel string, i int) (bool, error)
	// FindNear returns the index of the match of sel labelled by phrase, or
	// failing that the match whose nearest enclosing text holds phrase, or -1.
	// Text shared by several matches identifies none of them.
	FindNear(ctx context.Context, sel, phrase string) (int, error)

	Fill(ctx context.Context, sel, text string) error
	Press(ctx context.Context, sel, key string) error
	SetFiles(ctx context.Context, sel string, files []string) error
	// Drag presses the mouse at the centre of sel, moves it dx pixels
	// horizontally and releases.
	Drag(ctx context.Context, sel string, dx float64) error

	Evaluate(ctx context.Context, expr string, res any) error
	Screenshot(ctx context.Context, path string) error
}

// IsXPath reports whether sel is an XPath expression.
func IsXPath(sel string) bool {
	return strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(")
}

// XPathLiteral quotes s for use inside an XPath expression.
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

// ByText returns an XPath selecting tag elements whose text contains phrase.
// tag may be "*".
func ByText(tag, phrase string) string {
	return fmt.Sprintf("//%s[contains(normalize-space(.), %s)]", tag, XPathLiteral(phrase))
}

// AnyText unions ByText over several phrases. Matches come back in
// document order.
func AnyText(tag string, phrases ...string) string {
	sels := make([]string, len(phrases))
	for i, p := range phrases {
		sels[i] = ByText(tag, p)
	}
	return strings.Join(sels, " | ")
}

// JSString encodes s as a JavaScript string literal. encoding/json escapes
// U+2028 and U+2029, so the result is valid JS as well as JSON.
func JSString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// queryAllJS returns a JS expression evaluating to an array of elements
// matching sel.
func queryAllJS(sel string) string {
	if IsXPath(sel) {
		return fmt.Sprintf(`(() => {
			const r = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			const out = [];
			for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i));
			return out;
		})()`, JSString(sel))
	}
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s))`, JSString(sel))
}

// visibleNowJS returns a JS expression that is true when any match of sel is
// rendered with a non-empty box.
func visibleNowJS(sel string) string {
	return fmt.Sprintf(`%s.some(el => {
		if (!(el instanceof Element)) return false;
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0 && getComputedStyle(el).visibility !== "hidden";
	})`, queryAllJS(sel))
}

// nearDepth is how many ancestors FindNear climbs looking for the phrase.
const nearDepth = 2

// findNearJS returns a JS expression evaluating to the index of the match of
// sel closest to phrase, or -1. An element's own label or aria-label is
// closest. Otherwise the nearest ancestor within nearDepth whose text holds
// the phrase counts, unless that ancestor also holds another match.
func findNearJS(sel, phrase string) string {
	return fmt.Sprintf(`(() => {
		const phrase = %s.toLowerCase();
		const els = %s;
		const has = t => (t || '').toLowerCase().includes(phrase);
		let best = -1, bestDepth = Infinity;
		for (let i = 0; i < els.length; i++) {
			const el = els[i];
			const label = (el.getAttribute && el.getAttribute('aria-label') || '') + ' ' +
				(el.labels ? Array.from(el.labels).map(l => l.textContent).join(' ') : '');
			if (has(label)) return i;
			let scope = el;
			for (let d = 1; d <= %d && d < bestDepth && scope.parentElement; d++) {
				scope = scope.parentElement;
				if (els.some(o => o !== el && scope.contains(o))) break;
				if (has(scope.textContent)) {
					best = i;
					bestDepth = d;
					break;
				}
			}
		}
		return best;
	})()`, JSString(phrase), queryAllJS(sel), nearDepth)
}
