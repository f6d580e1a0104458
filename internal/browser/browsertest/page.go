// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ibeckermayer/uibot/internal/browser"
)

// Page is a scriptable fake. Static state lives in the maps; dynamic
// behaviour is added through the On* hooks, which run with the lock released
// and may mutate the page through its setters.
type Page struct {
	mu sync.Mutex

	url      string
	visible  map[string]bool
	appear   map[string]time.Duration
	texts    map[string]string
	attrs    map[string]map[string]string
	multi    map[string][]string // sel -> per-element attribute/text values for Attributes
	counts   map[string]int
	checks   map[string][]bool
	near     map[string]map[string]int
	values   map[string]string
	files    map[string][]string
	failures map[string]error // "op sel" -> error

	Navigations []string
	Clicks      []string
	Drags       []Drag
	Shots       []string
	Keys        []string
	Waits       []Wait

	OnNavigate func(p *Page, url string)
	OnClick    func(p *Page, sel string, i int)
	OnSetFiles func(p *Page, sel string, files []string)
	OnDrag     func(p *Page, sel string, dx float64)
	OnPress    func(p *Page, sel, key string)
	OnText     func(p *Page, sel string) (string, bool)
	OnEvaluate func(p *Page, expr string) (any, error)
}

// Wait records one Visible call.
type Wait struct {
	Sel     string
	Timeout time.Duration
}

// Drag records one Drag call.
type Drag struct {
	Sel string
	DX  float64
}

var _ browser.Page = (*Page)(nil)

// New creates an empty page.
func New() *Page {
	return &Page{
		visible:  map[string]bool{},
		appear:   map[string]time.Duration{},
		texts:    map[string]string{},
		attrs:    map[string]map[string]string{},
		multi:    map[string][]string{},
		counts:   map[string]int{},
		checks:   map[string][]bool{},
		near:     map[string]map[string]int{},
		values:   map[string]string{},
		files:    map[string][]string{},
		failures: map[string]error{},
	}
}

// -- Setters --

func (p *Page) SetURL(u string) { p.mu.Lock(); p.url = u; p.mu.Unlock() }

func (p *Page) Show(sels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range sels {
		p.visible[s] = true
	}
}

func (p *Page) Hide(sels ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range sels {
		delete(p.visible, s)
		delete(p.appear, s)
	}
}

// ShowAfter makes sel appear d after the next Visible call starts waiting.
// A Visible call whose timeout is shorter than d reports it absent.
func (p *Page) ShowAfter(sel string, d time.Duration) {
	p.mu.Lock()
	p.appear[sel] = d
	p.mu.Unlock()
}

func (p *Page) SetText(sel, text string) { p.mu.Lock(); p.texts[sel] = text; p.mu.Unlock() }

func (p *Page) SetAttr(sel, name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.attrs[sel] == nil {
		p.attrs[sel] = map[string]string{}
	}
	p.attrs[sel][name] = value
}

func (p *Page) SetAttrs(sel string, values ...string) {
	p.mu.Lock()
	p.multi[sel] = values
	p.mu.Unlock()
}

func (p *Page) SetCount(sel string, n int) { p.mu.Lock(); p.counts[sel] = n; p.mu.Unlock() }

// SetChecks sets the checked state of each match of sel.
func (p *Page) SetChecks(sel string, states ...bool) {
	p.mu.Lock()
	p.checks[sel] = states
	p.mu.Unlock()
}

// SetChecked sets one match's checked state.
func (p *Page) SetChecked(sel string, i int, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.checks[sel]) <= i {
		p.checks[sel] = append(p.checks[sel], false)
	}
	p.checks[sel][i] = v
}

// SetNear makes FindNear(sel, phrase) return i. Use -1 to remove.
func (p *Page) SetNear(sel, phrase string, i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.near[sel] == nil {
		p.near[sel] = map[string]int{}
	}
	if i < 0 {
		delete(p.near[sel], phrase)
		return
	}
	p.near[sel][phrase] = i
}

// Fail makes op ("click", "text", "navigate", "setfiles", ...) on sel fail.
// A nil err clears it.
func (p *Page) Fail(op, sel string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op+" "+sel)
		return
	}
	p.failures[op+" "+sel] = err
}

// -- Getters --

func (p *Page) Value(sel string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[sel]
}

func (p *Page) Files(sel string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.files[sel]
}

func (p *Page) ClickCount(sel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.Clicks {
		if c == sel || strings.HasPrefix(c, sel+"#") {
			n++
		}
	}
	return n
}

func (p *Page) IsChecked(sel string, i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return i < len(p.checks[sel]) && p.checks[sel][i]
}

func (p *Page) failure(op, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures[op+" "+sel]
}

// -- browser.Page --

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.failure("navigate", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.Navigations = append(p.Navigations, url)
	hook := p.OnNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	p.mu.Lock()
	u := p.url
	p.mu.Unlock()
	return p.Navigate(ctx, u)
}

func (p *Page) Location(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Visible(ctx context.Context, sel string, timeout time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := p.failure("visible", sel); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Waits = append(p.Waits, Wait{Sel: sel, Timeout: timeout})
	if p.visible[sel] {
		return true, nil
	}
	if d, ok := p.appear[sel]; ok && timeout > 0 && d <= timeout {
		delete(p.appear, sel)
		p.visible[sel] = true
		return true, nil
	}
	return false, nil
}

// WaitsFor returns the timeouts of the Visible calls made for sel.
func (p *Page) WaitsFor(sel string) []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []time.Duration
	for _, w := range p.Waits {
		if w.Sel == sel {
			out = append(out, w.Timeout)
		}
	}
	return out
}

func (p *Page) Count(ctx context.Context, sel string) (int, error) {
	if err := p.failure("count", sel); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[sel], ctx.Err()
}

func (p *Page) Click(ctx context.Context, sel string) error {
	return p.click(ctx, sel, -1)
}

func (p *Page) ClickNth(ctx context.Context, sel string, i int) error {
	p.mu.Lock()
	n := p.counts[sel]
	if len(p.checks[sel]) > n {
		n = len(p.checks[sel])
	}
	p.mu.Unlock()
	if i >= n {
		return fmt.Errorf("%w: %s[%d]", browser.ErrNotFound, sel, i)
	}
	return p.click(ctx, sel, i)
}

func (p *Page) click(ctx context.Context, sel string, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.failure("click", sel); err != nil {
		return err
	}
	p.mu.Lock()
	if i < 0 && !p.visible[sel] {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	rec := sel
	if i >= 0 {
		rec = fmt.Sprintf("%s#%d", sel, i)
	}
	p.Clicks = append(p.Clicks, rec)
	hook := p.OnClick
	p.mu.Unlock()
	if hook != nil {
		hook(p, sel, i)
	}
	return nil
}

func (p *Page) Text(ctx context.Context, sel string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.failure("text", sel); err != nil {
		return "", err
	}
	if p.OnText != nil {
		if s, ok := p.OnText(p, sel); ok {
			return s, nil
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.texts[sel]
	if !ok {
		return "", fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	return s, nil
}

func (p *Page) Attribute(ctx context.Context, sel, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.attrs[sel][name]
	if !ok {
		return "", fmt.Errorf("%w: attribute %s on %s", browser.ErrNotFound, name, sel)
	}
	return v, nil
}

func (p *Page) Attributes(ctx context.Context, sel, _ string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.multi[sel]...), nil
}

func (p *Page) Checked(ctx context.Context, sel string, i int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := p.failure("checked", sel); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.checks[sel]) {
		return false, fmt.Errorf("%w: %s[%d]", browser.ErrNotFound, sel, i)
	}
	return p.checks[sel][i], nil
}

func (p *Page) FindNear(ctx context.Context, sel, phrase string) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if i, ok := p.near[sel][phrase]; ok {
		return i, nil
	}
	return -1, nil
}

func (p *Page) Fill(ctx context.Context, sel, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.failure("fill", sel); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[sel] = text
	return nil
}

func (p *Page) Press(ctx context.Context, sel, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Keys = append(p.Keys, key)
	hook := p.OnPress
	p.mu.Unlock()
	if hook != nil {
		hook(p, sel, key)
	}
	return nil
}

// SetValue sets an input's value as the page would.
func (p *Page) SetValue(sel, v string) { p.mu.Lock(); p.values[sel] = v; p.mu.Unlock() }

func (p *Page) SetFiles(ctx context.Context, sel string, files []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.failure("setfiles", sel); err != nil {
		return err
	}
	p.mu.Lock()
	p.files[sel] = append([]string(nil), files...)
	hook := p.OnSetFiles
	p.mu.Unlock()
	if hook != nil {
		hook(p, sel, files)
	}
	return nil
}

func (p *Page) Drag(ctx context.Context, sel string, dx float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.failure("drag", sel); err != nil {
		return err
	}
	p.mu.Lock()
	p.Drags = append(p.Drags, Drag{Sel: sel, DX: dx})
	hook := p.OnDrag
	p.mu.Unlock()
	if hook != nil {
		hook(p, sel, dx)
	}
	return nil
}

// Evaluate returns the OnEvaluate result JSON-decoded into res.
func (p *Page) Evaluate(ctx context.Context, expr string, res any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.OnEvaluate == nil {
		return fmt.Errorf("browsertest: no OnEvaluate hook for %.40q", expr)
	}
	v, err := p.OnEvaluate(p, expr)
	if err != nil || res == nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, res)
}

// Screenshot writes a placeholder file so callers can assert on paths.
func (p *Page) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte("png"), 0644); err != nil {
		return err
	}
	p.mu.Lock()
	p.Shots = append(p.Shots, path)
	p.mu.Unlock()
	return nil
}
