// Package popup dismisses transient overlays (cookie banners, upsells,
// match celebrations) that can appear at any point and intercept clicks.
package popup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxDepth bounds how many chained popups one Suppress call follows.
const DefaultMaxDepth = 2

// Rule detects one kind of popup and dismisses it.
type Rule struct {
	Name    string
	Detect  func(ctx context.Context) (bool, error)
	Dismiss func(ctx context.Context) error
	// Chain marks popups whose dismissal tends to reveal another popup.
	Chain bool
}

// Prober is the subset of a page a ClickRule needs.
type Prober interface {
	Visible(ctx context.Context, sel string, timeout time.Duration) (bool, error)
	Click(ctx context.Context, sel string) error
}

// ClickRule detects sel within timeout and dismisses it by clicking it.
func ClickRule(p Prober, name, sel string, timeout time.Duration) Rule {
	return Rule{
		Name:    name,
		Detect:  func(ctx context.Context) (bool, error) { return p.Visible(ctx, sel, timeout) },
		Dismiss: func(ctx context.Context) error { return p.Click(ctx, sel) },
	}
}

// Chained returns r with Chain set.
func (r Rule) Chained() Rule {
	r.Chain = true
	return r
}

// Suppressor tries its rules in order.
type Suppressor struct {
	rules     []Rule
	maxDepth  int
	onHandled func(name string)
	logger    *zap.Logger
}

// Option configures a Suppressor.
type Option func(*Suppressor)

// WithMaxDepth sets how many chained popups are followed.
func WithMaxDepth(n int) Option {
	return func(s *Suppressor) { s.maxDepth = n }
}

// WithOnHandled registers a callback run after each dismissed popup.
func WithOnHandled(fn func(name string)) Option {
	return func(s *Suppressor) { s.onHandled = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Suppressor) { s.logger = l }
}

// New creates a Suppressor. Rule order is priority order.
func New(rules []Rule, opts ...Option) *Suppressor {
	s := &Suppressor{
		rules:    rules,
		maxDepth: DefaultMaxDepth,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suppress dismisses the first popup found and returns the names of the
// popups handled, in order. It returns nil when no popup was present. It
// never fails: detector and dismiss errors mean "not present".
func (s *Suppressor) Suppress(ctx context.Context) []string {
	var handled []string
	for depth := 0; depth <= s.maxDepth; depth++ {
		if ctx.Err() != nil {
			break
		}
		rule, ok := s.scan(ctx)
		if !ok {
			break
		}
		handled = append(handled, rule.Name)
		if !rule.Chain {
			break
		}
	}
	return handled
}

func (s *Suppressor) scan(ctx context.Context) (Rule, bool) {
	for _, r := range s.rules {
		if s.try(ctx, r) {
			return r, true
		}
	}
	return Rule{}, false
}

func (s *Suppressor) try(ctx context.Context, r Rule) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Debug("popup rule panicked", zap.String("popup", r.Name), zap.Error(fmt.Errorf("%v", p)))
			ok = false
		}
	}()

	found, err := r.Detect(ctx)
	if err != nil || !found {
		return false
	}
	if err := r.Dismiss(ctx); err != nil {
		s.logger.Debug("popup dismiss failed", zap.String("popup", r.Name), zap.Error(err))
		return false
	}

	s.logger.Info("popup dismissed", zap.String("popup", r.Name))
	if s.onHandled != nil {
		s.onHandled(r.Name)
	}
	return true
}
