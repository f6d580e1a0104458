// Package batch applies a step to each item of a remote list, one at a time,
// re-reading the list before every step and carrying on past failures.
package batch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrItemGone is recorded when the live list no longer has an item at the
// index being processed.
var ErrItemGone = errors.New("item no longer present")

// Source yields the current list of items.
type Source[T any] interface {
	Resolve(ctx context.Context) ([]T, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context) ([]T, error)

func (f SourceFunc[T]) Resolve(ctx context.Context) ([]T, error) { return f(ctx) }

// Static is a fixed list.
type Static[T any] []T

func (s Static[T]) Resolve(context.Context) ([]T, error) { return s, nil }

// Step processes the item at index. The item comes from a fresh Resolve.
type Step[T any] func(ctx context.Context, index int, item T) error

// Failure is one item that did not succeed.
type Failure struct {
	Index int
	Err   error
}

func (f Failure) Error() string { return fmt.Sprintf("item %d: %v", f.Index, f.Err) }

func (f Failure) Unwrap() error { return f.Err }

// Result summarises a run.
type Result struct {
	Attempted int
	Succeeded int
	Failures  []Failure
}

// AllSucceeded reports whether every attempted item succeeded.
func (r Result) AllSucceeded() bool {
	return len(r.Failures) == 0 && r.Succeeded == r.Attempted
}

// Err joins all failures, or returns nil.
func (r Result) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

type options struct {
	limit  int
	logger *zap.Logger
}

// Option configures Run.
type Option func(*options)

// WithLimit caps how many items are processed. Zero means no cap.
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

// WithLogger logs per-item outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run processes the items of src in order. The number of items is fixed by
// the first Resolve; each step then works on a freshly resolved list so it
// never holds a reference that a re-render has invalidated.
//
// Run returns an error only when the first Resolve fails or ctx ends; the
// partial Result is returned either way.
func Run[T any](ctx context.Context, src Source[T], step Step[T], opts ...Option) (Result, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	items, err := src.Resolve(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve items: %w", err)
	}
	n := len(items)
	if o.limit > 0 && n > o.limit {
		n = o.limit
	}

	var res Result
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Attempted++
		err := runOne(ctx, src, step, i)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				res.Failures = append(res.Failures, Failure{Index: i, Err: err})
				return res, ctxErr
			}
			o.logger.Warn("item failed", zap.Int("index", i), zap.Int("of", n), zap.Error(err))
			res.Failures = append(res.Failures, Failure{Index: i, Err: err})
			continue
		}
		o.logger.Info("item done", zap.Int("index", i), zap.Int("of", n))
		res.Succeeded++
	}

	return res, nil
}

func runOne[T any](ctx context.Context, src Source[T], step Step[T], i int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	live, err := src.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("failed to re-resolve items: %w", err)
	}
	if i >= len(live) {
		return fmt.Errorf("%w (index %d, %d live)", ErrItemGone, i, len(live))
	}
	return step(ctx, i, live[i])
}
