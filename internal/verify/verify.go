// Package verify runs a UI action once and then polls an observation until
// it matches a target or a deadline passes.
//
// Remote UIs do not report when an action has taken effect, so every write
// (upload, checkbox click, slider drag) is confirmed by reading state back.
package verify

import (
	"context"
	"fmt"
	"time"
)

// DefaultInterval is used when Spec.Interval is zero.
const DefaultInterval = time.Second

// Spec describes one verified action.
type Spec[T comparable] struct {
	// Action is invoked exactly once. Nil means observe only.
	Action func(ctx context.Context) error
	// Observe reads the current remote state. An error counts as "not yet".
	Observe func(ctx context.Context) (T, error)
	Target   T
	Timeout  time.Duration
	Interval time.Duration
}

// Result is returned when the observation reached the target.
type Result[T comparable] struct {
	Value   T
	Elapsed time.Duration
	Polls   int
}

// TimeoutError reports the last value seen when the deadline passed.
type TimeoutError[T comparable] struct {
	Last     T
	Target   T
	Observed bool // false when every observation failed
	LastErr  error
	Timeout  time.Duration
	Polls    int
}

func (e *TimeoutError[T]) Error() string {
	if !e.Observed {
		return fmt.Sprintf("verification timed out after %s: nothing observed (last error: %v), expected %v",
			e.Timeout, e.LastErr, e.Target)
	}
	return fmt.Sprintf("verification timed out after %s: last observed %v, expected %v",
		e.Timeout, e.Last, e.Target)
}

func (e *TimeoutError[T]) Unwrap() error { return e.LastErr }

// Run performs spec.Action, then samples spec.Observe immediately and every
// Interval until it equals spec.Target. The final sample is taken at the
// deadline, so TimeoutError.Last is the state at expiry.
func Run[T comparable](ctx context.Context, spec Spec[T]) (Result[T], error) {
	interval := spec.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	if spec.Action != nil {
		if err := spec.Action(ctx); err != nil {
			return Result[T]{}, fmt.Errorf("action failed: %w", err)
		}
	}

	start := time.Now()
	deadline := start.Add(spec.Timeout)
	terr := &TimeoutError[T]{Target: spec.Target, Timeout: spec.Timeout}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result[T]{}, ctx.Err()
		case <-timer.C:
		}

		terr.Polls++
		v, err := spec.Observe(ctx)
		now := time.Now()
		if err != nil {
			terr.LastErr = err
		} else {
			terr.Last, terr.Observed = v, true
			if v == spec.Target {
				return Result[T]{Value: v, Elapsed: min(now.Sub(start), spec.Timeout), Polls: terr.Polls}, nil
			}
		}

		remaining := deadline.Sub(now)
		if remaining <= 0 {
			return Result[T]{}, terr
		}
		timer.Reset(min(interval, remaining))
	}
}

// Until polls cond until it reports true.
func Until(ctx context.Context, cond func(ctx context.Context) (bool, error), timeout, interval time.Duration) error {
	_, err := Run(ctx, Spec[bool]{
		Observe:  cond,
		Target:   true,
		Timeout:  timeout,
		Interval: interval,
	})
	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
