package verify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// counter simulates a remote count that advances once per observation.
type counter struct{ n atomic.Int64 }

func (c *counter) observe(context.Context) (int, error) {
	return int(c.n.Add(1)), nil
}

func TestRunSucceedsBeforeTimeout(t *testing.T) {
	var c counter
	var actions int

	res, err := Run(context.Background(), Spec[int]{
		Action:   func(context.Context) error { actions++; return nil },
		Observe:  c.observe,
		Target:   3,
		Timeout:  time.Second,
		Interval: 5 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, actions)
	assert.Equal(t, 3, res.Value)
	assert.Equal(t, 3, res.Polls)
	assert.LessOrEqual(t, res.Elapsed, time.Second)
}

func TestRunTimeoutReportsLastObserved(t *testing.T) {
	res, err := Run(context.Background(), Spec[int]{
		Observe:  func(context.Context) (int, error) { return 2, nil },
		Target:   3,
		Timeout:  40 * time.Millisecond,
		Interval: 10 * time.Millisecond,
	})

	var terr *TimeoutError[int]
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.Last)
	assert.Equal(t, 3, terr.Target)
	assert.True(t, terr.Observed)
	assert.GreaterOrEqual(t, terr.Polls, 2)
	assert.Zero(t, res)
	assert.Contains(t, err.Error(), "last observed 2, expected 3")
}

func TestRunFinalSampleIsTakenAtDeadline(t *testing.T) {
	start := time.Now()
	_, err := Run(context.Background(), Spec[time.Duration]{
		Observe:  func(context.Context) (time.Duration, error) { return time.Since(start).Truncate(time.Hour), nil },
		Target:   time.Hour,
		Timeout:  30 * time.Millisecond,
		Interval: time.Hour,
	})

	var terr *TimeoutError[time.Duration]
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 2, terr.Polls, "one immediate sample and one at the deadline")
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRunObserveErrorsAreNotYet(t *testing.T) {
	boom := errors.New("element detached")
	var calls int

	res, err := Run(context.Background(), Spec[bool]{
		Observe: func(context.Context) (bool, error) {
			calls++
			if calls < 3 {
				return false, boom
			}
			return true, nil
		},
		Target:   true,
		Timeout:  time.Second,
		Interval: time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, res.Value)
	assert.Equal(t, 3, calls)
}

func TestRunAllObservationsFail(t *testing.T) {
	boom := errors.New("no such node")

	_, err := Run(context.Background(), Spec[int]{
		Observe:  func(context.Context) (int, error) { return 0, boom },
		Target:   1,
		Timeout:  15 * time.Millisecond,
		Interval: 5 * time.Millisecond,
	})

	var terr *TimeoutError[int]
	require.ErrorAs(t, err, &terr)
	assert.False(t, terr.Observed)
	assert.ErrorIs(t, err, boom)
}

func TestRunActionErrorSkipsPolling(t *testing.T) {
	boom := errors.New("input rejected")
	var observed bool

	_, err := Run(context.Background(), Spec[int]{
		Action:  func(context.Context) error { return boom },
		Observe: func(context.Context) (int, error) { observed = true; return 0, nil },
		Target:  1,
		Timeout: time.Second,
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, observed)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Run(ctx, Spec[int]{
		Observe:  func(context.Context) (int, error) { return 0, nil },
		Target:   1,
		Timeout:  time.Minute,
		Interval: 5 * time.Millisecond,
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestUntil(t *testing.T) {
	var n int
	err := Until(context.Background(), func(context.Context) (bool, error) {
		n++
		return n == 2, nil
	}, time.Second, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
