package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDailySpec(t *testing.T) {
	spec, err := DailySpec("09:30")
	require.NoError(t, err)
	assert.Equal(t, "30 9 * * *", spec)

	spec, err = DailySpec("23:05")
	require.NoError(t, err)
	assert.Equal(t, "5 23 * * *", spec)

	for _, bad := range []string{"9:30pm", "25:00", "", "09-30"} {
		_, err := DailySpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	_, err := New("Mars/Olympus", zaptest.NewLogger(t))
	assert.Error(t, err)

	s, err := New("Europe/Berlin", nil)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestAddAndRemoveJobs(t *testing.T) {
	s, err := New("UTC", zaptest.NewLogger(t))
	require.NoError(t, err)

	noop := func(context.Context) error { return nil }
	require.NoError(t, s.AddDailyJob("swipe", "09:30", noop))
	require.NoError(t, s.AddDailyJob("swipe", "10:00", noop), "re-adding replaces")
	require.NoError(t, s.AddJob("report", "0 18 * * *", noop))
	assert.Error(t, s.AddJob("bad", "not a schedule", noop))
	assert.Error(t, s.AddDailyJob("bad", "noon", noop))

	names := map[string]bool{}
	for _, j := range s.ListJobs() {
		names[j.Name] = true
	}
	assert.Equal(t, map[string]bool{"swipe": true, "report": true}, names)

	s.RemoveJob("report")
	s.RemoveJob("missing")
	require.Len(t, s.ListJobs(), 1)
	assert.Equal(t, "swipe", s.ListJobs()[0].Name)
}

func TestRunNowSwallowsJobErrors(t *testing.T) {
	s, err := New("", zaptest.NewLogger(t))
	require.NoError(t, err)

	calls := 0
	s.RunNow("failing", func(ctx context.Context) error {
		calls++
		_, ok := ctx.Deadline()
		assert.True(t, ok, "jobs run with a deadline")
		return errors.New("boom")
	})
	assert.Equal(t, 1, calls)
}

func TestScheduledJobRunsUntilCancelled(t *testing.T) {
	s, err := New("UTC", zaptest.NewLogger(t))
	require.NoError(t, err)

	ran := make(chan struct{}, 8)
	require.NoError(t, s.AddJob("tick", "@every 1s", func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunUntil(ctx) }()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job never ran")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestJobContextFollowsStartContext(t *testing.T) {
	s, err := New("UTC", zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	var jobErr error
	s.RunNow("after-cancel", func(ctx context.Context) error {
		jobErr = ctx.Err()
		return jobErr
	})
	<-s.Stop().Done()
	assert.ErrorIs(t, jobErr, context.Canceled)
}
