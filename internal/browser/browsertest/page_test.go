package browsertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisibleHonoursTimeout(t *testing.T) {
	ctx := context.Background()
	p := New()
	p.ShowAfter("#late", time.Second)

	ok, err := p.Visible(ctx, "#late", 0)
	require.NoError(t, err)
	assert.False(t, ok, "a zero timeout does not wait")

	ok, err = p.Visible(ctx, "#late", 500*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Visible(ctx, "#late", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Visible(ctx, "#late", 0)
	require.NoError(t, err)
	assert.True(t, ok, "once shown it stays visible")

	assert.Equal(t, []time.Duration{0, 500 * time.Millisecond, 2 * time.Second, 0}, p.WaitsFor("#late"))
}

func TestHideCancelsPendingAppearance(t *testing.T) {
	p := New()
	p.ShowAfter("#late", time.Millisecond)
	p.Hide("#late")

	ok, err := p.Visible(context.Background(), "#late", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVisibleCanceledContext(t *testing.T) {
	p := New()
	p.Show("#x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Visible(ctx, "#x", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
