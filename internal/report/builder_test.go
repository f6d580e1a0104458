package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/uibot/internal/stock"
	"github.com/ibeckermayer/uibot/internal/types"
)

func newBuilder(t *testing.T, maxMatches int) *Builder {
	t.Helper()
	b, err := New(maxMatches)
	require.NoError(t, err)
	b.now = func() time.Time { return time.Date(2024, 3, 8, 9, 30, 0, 0, time.UTC) }
	return b
}

func TestUploadReport(t *testing.T) {
	b := newBuilder(t, 0)
	res := stock.NewResult(3)
	res.ImagesUploaded = 2
	res.CheckboxesMarked = 4
	res.AddError("upload count %d, expected %d", 7, 8)

	r, err := b.Upload(res)
	require.NoError(t, err)
	assert.Equal(t, "Adobe Stock upload failed: 2/3 images, Mar 8", r.Subject)
	assert.Contains(t, r.PlainBody, "Images uploaded: 2 of 3")
	assert.Contains(t, r.PlainBody, "- upload count 7, expected 8")
	assert.Contains(t, r.HTMLBody, `class="failed"`)
	assert.Contains(t, r.HTMLBody, "<li>upload count 7, expected 8</li>")

	_, err = b.Upload(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestMatchesReport(t *testing.T) {
	b := newBuilder(t, 1)
	matches := []types.RemoteMatch{
		{ChatID: "c1", RemoteProfile: types.RemoteProfile{
			Name: "Alex <3", Age: types.IntPtr(29), Distance: types.IntPtr(4),
			Bio: strings.Repeat("x", 300), ImageURLs: []string{"https://images.example/a.jpg"},
		}},
		{ChatID: "c2", RemoteProfile: types.RemoteProfile{Name: "Sam"}},
	}

	r, err := b.Matches(matches)
	require.NoError(t, err)
	assert.Equal(t, "Tinder: 2 new matches, Mar 8", r.Subject)
	assert.Contains(t, r.PlainBody, "Showing 1 of 2")
	assert.Contains(t, r.PlainBody, "1. Alex <3, 29 (4 km)\n   https://tinder.com/app/messages/c1")
	assert.NotContains(t, r.PlainBody, "Sam")
	assert.Contains(t, r.HTMLBody, "Alex &lt;3")
	assert.Contains(t, r.HTMLBody, `src="https://images.example/a.jpg"`)
	assert.Contains(t, r.HTMLBody, strings.Repeat("x", 277)+"...")

	_, err = b.Matches(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSessionReport(t *testing.T) {
	b := newBuilder(t, 0)
	stats := types.SessionStats{Likes: 7, Dislikes: 3, Matches: 1}

	r, err := b.Session(stats, nil)
	require.NoError(t, err)
	assert.Equal(t, "Tinder: 10 swipes, 1 match, Mar 8", r.Subject)
	assert.Contains(t, r.PlainBody, "Likes: 7")
	assert.Contains(t, r.HTMLBody, `class="ok"`)

	r, err = b.Session(stats, errors.New("giving up"))
	require.NoError(t, err)
	assert.Contains(t, r.PlainBody, "Swipe session failed")
	assert.Contains(t, r.PlainBody, "- giving up")
}
