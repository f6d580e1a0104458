package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/uibot/internal/types"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "uibot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunsSaveAndList(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	first := &Run{Kind: KindAdobeUpload, StartedAt: base, FinishedAt: base.Add(time.Minute), Success: false,
		Payload: json.RawMessage(`{"images_uploaded":2}`)}
	require.NoError(t, s.SaveRun(first))
	assert.NotEmpty(t, first.ID)

	second := &Run{Kind: KindTinderSwipe, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(2 * time.Hour), Success: true}
	require.NoError(t, s.SaveRun(second))

	all, err := s.ListRuns("", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Nil(t, all[0].Payload)
	assert.JSONEq(t, `{"images_uploaded":2}`, string(all[1].Payload))
	assert.True(t, all[1].StartedAt.Equal(base))

	uploads, err := s.ListRuns(KindAdobeUpload, 10)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.False(t, uploads[0].Success)

	// update in place
	first.Success = true
	require.NoError(t, s.SaveRun(first))
	uploads, err = s.ListRuns(KindAdobeUpload, 10)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.True(t, uploads[0].Success)
}

func TestMatchUpsert(t *testing.T) {
	s := openTemp(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	m := types.RemoteMatch{ChatID: "abc123", RemoteProfile: types.RemoteProfile{
		Name:      "Alex",
		Age:       types.IntPtr(29),
		Passions:  []string{"Hiking", "Coffee"},
		ImageURLs: []string{"https://images.example/1.jpg"},
		Distance:  types.IntPtr(3),
		ScrapedAt: now,
	}}

	exists, err := s.MatchExists("abc123")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.SaveMatch(m))
	exists, err = s.MatchExists("abc123")
	require.NoError(t, err)
	assert.True(t, exists)

	m.Bio = "updated"
	m.Age = nil
	m.ScrapedAt = now.Add(time.Hour)
	require.NoError(t, s.SaveMatch(m))

	got, err := s.ListMatches(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alex", got[0].Name)
	assert.Equal(t, "updated", got[0].Bio)
	assert.Nil(t, got[0].Age)
	require.NotNil(t, got[0].Distance)
	assert.Equal(t, 3, *got[0].Distance)
	assert.Equal(t, []string{"Hiking", "Coffee"}, got[0].Passions)
}

func TestFilterNew(t *testing.T) {
	s := openTemp(t)
	old := types.RemoteMatch{ChatID: "old", RemoteProfile: types.RemoteProfile{Name: "A", ScrapedAt: time.Now()}}
	require.NoError(t, s.SaveMatch(old))

	fresh, err := s.FilterNew([]types.RemoteMatch{
		old,
		{ChatID: "new", RemoteProfile: types.RemoteProfile{Name: "B"}},
	})
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "new", fresh[0].ChatID)
}

func TestArtifactPath(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shots")
	p, err := ArtifactPath(dir, "adobe", "01_page_loaded", "png")
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(p))
	base := filepath.Base(p)
	assert.True(t, strings.HasPrefix(base, "adobe_"), base)
	assert.True(t, strings.HasSuffix(base, "_01_page_loaded.png"), base)
	assert.NotContains(t, base, ":")

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSaveLoadJSONAndLatest(t *testing.T) {
	dir := t.TempDir()
	type payload struct{ N int }

	require.NoError(t, SaveJSON(filepath.Join(dir, "run_2025-01-01T00-00-00.json"), payload{1}))
	require.NoError(t, SaveJSON(filepath.Join(dir, "run_2025-01-02T00-00-00.json"), payload{2}))
	require.NoError(t, SaveJSON(filepath.Join(dir, "other_2025-01-03T00-00-00.json"), payload{3}))

	latest, err := LatestFile(dir, "run_")
	require.NoError(t, err)
	got, err := LoadJSON[payload](latest)
	require.NoError(t, err)
	assert.Equal(t, 2, got.N)

	_, err = LatestFile(dir, "missing_")
	assert.Error(t, err)
	_, err = LatestFile(filepath.Join(dir, "nope"), "")
	assert.Error(t, err)
}

func TestSaveLLMExchange(t *testing.T) {
	cache := t.TempDir()
	ex := LLMExchange{Timestamp: time.Now(), Provider: "anthropic", Model: "m", Prompt: "p", Response: "r"}

	a, err := SaveLLMExchange(cache, ex)
	require.NoError(t, err)
	b, err := SaveLLMExchange(cache, ex)
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "same-second exchanges must not overwrite each other")
	assert.Equal(t, LLMCacheDir(cache), filepath.Dir(a))

	got, err := LoadJSON[LLMExchange](a)
	require.NoError(t, err)
	assert.Equal(t, "r", got.Response)
}
