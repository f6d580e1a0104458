package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() *State {
	return &State{
		Cookies: []Cookie{
			{Name: "ims_sid", Value: "abc", Domain: ".adobe.com", Path: "/", Expires: 1893456000, Secure: true, HTTPOnly: true, SameSite: "None"},
			{Name: "session", Value: "xyz", Domain: "tinder.com", Path: "/", Expires: -1},
		},
		Origins: []Origin{{
			Origin:       "https://contributor.stock.adobe.com",
			LocalStorage: []Entry{{Name: "locale", Value: "de_DE"}},
		}},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "auth", "adobe.json"))
	require.NoError(t, store.Save(sampleState()))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.HasAuth())
	assert.Equal(t, sampleState().Cookies, loaded.Cookies)
	assert.Equal(t, sampleState().Origins, loaded.Origins)
	assert.False(t, loaded.CapturedAt.IsZero())
	assert.True(t, store.Exists())

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestMinimalCookieRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "adobe.json"))
	minimal := &State{Cookies: []Cookie{{Name: "sid", Value: "x", Domain: ".adobe.com", Path: "/"}}}
	require.NoError(t, store.Save(minimal))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, minimal.Cookies, loaded.Cookies)
	assert.True(t, loaded.Cookies[0].Session())
}

func TestLoadPlaywrightStateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"cookies": [{"name": "sid", "value": "x", "domain": ".tinder.com", "path": "/",
			"expires": 1893456000.5, "httpOnly": true, "secure": true, "sameSite": "Lax"}],
		"origins": [{"origin": "https://tinder.com", "localStorage": [{"name": "k", "value": "v"}]}]
	}`), 0600))

	st, err := NewStore(path).Load()
	require.NoError(t, err)
	require.Len(t, st.Cookies, 1)
	assert.Equal(t, "Lax", st.Cookies[0].SameSite)
	assert.False(t, st.Cookies[0].Session())
	assert.Equal(t, "v", st.Origins[0].LocalStorage[0].Value)
}

func TestLoadMissingIsNotFound(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.json"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, store.Exists())
	assert.NoError(t, store.Clear())
}

func TestSaveWithoutAuthIsPersistError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adobe.json")
	store := NewStore(path)

	err := store.Save(&State{Origins: []Origin{{Origin: "https://tinder.com"}}})
	assert.ErrorIs(t, err, ErrPersist)
	assert.NoFileExists(t, path)

	assert.ErrorIs(t, store.Save(nil), ErrPersist)
}

func TestSaveDoesNotClobberGoodStateWithEmptyOne(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "adobe.json"))
	require.NoError(t, store.Save(sampleState()))

	require.Error(t, store.Save(&State{}))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, loaded.Cookies, 2)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adobe.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewStore(path).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestCookiesFor(t *testing.T) {
	st := sampleState()
	assert.Len(t, st.CookiesFor("contributor.stock.adobe.com"), 1)
	assert.Len(t, st.CookiesFor("tinder.com"), 1)
	assert.Empty(t, st.CookiesFor("example.com"))
}

func TestWaitForLogin(t *testing.T) {
	t.Run("succeeds once logged in", func(t *testing.T) {
		polls := 0
		err := waitForLogin(context.Background(), func(context.Context) (bool, error) {
			polls++
			return polls >= 3, nil
		}, time.Second, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 3, polls)
	})

	t.Run("times out", func(t *testing.T) {
		err := waitForLogin(context.Background(), func(context.Context) (bool, error) {
			return false, nil
		}, 10*time.Millisecond, time.Millisecond)
		assert.ErrorIs(t, err, ErrLoginTimeout)
	})
}
