package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 120*time.Second, cfg.Adobe.VerifyTimeout.Std())
	assert.Equal(t, "de-DE", cfg.Browser.Locale)
	assert.False(t, cfg.Browser.Headless)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"verify timeout", func(c *Config) { c.Adobe.VerifyTimeout = 0 }, "adobe.verify_timeout"},
		{"nav timeout", func(c *Config) { c.Browser.NavTimeout = -1 }, "browser.nav_timeout"},
		{"provider", func(c *Config) { c.Metadata.Provider = "gpt" }, "unknown metadata provider"},
		{"likes", func(c *Config) { c.Tinder.Likes = -3 }, "tinder.likes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Browser.Headless = true
	cfg.Adobe.VerifyTimeout = Duration(45 * time.Second)
	cfg.Credentials.AdobePassword = "secret"
	require.NoError(t, cfg.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `verify_timeout = "45s"`)
	assert.NotContains(t, string(raw), "secret")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, loaded.Browser.Headless)
	assert.Equal(t, 45*time.Second, loaded.Adobe.VerifyTimeout.Std())
	assert.Empty(t, loaded.Credentials.AdobePassword)
}

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[adobe]\nverify_timeout = \"soon\"\n"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ADOBE_USERNAME", "user@example.com")
	t.Setenv("ADOBE_PASSWORD", "pw")
	t.Setenv("CHROME_BINARY", "/opt/chrome/chrome")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "user@example.com", cfg.Credentials.AdobeUsername)
	assert.Equal(t, "pw", cfg.Credentials.AdobePassword)
	assert.Equal(t, "/opt/chrome/chrome", cfg.Browser.ExecPath)
	assert.Equal(t, "sk-test", cfg.Metadata.APIKey)
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestAuthStatePathDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := Default()
	cfg.Adobe.AuthState = "/tmp/adobe.json"

	p, err := cfg.AuthStatePath("adobe")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/adobe.json", p)

	p, err = cfg.AuthStatePath("tinder")
	require.NoError(t, err)
	assert.Equal(t, "tinder_auth.json", filepath.Base(p))
}
