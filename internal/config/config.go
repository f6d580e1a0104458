// Package config holds the explicit run configuration for uibot.
//
// A single *Config is built at startup (defaults, then the TOML file, then
// the environment) and handed to every component. Nothing in the module
// reads configuration from globals.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "uibot"

// Metadata provider names.
const (
	ProviderTemplate  = "template"
	ProviderAnthropic = "anthropic"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Browser  BrowserConfig  `toml:"browser"`
	Logger   LoggerConfig   `toml:"logger"`
	Adobe    AdobeConfig    `toml:"adobe"`
	Tinder   TinderConfig   `toml:"tinder"`
	Metadata MetadataConfig `toml:"metadata"`
	Email    EmailConfig    `toml:"email"`
	Store    StoreConfig    `toml:"store"`

	// Credentials come from the environment only and are never encoded.
	Credentials Credentials `toml:"-"`
}

type BrowserConfig struct {
	Headless        bool     `toml:"headless"`
	Proxy           string   `toml:"proxy"`
	Locale          string   `toml:"locale"`
	Timezone        string   `toml:"timezone"`
	ViewportWidth   int      `toml:"viewport_width"`
	ViewportHeight  int      `toml:"viewport_height"`
	UserAgent       string   `toml:"user_agent"`
	ExecPath        string   `toml:"exec_path"`
	DebuggerAddress string   `toml:"debugger_address"`
	NavTimeout      Duration `toml:"nav_timeout"`
}

type LoggerConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
	MaxAge     int    `toml:"max_age"`
	Compress   bool   `toml:"compress"`
}

type AdobeConfig struct {
	UploadURL      string   `toml:"upload_url"`
	Locale         string   `toml:"locale"`
	AuthState      string   `toml:"auth_state"`
	VerifyTimeout  Duration `toml:"verify_timeout"`
	CSVTimeout     Duration `toml:"csv_timeout"`
	PollInterval   Duration `toml:"poll_interval"`
	LoginWait      Duration `toml:"login_wait"`
	ResultFile     string   `toml:"result_file"`
	ScreenshotsDir string   `toml:"screenshots_dir"`
}

type TinderConfig struct {
	AuthState     string   `toml:"auth_state"`
	Likes         int      `toml:"likes"`
	Ratio         string   `toml:"ratio"`
	Sleep         Duration `toml:"sleep"`
	NotifyOnMatch bool     `toml:"notify_on_match"`
	ScheduleAt    string   `toml:"schedule_at"`
	Timezone      string   `toml:"timezone"`
	LoginWait     Duration `toml:"login_wait"`
}

type MetadataConfig struct {
	Provider  string `toml:"provider"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	Category  int    `toml:"category"`
	BatchSize int    `toml:"batch_size"`
}

type EmailConfig struct {
	Provider string `toml:"provider"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass"`
	FromAddr string `toml:"from_address"`
	ToAddr   string `toml:"to_address"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// Credentials are read from the environment (or a .env file).
type Credentials struct {
	AdobeUsername  string
	AdobePassword  string
	TinderEmail    string
	TinderPassword string
	AnthropicKey   string
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Browser: BrowserConfig{
			Headless:       false,
			Locale:         "de-DE",
			Timezone:       "Europe/Berlin",
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			NavTimeout:     Duration(60 * time.Second),
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Adobe: AdobeConfig{
			UploadURL:      "https://contributor.stock.adobe.com/de/uploads?upload=1",
			Locale:         "de",
			VerifyTimeout:  Duration(120 * time.Second),
			CSVTimeout:     Duration(15 * time.Minute),
			PollInterval:   Duration(2 * time.Second),
			LoginWait:      Duration(5 * time.Minute),
			ScreenshotsDir: "screenshots",
		},
		Tinder: TinderConfig{
			Likes:     10,
			Ratio:     "72.5%",
			Sleep:     Duration(4 * time.Second),
			Timezone:  "Europe/Berlin",
			LoginWait: Duration(5 * time.Minute),
		},
		Metadata: MetadataConfig{
			Provider:  ProviderTemplate,
			Model:     "claude-sonnet-4-20250514",
			Category:  11,
			BatchSize: 10,
		},
		Email: EmailConfig{
			Provider: "smtp",
			SMTPPort: 587,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Browser.NavTimeout <= 0:
		return errors.New("browser.nav_timeout must be positive")
	case c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0:
		return errors.New("browser viewport must be positive")
	case c.Adobe.UploadURL == "":
		return errors.New("adobe.upload_url is required")
	case c.Adobe.VerifyTimeout <= 0:
		return errors.New("adobe.verify_timeout must be positive")
	case c.Adobe.CSVTimeout <= 0:
		return errors.New("adobe.csv_timeout must be positive")
	case c.Adobe.PollInterval <= 0:
		return errors.New("adobe.poll_interval must be positive")
	case c.Tinder.Likes < 0:
		return errors.New("tinder.likes must not be negative")
	case c.Metadata.Provider != ProviderTemplate && c.Metadata.Provider != ProviderAnthropic:
		return fmt.Errorf("unknown metadata provider: %s", c.Metadata.Provider)
	case c.Metadata.BatchSize <= 0:
		return errors.New("metadata.batch_size must be positive")
	}
	return nil
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory.
// On Linux this is ~/.cache/uibot/
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, appName), nil
}

// Load reads config from path. An empty path means ConfigPath(). A missing
// file yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes config to path with owner-only permissions.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

// StorePath returns the configured database path, defaulting into the cache dir.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "uibot.db"), nil
}

// AuthStatePath returns the storage-state path for a platform, defaulting
// into the config dir.
func (c *Config) AuthStatePath(platform string) (string, error) {
	var p string
	switch platform {
	case "adobe":
		p = c.Adobe.AuthState
	case "tinder":
		p = c.Tinder.AuthState
	}
	if p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, platform+"_auth.json"), nil
}
