package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Duration is a time.Duration that reads and writes TOML strings like "120s".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv copies credentials and the Chrome binary path from the environment.
func (c *Config) ApplyEnv() {
	c.Credentials = Credentials{
		AdobeUsername:  os.Getenv("ADOBE_USERNAME"),
		AdobePassword:  os.Getenv("ADOBE_PASSWORD"),
		TinderEmail:    os.Getenv("TINDER_EMAIL"),
		TinderPassword: os.Getenv("TINDER_PASSWORD"),
		AnthropicKey:   os.Getenv("ANTHROPIC_API_KEY"),
	}
	if bin := os.Getenv("CHROME_BINARY"); bin != "" {
		c.Browser.ExecPath = bin
	}
	if c.Metadata.APIKey == "" {
		c.Metadata.APIKey = c.Credentials.AnthropicKey
	}
}
