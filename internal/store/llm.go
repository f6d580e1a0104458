package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LLMExchange represents a prompt/response pair for caching
type LLMExchange struct {
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"` // e.g. "anthropic"
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
}

// LLMCacheDir returns the llm subdirectory of cacheDir.
func LLMCacheDir(cacheDir string) string {
	return filepath.Join(cacheDir, "llm")
}

// SaveLLMExchange writes an exchange to a timestamped file under
// LLMCacheDir(cacheDir) and returns its path. Concurrent batches get distinct
// names through a short random suffix.
func SaveLLMExchange(cacheDir string, exchange LLMExchange) (string, error) {
	dir := LLMCacheDir(cacheDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	ts := exchange.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	name := ts.Format(timestampFormat) + "_" + uuid.NewString()[:8] + ".json"
	path := filepath.Join(dir, name)

	if err := SaveJSON(path, exchange); err != nil {
		return "", err
	}
	return path, nil
}
