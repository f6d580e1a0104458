package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timestampFormat uses dashes instead of colons for filesystem compatibility.
const timestampFormat = "2006-01-02T15-04-05"

// ArtifactPath returns a timestamped file path for a run artifact, e.g.
// <dir>/adobe_2025-01-02T15-04-05_01_page_loaded.png. The directory is
// created.
func ArtifactPath(dir, platform, step, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact dir: %w", err)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	name := fmt.Sprintf("%s_%s_%s%s", platform, time.Now().Format(timestampFormat), step, ext)
	return filepath.Join(dir, name), nil
}

// SaveJSON writes data as indented JSON to path, creating parent directories.
func SaveJSON[T any](path string, data T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// LoadJSON loads JSON data from a specific file path.
func LoadJSON[T any](path string) (T, error) {
	var data T

	jsonData, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("failed to read output: %w", err)
	}

	if err := json.Unmarshal(jsonData, &data); err != nil {
		return data, fmt.Errorf("failed to unmarshal output: %w", err)
	}

	return data, nil
}

// LatestFile returns the newest file in dir whose name starts with prefix.
// Timestamped names sort chronologically.
func LatestFile(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no artifacts in %s", dir)
		}
		return "", err
	}

	var latest string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			latest = entry.Name()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no artifacts matching %q in %s", prefix, dir)
	}
	return filepath.Join(dir, latest), nil
}
