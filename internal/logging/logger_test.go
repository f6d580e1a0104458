package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ibeckermayer/uibot/internal/config"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(&buf))

	logger.Info("hidden")
	logger.Named("stock").Warn("count mismatch", zap.Int("expected", 3))
	require.NoError(t, logger.Sync())

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "uibot.stock", entry["logger"])
	assert.Equal(t, float64(3), entry["expected"])
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.LoggerConfig{Level: "loud", Format: "console"}, zapcore.AddSync(&buf))

	logger.Debug("debug line")
	logger.Info("info line")

	assert.NotContains(t, buf.String(), "debug line")
	assert.Contains(t, buf.String(), "info line")
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "uibot.log")
	logger := New(config.LoggerConfig{Level: "info", Format: "console", File: path, MaxSize: 1}, zapcore.AddSync(&bytes.Buffer{}))

	logger.Info("to file")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to file"`)
}

func TestGetBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	assert.NotNil(t, Get())
	l := Initialize(config.LoggerConfig{Level: "error", Format: "json"})
	assert.Same(t, l, Get())
}
