package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/app"
	"github.com/ibeckermayer/uibot/internal/browser"
)

// isolate points the config and cache dirs into a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("ADOBE_USERNAME", "")
	t.Setenv("TINDER_EMAIL", "")
	return dir
}

func stubOpen(t *testing.T, fn func(string) error) {
	orig := openFile
	openFile = fn
	t.Cleanup(func() { openFile = orig })
}

func noChrome(context.Context, browser.Config, *zap.Logger) (browser.Page, func(), error) {
	return nil, nil, errors.New("no chrome here")
}

func TestUsageErrors(t *testing.T) {
	dir := isolate(t)
	notADir := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0644))

	cases := map[string][]string{
		"unknown command":   {"frobnicate"},
		"unknown flag":      {"adobe", "upload", "--bogus", dir},
		"missing dir":       {"adobe", "upload", filepath.Join(dir, "nope")},
		"file as dir":       {"adobe", "upload", notADir},
		"missing csv":       {"adobe", "upload", dir, filepath.Join(dir, "nope.csv")},
		"too many args":     {"adobe", "upload", dir, notADir, "extra"},
		"negative timeout":  {"adobe", "upload", dir, "--verify-timeout", "-1"},
		"bad int":           {"adobe", "mark", "--max-images", "lots"},
		"bad ratio":         {"tinder", "swipe", "--ratio", "lots"},
		"lat without lon":   {"tinder", "swipe", "--lat", "52.5"},
		"missing chat id":   {"tinder", "unmatch"},
		"empty message":     {"tinder", "message", "m1", "  "},
		"bad schedule time": {"tinder", "schedule", "--at", "25:99"},
		"unknown provider":  {"metadata", "generate", dir, "out.csv", "--provider", "magic"},
		"unknown target":    {"open", "attic"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, exitUsage, run(context.Background(), args, app.WithLauncher(noChrome)))
		})
	}
}

func TestUploadLaunchFailureExitsOne(t *testing.T) {
	dir := isolate(t)
	images := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(images, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(images, "a.jpg"), []byte("x"), 0644))

	code := run(context.Background(), []string{"adobe", "upload", images}, app.WithLauncher(noChrome))
	assert.Equal(t, exitFailure, code)
}

func TestEmptyImagesDirExitsOne(t *testing.T) {
	dir := isolate(t)
	images := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(images, 0755))

	code := run(context.Background(), []string{"adobe", "upload", images}, app.WithLauncher(noChrome))
	assert.Equal(t, exitFailure, code)
}

func TestMetadataNormalize(t *testing.T) {
	dir := isolate(t)
	in := filepath.Join(dir, "in.csv")
	out := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(in, []byte("Title,Filename,Category,Keywords\nA,a.jpg,2,\"x, y\"\n"), 0644))

	require.Equal(t, exitOK, run(context.Background(), []string{"metadata", "normalize", in, out}))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "Filename,Title,Keywords,Category\na.jpg,A,\"x,y\",2\n", string(data))
}

func TestMetadataGenerateWithTemplate(t *testing.T) {
	dir := isolate(t)
	images := filepath.Join(dir, "images")
	require.NoError(t, os.MkdirAll(images, 0755))
	for _, name := range []string{"a.jpg", "b.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(images, name), []byte("x"), 0644))
	}
	out := filepath.Join(dir, "meta.csv")

	code := run(context.Background(), []string{"metadata", "generate", images, out, "--provider", "template"})
	require.Equal(t, exitOK, code)
	assert.FileExists(t, out)
}

func TestOpenTargets(t *testing.T) {
	dir := isolate(t)
	var opened []string
	stubOpen(t, func(path string) error {
		opened = append(opened, path)
		return nil
	})

	for _, target := range []string{"config", "cache", "results"} {
		require.Equal(t, exitOK, run(context.Background(), []string{"open", target}), target)
	}

	require.Len(t, opened, 3)
	assert.Equal(t, filepath.Join(dir, "config", "uibot", "config.toml"), opened[0])
	assert.FileExists(t, opened[0], "a default config is written before opening")
	assert.Equal(t, filepath.Join(dir, "cache", "uibot"), opened[1])
	assert.Equal(t, filepath.Join(dir, "cache", "uibot", "results"), opened[2])
	assert.DirExists(t, opened[2])
}

func TestOpenFailureExitsOne(t *testing.T) {
	isolate(t)
	stubOpen(t, func(string) error { return errors.New("no desktop") })

	assert.Equal(t, exitFailure, run(context.Background(), []string{"open", "cache"}))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil, nil))
	assert.Equal(t, exitUsage, exitCode(nil, fmt.Errorf("wrapped: %w", usagef("bad"))))
	assert.Equal(t, exitFailure, exitCode(zap.NewNop(), errIncomplete))
}

func TestBadConfigExitsOne(t *testing.T) {
	dir := isolate(t)
	cfgPath := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[adobe]\nverify_timeout = \"soon\"\n"), 0644))

	assert.Equal(t, exitFailure, run(context.Background(), []string{"--config", cfgPath, "adobe", "mark"}))
}
