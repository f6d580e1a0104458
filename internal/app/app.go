// Package app runs one CLI operation end to end: it opens the browser with
// the saved auth state, drives a flow, records the outcome and sends
// notifications.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/auth"
	"github.com/ibeckermayer/uibot/internal/browser"
	"github.com/ibeckermayer/uibot/internal/config"
	"github.com/ibeckermayer/uibot/internal/notifier"
	"github.com/ibeckermayer/uibot/internal/report"
	"github.com/ibeckermayer/uibot/internal/store"
	"github.com/ibeckermayer/uibot/internal/tinder"
)

// Platform names used for auth-state files and artifacts.
const (
	PlatformAdobe  = "adobe"
	PlatformTinder = "tinder"
)

// Launcher opens a page. The returned func tears it down and must always be
// called.
type Launcher func(ctx context.Context, cfg browser.Config, logger *zap.Logger) (browser.Page, func(), error)

// ChromeLauncher opens a chromedp session.
func ChromeLauncher(ctx context.Context, cfg browser.Config, logger *zap.Logger) (browser.Page, func(), error) {
	s, err := browser.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// StateCapturer is implemented by pages that can snapshot cookies and
// localStorage.
type StateCapturer interface {
	CaptureState(ctx context.Context) (*auth.State, error)
}

// Geolocator is implemented by pages that can override the reported
// position.
type Geolocator interface {
	SetGeolocation(ctx context.Context, lat, lon, accuracy float64) error
}

// App holds what every operation needs.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	launch   Launcher
	store    *store.Store
	notifier *notifier.Notifier
	reports  *report.Builder
	cacheDir func() (string, error)

	tinderOpts []tinder.Option
}

// Option configures an App.
type Option func(*App)

// WithLauncher replaces ChromeLauncher.
func WithLauncher(l Launcher) Option { return func(a *App) { a.launch = l } }

// WithStore records runs and matches in s.
func WithStore(s *store.Store) Option { return func(a *App) { a.store = s } }

// WithNotifier sends e-mail through n.
func WithNotifier(n *notifier.Notifier) Option { return func(a *App) { a.notifier = n } }

// WithCacheDir overrides config.CacheDir.
func WithCacheDir(dir string) Option {
	return func(a *App) { a.cacheDir = func() (string, error) { return dir, nil } }
}

// New creates an App. cfg must already be validated.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reports, err := report.New(0)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:      cfg,
		logger:   logger.Named("app"),
		launch:   ChromeLauncher,
		reports:  reports,
		cacheDir: config.CacheDir,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Config returns the configuration the App runs with.
func (a *App) Config() *config.Config { return a.cfg }

// ResultsDir is where result files go when none is configured.
func (a *App) ResultsDir() (string, error) {
	dir, err := a.cacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "results"), nil
}

func (a *App) authStore(platform, override string) (*auth.Store, error) {
	if override != "" {
		return auth.NewStore(override), nil
	}
	p, err := a.cfg.AuthStatePath(platform)
	if err != nil {
		return nil, err
	}
	return auth.NewStore(p), nil
}

// openPage launches the browser with the saved state of st restored. A
// missing or unreadable state only costs a login.
func (a *App) openPage(ctx context.Context, st *auth.Store, headless *bool) (browser.Page, func(), error) {
	bcfg := browser.ConfigFrom(a.cfg.Browser)
	if headless != nil {
		bcfg.Headless = *headless
	}
	if st != nil {
		state, err := st.Load()
		switch {
		case errors.Is(err, auth.ErrNotFound):
			a.logger.Info("no saved auth state, login required", zap.String("path", st.Path()))
		case err != nil:
			a.logger.Warn("ignoring unreadable auth state", zap.String("path", st.Path()), zap.Error(err))
		default:
			bcfg.StorageState = state
		}
	}

	page, closeFn, err := a.launch(ctx, bcfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return page, closeFn, nil
}

// captureState saves the page's current state. Failures are logged only.
func (a *App) captureState(ctx context.Context, page browser.Page, st *auth.Store) {
	c, ok := page.(StateCapturer)
	if !ok || st == nil {
		return
	}
	state, err := c.CaptureState(ctx)
	if err == nil {
		err = st.Save(state)
	}
	if err != nil {
		a.logger.Warn("failed to save auth state", zap.String("path", st.Path()), zap.Error(err))
		return
	}
	a.logger.Debug("auth state saved", zap.String("path", st.Path()), zap.Int("cookies", len(state.Cookies)))
}

func (a *App) recordRun(kind, id string, started time.Time, success bool, payload any) {
	if a.store == nil {
		return
	}
	run := &store.Run{
		ID:         id,
		Kind:       kind,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Success:    success,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			a.logger.Warn("failed to encode run payload", zap.String("kind", kind), zap.Error(err))
		} else {
			run.Payload = data
		}
	}
	if err := a.store.SaveRun(run); err != nil {
		a.logger.Warn("failed to record run", zap.String("kind", kind), zap.Error(err))
	}
}

// emailEnabled reports whether a notifier and a recipient are configured.
func (a *App) emailEnabled() bool {
	return a.notifier != nil && a.cfg.Email.ToAddr != ""
}

func (a *App) sendReport(build func(*report.Builder) (*report.Report, error)) {
	if !a.emailEnabled() {
		return
	}
	r, err := build(a.reports)
	if err == nil {
		err = a.notifier.SendReport("", r)
	}
	if err != nil && !errors.Is(err, report.ErrEmpty) {
		a.logger.Warn("failed to send report", zap.Error(err))
	}
}

// writeJSON writes v as indented JSON, creating parent directories.
func writeJSON(path string, v any) error {
	if err := store.SaveJSON(path, v); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
