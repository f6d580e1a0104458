package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/auth"
	"github.com/ibeckermayer/uibot/internal/browser"
	"github.com/ibeckermayer/uibot/internal/config"
	"github.com/ibeckermayer/uibot/internal/metadata"
	"github.com/ibeckermayer/uibot/internal/report"
	"github.com/ibeckermayer/uibot/internal/stock"
	"github.com/ibeckermayer/uibot/internal/store"
)

// UploadParams are the inputs of one upload run. Zero values take the
// configured defaults.
type UploadParams struct {
	ImagesDir     string
	CSVPath       string
	DoRelease     bool
	Headless      *bool
	AuthState     string
	VerifyTimeout time.Duration
	CSVTimeout    time.Duration
	ResultPath    string
}

// MarkParams are the inputs of a marking run.
type MarkParams struct {
	MaxImages  int
	Headless   *bool
	AuthState  string
	ResultPath string
}

// resultPath picks the explicit path, the configured one or a timestamped
// file in ResultsDir.
func (a *App) resultPath(explicit, step string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if a.cfg.Adobe.ResultFile != "" {
		return a.cfg.Adobe.ResultFile, nil
	}
	dir, err := a.ResultsDir()
	if err != nil {
		return "", err
	}
	return store.ArtifactPath(dir, PlatformAdobe, step, "json")
}

// LatestResult returns the newest result file in ResultsDir.
func (a *App) LatestResult() (string, error) {
	dir, err := a.ResultsDir()
	if err != nil {
		return "", err
	}
	return store.LatestFile(dir, PlatformAdobe+"_")
}

// loadItems scans dir and, when a CSV is given, checks it against the
// images. Mismatches are only logged; the portal applies the CSV itself.
func (a *App) loadItems(dir, csvPath string) ([]metadata.UploadItem, error) {
	items, err := metadata.ScanDir(dir)
	if err != nil {
		return nil, err
	}
	if csvPath == "" {
		return items, nil
	}

	rows, err := metadata.ReadCSVFile(csvPath)
	if err != nil {
		return nil, fmt.Errorf("metadata csv: %w", err)
	}
	items, unmatched := metadata.Merge(items, rows)
	for _, name := range unmatched {
		a.logger.Warn("csv row matches no image", zap.String("filename", name))
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			a.logger.Warn("image metadata incomplete", zap.String("filename", it.Filename()), zap.Error(err))
		}
	}
	return items, nil
}

// UploadToAdobe uploads every image in p.ImagesDir. The result is saved and
// recorded even when the run fails; the returned Result is nil only when
// the browser could not be started.
func (a *App) UploadToAdobe(ctx context.Context, p UploadParams) (*stock.Result, error) {
	started := time.Now()
	items, err := a.loadItems(p.ImagesDir, p.CSVPath)
	if err != nil {
		return nil, err
	}
	resultPath, err := a.resultPath(p.ResultPath, "result")
	if err != nil {
		return nil, err
	}
	st, err := a.authStore(PlatformAdobe, p.AuthState)
	if err != nil {
		return nil, err
	}

	page, closePage, err := a.openPage(ctx, st, p.Headless)
	if err != nil {
		return nil, err
	}
	defer closePage()

	u := stock.NewUploader(page, a.cfg.Adobe, a.cfg.Credentials, a.logger)
	res, runErr := u.Upload(ctx, items, stock.Options{
		CSVPath:       p.CSVPath,
		DoRelease:     p.DoRelease,
		VerifyTimeout: p.VerifyTimeout,
		CSVTimeout:    p.CSVTimeout,
	})

	a.logger.Info("upload session", zap.Strings("stats", u.Stats().Summary()))
	a.finishAdobe(ctx, page, st, res, resultPath, store.KindAdobeUpload, started)
	return res, runErr
}

// MarkAdobe marks the images already on the uploads page.
func (a *App) MarkAdobe(ctx context.Context, p MarkParams) (*stock.Result, error) {
	started := time.Now()
	resultPath, err := a.resultPath(p.ResultPath, "mark")
	if err != nil {
		return nil, err
	}
	st, err := a.authStore(PlatformAdobe, p.AuthState)
	if err != nil {
		return nil, err
	}

	page, closePage, err := a.openPage(ctx, st, p.Headless)
	if err != nil {
		return nil, err
	}
	defer closePage()

	u := stock.NewUploader(page, a.cfg.Adobe, a.cfg.Credentials, a.logger)
	res, runErr := u.MarkAll(ctx, p.MaxImages)

	a.finishAdobe(ctx, page, st, res, resultPath, store.KindAdobeMark, started)
	return res, runErr
}

func (a *App) finishAdobe(ctx context.Context, page browser.Page, st *auth.Store, res *stock.Result, path, kind string, started time.Time) {
	if err := res.Save(path); err != nil {
		a.logger.Error("failed to save result", zap.String("path", path), zap.Error(err))
	} else {
		a.logger.Info("result saved", zap.String("path", path), zap.Bool("success", res.Success))
	}
	a.recordRun(kind, res.RunID, started, res.Success, res)
	if res.Success {
		a.captureState(ctx, page, st)
	}
	a.sendReport(func(b *report.Builder) (*report.Report, error) { return b.Upload(res) })
}

// SaveAdobeAuth opens a visible browser on the portal, waits up to wait for
// the user to log in and saves the session to path (or the configured
// auth-state path).
func (a *App) SaveAdobeAuth(ctx context.Context, path string, wait time.Duration) (string, error) {
	st, err := a.authStore(PlatformAdobe, path)
	if err != nil {
		return "", err
	}
	headless := false
	page, closePage, err := a.openPage(ctx, nil, &headless)
	if err != nil {
		return "", err
	}
	defer closePage()

	capturer, ok := page.(StateCapturer)
	if !ok {
		return "", fmt.Errorf("%w: page cannot capture state", auth.ErrPersist)
	}

	cfg := a.cfg.Adobe
	if wait > 0 {
		cfg.LoginWait = config.Duration(wait)
	}
	u := stock.NewUploader(page, cfg, a.cfg.Credentials, a.logger)
	if err := page.Navigate(ctx, cfg.UploadURL); err != nil {
		return "", err
	}
	a.logger.Info("log in to Adobe Stock in the browser window", zap.Duration("timeout", cfg.LoginWait.Std()))
	if err := auth.WaitForLogin(ctx, u.LoggedIn, cfg.LoginWait.Std()); err != nil {
		return "", err
	}

	state, err := capturer.CaptureState(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrPersist, err)
	}
	if err := st.Save(state); err != nil {
		return "", err
	}
	a.logger.Info("auth state saved", zap.Bool("ok", true), zap.String("path", st.Path()), zap.Int("cookies", len(state.Cookies)))
	return st.Path(), nil
}

// GenerateMetadata writes a metadata CSV for the images in dir. An empty
// provider uses the configured one.
func (a *App) GenerateMetadata(ctx context.Context, dir, out, provider string) (int, error) {
	mcfg := a.cfg.Metadata
	if provider != "" {
		mcfg.Provider = provider
	}
	cacheDir, err := a.cacheDir()
	if err != nil {
		return 0, err
	}
	g, err := metadata.NewGenerator(mcfg, cacheDir, a.logger)
	if err != nil {
		return 0, err
	}
	return g.WriteFor(ctx, dir, out)
}
