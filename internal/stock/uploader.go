// Package stock drives the Adobe Stock contributor portal: image upload with
// count verification, CSV metadata, AI-generated/fictional flag marking and
// the gated release.
package stock

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/auth"
	"github.com/ibeckermayer/uibot/internal/batch"
	"github.com/ibeckermayer/uibot/internal/browser"
	"github.com/ibeckermayer/uibot/internal/config"
	"github.com/ibeckermayer/uibot/internal/metadata"
	"github.com/ibeckermayer/uibot/internal/popup"
	"github.com/ibeckermayer/uibot/internal/store"
	"github.com/ibeckermayer/uibot/internal/types"
	"github.com/ibeckermayer/uibot/internal/verify"
)

var (
	// ErrNotAuthenticated means the session still sits on the login host.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoImages means the batch is empty.
	ErrNoImages = metadata.ErrNoImages
)

const flagPoll = 250 * time.Millisecond

var countRe = regexp.MustCompile(`\((\d+)\)`)

// ParseCount extracts N from "Dateitypen: Alle (N)". It returns 0 when the
// text holds no count.
func ParseCount(text string) int {
	m := countRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// Options controls one upload run. Zero timeouts take the configured ones.
type Options struct {
	CSVPath       string
	DoRelease     bool
	VerifyTimeout time.Duration
	CSVTimeout    time.Duration
}

// Uploader runs the portal flows on one page.
// consentWait bounds the cookie banner check that runs before each page
// action and each thumbnail.
const consentWait = 500 * time.Millisecond

type Uploader struct {
	page    browser.Page
	cfg     config.AdobeConfig
	creds   config.Credentials
	phrases Phrases
	popups  *popup.Suppressor
	logger  *zap.Logger
	stats   types.SessionStats

	settle       time.Duration
	probeTimeout time.Duration
	flagTimeout  time.Duration
	loadTimeout  time.Duration
}

// NewUploader creates an Uploader.
func NewUploader(page browser.Page, cfg config.AdobeConfig, creds config.Credentials, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("stock")
	return &Uploader{
		page:    page,
		cfg:     cfg,
		creds:   creds,
		phrases: DefaultPhrases,
		popups: popup.New(
			[]popup.Rule{popup.ClickRule(page, "cookie-consent", CookieAccept, consentWait)},
			popup.WithLogger(logger),
		),
		logger:       logger,
		stats:        types.SessionStats{Started: time.Now()},
		settle:       500 * time.Millisecond,
		probeTimeout: time.Second,
		flagTimeout:  3 * time.Second,
		loadTimeout:  30 * time.Second,
	}
}

// Stats returns the session counters so far.
func (u *Uploader) Stats() types.SessionStats { return u.stats }

func (u *Uploader) textSel(tag string, intent Intent) string {
	return browser.AnyText(tag, u.phrases.Lookup(u.cfg.Locale, intent)...)
}

func (u *Uploader) countSelector() string { return u.textSel("button", IntentFileTypes) }

func (u *Uploader) readCount(ctx context.Context) (int, error) {
	text, err := u.page.Text(ctx, u.countSelector())
	if err != nil {
		return 0, err
	}
	if !countRe.MatchString(text) {
		return 0, fmt.Errorf("no count in %q", text)
	}
	return ParseCount(text), nil
}

// LoggedIn reports whether the page is on the portal rather than the login
// host.
func (u *Uploader) LoggedIn(ctx context.Context) (bool, error) {
	loc, err := u.page.Location(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(loc, "stock.adobe.com") && !strings.Contains(loc, AuthHost), nil
}

func (u *Uploader) onAuthHost(ctx context.Context) (bool, error) {
	loc, err := u.page.Location(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(loc, AuthHost), nil
}

// ensureAuthenticated opens target and, when redirected to the login host,
// logs in with credentials or waits for a manual login.
func (u *Uploader) ensureAuthenticated(ctx context.Context, target string) error {
	if err := u.page.Navigate(ctx, target); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}
	onAuth, err := u.onAuthHost(ctx)
	if err != nil {
		return err
	}
	if !onAuth {
		return nil
	}

	wait := u.cfg.LoginWait.Std()
	if u.creds.AdobeUsername != "" && u.creds.AdobePassword != "" {
		u.logger.Info("not authenticated, logging in with credentials")
		if err := u.login(ctx); err != nil {
			u.logger.Warn("credential login failed, waiting for manual login", zap.Error(err), zap.Duration("timeout", wait))
		}
	} else {
		u.logger.Warn("not authenticated, please log in in the browser window", zap.Duration("timeout", wait))
	}

	err = auth.WaitForLogin(ctx, func(ctx context.Context) (bool, error) {
		on, err := u.onAuthHost(ctx)
		return !on, err
	}, wait)
	if errors.Is(err, auth.ErrLoginTimeout) {
		return fmt.Errorf("%w: still on %s after %s", ErrNotAuthenticated, AuthHost, wait)
	}
	if err != nil {
		return err
	}
	return u.page.Navigate(ctx, target)
}

func (u *Uploader) login(ctx context.Context) error {
	steps := []struct{ sel, value string }{
		{EmailInput, u.creds.AdobeUsername},
		{PasswordInput, u.creds.AdobePassword},
	}
	for _, s := range steps {
		ok, err := u.page.Visible(ctx, s.sel, 10*time.Second)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", browser.ErrNotFound, s.sel)
		}
		if err := u.page.Fill(ctx, s.sel, s.value); err != nil {
			return err
		}
		if err := u.page.Press(ctx, s.sel, browser.KeyEnter); err != nil {
			return err
		}
	}
	return nil
}

func (u *Uploader) screenshot(ctx context.Context, res *Result, step string) {
	path, err := store.ArtifactPath(u.cfg.ScreenshotsDir, "adobe", step, "png")
	if err == nil {
		err = u.page.Screenshot(ctx, path)
	}
	if err != nil {
		u.logger.Warn("screenshot failed", zap.String("step", step), zap.Error(err))
		return
	}
	res.addScreenshot(path)
	u.logger.Info("screenshot saved", zap.String("step", step), zap.String("path", path))
}

func (u *Uploader) setFiles(ctx context.Context, candidates, files []string) error {
	var errs []error
	for _, sel := range candidates {
		err := u.page.SetFiles(ctx, sel, files)
		if err == nil {
			u.logger.Debug("files set", zap.String("input", sel), zap.Int("files", len(files)))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", sel, err))
	}
	return fmt.Errorf("no file input accepted the files: %w", errors.Join(errs...))
}

// Upload runs the full batch. The returned Result is never nil; the error
// is set when the run stopped early (authentication, page load, upload
// verification, cancellation). Non-fatal step failures only show up in
// Result.Errors and Result.Success.
func (u *Uploader) Upload(ctx context.Context, items []metadata.UploadItem, opts Options) (*Result, error) {
	res := NewResult(len(items))
	if len(items) == 0 {
		res.AddError("no images to upload")
		return res, ErrNoImages
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = u.cfg.VerifyTimeout.Std()
	}
	if opts.CSVTimeout <= 0 {
		opts.CSVTimeout = u.cfg.CSVTimeout.Std()
	}
	log := u.logger.With(zap.String("run_id", res.RunID))
	fail := func(step string, err error) (*Result, error) {
		res.AddError("%s: %v", step, err)
		log.Error("step failed", zap.String("step", step), zap.Bool("ok", false), zap.Error(err))
		return res, fmt.Errorf("%s: %w", step, err)
	}

	log.Info("starting upload", zap.Int("images", len(items)), zap.Bool("csv", opts.CSVPath != ""), zap.Bool("release", opts.DoRelease))

	if err := u.ensureAuthenticated(ctx, u.cfg.UploadURL); err != nil {
		return fail("authenticate", err)
	}
	u.popups.Suppress(ctx)

	ok, err := u.page.Visible(ctx, u.countSelector(), u.loadTimeout)
	if err == nil && !ok {
		err = fmt.Errorf("%w: file type counter", browser.ErrNotFound)
	}
	if err != nil {
		return fail("load upload page", err)
	}
	u.screenshot(ctx, res, "01_page_loaded")

	baseline, err := u.readCount(ctx)
	if err != nil {
		return fail("read upload count", err)
	}
	expected := baseline + len(items)
	log.Info("upload count", zap.Int("current", baseline), zap.Int("expected", expected))

	vr, err := verify.Run(ctx, verify.Spec[int]{
		Action: func(ctx context.Context) error {
			return u.setFiles(ctx, imageInputs, metadata.Paths(items))
		},
		Observe:  u.readCount,
		Target:   expected,
		Timeout:  opts.VerifyTimeout,
		Interval: u.cfg.PollInterval.Std(),
	})
	if err != nil {
		var terr *verify.TimeoutError[int]
		if errors.As(err, &terr) && terr.Observed {
			res.ImagesUploaded = max(terr.Last-baseline, 0)
			u.stats.Uploads += res.ImagesUploaded
		}
		u.screenshot(ctx, res, "02_upload_failed")
		return fail("image upload", err)
	}
	res.ImagesUploaded = len(items)
	u.stats.Uploads += len(items)
	log.Info("images uploaded", zap.Bool("ok", true), zap.Int("count", vr.Value), zap.Duration("elapsed", vr.Elapsed))
	u.screenshot(ctx, res, "02_images_uploaded")

	if opts.CSVPath != "" {
		if err := u.applyCSV(ctx, opts.CSVPath, opts.CSVTimeout); err != nil {
			if ctx.Err() != nil {
				return fail("csv metadata", ctx.Err())
			}
			res.AddError("csv metadata: %v", err)
			log.Warn("csv metadata failed, continuing", zap.Bool("ok", false), zap.Error(err))
		} else {
			res.MetadataApplied = true
			log.Info("csv metadata applied", zap.Bool("ok", true))
			u.screenshot(ctx, res, "03_metadata_applied")
		}
	}

	marked, err := u.markItems(ctx, res, len(items))
	res.CheckboxesMarked = marked
	if err != nil {
		return fail("mark flags", err)
	}
	log.Info("flags marked", zap.Bool("ok", marked == len(items)), zap.Int("marked", marked), zap.Int("total", len(items)))

	u.screenshot(ctx, res, "04_complete")

	if opts.DoRelease {
		if err := u.release(ctx); err != nil {
			if ctx.Err() != nil {
				return fail("release", ctx.Err())
			}
			res.AddError("release: %v", err)
			log.Error("release failed", zap.Bool("ok", false), zap.Error(err))
		} else {
			res.Released = true
			log.Info("assets submitted for review", zap.Bool("ok", true))
		}
	} else {
		log.Info("dry run: skipping release, rerun with --do-release to submit")
	}

	res.Success = len(res.Errors) == 0 &&
		res.ImagesUploaded == res.ImagesTotal &&
		res.CheckboxesMarked == res.ImagesTotal &&
		(opts.CSVPath == "" || res.MetadataApplied) &&
		(!opts.DoRelease || res.Released)
	return res, nil
}

// prepareCSV rewrites the CSV next to the original as <name>_processed.csv
// with canonical quoting.
func prepareCSV(path string) (string, error) {
	ext := filepath.Ext(path)
	out := strings.TrimSuffix(path, ext) + "_processed.csv"
	if _, err := metadata.Normalize(path, out); err != nil {
		return "", err
	}
	return out, nil
}

func (u *Uploader) applyCSV(ctx context.Context, path string, timeout time.Duration) error {
	processed, err := prepareCSV(path)
	if err != nil {
		return fmt.Errorf("failed to prepare CSV: %w", err)
	}

	button := u.textSel("button", IntentCSVButton)
	if ok, err := u.page.Visible(ctx, button, 10*time.Second); err != nil || !ok {
		return fmt.Errorf("%w: CSV upload button", browser.ErrNotFound)
	}
	if err := u.page.Click(ctx, button); err != nil {
		return err
	}
	if ok, err := u.page.Visible(ctx, u.textSel("*", IntentCSVDialog), 10*time.Second); err != nil || !ok {
		return fmt.Errorf("%w: CSV upload dialog", browser.ErrNotFound)
	}
	if err := u.setFiles(ctx, csvInputs, []string{processed}); err != nil {
		return err
	}

	if ok, _ := u.page.Visible(ctx, u.textSel("*", IntentCSVProcessing), 10*time.Second); !ok {
		u.logger.Warn("CSV processing notice not seen, waiting for result anyway")
	}
	u.logger.Info("waiting for CSV processing", zap.Duration("timeout", timeout))

	applied := u.textSel("*", IntentCSVApplied)
	err = verify.Until(ctx, func(ctx context.Context) (bool, error) {
		return u.page.Visible(ctx, applied, u.probeTimeout)
	}, timeout, u.cfg.PollInterval.Std())
	if err != nil {
		return fmt.Errorf("CSV not applied: %w", err)
	}

	refresh := u.textSel("button", IntentCSVRefresh)
	if ok, _ := u.page.Visible(ctx, refresh, u.probeTimeout); ok {
		err = u.page.Click(ctx, refresh)
	} else {
		err = u.page.Reload(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to refresh after CSV: %w", err)
	}
	return verify.Sleep(ctx, u.settle)
}

// markItems marks up to limit thumbnails, re-counting them before each item.
func (u *Uploader) markItems(ctx context.Context, res *Result, limit int) (int, error) {
	if ok, err := u.page.Visible(ctx, Thumbnail, u.loadTimeout); err != nil || !ok {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		res.AddError("mark flags: no thumbnails found")
		return 0, nil
	}

	src := batch.SourceFunc[int](func(ctx context.Context) ([]int, error) {
		n, err := u.page.Count(ctx, Thumbnail)
		if err != nil {
			return nil, err
		}
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	})

	opts := []batch.Option{batch.WithLogger(u.logger)}
	if limit > 0 {
		opts = append(opts, batch.WithLimit(limit))
	}
	br, err := batch.Run(ctx, src, func(ctx context.Context, _ int, thumb int) error {
		return u.markOne(ctx, thumb)
	}, opts...)

	for _, f := range br.Failures {
		res.AddError("mark item %d: %v", f.Index+1, f.Err)
	}
	if err == nil && limit > 0 && br.Attempted < limit {
		res.AddError("mark flags: only %d of %d thumbnails present", br.Attempted, limit)
	}
	return br.Succeeded, err
}

func (u *Uploader) markOne(ctx context.Context, thumb int) error {
	u.popups.Suppress(ctx)

	if err := u.page.ClickNth(ctx, Thumbnail, thumb); err != nil {
		return fmt.Errorf("select thumbnail: %w", err)
	}
	if err := verify.Sleep(ctx, u.settle); err != nil {
		return err
	}

	var flagErr error
	for _, intent := range []Intent{IntentAIGenerated, IntentFictional} {
		if err := u.ensureFlag(ctx, intent); err != nil {
			flagErr = fmt.Errorf("%s: %w", intent, err)
			break
		}
	}

	save := u.textSel("button", IntentSaveChanges)
	if ok, _ := u.page.Visible(ctx, save, u.probeTimeout); ok {
		if err := u.page.Click(ctx, save); err != nil && flagErr == nil {
			flagErr = fmt.Errorf("save changes: %w", err)
		}
	}
	return flagErr
}

// ensureFlag checks the checkbox labelled by intent and verifies the
// read-back. The fictional checkbox only appears once the AI one is set, so
// the checkbox is located by label on every read.
func (u *Uploader) ensureFlag(ctx context.Context, intent Intent) error {
	phrases := u.phrases.Lookup(u.cfg.Locale, intent)
	if len(phrases) == 0 {
		return fmt.Errorf("no phrases for %s", intent)
	}
	locate := func(ctx context.Context) (int, error) {
		for _, ph := range phrases {
			i, err := u.page.FindNear(ctx, Checkbox, ph)
			if err != nil {
				return -1, err
			}
			if i >= 0 {
				return i, nil
			}
		}
		return -1, nil
	}

	idx := -1
	err := verify.Until(ctx, func(ctx context.Context) (bool, error) {
		i, err := locate(ctx)
		idx = i
		return i >= 0, err
	}, u.flagTimeout, flagPoll)
	if err != nil {
		var terr *verify.TimeoutError[bool]
		if errors.As(err, &terr) {
			return fmt.Errorf("%w: checkbox near %q", browser.ErrNotFound, phrases[0])
		}
		return err
	}

	checked, err := u.page.Checked(ctx, Checkbox, idx)
	if err != nil {
		return err
	}
	if checked {
		u.logger.Debug("flag already set", zap.String("flag", string(intent)))
		return nil
	}

	_, err = verify.Run(ctx, verify.Spec[bool]{
		Action: func(ctx context.Context) error { return u.page.ClickNth(ctx, Checkbox, idx) },
		Observe: func(ctx context.Context) (bool, error) {
			i, err := locate(ctx)
			if err != nil {
				return false, err
			}
			if i < 0 {
				return false, fmt.Errorf("%w: checkbox near %q", browser.ErrNotFound, phrases[0])
			}
			return u.page.Checked(ctx, Checkbox, i)
		},
		Target:   true,
		Timeout:  u.flagTimeout,
		Interval: flagPoll,
	})
	return err
}

func (u *Uploader) release(ctx context.Context) error {
	for _, ph := range u.phrases.Lookup(u.cfg.Locale, IntentSubmit) {
		sel := browser.ByText("button", ph)
		if ok, _ := u.page.Visible(ctx, sel, u.probeTimeout); ok {
			if err := u.page.Click(ctx, sel); err != nil {
				return err
			}
			return verify.Sleep(ctx, u.settle)
		}
	}
	return fmt.Errorf("%w: submit button", browser.ErrNotFound)
}

// uploadsURL strips the upload dialog query from the configured URL.
func uploadsURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}

// MarkAll marks every thumbnail on the uploads page (at most maxImages when
// positive) as AI-generated with fictional people and property.
func (u *Uploader) MarkAll(ctx context.Context, maxImages int) (*Result, error) {
	res := NewResult(0)
	log := u.logger.With(zap.String("run_id", res.RunID))

	if err := u.ensureAuthenticated(ctx, uploadsURL(u.cfg.UploadURL)); err != nil {
		res.AddError("authenticate: %v", err)
		return res, fmt.Errorf("authenticate: %w", err)
	}
	u.popups.Suppress(ctx)

	if ok, err := u.page.Visible(ctx, Thumbnail, u.loadTimeout); err != nil || !ok {
		if err == nil {
			err = fmt.Errorf("%w: thumbnails", browser.ErrNotFound)
		}
		res.AddError("find images: %v", err)
		return res, err
	}
	n, err := u.page.Count(ctx, Thumbnail)
	if err != nil {
		res.AddError("count images: %v", err)
		return res, err
	}
	total := n
	if maxImages > 0 && maxImages < n {
		total = maxImages
	}
	res.ImagesTotal = total
	log.Info("marking images", zap.Int("found", n), zap.Int("processing", total))

	if total > 0 {
		marked, err := u.markItems(ctx, res, total)
		res.CheckboxesMarked = marked
		if err != nil {
			return res, err
		}
	}
	u.screenshot(ctx, res, "04_complete")

	res.Success = len(res.Errors) == 0 && res.CheckboxesMarked == total
	log.Info("marking complete", zap.Bool("ok", res.Success), zap.Int("marked", res.CheckboxesMarked), zap.Int("total", total))
	return res, nil
}
