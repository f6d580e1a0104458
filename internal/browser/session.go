package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/auth"
	"github.com/ibeckermayer/uibot/internal/config"
)

var (
	// ErrLaunch is matched by every LaunchError.
	ErrLaunch = errors.New("browser launch failed")
	// ErrNotFound means a selector matched nothing.
	ErrNotFound = errors.New("element not found")
)

// LaunchError means the browser could not be started or attached to.
type LaunchError struct {
	Remote string // debugger address when attaching
	Err    error
}

func (e *LaunchError) Error() string {
	if e.Remote != "" {
		return fmt.Sprintf("failed to attach to browser at %s: %v", e.Remote, e.Err)
	}
	return fmt.Sprintf("failed to launch browser: %v", e.Err)
}

func (e *LaunchError) Unwrap() []error { return []error{ErrLaunch, e.Err} }

// NavigationTimeoutError means a page did not finish loading in time.
type NavigationTimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation to %s timed out after %s", e.URL, e.Timeout)
}

func (e *NavigationTimeoutError) Unwrap() error { return context.DeadlineExceeded }

// Config describes how to obtain a page.
type Config struct {
	Headless        bool
	Proxy           string
	Locale          string
	Timezone        string
	ViewportWidth   int
	ViewportHeight  int
	UserAgent       string
	ExecPath        string
	DebuggerAddress string
	NavTimeout      time.Duration
	// StorageState, when set, is restored before the first navigation.
	StorageState *auth.State
}

// ConfigFrom converts the file configuration.
func ConfigFrom(c config.BrowserConfig) Config {
	return Config{
		Headless:        c.Headless,
		Proxy:           c.Proxy,
		Locale:          c.Locale,
		Timezone:        c.Timezone,
		ViewportWidth:   c.ViewportWidth,
		ViewportHeight:  c.ViewportHeight,
		UserAgent:       c.UserAgent,
		ExecPath:        c.ExecPath,
		DebuggerAddress: c.DebuggerAddress,
		NavTimeout:      c.NavTimeout.Std(),
	}
}

// Stats counts session activity.
type Stats struct {
	Navigations int64
	Actions     int64
	Screenshots int64
}

// Session is one browser tab. It is driven sequentially; it is not safe to
// issue actions from several goroutines at once.
type Session struct {
	ctx         context.Context // tab context, carries the chromedp target
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	cfg         Config
	logger      *zap.Logger

	closeOnce sync.Once
	closed    atomic.Bool

	navigations atomic.Int64
	actions     atomic.Int64
	screenshots atomic.Int64
}

var _ Page = (*Session)(nil)

// Open launches Chrome (or attaches to one at cfg.DebuggerAddress) and opens
// a tab. Callers must defer Close.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The session outlives individual calls; Close is its only teardown.
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if cfg.DebuggerAddress != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), "ws://"+cfg.DebuggerAddress)
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), Options(cfg)...)
	}

	sugar := logger.Sugar()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(sugar.Debugf),
	)

	s := &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		cfg:         cfg,
		logger:      logger,
	}

	// The first Run allocates the browser and must use the tab context itself.
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, &LaunchError{Remote: cfg.DebuggerAddress, Err: err}
	}

	if err := s.setup(ctx); err != nil {
		s.Close()
		return nil, &LaunchError{Remote: cfg.DebuggerAddress, Err: err}
	}

	logger.Info("browser session opened",
		zap.Bool("headless", cfg.Headless),
		zap.String("remote", cfg.DebuggerAddress),
		zap.Bool("restored_state", cfg.StorageState != nil))
	return s, nil
}

func (s *Session) setup(ctx context.Context) error {
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if s.cfg.Timezone != "" {
		actions = append(actions, emulation.SetTimezoneOverride(s.cfg.Timezone))
	}
	if s.cfg.Proxy != "" {
		p, err := ParseProxy(s.cfg.Proxy)
		if err != nil {
			return err
		}
		if p.Username != "" {
			s.handleProxyAuth(p)
			actions = append(actions, fetch.Enable().WithHandleAuthRequests(true))
		}
	}
	if st := s.cfg.StorageState; st != nil {
		actions = append(actions, restoreState(st)...)
	}

	rctx, cancel := s.scoped(ctx, 0)
	defer cancel()
	return chromedp.Run(rctx, actions...)
}

func (s *Session) handleProxyAuth(p Proxy) {
	chromedp.ListenTarget(s.ctx, func(ev any) {
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go chromedp.Run(s.ctx, fetch.ContinueRequest(ev.RequestID))
		case *fetch.EventAuthRequired:
			go chromedp.Run(s.ctx, fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
				Response: fetch.AuthChallengeResponseResponseProvideCredentials,
				Username: p.Username,
				Password: p.Password,
			}))
		}
	})
}

// Close ends the tab and, for a launched browser, the Chrome process. It is
// safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancelTab()
		s.cancelAlloc()
		s.logger.Info("browser session closed",
			zap.Int64("navigations", s.navigations.Load()),
			zap.Int64("actions", s.actions.Load()))
	})
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed.Load() }

// Stats returns activity counters.
func (s *Session) Stats() Stats {
	return Stats{
		Navigations: s.navigations.Load(),
		Actions:     s.actions.Load(),
		Screenshots: s.screenshots.Load(),
	}
}

// scoped derives a context for one chromedp call: it carries the tab, ends
// when the caller's ctx ends, and optionally has a timeout.
func (s *Session) scoped(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	rctx, cancel := context.WithCancel(s.ctx)
	if timeout > 0 {
		var tcancel context.CancelFunc
		rctx, tcancel = context.WithTimeout(rctx, timeout)
		prev := cancel
		cancel = func() { tcancel(); prev() }
	}
	stop := context.AfterFunc(ctx, cancel)
	return rctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return errors.New("browser session is closed")
	}
	s.actions.Add(1)
	rctx, cancel := s.scoped(ctx, timeout)
	defer cancel()
	err := chromedp.Run(rctx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func queryOpts(sel string) []chromedp.QueryOption {
	if IsXPath(sel) {
		return []chromedp.QueryOption{chromedp.BySearch}
	}
	return []chromedp.QueryOption{chromedp.ByQuery}
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.navigations.Add(1)
	err := s.run(ctx, s.cfg.NavTimeout, chromedp.Navigate(url))
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &NavigationTimeoutError{URL: url, Timeout: s.cfg.NavTimeout}
	}
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (s *Session) Reload(ctx context.Context) error {
	s.navigations.Add(1)
	err := s.run(ctx, s.cfg.NavTimeout, chromedp.Reload())
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &NavigationTimeoutError{URL: "(reload)", Timeout: s.cfg.NavTimeout}
	}
	return err
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, 10*time.Second, chromedp.Location(&url))
	return url, err
}

// actionTimeout bounds single-element actions whose target should already
// be on the page.
const actionTimeout = 10 * time.Second

func (s *Session) Visible(ctx context.Context, sel string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		var shown bool
		err := s.run(ctx, actionTimeout, chromedp.Evaluate(visibleNowJS(sel), &shown))
		return shown, err
	}
	err := s.run(ctx, timeout, chromedp.WaitVisible(sel, queryOpts(sel)...))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	default:
		return false, err
	}
}

func (s *Session) Count(ctx context.Context, sel string) (int, error) {
	var n int
	err := s.run(ctx, actionTimeout, chromedp.Evaluate(queryAllJS(sel)+".length", &n))
	return n, err
}

func (s *Session) Click(ctx context.Context, sel string) error {
	err := s.run(ctx, actionTimeout, chromedp.Click(sel, queryOpts(sel)...))
	return notFound(sel, err)
}

func (s *Session) ClickNth(ctx context.Context, sel string, i int) error {
	var ok bool
	js := fmt.Sprintf(`(() => {
		const el = %s[%d];
		if (!el) return false;
		el.scrollIntoView({block: 'center'});
		el.click();
		return true;
	})()`, queryAllJS(sel), i)
	if err := s.run(ctx, actionTimeout, chromedp.Evaluate(js, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s[%d]", ErrNotFound, sel, i)
	}
	return nil
}

func (s *Session) Text(ctx context.Context, sel string) (string, error) {
	var text string
	err := s.run(ctx, actionTimeout, chromedp.Text(sel, &text, queryOpts(sel)...))
	return text, notFound(sel, err)
}

func (s *Session) Attribute(ctx context.Context, sel, name string) (string, error) {
	var value string
	var ok bool
	err := s.run(ctx, actionTimeout, chromedp.AttributeValue(sel, name, &value, &ok, queryOpts(sel)...))
	if err != nil {
		return "", notFound(sel, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: attribute %s on %s", ErrNotFound, name, sel)
	}
	return value, nil
}

func (s *Session) Attributes(ctx context.Context, sel, name string) ([]string, error) {
	var values []string
	js := fmt.Sprintf(`%s.map(el => el.getAttribute(%s)).filter(v => v !== null)`, queryAllJS(sel), JSString(name))
	err := s.run(ctx, actionTimeout, chromedp.Evaluate(js, &values))
	return values, err
}

func (s *Session) Checked(ctx context.Context, sel string, i int) (bool, error) {
	var state struct {
		Found   bool `json:"found"`
		Checked bool `json:"checked"`
	}
	js := fmt.Sprintf(`(() => {
		const el = %s[%d];
		if (!el) return {found: false, checked: false};
		return {found: true, checked: !!el.checked || el.getAttribute('aria-checked') === 'true'};
	})()`, queryAllJS(sel), i)
	if err := s.run(ctx, actionTimeout, chromedp.Evaluate(js, &state)); err != nil {
		return false, err
	}
	if !state.Found {
		return false, fmt.Errorf("%w: %s[%d]", ErrNotFound, sel, i)
	}
	return state.Checked, nil
}

func (s *Session) FindNear(ctx context.Context, sel, phrase string) (int, error) {
	var idx int
	js := findNearJS(sel, phrase)
	err := s.run(ctx, actionTimeout, chromedp.Evaluate(js, &idx))
	return idx, err
}

func (s *Session) Fill(ctx context.Context, sel, text string) error {
	opts := queryOpts(sel)
	err := s.run(ctx, actionTimeout,
		chromedp.WaitVisible(sel, opts...),
		chromedp.SetValue(sel, "", opts...),
		chromedp.SendKeys(sel, text, opts...),
	)
	return notFound(sel, err)
}

// Key names accepted by Press.
const (
	KeyEnter  = kb.Enter
	KeyEscape = kb.Escape
)

func (s *Session) Press(ctx context.Context, sel, key string) error {
	err := s.run(ctx, actionTimeout, chromedp.SendKeys(sel, key, queryOpts(sel)...))
	return notFound(sel, err)
}

func (s *Session) SetFiles(ctx context.Context, sel string, files []string) error {
	abs := make([]string, len(files))
	for i, f := range files {
		p, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		abs[i] = p
	}
	err := s.run(ctx, actionTimeout, chromedp.SetUploadFiles(sel, abs, queryOpts(sel)...))
	return notFound(sel, err)
}

func (s *Session) Drag(ctx context.Context, sel string, dx float64) error {
	var box *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	js := fmt.Sprintf(`(() => {
		const el = %s[0];
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return {x: r.left + r.width / 2, y: r.top + r.height / 2};
	})()`, queryAllJS(sel))
	if err := s.run(ctx, actionTimeout, chromedp.Evaluate(js, &box)); err != nil {
		return err
	}
	if box == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}

	return s.run(ctx, actionTimeout,
		chromedp.MouseEvent(input.MouseMoved, box.X, box.Y),
		chromedp.MouseEvent(input.MousePressed, box.X, box.Y, chromedp.ButtonType(input.Left), chromedp.ClickCount(1)),
		chromedp.MouseEvent(input.MouseMoved, box.X+dx, box.Y, chromedp.ButtonType(input.Left)),
		chromedp.MouseEvent(input.MouseReleased, box.X+dx, box.Y, chromedp.ButtonType(input.Left), chromedp.ClickCount(1)),
	)
}

func (s *Session) Evaluate(ctx context.Context, expr string, res any) error {
	return s.run(ctx, actionTimeout, chromedp.Evaluate(expr, res))
}

// Screenshot writes a full-page PNG to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, 30*time.Second, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return err
	}
	s.screenshots.Add(1)
	return nil
}

// SetGeolocation overrides the reported position and grants the permission.
func (s *Session) SetGeolocation(ctx context.Context, lat, lon, accuracy float64) error {
	if accuracy <= 0 {
		accuracy = 100
	}
	return s.run(ctx, actionTimeout,
		cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{cdpbrowser.PermissionTypeGeolocation}),
		emulation.SetGeolocationOverride().WithLatitude(lat).WithLongitude(lon).WithAccuracy(accuracy),
	)
}

func notFound(sel string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return err
}

// cookieParams converts a stored cookie to a SetCookie call.
func cookieParams(c auth.Cookie) *network.SetCookieParams {
	p := network.SetCookie(c.Name, c.Value).
		WithDomain(c.Domain).
		WithPath(c.Path).
		WithSecure(c.Secure).
		WithHTTPOnly(c.HTTPOnly)
	switch ss := network.CookieSameSite(c.SameSite); ss {
	case network.CookieSameSiteStrict, network.CookieSameSiteLax, network.CookieSameSiteNone:
		p = p.WithSameSite(ss)
	}
	if !c.Session() {
		exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
		p = p.WithExpires(&exp)
	}
	return p
}
