// Package tinder drives the Tinder web app: login, swiping, match scraping,
// messaging, preference sliders and profile edits.
package tinder

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/auth"
	"github.com/ibeckermayer/uibot/internal/browser"
	"github.com/ibeckermayer/uibot/internal/config"
	"github.com/ibeckermayer/uibot/internal/popup"
	"github.com/ibeckermayer/uibot/internal/types"
	"github.com/ibeckermayer/uibot/internal/verify"
)

// ErrNotLoggedIn means the app shell never showed up.
var ErrNotLoggedIn = errors.New("not logged in to tinder")

// PopupMatch is the popup rule name of the match celebration.
const PopupMatch = "match"

const (
	popupProbe       = 250 * time.Millisecond
	pollInterval     = 250 * time.Millisecond
	maxSwipeFailures = 5
)

// Option configures a Bot.
type Option func(*Bot)

// WithOnMatch registers fn to run whenever a match celebration is dismissed.
func WithOnMatch(fn func()) Option {
	return func(b *Bot) { b.onMatch = fn }
}

// WithPacing overrides the pause after UI actions and after scrolling a
// match list.
func WithPacing(settle, scrollPause time.Duration) Option {
	return func(b *Bot) { b.settle, b.scrollPause = settle, scrollPause }
}

// Bot drives one logged-in Tinder page.
type Bot struct {
	page    browser.Page
	cfg     config.TinderConfig
	logger  *zap.Logger
	popups  *popup.Suppressor
	onMatch func()
	stats   types.SessionStats

	rnd          func() float64
	delay        time.Duration
	shellTimeout time.Duration
	settle       time.Duration
	scrollPause  time.Duration
}

// NewBot creates a Bot.
func NewBot(page browser.Page, cfg config.TinderConfig, logger *zap.Logger, opts ...Option) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		page:         page,
		cfg:          cfg,
		logger:       logger.Named("tinder"),
		stats:        types.SessionStats{Started: time.Now()},
		rnd:          rand.Float64,
		delay:        5 * time.Second,
		shellTimeout: 5 * time.Second,
		settle:       time.Second,
		scrollPause:  4 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.popups = popup.New(b.popupRules(),
		popup.WithLogger(b.logger),
		popup.WithOnHandled(b.popupHandled),
	)
	return b
}

func (b *Bot) popupRules() []popup.Rule {
	return []popup.Rule{
		popup.ClickRule(b.page, "liked-you", DenyLikedYou, popupProbe),
		popup.ClickRule(b.page, "upgrade", DenyUpgrade, popupProbe),
		popup.ClickRule(b.page, "homescreen", DenyHomescreen, popupProbe),
		popup.ClickRule(b.page, "superlikes", DenySuperlikes, popupProbe),
		popup.ClickRule(b.page, PopupMatch, BackToTinder, popupProbe),
		popup.ClickRule(b.page, "email-confirmation", RemindLater, popupProbe).Chained(),
		popup.ClickRule(b.page, "location", NoThanks, popupProbe).Chained(),
	}
}

func (b *Bot) popupHandled(name string) {
	if name != PopupMatch {
		return
	}
	b.stats.Matches++
	b.logger.Info("new match")
	if b.onMatch != nil {
		b.onMatch()
	}
}

// Stats returns the session counters so far.
func (b *Bot) Stats() types.SessionStats { return b.stats }

// SuppressPopups dismisses whatever overlay is currently showing.
func (b *Bot) SuppressPopups(ctx context.Context) []string {
	return b.popups.Suppress(ctx)
}

// IsLoggedIn opens the recommendations page and probes for the app shell.
func (b *Bot) IsLoggedIn(ctx context.Context) (bool, error) {
	if err := b.page.Navigate(ctx, HomeURL); err != nil {
		return false, err
	}
	return b.page.Visible(ctx, Content, b.shellTimeout)
}

func (b *Bot) requireLogin(ctx context.Context) error {
	ok, err := b.IsLoggedIn(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotLoggedIn
	}
	return nil
}

func (b *Bot) appShown(ctx context.Context) (bool, error) {
	loc, err := b.page.Location(ctx)
	if err != nil {
		return false, err
	}
	if !strings.Contains(loc, "/app") {
		return false, nil
	}
	return b.page.Visible(ctx, Content, 0)
}

// Login makes sure the page is logged in. Unless manual is set it first
// tries the Google flow with the given credentials; either way it then waits
// up to the configured login wait for the app shell.
func (b *Bot) Login(ctx context.Context, email, password string, manual bool) error {
	ok, err := b.IsLoggedIn(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	wait := b.cfg.LoginWait.Std()
	if !manual && email != "" && password != "" {
		if err := b.LoginWithGoogle(ctx, email, password); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("google login failed, waiting for manual login", zap.Error(err), zap.Duration("timeout", wait))
		}
	} else {
		b.logger.Warn("not logged in, please log in in the browser window", zap.Duration("timeout", wait))
	}

	err = auth.WaitForLogin(ctx, b.appShown, wait)
	if errors.Is(err, auth.ErrLoginTimeout) {
		return fmt.Errorf("%w: %v", ErrNotLoggedIn, err)
	}
	if err != nil {
		return err
	}
	b.logger.Info("logged in")
	return nil
}

// LoginWithGoogle is best effort. Google usually opens its form in a separate
// window, which a single page cannot follow; the form is only filled when it
// renders inline.
func (b *Bot) LoginWithGoogle(ctx context.Context, email, password string) error {
	if ok, _ := b.page.Visible(ctx, LoginButton, b.delay); ok {
		if err := b.page.Click(ctx, LoginButton); err != nil {
			return err
		}
		if err := verify.Sleep(ctx, b.settle); err != nil {
			return err
		}
	}
	if err := b.clickVisible(ctx, GoogleLogin); err != nil {
		return fmt.Errorf("google button: %w", err)
	}

	for _, f := range []struct{ sel, value string }{
		{EmailInput, email},
		{PasswordInput, password},
	} {
		if err := b.fillVisible(ctx, f.sel, f.value); err != nil {
			return err
		}
		if err := b.page.Press(ctx, f.sel, browser.KeyEnter); err != nil {
			return err
		}
		if err := verify.Sleep(ctx, b.settle); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) clickVisible(ctx context.Context, sel string) error {
	ok, err := b.page.Visible(ctx, sel, b.delay)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	return b.page.Click(ctx, sel)
}

func (b *Bot) fillVisible(ctx context.Context, sel, text string) error {
	ok, err := b.page.Visible(ctx, sel, b.delay)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", browser.ErrNotFound, sel)
	}
	return b.page.Fill(ctx, sel, text)
}

// ParseRatio parses "72.5%" or "0.725" into a fraction in (0, 1].
func ParseRatio(s string) (float64, error) {
	s = strings.TrimSpace(s)
	pct := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ratio %q: %w", s, err)
	}
	if pct {
		v /= 100
	}
	if v <= 0 || v > 1 {
		return 0, fmt.Errorf("ratio %q out of range", s)
	}
	return v, nil
}

// Like swipes until amount profiles were liked. Each step likes with
// probability ratio and dislikes otherwise. With randomize the pause after a
// step is 0.5 to 2.3 times sleep. It returns the number of likes.
func (b *Bot) Like(ctx context.Context, amount int, ratio float64, sleep time.Duration, randomize bool) (int, error) {
	if ratio <= 0 || ratio > 1 {
		return 0, fmt.Errorf("ratio must be in (0, 1], got %v", ratio)
	}
	if err := b.requireLogin(ctx); err != nil {
		return 0, err
	}

	// once up front, then after every swipe
	b.popups.Suppress(ctx)
	b.logger.Info("liking profiles", zap.Int("amount", amount), zap.Float64("ratio", ratio), zap.Duration("sleep", sleep))

	liked, failures := 0, 0
	for liked < amount {
		pause := sleep
		if randomize {
			pause = time.Duration((0.5 + 1.8*b.rnd()) * float64(sleep))
		}

		like := b.rnd() <= ratio
		sel := DislikeButton
		if like {
			sel = LikeButton
		}
		if err := b.swipe(ctx, sel); err != nil {
			if ctx.Err() != nil {
				return liked, ctx.Err()
			}
			failures++
			b.logger.Warn("swipe failed", zap.Bool("like", like), zap.Int("consecutive", failures), zap.Error(err))
			if failures >= maxSwipeFailures {
				b.logStats()
				return liked, fmt.Errorf("giving up after %d failed swipes: %w", failures, err)
			}
		} else {
			failures = 0
			if like {
				liked++
				b.stats.Likes++
				b.logger.Info("liked", zap.Int("liked", liked), zap.Int("of", amount), zap.Duration("sleep", pause))
			} else {
				b.stats.Dislikes++
			}
		}

		b.popups.Suppress(ctx)
		if err := verify.Sleep(ctx, pause); err != nil {
			return liked, err
		}
	}

	b.logStats()
	return liked, nil
}

// Dislike swipes left n times.
func (b *Bot) Dislike(ctx context.Context, n int) (int, error) {
	return b.repeat(ctx, n, DislikeButton, 0, &b.stats.Dislikes)
}

// Superlike superlikes n profiles.
func (b *Bot) Superlike(ctx context.Context, n int) (int, error) {
	return b.repeat(ctx, n, SuperlikeButton, b.settle, &b.stats.Superlikes)
}

func (b *Bot) repeat(ctx context.Context, n int, sel string, pause time.Duration, counter *int) (int, error) {
	if err := b.requireLogin(ctx); err != nil {
		return 0, err
	}
	done := 0
	for range n {
		b.popups.Suppress(ctx)
		if err := b.swipe(ctx, sel); err != nil {
			b.logStats()
			return done, err
		}
		done++
		*counter++
		if err := verify.Sleep(ctx, pause); err != nil {
			return done, err
		}
	}
	b.logStats()
	return done, nil
}

func (b *Bot) swipe(ctx context.Context, sel string) error {
	return b.clickVisible(ctx, sel)
}

func (b *Bot) logStats() {
	fields := []zap.Field{}
	if b.stats.Superlikes > 0 {
		fields = append(fields, zap.Int("superlikes", b.stats.Superlikes))
	}
	if b.stats.Likes > 0 {
		fields = append(fields, zap.Int("likes", b.stats.Likes))
	}
	if b.stats.Dislikes > 0 {
		fields = append(fields, zap.Int("dislikes", b.stats.Dislikes))
	}
	if b.stats.Matches > 0 {
		fields = append(fields, zap.Int("matches", b.stats.Matches))
	}
	b.logger.Info("session stats", fields...)
}
