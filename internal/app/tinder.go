package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/browser"
	"github.com/ibeckermayer/uibot/internal/report"
	"github.com/ibeckermayer/uibot/internal/scheduler"
	"github.com/ibeckermayer/uibot/internal/store"
	"github.com/ibeckermayer/uibot/internal/tinder"
	"github.com/ibeckermayer/uibot/internal/types"
)

// geoAccuracy is the accuracy in metres reported with an overridden position.
const geoAccuracy = 100

// SessionParams are shared by every Tinder operation.
type SessionParams struct {
	ManualLogin bool
	Headless    *bool
	AuthState   string
}

// SwipeParams are the inputs of one swipe session. Zero values take the
// configured defaults.
type SwipeParams struct {
	SessionParams
	Likes    int
	Ratio    string
	Sleep    time.Duration
	Lat, Lon *float64
	Distance int
}

// MatchParams select which matches to scrape.
type MatchParams struct {
	SessionParams
	New       bool
	Messaged  bool
	Amount    int
	Quickload bool
	// Out, when set, receives the scraped matches as JSON.
	Out string
}

// PrefParams are the preferences to change. Zero values are left alone.
type PrefParams struct {
	SessionParams
	Distance int
	MinAge   int
	MaxAge   int
	Global   *bool
}

// ProfileParams are the profile edits to make.
type ProfileParams struct {
	SessionParams
	Bio   string
	Photo string
}

// withTinder opens a logged-in Tinder page and runs fn on it. The session is
// saved when fn succeeds.
func (a *App) withTinder(ctx context.Context, p SessionParams, fn func(ctx context.Context, page browser.Page, b *tinder.Bot) error, opts ...tinder.Option) error {
	st, err := a.authStore(PlatformTinder, p.AuthState)
	if err != nil {
		return err
	}
	page, closePage, err := a.openPage(ctx, st, p.Headless)
	if err != nil {
		return err
	}
	defer closePage()

	b := tinder.NewBot(page, a.cfg.Tinder, a.logger, append(a.tinderOpts, opts...)...)
	creds := a.cfg.Credentials
	if err := b.Login(ctx, creds.TinderEmail, creds.TinderPassword, p.ManualLogin); err != nil {
		return err
	}
	a.captureState(ctx, page, st)

	if err := fn(ctx, page, b); err != nil {
		return err
	}
	a.captureState(ctx, page, st)
	return nil
}

func (a *App) setLocation(ctx context.Context, page browser.Page, lat, lon float64) error {
	g, ok := page.(Geolocator)
	if !ok {
		return errors.New("page cannot override geolocation")
	}
	if err := g.SetGeolocation(ctx, lat, lon, geoAccuracy); err != nil {
		return err
	}
	a.logger.Info("location set", zap.Float64("lat", lat), zap.Float64("lon", lon))
	return nil
}

// TinderSwipe runs one like session and returns its counters.
func (a *App) TinderSwipe(ctx context.Context, p SwipeParams) (types.SessionStats, error) {
	started := time.Now()
	cfg := a.cfg.Tinder
	if p.Likes <= 0 {
		p.Likes = cfg.Likes
	}
	if p.Ratio == "" {
		p.Ratio = cfg.Ratio
	}
	if p.Sleep <= 0 {
		p.Sleep = cfg.Sleep.Std()
	}
	ratio, err := tinder.ParseRatio(p.Ratio)
	if err != nil {
		return types.SessionStats{}, err
	}
	if (p.Lat == nil) != (p.Lon == nil) {
		return types.SessionStats{}, errors.New("latitude and longitude must be given together")
	}

	var stats types.SessionStats
	err = a.withTinder(ctx, p.SessionParams, func(ctx context.Context, page browser.Page, b *tinder.Bot) error {
		defer func() { stats = b.Stats() }()
		if p.Lat != nil {
			if err := a.setLocation(ctx, page, *p.Lat, *p.Lon); err != nil {
				return fmt.Errorf("set location: %w", err)
			}
		}
		if p.Distance > 0 {
			if err := b.SetDistance(ctx, p.Distance); err != nil {
				return fmt.Errorf("set distance: %w", err)
			}
		}
		_, err := b.Like(ctx, p.Likes, ratio, p.Sleep, true)
		return err
	}, tinder.WithOnMatch(func() {
		a.logger.Info("match while swiping")
	}))

	a.recordRun(store.KindTinderSwipe, "", started, err == nil, stats)
	if cfg.NotifyOnMatch && (stats.Matches > 0 || err != nil) {
		a.sendReport(func(b *report.Builder) (*report.Report, error) { return b.Session(stats, err) })
	}
	return stats, err
}

// TinderMatches scrapes matches, stores them and reports the ones not seen
// before.
func (a *App) TinderMatches(ctx context.Context, p MatchParams) ([]types.RemoteMatch, error) {
	started := time.Now()
	if !p.New && !p.Messaged {
		p.New = true
	}
	if p.Amount <= 0 {
		p.Amount = 10
	}

	var matches []types.RemoteMatch
	err := a.withTinder(ctx, p.SessionParams, func(ctx context.Context, _ browser.Page, b *tinder.Bot) error {
		if p.New {
			got, err := b.NewMatches(ctx, p.Amount, p.Quickload)
			matches = append(matches, got...)
			if err != nil {
				return err
			}
		}
		if p.Messaged {
			got, err := b.MessagedMatches(ctx, p.Amount, p.Quickload)
			matches = append(matches, got...)
			if err != nil {
				return err
			}
		}
		return nil
	})

	fresh := a.storeMatches(matches)
	a.logger.Info("matches scraped", zap.Bool("ok", err == nil), zap.Int("count", len(matches)), zap.Int("new", len(fresh)))
	a.recordRun(store.KindMatches, "", started, err == nil, map[string]int{"scraped": len(matches), "new": len(fresh)})
	if p.Out != "" && len(matches) > 0 {
		if werr := writeJSON(p.Out, matches); werr != nil {
			a.logger.Warn("failed to write matches", zap.Error(werr))
		} else {
			a.logger.Info("matches written", zap.String("path", p.Out))
		}
	}

	if len(fresh) > 0 && a.cfg.Tinder.NotifyOnMatch && a.emailEnabled() {
		names := make([]string, len(fresh))
		for i, m := range fresh {
			names[i] = m.Name
		}
		if nerr := a.notifier.NotifyMatch("", names); nerr != nil {
			a.logger.Warn("failed to send match notification", zap.Error(nerr))
		}
	}
	return matches, err
}

// storeMatches saves matches and returns the ones that were not stored yet.
// Without a store every match counts as new.
func (a *App) storeMatches(matches []types.RemoteMatch) []types.RemoteMatch {
	if a.store == nil {
		return matches
	}
	fresh, err := a.store.FilterNew(matches)
	if err != nil {
		a.logger.Warn("failed to look up stored matches", zap.Error(err))
		fresh = nil
	}
	for _, m := range matches {
		if err := a.store.SaveMatch(m); err != nil {
			a.logger.Warn("failed to store match", zap.String("chat_id", m.ChatID), zap.Error(err))
		}
	}
	return fresh
}

// TinderMessage sends text to the match behind chatID.
func (a *App) TinderMessage(ctx context.Context, p SessionParams, chatID, text string) error {
	return a.withTinder(ctx, p, func(ctx context.Context, _ browser.Page, b *tinder.Bot) error {
		return b.SendMessage(ctx, chatID, text)
	})
}

// TinderUnmatch removes the match behind chatID.
func (a *App) TinderUnmatch(ctx context.Context, p SessionParams, chatID string) error {
	return a.withTinder(ctx, p, func(ctx context.Context, _ browser.Page, b *tinder.Bot) error {
		return b.Unmatch(ctx, chatID)
	})
}

// TinderPreferences applies the non-zero preferences of p.
func (a *App) TinderPreferences(ctx context.Context, p PrefParams) error {
	if p.Distance == 0 && p.MinAge == 0 && p.MaxAge == 0 && p.Global == nil {
		return errors.New("no preference to change")
	}
	return a.withTinder(ctx, p.SessionParams, func(ctx context.Context, _ browser.Page, b *tinder.Bot) error {
		if p.Distance > 0 {
			if err := b.SetDistance(ctx, p.Distance); err != nil {
				return fmt.Errorf("distance: %w", err)
			}
		}
		if p.MinAge > 0 || p.MaxAge > 0 {
			maxAge := p.MaxAge
			if maxAge == 0 {
				maxAge = 100
			}
			if err := b.SetAgeRange(ctx, p.MinAge, maxAge); err != nil {
				return fmt.Errorf("age range: %w", err)
			}
		}
		if p.Global != nil {
			if err := b.SetGlobal(ctx, *p.Global); err != nil {
				return err
			}
		}
		return nil
	})
}

// TinderProfile applies the profile edits of p.
func (a *App) TinderProfile(ctx context.Context, p ProfileParams) error {
	if p.Bio == "" && p.Photo == "" {
		return errors.New("no profile change requested")
	}
	return a.withTinder(ctx, p.SessionParams, func(ctx context.Context, _ browser.Page, b *tinder.Bot) error {
		if p.Bio != "" {
			if err := b.SetBio(ctx, p.Bio); err != nil {
				return err
			}
		}
		if p.Photo != "" {
			if err := b.AddPhoto(ctx, p.Photo); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScheduleSwipes runs a swipe session every day at "HH:MM" (the configured
// time when at is empty) until ctx is cancelled.
func (a *App) ScheduleSwipes(ctx context.Context, at string, p SwipeParams) error {
	if at == "" {
		at = a.cfg.Tinder.ScheduleAt
	}
	if at == "" {
		return errors.New("no schedule time given")
	}
	s, err := scheduler.New(a.cfg.Tinder.Timezone, a.logger)
	if err != nil {
		return err
	}
	if err := s.AddDailyJob("tinder-swipe", at, func(ctx context.Context) error {
		stats, err := a.TinderSwipe(ctx, p)
		for _, line := range stats.Summary() {
			a.logger.Info(line)
		}
		return err
	}); err != nil {
		return err
	}

	err = s.RunUntil(ctx)
	if errors.Is(err, context.Canceled) {
		a.logger.Info("schedule stopped")
		return nil
	}
	return err
}
