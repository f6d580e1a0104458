package tinder

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/uibot/internal/batch"
	"github.com/ibeckermayer/uibot/internal/browser"
	"github.com/ibeckermayer/uibot/internal/types"
	"github.com/ibeckermayer/uibot/internal/verify"
)

const (
	maxScrollRounds = 50
	geomatchTries   = 3
)

// ChatIDs lists the chat IDs of the match list (newMatches) and the
// conversation list (messaged), in that order.
func (b *Bot) ChatIDs(ctx context.Context, newMatches, messaged bool) ([]string, error) {
	if err := b.requireLogin(ctx); err != nil {
		return nil, err
	}
	b.popups.Suppress(ctx)
	return b.chatIDs(ctx, newMatches, messaged)
}

func (b *Bot) chatIDs(ctx context.Context, newMatches, messaged bool) ([]string, error) {
	ok, err := b.page.Visible(ctx, Tab, b.delay)
	if err != nil {
		return nil, err
	}
	if !ok {
		b.logger.Debug("match tabs not found, reloading home")
		if err := b.page.Navigate(ctx, HomeURL); err != nil {
			return nil, err
		}
		if ok, err = b.page.Visible(ctx, Tab, b.delay); err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: match tabs", browser.ErrNotFound)
		}
	}

	var ids []string
	if newMatches {
		got, err := b.tabHrefs(ctx, MatchesTab, MatchPanel, MatchLinks)
		if err != nil {
			return nil, err
		}
		ids = append(ids, got...)
	}
	if messaged {
		got, err := b.tabHrefs(ctx, MessagesTab, MessageList, MessageLinks)
		if err != nil {
			return nil, err
		}
		ids = append(ids, got...)
	}
	return ids, nil
}

func (b *Bot) tabHrefs(ctx context.Context, tab, list, links string) ([]string, error) {
	if ok, _ := b.page.Visible(ctx, tab, 0); ok {
		if err := b.page.Click(ctx, tab); err != nil {
			return nil, fmt.Errorf("failed to open tab: %w", err)
		}
	}
	if ok, err := b.page.Visible(ctx, list, b.delay); err != nil || !ok {
		// an empty list is not an error
		return nil, err
	}
	hrefs, err := b.page.Attributes(ctx, links, "href")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, h := range hrefs {
		if strings.Contains(h, "likes-you") || strings.Contains(h, "my-likes") {
			continue
		}
		if id := chatIDFromHref(h); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func chatIDFromHref(href string) string {
	href = strings.TrimRight(href, "/")
	return href[strings.LastIndex(href, "/")+1:]
}

// NewMatches scrapes up to amount matches nobody has written to yet.
func (b *Bot) NewMatches(ctx context.Context, amount int, quickload bool) ([]types.RemoteMatch, error) {
	return b.collect(ctx, amount, quickload, true)
}

// MessagedMatches scrapes up to amount matches with a conversation.
func (b *Bot) MessagedMatches(ctx context.Context, amount int, quickload bool) ([]types.RemoteMatch, error) {
	return b.collect(ctx, amount, quickload, false)
}

// collect reads chat IDs, scrapes the ones not seen yet and scrolls the list
// for more until amount matches were scraped or a round brings nothing new.
func (b *Bot) collect(ctx context.Context, amount int, quickload, newMatches bool) ([]types.RemoteMatch, error) {
	if err := b.requireLogin(ctx); err != nil {
		return nil, err
	}
	b.popups.Suppress(ctx)

	list := MessageList
	if newMatches {
		list = MatchPanel
	}
	log := b.logger.With(zap.Bool("new", newMatches))

	var matches []types.RemoteMatch
	seen := map[string]bool{}
	for round := 1; round <= maxScrollRounds && len(matches) < amount; round++ {
		ids, err := b.chatIDs(ctx, newMatches, !newMatches)
		if err != nil {
			if len(matches) > 0 && ctx.Err() == nil {
				log.Warn("failed to list more matches", zap.Error(err))
				break
			}
			return matches, err
		}

		var fresh []string
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				fresh = append(fresh, id)
			}
		}
		if len(fresh) == 0 {
			break
		}
		if rest := amount - len(matches); len(fresh) > rest {
			fresh = fresh[:rest]
		}
		log.Info("scraping matches", zap.Int("round", round), zap.Int("count", len(fresh)))

		res, err := batch.Run(ctx, batch.Static[string](fresh), func(ctx context.Context, _ int, id string) error {
			m, err := b.Match(ctx, id, quickload)
			if err != nil {
				return err
			}
			matches = append(matches, m)
			return nil
		}, batch.WithLogger(log))
		if err != nil {
			return matches, err
		}
		for _, f := range res.Failures {
			log.Warn("match scrape failed", zap.String("chat_id", fresh[f.Index]), zap.Error(f.Err))
		}

		if err := b.scrollList(ctx, list); err != nil {
			if ctx.Err() != nil {
				return matches, ctx.Err()
			}
			log.Debug("scroll failed", zap.Error(err))
		}
		if err := verify.Sleep(ctx, b.scrollPause); err != nil {
			return matches, err
		}
	}
	return matches, nil
}

// scrollList scrolls the sidebar list, which stays mounted on chat pages.
func (b *Bot) scrollList(ctx context.Context, list string) error {
	js := fmt.Sprintf(`(() => {
		const el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
		if (el) el.scrollTop = el.scrollHeight;
		return !!el;
	})()`, browser.JSString(list))
	return b.page.Evaluate(ctx, js, nil)
}

// rawRow is one info row of a profile: its icon path and its text.
type rawRow struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// rawProfile is the profile data extracted from the DOM via JavaScript.
type rawProfile struct {
	Name      string   `json:"name"`
	Age       string   `json:"age"`
	Bio       string   `json:"bio"`
	Passions  []string `json:"passions"`
	ImageURLs []string `json:"imageUrls"`
	Rows      []rawRow `json:"rows"`
}

// profileJS extracts the profile shown under the first element matching
// root (CSS).
func profileJS(root string) string {
	return fmt.Sprintf(`
		(function() {
			const root = document.querySelector(%s) || document;
			const text = el => (el && el.textContent ? el.textContent.trim() : '');

			const name = text(root.querySelector('h1'));
			const age = text(root.querySelector('h1 + span, span[itemprop="age"]'));
			const bio = text(root.querySelector('[class*="BreakWord"], div[data-testid="bio"]'));

			const passions = [];
			root.querySelectorAll('[data-testid="passions"] div, div[class*="passions"] > div').forEach(el => {
				const t = text(el);
				if (t && !passions.includes(t)) passions.push(t);
			});

			const imageUrls = [];
			root.querySelectorAll('div[aria-label="Profile slider"]').forEach(el => {
				const bg = window.getComputedStyle(el).backgroundImage || '';
				const url = bg.split('"')[1];
				if (url && !imageUrls.includes(url)) imageUrls.push(url);
			});

			const rows = [];
			root.querySelectorAll('div.Row').forEach(row => {
				try {
					const path = row.querySelector('path[d^="M"]');
					const value = row.querySelector('div:nth-child(2)');
					rows.push({path: path ? path.getAttribute('d') : '', value: text(value)});
				} catch (e) {
					console.error('Error extracting row:', e);
				}
			});

			return {name, age, bio, passions, imageUrls, rows};
		})()
	`, browser.JSString(root))
}

const imageURLsJS = `
	(function() {
		const urls = [];
		document.querySelectorAll('div[aria-label="Profile slider"]').forEach(el => {
			const url = (window.getComputedStyle(el).backgroundImage || '').split('"')[1];
			if (url && !urls.includes(url)) urls.push(url);
		});
		return urls;
	})()
`

// Root elements for profileJS.
const (
	chatProfileRoot = `main`
	recProfileRoot  = `div.recsCardboard`
)

type rowData struct {
	work, study, home, gender string
	distance                  *int
}

// parseRows maps info rows to profile fields by their icon.
func parseRows(rows []rawRow) rowData {
	var d rowData
	for _, r := range rows {
		value := strings.TrimSpace(r.Value)
		switch r.Path {
		case workPath:
			d.work = value
		case studyPath:
			d.study = value
		case homePath:
			// "Lives in Berlin"
			fields := strings.Fields(value)
			if len(fields) > 0 {
				d.home = fields[len(fields)-1]
			}
		case genderPath:
			d.gender = value
		case locationPath, locationPath2:
			d.distance = parseDistance(value)
		}
	}
	return d
}

// parseDistance reads "12 kilometres away". "Less than 1 km away" is 1.
func parseDistance(s string) *int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	if n, err := strconv.Atoi(fields[0]); err == nil {
		return types.IntPtr(n)
	}
	if strings.HasPrefix(strings.ToLower(s), "less than") {
		return types.IntPtr(1)
	}
	return nil
}

func (r rawProfile) toProfile(now time.Time) types.RemoteProfile {
	rows := parseRows(r.Rows)
	p := types.RemoteProfile{
		Name:      strings.TrimSpace(r.Name),
		Bio:       strings.TrimSpace(r.Bio),
		Passions:  r.Passions,
		ImageURLs: r.ImageURLs,
		Work:      rows.work,
		Study:     rows.study,
		Home:      rows.home,
		Gender:    rows.gender,
		Distance:  rows.distance,
		ScrapedAt: now,
	}
	if age, err := strconv.Atoi(strings.TrimSpace(r.Age)); err == nil {
		p.Age = types.IntPtr(age)
	}
	return p
}

func (b *Bot) openChat(ctx context.Context, chatID string) error {
	loc, err := b.page.Location(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(loc, chatID) {
		return nil
	}
	if err := b.page.Navigate(ctx, MessagesURL+chatID); err != nil {
		return fmt.Errorf("failed to open chat %s: %w", chatID, err)
	}
	return nil
}

// Match opens the chat and scrapes the match's profile. Without quickload
// every photo of the slider is clicked through to collect all image URLs.
func (b *Bot) Match(ctx context.Context, chatID string, quickload bool) (types.RemoteMatch, error) {
	if err := b.openChat(ctx, chatID); err != nil {
		return types.RemoteMatch{}, err
	}
	p, err := b.scrapeProfile(ctx, chatProfileRoot, quickload)
	if err != nil {
		return types.RemoteMatch{}, fmt.Errorf("chat %s: %w", chatID, err)
	}
	return types.RemoteMatch{ChatID: chatID, RemoteProfile: p}, nil
}

func (b *Bot) scrapeProfile(ctx context.Context, root string, quickload bool) (types.RemoteProfile, error) {
	var raw rawProfile
	if err := b.page.Evaluate(ctx, profileJS(root), &raw); err != nil {
		return types.RemoteProfile{}, fmt.Errorf("failed to extract profile from DOM: %w", err)
	}
	p := raw.toProfile(time.Now())
	if p.Name == "" {
		return p, fmt.Errorf("%w: profile name", browser.ErrNotFound)
	}
	if quickload {
		return p, nil
	}

	n, err := b.page.Count(ctx, ProfileBullet)
	if err != nil {
		b.logger.Debug("no photo bullets", zap.Error(err))
		return p, nil
	}
	for i := range n {
		if err := b.page.ClickNth(ctx, ProfileBullet, i); err != nil {
			b.logger.Debug("photo bullet click failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		if err := verify.Sleep(ctx, b.settle); err != nil {
			return p, err
		}
		var urls []string
		if err := b.page.Evaluate(ctx, imageURLsJS, &urls); err != nil {
			continue
		}
		for _, u := range urls {
			if !slices.Contains(p.ImageURLs, u) {
				p.ImageURLs = append(p.ImageURLs, u)
			}
		}
	}
	return p, nil
}

// Geomatch scrapes the recommendation card currently shown.
func (b *Bot) Geomatch(ctx context.Context, quickload bool) (types.RemoteProfile, error) {
	if err := b.requireLogin(ctx); err != nil {
		return types.RemoteProfile{}, err
	}
	b.popups.Suppress(ctx)

	var lastErr error
	for range geomatchTries {
		p, err := b.scrapeProfile(ctx, recProfileRoot, quickload)
		if err == nil {
			return p, nil
		}
		lastErr = err
		// the first card often sits behind a popup
		b.popups.Suppress(ctx)
		if err := verify.Sleep(ctx, b.settle); err != nil {
			return types.RemoteProfile{}, err
		}
	}
	return types.RemoteProfile{}, lastErr
}
