package tinder

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/ibeckermayer/uibot/internal/browser"
	"github.com/ibeckermayer/uibot/internal/browser/browsertest"
	"github.com/ibeckermayer/uibot/internal/config"
	"github.com/ibeckermayer/uibot/internal/verify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBot(t *testing.T, opts ...Option) (*Bot, *browsertest.Page) {
	t.Helper()
	page := browsertest.New()
	page.Show(Content)
	cfg := config.Default().Tinder
	cfg.LoginWait = config.Duration(20 * time.Millisecond)

	b := NewBot(page, cfg, zaptest.NewLogger(t), opts...)
	b.delay = 50 * time.Millisecond
	b.shellTimeout = 0
	b.settle = 0
	b.scrollPause = 0
	b.rnd = func() float64 { return 0.5 }
	return b, page
}

// sequence returns the given values in turn, repeating the last one.
func sequence(vs ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := vs[min(i, len(vs)-1)]
		i++
		return v
	}
}

func TestParseRatio(t *testing.T) {
	r, err := ParseRatio("72.5%")
	require.NoError(t, err)
	assert.InDelta(t, 0.725, r, 1e-9)

	r, err = ParseRatio(" 0.5 ")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r, 1e-9)

	for _, bad := range []string{"0%", "150%", "abc", "", "-1"} {
		_, err := ParseRatio(bad)
		assert.Error(t, err, bad)
	}
}

func TestLikeAll(t *testing.T) {
	b, page := newBot(t)
	page.Show(LikeButton, DislikeButton)

	liked, err := b.Like(context.Background(), 3, 1, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 3, liked)
	assert.Equal(t, 3, page.ClickCount(LikeButton))
	assert.Zero(t, page.ClickCount(DislikeButton))
	assert.Equal(t, 3, b.Stats().Likes)
	assert.Equal(t, []string{HomeURL}, page.Navigations)
}

func TestLikeRatioMixesDislikes(t *testing.T) {
	b, page := newBot(t)
	page.Show(LikeButton, DislikeButton)
	b.rnd = sequence(0.9, 0.1, 0.9, 0.1)

	liked, err := b.Like(context.Background(), 2, 0.5, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 2, liked)
	stats := b.Stats()
	assert.Equal(t, 2, stats.Likes)
	assert.Equal(t, 2, stats.Dislikes)
	assert.Equal(t, 4, stats.Total())
}

func TestLikeDismissesMatchAndNotifies(t *testing.T) {
	matched := 0
	b, page := newBot(t, WithOnMatch(func() { matched++ }))
	page.Show(LikeButton)
	page.OnClick = func(p *browsertest.Page, sel string, _ int) {
		switch sel {
		case LikeButton:
			if page.ClickCount(LikeButton) == 2 {
				p.Show(BackToTinder)
			}
		case BackToTinder:
			p.Hide(BackToTinder)
		}
	}

	_, err := b.Like(context.Background(), 3, 1, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, matched)
	assert.Equal(t, 1, b.Stats().Matches)
	assert.Equal(t, 1, page.ClickCount(BackToTinder))
}

func TestLikeGivesUpWhenButtonMissing(t *testing.T) {
	b, _ := newBot(t)

	liked, err := b.Like(context.Background(), 3, 1, 0, false)
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.Zero(t, liked)
}

func TestLikeRejectsZeroRatio(t *testing.T) {
	b, page := newBot(t)
	_, err := b.Like(context.Background(), 1, 0, 0, false)
	assert.Error(t, err)
	assert.Empty(t, page.Navigations)
}

func TestSwipeRequiresLogin(t *testing.T) {
	b, page := newBot(t)
	page.Hide(Content)

	_, err := b.Like(context.Background(), 1, 1, 0, false)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = b.Dislike(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestDislikeAndSuperlike(t *testing.T) {
	b, page := newBot(t)
	page.Show(DislikeButton, SuperlikeButton)

	n, err := b.Dislike(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = b.Superlike(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats := b.Stats()
	assert.Equal(t, 2, stats.Dislikes)
	assert.Equal(t, 1, stats.Superlikes)
	assert.Contains(t, stats.Summary(), "Superlikes: 1")
}

func TestChainedPopups(t *testing.T) {
	b, page := newBot(t)
	page.Show(RemindLater)
	page.OnClick = func(p *browsertest.Page, sel string, _ int) {
		switch sel {
		case RemindLater:
			p.Hide(RemindLater)
			p.Show(NoThanks)
		case NoThanks:
			p.Hide(NoThanks)
		}
	}

	handled := b.SuppressPopups(context.Background())
	assert.Equal(t, []string{"email-confirmation", "location"}, handled)
	assert.Nil(t, b.SuppressPopups(context.Background()))
}

func TestLoginWithGoogle(t *testing.T) {
	b, page := newBot(t)
	loggedIn := false
	page.Hide(Content)
	page.OnNavigate = func(p *browsertest.Page, url string) {
		if !loggedIn {
			p.SetURL("https://tinder.com/")
		}
	}
	page.Show(LoginButton, GoogleLogin, EmailInput, PasswordInput)
	page.OnPress = func(p *browsertest.Page, sel, key string) {
		if sel == PasswordInput && key == browser.KeyEnter {
			loggedIn = true
			p.SetURL(HomeURL)
			p.Show(Content)
		}
	}

	require.NoError(t, b.Login(context.Background(), "me@example.com", "pw", false))
	assert.Equal(t, "me@example.com", page.Value(EmailInput))
	assert.Equal(t, "pw", page.Value(PasswordInput))
	assert.Equal(t, 1, page.ClickCount(GoogleLogin))
}

func TestLoginAlreadyLoggedIn(t *testing.T) {
	b, page := newBot(t)
	require.NoError(t, b.Login(context.Background(), "me@example.com", "pw", false))
	assert.Zero(t, page.ClickCount(GoogleLogin))
}

func TestManualLoginTimesOut(t *testing.T) {
	b, page := newBot(t)
	page.Hide(Content)
	page.Show(GoogleLogin)

	err := b.Login(context.Background(), "me@example.com", "pw", true)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Zero(t, page.ClickCount(GoogleLogin), "manual login must not touch the form")
}

func matchListPage(page *browsertest.Page) {
	page.Show(Tab, MatchesTab, MatchPanel, MessagesTab, MessageList)
	page.SetAttrs(MatchLinks, "/app/messages/m111", "/app/likes-you", "/app/my-likes", "/app/messages/m222", "/app/messages/m333/")
	page.SetAttrs(MessageLinks, "/app/messages/m444")
}

func TestChatIDs(t *testing.T) {
	b, page := newBot(t)
	matchListPage(page)

	ids, err := b.ChatIDs(context.Background(), true, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"m111", "m222", "m333", "m444"}, ids)

	ids, err = b.ChatIDs(context.Background(), false, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"m444"}, ids)
	assert.Equal(t, 1, page.ClickCount(MatchesTab))
}

func TestChatIDsWithoutTabs(t *testing.T) {
	b, _ := newBot(t)
	_, err := b.ChatIDs(context.Background(), true, false)
	assert.ErrorIs(t, err, browser.ErrNotFound)
}

func profileFor(url string) map[string]any {
	switch {
	case strings.HasSuffix(url, "m111"):
		return map[string]any{
			"name": " Alex ", "age": "29", "bio": "hi",
			"passions":  []string{"Hiking"},
			"imageUrls": []string{"https://images.example/1.jpg"},
			"rows": []map[string]string{
				{"path": workPath, "value": "Engineer"},
				{"path": homePath, "value": "Lives in Berlin"},
				{"path": locationPath, "value": "3 kilometres away"},
				{"path": "M0", "value": "ignored"},
			},
		}
	case strings.HasSuffix(url, "m333"):
		return map[string]any{"name": "Sam", "age": "", "rows": []map[string]string{
			{"path": locationPath2, "value": "Less than 1 km away"},
		}}
	}
	// m222 fails to render
	return map[string]any{"name": ""}
}

func TestNewMatchesSkipsFailedScrapes(t *testing.T) {
	b, page := newBot(t)
	matchListPage(page)
	scrolls := 0
	page.OnEvaluate = func(p *browsertest.Page, expr string) (any, error) {
		switch {
		case strings.Contains(expr, "scrollTop"):
			scrolls++
			return true, nil
		case strings.Contains(expr, "rows"):
			loc, _ := p.Location(context.Background())
			return profileFor(loc), nil
		}
		return nil, errors.New("unexpected script")
	}

	matches, err := b.NewMatches(context.Background(), 10, true)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	alex := matches[0]
	assert.Equal(t, "m111", alex.ChatID)
	assert.Equal(t, "Alex", alex.Name)
	require.NotNil(t, alex.Age)
	assert.Equal(t, 29, *alex.Age)
	assert.Equal(t, "Engineer", alex.Work)
	assert.Equal(t, "Berlin", alex.Home)
	require.NotNil(t, alex.Distance)
	assert.Equal(t, 3, *alex.Distance)
	assert.False(t, alex.ScrapedAt.IsZero())

	sam := matches[1]
	assert.Equal(t, "m333", sam.ChatID)
	assert.Nil(t, sam.Age)
	require.NotNil(t, sam.Distance)
	assert.Equal(t, 1, *sam.Distance)

	assert.Equal(t, 1, scrolls, "second round brings nothing new")
}

func TestNewMatchesStopsAtAmount(t *testing.T) {
	b, page := newBot(t)
	matchListPage(page)
	page.OnEvaluate = func(p *browsertest.Page, expr string) (any, error) {
		if strings.Contains(expr, "rows") {
			loc, _ := p.Location(context.Background())
			return profileFor(loc), nil
		}
		return true, nil
	}

	matches, err := b.NewMatches(context.Background(), 1, true)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "m111", matches[0].ChatID)
	assert.NotContains(t, page.Navigations, MessagesURL+"m222")
}

func TestMatchFullImageLoad(t *testing.T) {
	b, page := newBot(t)
	page.SetCount(ProfileBullet, 2)
	extra := [][]string{{"https://images.example/1.jpg", "https://images.example/2.jpg"}, {"https://images.example/3.jpg"}}
	calls := 0
	page.OnEvaluate = func(p *browsertest.Page, expr string) (any, error) {
		if strings.Contains(expr, "rows") {
			return profileFor(MessagesURL + "m111"), nil
		}
		urls := extra[calls]
		calls++
		return urls, nil
	}

	m, err := b.Match(context.Background(), "m111", false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://images.example/1.jpg",
		"https://images.example/2.jpg",
		"https://images.example/3.jpg",
	}, m.ImageURLs)
	assert.Equal(t, 2, page.ClickCount(ProfileBullet))
}

func TestGeomatchRetriesUntilNamed(t *testing.T) {
	b, page := newBot(t)
	calls := 0
	page.OnEvaluate = func(_ *browsertest.Page, expr string) (any, error) {
		require.Contains(t, expr, recProfileRoot)
		calls++
		if calls < 2 {
			return map[string]any{"name": ""}, nil
		}
		return map[string]any{"name": "Robin", "age": "31"}, nil
	}

	p, err := b.Geomatch(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "Robin", p.Name)
	assert.Equal(t, 2, calls)
}

func TestGeomatchGivesUp(t *testing.T) {
	b, page := newBot(t)
	page.OnEvaluate = func(*browsertest.Page, string) (any, error) {
		return map[string]any{"name": ""}, nil
	}

	_, err := b.Geomatch(context.Background(), true)
	assert.ErrorIs(t, err, browser.ErrNotFound)
}

func TestParseRows(t *testing.T) {
	d := parseRows([]rawRow{
		{Path: studyPath, Value: " TU Berlin "},
		{Path: genderPath, Value: "Woman"},
		{Path: locationPath, Value: "far away"},
	})
	assert.Equal(t, "TU Berlin", d.study)
	assert.Equal(t, "Woman", d.gender)
	assert.Nil(t, d.distance)

	assert.Equal(t, 12, *parseDistance("12 kilometres away"))
	assert.Equal(t, 1, *parseDistance("Less than 1 km away"))
	assert.Nil(t, parseDistance(""))
}

func TestSendMessage(t *testing.T) {
	b, page := newBot(t)
	page.Show(ChatTextarea)
	page.OnPress = func(p *browsertest.Page, sel, key string) {
		if sel == ChatTextarea && key == browser.KeyEnter {
			p.SetValue(ChatTextarea, "")
		}
	}
	page.OnEvaluate = func(p *browsertest.Page, expr string) (any, error) {
		return p.Value(ChatTextarea), nil
	}

	require.NoError(t, b.SendMessage(context.Background(), "m111", "hello there"))
	assert.Contains(t, page.Navigations, MessagesURL+"m111")
	assert.Equal(t, []string{browser.KeyEnter}, page.Keys)
}

func TestSendMessageNotCleared(t *testing.T) {
	b, page := newBot(t)
	page.Show(ChatTextarea)
	page.OnEvaluate = func(p *browsertest.Page, expr string) (any, error) {
		return p.Value(ChatTextarea), nil
	}

	err := b.SendMessage(context.Background(), "m111", "hello there")
	var terr *verify.TimeoutError[bool]
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, err.Error(), "not sent")
}

func TestUnmatch(t *testing.T) {
	b, page := newBot(t)
	page.Show(UnmatchButton, ConfirmUnmatch)
	page.OnClick = func(p *browsertest.Page, sel string, _ int) {
		if sel == ConfirmUnmatch {
			p.Hide(ConfirmUnmatch)
		}
	}

	require.NoError(t, b.Unmatch(context.Background(), "m111"))
	assert.Equal(t, 1, page.ClickCount(UnmatchButton))
	assert.Equal(t, 1, page.ClickCount(ConfirmUnmatch))
}

func TestScriptsQuoteSelectorsAsJS(t *testing.T) {
	sel := "div[title=\"a\u2028b\"]"
	for _, js := range []string{profileJS(sel), textareaValueJS} {
		assert.NotContains(t, js, "\u2028")
	}
	assert.Contains(t, profileJS(sel), browser.JSString(sel))
	assert.Contains(t, textareaValueJS, browser.JSString(ChatTextarea))

	b, page := newBot(t)
	var got string
	page.OnEvaluate = func(_ *browsertest.Page, expr string) (any, error) {
		got = expr
		return true, nil
	}
	require.NoError(t, b.scrollList(context.Background(), sel))
	assert.Contains(t, got, browser.JSString(sel))
	assert.NotContains(t, got, "\u2028")
}

func TestUnmatchChecksConfirmationWithoutWaiting(t *testing.T) {
	b, page := newBot(t)
	page.Show(UnmatchButton, ConfirmUnmatch)
	page.OnClick = func(p *browsertest.Page, sel string, _ int) {
		if sel == ConfirmUnmatch {
			p.Hide(ConfirmUnmatch)
		}
	}

	require.NoError(t, b.Unmatch(context.Background(), "m111"))
	waits := page.WaitsFor(ConfirmUnmatch)
	require.NotEmpty(t, waits)
	assert.Equal(t, time.Duration(0), waits[len(waits)-1])
}

func TestUnmatchMissingButton(t *testing.T) {
	b, _ := newBot(t)
	err := b.Unmatch(context.Background(), "m111")
	assert.ErrorIs(t, err, browser.ErrNotFound)
}

// slider moves sel pctPer3px percent for every 3px dragged.
func slider(page *browsertest.Page, sel string, start, pctPer3px float64) *float64 {
	pos := start
	page.SetAttr(sel, "style", styleAt(pos))
	prev := page.OnDrag
	page.OnDrag = func(p *browsertest.Page, s string, dx float64) {
		if s != sel {
			if prev != nil {
				prev(p, s, dx)
			}
			return
		}
		pos = min(max(pos+dx/3*pctPer3px, 0), 100)
		p.SetAttr(sel, "style", styleAt(pos))
	}
	return &pos
}

func styleAt(pct float64) string {
	return "left: " + strconv.FormatFloat(pct, 'f', -1, 64) + "%;"
}

func TestDistancePercent(t *testing.T) {
	assert.Equal(t, 100.0, DistancePercent(500))
	assert.Equal(t, 0.0, DistancePercent(1))
	assert.Equal(t, 50.0, DistancePercent(80))
}

func TestSetDistance(t *testing.T) {
	b, page := newBot(t)
	handle := distanceHandles[1]
	page.Show(handle)
	pos := slider(page, handle, 10, 2)

	require.NoError(t, b.SetDistance(context.Background(), 80))
	assert.InDelta(t, 50, *pos, 1)
	for _, d := range page.Drags {
		assert.Equal(t, distanceStep, d.DX)
	}
	assert.Contains(t, page.Navigations, ProfileURL)

	require.NoError(t, b.SetDistance(context.Background(), 1))
	assert.InDelta(t, 0, *pos, 1)
	assert.Equal(t, -distanceStep, page.Drags[len(page.Drags)-1].DX)
}

func TestSetDistanceStuck(t *testing.T) {
	b, page := newBot(t)
	handle := distanceHandles[0]
	page.Show(handle)
	page.SetAttr(handle, "style", "left: 10%;")

	err := b.SetDistance(context.Background(), 80)
	assert.ErrorIs(t, err, ErrSliderStuck)
	assert.Len(t, page.Drags, maxSliderSteps)
}

func TestSetDistanceNoSlider(t *testing.T) {
	b, _ := newBot(t)
	err := b.SetDistance(context.Background(), 80)
	assert.ErrorIs(t, err, browser.ErrNotFound)
}

func TestAgeRange(t *testing.T) {
	cases := []struct{ min, max, lo, hi, wantMin, wantMax int }{
		{25, 27, 18, 68, 23, 29},
		{10, 200, 18, 100, 18, 100},
		{18, 19, 18, 100, 18, 23},
		{20, 21, 18, 20, 18, 20},
	}
	for _, c := range cases {
		gotMin, gotMax := AgeRange(c.min, c.max, c.lo, c.hi)
		assert.Equal(t, c.wantMin, gotMin, "%+v", c)
		assert.Equal(t, c.wantMax, gotMax, "%+v", c)
	}
}

func TestSetAgeRange(t *testing.T) {
	b, page := newBot(t)
	page.Show(MinAgeHandle, MaxAgeHandle)
	page.SetAttr(MaxAgeHandle, "aria-valuemin", "18")
	page.SetAttr(MaxAgeHandle, "aria-valuemax", "68")
	// 5px moves the handle 2 percent, one year on this slider
	minPos := slider(page, MinAgeHandle, 0, 1.2)
	maxPos := slider(page, MaxAgeHandle, 100, 1.2)

	require.NoError(t, b.SetAgeRange(context.Background(), 25, 27))
	assert.InDelta(t, 10, *minPos, 1) // 23 years
	assert.InDelta(t, 22, *maxPos, 1) // 29 years
}

func TestSetGlobal(t *testing.T) {
	b, page := newBot(t)
	page.Show(GlobalToggle)
	page.OnClick = func(p *browsertest.Page, sel string, _ int) {
		if sel == GlobalToggle {
			p.Show(GlobalLanguages)
		}
	}

	require.NoError(t, b.SetGlobal(context.Background(), true))
	require.NoError(t, b.SetGlobal(context.Background(), true))
	assert.Equal(t, 1, page.ClickCount(GlobalToggle))
}

func TestSetBio(t *testing.T) {
	b, page := newBot(t)
	page.Show(ProfileLink, EditProfile, BioTextarea, SaveProfile)

	require.NoError(t, b.SetBio(context.Background(), "new bio"))
	assert.Equal(t, "new bio", page.Value(BioTextarea))
	assert.Equal(t, 1, page.ClickCount(ProfileLink))
	assert.Equal(t, 1, page.ClickCount(SaveProfile))
}

func TestAddPhoto(t *testing.T) {
	b, page := newBot(t)
	page.Show(EditProfile, AddMediaButton, ChoosePhoto, SaveProfile)
	path := filepath.Join(t.TempDir(), "me.jpg")

	require.NoError(t, b.AddPhoto(context.Background(), path))
	assert.Equal(t, []string{path}, page.Files(PhotoInput))
	assert.Equal(t, 1, page.ClickCount(ChoosePhoto))
}

func TestAddPhotoWithoutEditLink(t *testing.T) {
	b, _ := newBot(t)
	err := b.AddPhoto(context.Background(), "me.jpg")
	assert.ErrorIs(t, err, browser.ErrNotFound)
}
