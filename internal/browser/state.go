package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ibeckermayer/uibot/internal/auth"
)

// CaptureState extracts all cookies and the current origin's localStorage.
func (s *Session) CaptureState(ctx context.Context) (*auth.State, error) {
	st := &auth.State{CapturedAt: time.Now()}

	var origin auth.Origin
	err := s.run(ctx, actionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := storage.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			for _, c := range cookies {
				st.Cookies = append(st.Cookies, storedCookie(c))
			}
			return nil
		}),
		chromedp.Evaluate(`({
			origin: location.origin,
			localStorage: Object.keys(localStorage).map(k => ({name: k, value: localStorage.getItem(k)}))
		})`, &origin),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture storage state: %w", err)
	}

	if origin.Origin != "" && origin.Origin != "null" && len(origin.LocalStorage) > 0 {
		st.Origins = append(st.Origins, origin)
	}
	return st, nil
}

func storedCookie(c *network.Cookie) auth.Cookie {
	exp := c.Expires
	if c.Session || exp <= 0 {
		exp = -1
	}
	return auth.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  exp,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: string(c.SameSite),
	}
}

// restoreState sets cookies immediately and installs a script that seeds
// localStorage when a saved origin loads.
func restoreState(st *auth.State) []chromedp.Action {
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range st.Cookies {
				if err := cookieParams(c).Do(ctx); err != nil {
					return fmt.Errorf("failed to restore cookie %s: %w", c.Name, err)
				}
			}
			return nil
		}),
	}
	if script := localStorageScript(st.Origins); script != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
	}
	return actions
}

func localStorageScript(origins []auth.Origin) string {
	if len(origins) == 0 {
		return ""
	}
	byOrigin := make(map[string]map[string]string, len(origins))
	for _, o := range origins {
		kv := make(map[string]string, len(o.LocalStorage))
		for _, e := range o.LocalStorage {
			kv[e.Name] = e.Value
		}
		byOrigin[o.Origin] = kv
	}
	data, err := json.Marshal(byOrigin)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`(() => {
		const saved = %s[location.origin];
		if (!saved) return;
		for (const [k, v] of Object.entries(saved)) {
			if (localStorage.getItem(k) === null) localStorage.setItem(k, v);
		}
	})();`, data)
}
