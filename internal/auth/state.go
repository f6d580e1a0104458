// Package auth persists authenticated browser state between runs so a
// login only has to happen once.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNotFound means no state has been saved yet; log in interactively.
	ErrNotFound = errors.New("no saved auth state")
	// ErrPersist means the state could not be written.
	ErrPersist = errors.New("failed to persist auth state")
)

// State is a snapshot of cookies and per-origin localStorage, stored in the
// same JSON shape as a Playwright storage-state file.
type State struct {
	Cookies    []Cookie  `json:"cookies"`
	Origins    []Origin  `json:"origins"`
	CapturedAt time.Time `json:"captured_at"`
}

// Cookie is one stored cookie. Expires is in Unix seconds, -1 for a session
// cookie. SameSite is "Strict", "Lax", "None" or empty.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Session reports whether c ends with the browser session.
func (c Cookie) Session() bool { return c.Expires <= 0 }

// Origin holds the localStorage entries of one origin.
type Origin struct {
	Origin       string  `json:"origin"`
	LocalStorage []Entry `json:"localStorage"`
}

// Entry is one localStorage key/value.
type Entry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HasAuth reports whether the state carries anything a site could use to
// recognise the session.
func (s *State) HasAuth() bool {
	return s != nil && len(s.Cookies) > 0
}

// CookiesFor returns cookies whose domain matches host.
func (s *State) CookiesFor(host string) []Cookie {
	var out []Cookie
	for _, c := range s.Cookies {
		d := strings.TrimPrefix(c.Domain, ".")
		if host == d || strings.HasSuffix(host, "."+d) {
			out = append(out, c)
		}
	}
	return out
}

// Store reads and writes a State as JSON at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store at the given path
func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Save writes state with owner-only permissions. A state without cookies
// is refused so a logged-out session never overwrites a good one.
func (s *Store) Save(state *State) error {
	if !state.HasAuth() {
		return fmt.Errorf("%w: session has no cookies", ErrPersist)
	}
	if state.CapturedAt.IsZero() {
		state.CapturedAt = time.Now()
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	// Write then rename so a crash never leaves a truncated file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// Load reads the saved state. It returns ErrNotFound when nothing was saved.
func (s *Store) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt auth state %s: %w", s.path, err)
	}
	return &state, nil
}

// Exists reports whether a usable state is on disk.
func (s *Store) Exists() bool {
	st, err := s.Load()
	return err == nil && st.HasAuth()
}

// Clear removes the saved state. Clearing a missing state is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
