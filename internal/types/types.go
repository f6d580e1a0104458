package types

import (
	"fmt"
	"time"
)

// RemoteProfile is a read-only snapshot of a profile as shown by the remote UI.
type RemoteProfile struct {
	Name      string    `json:"name"`
	Age       *int      `json:"age,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Passions  []string  `json:"passions,omitempty"`
	ImageURLs []string  `json:"image_urls,omitempty"`
	Work      string    `json:"work,omitempty"`
	Study     string    `json:"study,omitempty"`
	Home      string    `json:"home,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Distance  *int      `json:"distance_km,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// RemoteMatch is a profile reachable through a chat.
type RemoteMatch struct {
	ChatID string `json:"chat_id"`
	RemoteProfile
}

// SessionStats counts actions performed during one session.
type SessionStats struct {
	Likes      int       `json:"likes"`
	Dislikes   int       `json:"dislikes"`
	Superlikes int       `json:"superlikes"`
	Matches    int       `json:"matches"`
	Uploads    int       `json:"uploads"` // images confirmed by the portal counter
	Started    time.Time `json:"started"`
}

// Summary renders the counters as printable lines.
func (s SessionStats) Summary() []string {
	var lines []string
	// an upload session has no swipes to report
	if s.Total() > 0 || s.Uploads == 0 {
		lines = append(lines,
			fmt.Sprintf("Likes: %d", s.Likes),
			fmt.Sprintf("Dislikes: %d", s.Dislikes),
			fmt.Sprintf("Superlikes: %d", s.Superlikes),
		)
	}
	if s.Matches > 0 {
		lines = append(lines, fmt.Sprintf("Matches: %d", s.Matches))
	}
	if s.Uploads > 0 {
		lines = append(lines, fmt.Sprintf("Uploads: %d", s.Uploads))
	}
	if !s.Started.IsZero() {
		lines = append(lines, fmt.Sprintf("Duration: %s", time.Since(s.Started).Round(time.Second)))
	}
	return lines
}

// Total is the number of swipes.
func (s SessionStats) Total() int { return s.Likes + s.Dislikes + s.Superlikes }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
