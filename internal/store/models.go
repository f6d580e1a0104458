package store

import (
	"encoding/json"
	"time"
)

// Run kinds.
const (
	KindAdobeUpload = "adobe_upload"
	KindAdobeMark   = "adobe_mark"
	KindTinderSwipe = "tinder_swipe"
	KindMatches     = "tinder_matches"
)

// Run is one recorded CLI execution. Payload holds the kind-specific result
// as JSON.
type Run struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Success    bool            `json:"success"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
