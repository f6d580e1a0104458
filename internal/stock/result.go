package stock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ibeckermayer/uibot/internal/store"
)

// Platform is the value of Result.Platform.
const Platform = "Adobe Stock"

// ErrAlreadySaved is returned by a second Result.Save.
var ErrAlreadySaved = errors.New("result already saved")

// Result is the outcome of one upload batch. It is written once, as JSON,
// at the end of the run.
type Result struct {
	RunID            string    `json:"run_id"`
	Success          bool      `json:"success"`
	ImagesUploaded   int       `json:"images_uploaded"`
	ImagesTotal      int       `json:"images_total"`
	MetadataApplied  bool      `json:"metadata_applied"`
	CheckboxesMarked int       `json:"checkboxes_marked"`
	Released         bool      `json:"released"`
	Errors           []string  `json:"errors"`
	Screenshots      []string  `json:"screenshots"`
	Timestamp        time.Time `json:"timestamp"`
	Platform         string    `json:"platform"`

	mu    sync.Mutex
	saved bool
}

// NewResult creates an empty, unsuccessful result for total images.
func NewResult(total int) *Result {
	return &Result{
		RunID:       store.NewRunID(),
		ImagesTotal: total,
		Errors:      []string{},
		Screenshots: []string{},
		Timestamp:   time.Now(),
		Platform:    Platform,
	}
}

// AddError records a failed step.
func (r *Result) AddError(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) addScreenshot(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Screenshots = append(r.Screenshots, path)
}

// Save writes the result to path. Only the first call writes.
func (r *Result) Save(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved {
		return ErrAlreadySaved
	}
	if err := store.SaveJSON(path, r); err != nil {
		return err
	}
	r.saved = true
	return nil
}
