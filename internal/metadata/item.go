// Package metadata describes the images of an upload batch: discovery on
// disk, the metadata CSV the portal ingests, and generation of titles and
// keywords.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Portal limits.
const (
	MaxKeywords    = 49
	MaxTitleLength = 200
)

// ErrNoImages is returned when a directory holds no supported images.
var ErrNoImages = errors.New("no images found")

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// UploadItem is one image with its metadata. Build it with NewItem or
// With* so the keyword slice is never shared.
type UploadItem struct {
	Path        string
	Title       string
	Keywords    []string
	Category    int
	AIGenerated bool
	Fictional   bool
}

// NewItem creates an item for path with both flags set.
func NewItem(path string) UploadItem {
	return UploadItem{Path: path, AIGenerated: true, Fictional: true}
}

// Filename is the base name the portal shows and the CSV keys on.
func (it UploadItem) Filename() string { return filepath.Base(it.Path) }

// WithMetadata returns a copy carrying title, keywords and category.
func (it UploadItem) WithMetadata(title string, keywords []string, category int) UploadItem {
	it.Title = title
	it.Keywords = append([]string(nil), keywords...)
	it.Category = category
	return it
}

// Validate checks the item against the portal limits.
func (it UploadItem) Validate() error {
	if !IsImage(it.Path) {
		return fmt.Errorf("%s: unsupported image type", it.Filename())
	}
	if len(it.Title) > MaxTitleLength {
		return fmt.Errorf("%s: title longer than %d characters", it.Filename(), MaxTitleLength)
	}
	if len(it.Keywords) > MaxKeywords {
		return fmt.Errorf("%s: %d keywords, at most %d allowed", it.Filename(), len(it.Keywords), MaxKeywords)
	}
	return nil
}

// ScanDir returns one item per supported image in dir, sorted by filename.
func ScanDir(dir string) ([]UploadItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImage(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	sort.Strings(names)

	items := make([]UploadItem, len(names))
	for i, n := range names {
		items[i] = NewItem(filepath.Join(dir, n))
	}
	return items, nil
}

// Paths returns the file paths of items, in order.
func Paths(items []UploadItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path
	}
	return out
}
