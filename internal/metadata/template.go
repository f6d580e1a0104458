package metadata

import "context"

// DefaultCategory is the portal's "Abstract" category.
const DefaultCategory = 11

var templateTitles = []string{
	"Abstract Digital Art Background",
	"AI Generated Creative Pattern",
	"Modern Technology Concept Design",
	"Futuristic Digital Illustration",
	"Colorful Abstract Composition",
	"Geometric AI Art Pattern",
	"Creative Digital Background",
	"Abstract Technology Visualization",
	"Modern AI Generated Design",
	"Digital Art Creative Concept",
}

var templateKeywords = [][]string{
	{"abstract", "digital art", "technology", "background", "modern", "futuristic", "colorful", "artistic", "creative", "design"},
	{"ai generated", "pattern", "geometric", "creative", "modern", "abstract", "design", "vibrant", "colorful", "innovative"},
	{"technology", "innovation", "digital", "modern", "concept", "futuristic", "abstract", "business", "creative", "design"},
	{"abstract", "digital", "background", "modern", "colorful", "artistic", "design", "creative", "technology", "pattern"},
	{"geometric", "pattern", "abstract", "modern", "design", "creative", "colorful", "digital", "art", "background"},
	{"digital art", "abstract", "creative", "modern", "technology", "design", "colorful", "futuristic", "artistic", "pattern"},
	{"modern", "abstract", "digital", "technology", "creative", "design", "colorful", "background", "artistic", "concept"},
	{"ai art", "digital", "abstract", "creative", "modern", "colorful", "pattern", "design", "technology", "background"},
	{"abstract", "modern", "digital", "creative", "technology", "colorful", "design", "pattern", "artistic", "futuristic"},
	{"digital", "abstract", "modern", "creative", "technology", "design", "colorful", "pattern", "artistic", "background"},
}

// TemplateProvider rotates through fixed generic titles and keyword sets.
type TemplateProvider struct {
	Category int
}

func (t TemplateProvider) Describe(_ context.Context, items []UploadItem) ([]Row, error) {
	rows := make([]Row, len(items))
	for i, it := range items {
		rows[i] = t.row(i, it)
	}
	return rows, nil
}

func (t TemplateProvider) row(i int, it UploadItem) Row {
	cat := t.Category
	if cat == 0 {
		cat = DefaultCategory
	}
	return Row{
		Filename: it.Filename(),
		Title:    templateTitles[i%len(templateTitles)],
		Keywords: append([]string(nil), templateKeywords[i%len(templateKeywords)]...),
		Category: cat,
	}
}
