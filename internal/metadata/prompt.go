package metadata

import (
	"encoding/json"
	"fmt"
	"strings"
)

// describeResult is the JSON shape the model is asked to return.
type describeResult struct {
	Filename string   `json:"filename"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
	Category int      `json:"category"`
}

// ParseDescribeResponse parses the model's JSON array into rows.
func ParseDescribeResponse(jsonBytes []byte, defaultCategory int) ([]Row, error) {
	var results []describeResult
	if err := json.Unmarshal(jsonBytes, &results); err != nil {
		return nil, fmt.Errorf("failed to parse metadata JSON: %w (response was: %.500s)", err, string(jsonBytes))
	}

	rows := make([]Row, 0, len(results))
	for _, r := range results {
		if r.Filename == "" {
			continue
		}
		cat := r.Category
		if cat <= 0 {
			cat = defaultCategory
		}
		var kw []string
		for _, k := range r.Keywords {
			if k = strings.TrimSpace(k); k != "" {
				kw = append(kw, k)
			}
		}
		rows = append(rows, Row{
			Filename: r.Filename,
			Title:    strings.TrimSpace(r.Title),
			Keywords: kw,
			Category: cat,
		})
	}
	return rows, nil
}

// buildPrompt constructs the instructions sent alongside the images.
func buildPrompt(items []UploadItem, category int, attached map[string]bool) string {
	var sb strings.Builder

	sb.WriteString("You are writing stock photo metadata for AI-generated images submitted to Adobe Stock.\n\n")

	sb.WriteString("## Images\n\n")
	for i, it := range items {
		sb.WriteString(fmt.Sprintf("%d. %s", i+1, it.Filename()))
		if !attached[it.Filename()] {
			sb.WriteString(" (image not attached, infer from the filename)")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n## Task\n\n")
	sb.WriteString("For each image, provide:\n")
	sb.WriteString(fmt.Sprintf("1. title (string, at most %d characters): a factual, descriptive title without brand names\n", MaxTitleLength))
	sb.WriteString(fmt.Sprintf("2. keywords (array, 15 to %d entries): most relevant first, lowercase, no duplicates\n", MaxKeywords))
	sb.WriteString(fmt.Sprintf("3. category (integer): the Adobe Stock category number; use %d if unsure\n\n", category))

	sb.WriteString("IMPORTANT: Respond with ONLY a valid JSON array. No markdown, no code blocks, no explanation - just the raw JSON starting with [ and ending with ].\n\n")
	sb.WriteString("Example structure:\n")
	sb.WriteString(`[{"filename": "image_001.png", "title": "Abstract blue waves", "keywords": ["abstract", "blue", "waves"], "category": 11}]`)
	sb.WriteString("\n")

	return sb.String()
}
