// Package report renders run summaries as e-mail ready HTML and plain text.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/ibeckermayer/uibot/internal/stock"
	"github.com/ibeckermayer/uibot/internal/types"
)

// ErrEmpty is returned when there is nothing to report.
var ErrEmpty = errors.New("nothing to report")

// Builder creates reports from run outcomes
type Builder struct {
	maxMatches int
	template   *template.Template
	now        func() time.Time
}

// New creates a new report builder. At most maxMatches matches are listed.
func New(maxMatches int) (*Builder, error) {
	tmpl, err := template.New("report").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if maxMatches <= 0 {
		maxMatches = 50
	}

	return &Builder{
		maxMatches: maxMatches,
		template:   tmpl,
		now:        time.Now,
	}, nil
}

// Report is a rendered report ready for sending
type Report struct {
	Subject   string
	HTMLBody  string
	PlainBody string
	CreatedAt time.Time
}

// Data is the template data structure
type Data struct {
	Title   string
	Date    string
	Status  string
	OK      bool
	Lines   []string
	Errors  []string
	Matches []MatchData
}

// MatchData represents a match in the report template
type MatchData struct {
	Name     string
	Age      string
	Distance string
	Bio      string
	Image    string
	ChatURL  string
}

// Upload reports an Adobe Stock upload or marking run.
func (b *Builder) Upload(res *stock.Result) (*Report, error) {
	if res == nil {
		return nil, ErrEmpty
	}
	now := b.now()
	status := "failed"
	if res.Success {
		status = "succeeded"
	}
	data := Data{
		Title:  fmt.Sprintf("%s run %s", res.Platform, status),
		Date:   now.Format("Monday, January 2 15:04"),
		Status: status,
		OK:     res.Success,
		Lines: []string{
			fmt.Sprintf("Images uploaded: %d of %d", res.ImagesUploaded, res.ImagesTotal),
			fmt.Sprintf("Metadata applied: %s", yesNo(res.MetadataApplied)),
			fmt.Sprintf("Checkboxes marked: %d", res.CheckboxesMarked),
			fmt.Sprintf("Released: %s", yesNo(res.Released)),
		},
		Errors: res.Errors,
	}
	if len(res.Screenshots) > 0 {
		data.Lines = append(data.Lines, fmt.Sprintf("Screenshots: %d", len(res.Screenshots)))
	}
	subject := fmt.Sprintf("%s upload %s: %d/%d images, %s", res.Platform, status,
		res.ImagesUploaded, res.ImagesTotal, now.Format("Jan 2"))
	return b.render(subject, data, now)
}

// Matches reports newly found matches.
func (b *Builder) Matches(matches []types.RemoteMatch) (*Report, error) {
	if len(matches) == 0 {
		return nil, ErrEmpty
	}
	total := len(matches)
	if total > b.maxMatches {
		matches = matches[:b.maxMatches]
	}

	now := b.now()
	data := Data{
		Title:   fmt.Sprintf("%d new %s", total, plural(total, "match", "matches")),
		Date:    now.Format("Monday, January 2 15:04"),
		OK:      true,
		Matches: make([]MatchData, len(matches)),
	}
	if total > len(matches) {
		data.Lines = []string{fmt.Sprintf("Showing %d of %d", len(matches), total)}
	}
	for i, m := range matches {
		md := MatchData{
			Name:    m.Name,
			Bio:     truncate(m.Bio, 280),
			ChatURL: "https://tinder.com/app/messages/" + m.ChatID,
		}
		if m.Age != nil {
			md.Age = fmt.Sprint(*m.Age)
		}
		if m.Distance != nil {
			md.Distance = fmt.Sprintf("%d km", *m.Distance)
		}
		if len(m.ImageURLs) > 0 {
			md.Image = m.ImageURLs[0]
		}
		data.Matches[i] = md
	}
	return b.render(fmt.Sprintf("Tinder: %s, %s", data.Title, now.Format("Jan 2")), data, now)
}

// Session reports the counters of a swipe session.
func (b *Builder) Session(stats types.SessionStats, runErr error) (*Report, error) {
	now := b.now()
	data := Data{
		Title:  "Swipe session finished",
		Date:   now.Format("Monday, January 2 15:04"),
		Status: "succeeded",
		OK:     runErr == nil,
		Lines:  stats.Summary(),
	}
	if runErr != nil {
		data.Title = "Swipe session failed"
		data.Status = "failed"
		data.Errors = []string{runErr.Error()}
	}
	subject := fmt.Sprintf("Tinder: %d swipes, %d %s, %s", stats.Total(), stats.Matches,
		plural(stats.Matches, "match", "matches"), now.Format("Jan 2"))
	return b.render(subject, data, now)
}

func (b *Builder) render(subject string, data Data, now time.Time) (*Report, error) {
	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return &Report{
		Subject:   subject,
		HTMLBody:  htmlBuf.String(),
		PlainBody: buildPlainText(data),
		CreatedAt: now,
	}, nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func buildPlainText(data Data) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "%s\n%s\n\n", data.Title, data.Date)

	for _, l := range data.Lines {
		fmt.Fprintf(&buf, "%s\n", l)
	}
	if len(data.Errors) > 0 {
		buf.WriteString("\nErrors:\n")
		for _, e := range data.Errors {
			fmt.Fprintf(&buf, "- %s\n", e)
		}
	}
	for i, m := range data.Matches {
		fmt.Fprintf(&buf, "%d. %s", i+1, m.Name)
		if m.Age != "" {
			fmt.Fprintf(&buf, ", %s", m.Age)
		}
		if m.Distance != "" {
			fmt.Fprintf(&buf, " (%s)", m.Distance)
		}
		fmt.Fprintf(&buf, "\n   %s\n", m.ChatURL)
	}
	return buf.String()
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { margin-bottom: 5px; }
        h1.ok { color: #2e7d32; }
        h1.failed { color: #c62828; }
        .date { color: #666; margin-bottom: 20px; }
        .line { margin: 4px 0; }
        .errors { color: #c62828; margin-top: 15px; }
        .match { border-bottom: 1px solid #eee; padding: 15px 0; overflow: hidden; }
        .match:last-child { border-bottom: none; }
        .match img { float: left; width: 64px; height: 64px; object-fit: cover; border-radius: 32px; margin-right: 12px; }
        .name { font-weight: bold; color: #333; }
        .meta { color: #666; font-size: 13px; }
        .bio { margin: 6px 0; line-height: 1.4; }
        .link { color: #fd5564; text-decoration: none; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1 class="{{if .OK}}ok{{else}}failed{{end}}">{{.Title}}</h1>
        <div class="date">{{.Date}}</div>

        {{range .Lines}}<div class="line">{{.}}</div>
        {{end}}

        {{if .Errors}}
        <div class="errors">
            <strong>Errors</strong>
            <ul>{{range .Errors}}<li>{{.}}</li>{{end}}</ul>
        </div>
        {{end}}

        {{range .Matches}}
        <div class="match">
            {{if .Image}}<img src="{{.Image}}" alt="">{{end}}
            <div class="name">{{.Name}}{{if .Age}}, {{.Age}}{{end}}</div>
            {{if .Distance}}<div class="meta">{{.Distance}} away</div>{{end}}
            {{if .Bio}}<div class="bio">{{.Bio}}</div>{{end}}
            <a href="{{.ChatURL}}" class="link">Open chat →</a>
        </div>
        {{end}}

        <div class="footer">Generated by uibot</div>
    </div>
</body>
</html>`
