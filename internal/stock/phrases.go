package stock

import "strings"

// Intent names a UI element or notice located by its visible text.
type Intent string

const (
	IntentFileTypes     Intent = "file_types"
	IntentCSVButton     Intent = "csv_button"
	IntentCSVDialog     Intent = "csv_dialog"
	IntentCSVProcessing Intent = "csv_processing"
	IntentCSVApplied    Intent = "csv_applied"
	IntentCSVRefresh    Intent = "csv_refresh"
	IntentAIGenerated   Intent = "ai_generated"
	IntentFictional     Intent = "fictional"
	IntentSaveChanges   Intent = "save_changes"
	IntentSubmit        Intent = "submit"
)

// FallbackLocale is consulted after the configured locale.
const FallbackLocale = "en"

// Phrases maps locale -> intent -> candidate phrases, most specific first.
type Phrases map[string]map[Intent][]string

// DefaultPhrases covers the German and English portal.
var DefaultPhrases = Phrases{
	"de": {
		IntentFileTypes:     {"Dateitypen"},
		IntentCSVButton:     {"CSV hochladen"},
		IntentCSVDialog:     {"CSV-Datei mit Metadaten hochladen"},
		IntentCSVProcessing: {"Deine CSV-Datei wird verarbeitet"},
		IntentCSVApplied:    {"Daten aus deiner CSV-Datei wurden auf die zugehörigen Dateien angewendet"},
		IntentCSVRefresh:    {"Zum Anzeigen der Änderungen"},
		IntentAIGenerated:   {"Mit generativen KI-Tools erstellt", "generativen KI-Tools"},
		IntentFictional:     {"Menschen und Eigentum sind fiktiv"},
		IntentSaveChanges:   {"Änderungen speichern"},
		IntentSubmit:        {"Dateien einreichen", "Einreichen"},
	},
	"en": {
		IntentFileTypes:     {"File types"},
		IntentCSVButton:     {"Upload CSV"},
		IntentCSVDialog:     {"Upload a CSV file with metadata", "CSV file"},
		IntentCSVProcessing: {"Your CSV file is being processed"},
		IntentCSVApplied:    {"Data from your CSV file has been applied", "has been applied"},
		IntentCSVRefresh:    {"Refresh to see the changes", "to see the changes"},
		IntentAIGenerated:   {"Created using generative AI tools", "generative AI", "AI generated"},
		IntentFictional:     {"People and Property are fictional", "fictional"},
		IntentSaveChanges:   {"Save changes", "Save work"},
		IntentSubmit:        {"Submit files", "Submit for review", "Send for review", "Submit", "Release"},
	},
}

// NormalizeLocale reduces "de-DE" or "de_AT" to "de".
func NormalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		locale = locale[:i]
	}
	return locale
}

// Lookup returns the phrases for intent in locale followed by the fallback
// locale's, without duplicates.
func (p Phrases) Lookup(locale string, intent Intent) []string {
	var out []string
	seen := map[string]bool{}
	for _, loc := range []string{NormalizeLocale(locale), FallbackLocale} {
		for _, ph := range p[loc][intent] {
			if !seen[ph] {
				seen[ph] = true
				out = append(out, ph)
			}
		}
	}
	return out
}
