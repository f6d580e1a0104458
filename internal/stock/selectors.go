package stock

// Adobe Stock contributor portal selectors.
// These are isolated here because the portal's DOM changes without notice.
// Text-bearing controls are located through the phrase table instead.

const (
	// AuthHost is where unauthenticated sessions are redirected.
	AuthHost = "auth.services.adobe.com"

	// Login form (auth host)
	EmailInput    = `input[name='email']`
	PasswordInput = `input[name='password']`

	// Upload page
	ImageFileInput  = `input[type='file'][accept*='image']`
	AnyFileInput    = `input[type='file']`
	CSVFileInput    = `input[type='file'][accept*='csv']`
	DialogFileInput = `[role='dialog'] input[type='file'], dialog input[type='file']`

	// Review grid and detail panel
	Thumbnail = `[role="option"]`
	Checkbox  = `input[type="checkbox"]`

	// Overlays
	CookieAccept = `#onetrust-accept-btn-handler`
)

// File-input candidates, tried in order until one accepts the files.
var (
	imageInputs = []string{ImageFileInput, AnyFileInput}
	csvInputs   = []string{CSVFileInput, DialogFileInput}
)
