package tinder

// Tinder web DOM selectors.
// These are kept in one place because the web app reshuffles its markup often.
// Update these when a flow stops finding things.

const (
	HomeURL     = "https://tinder.com/app/recs"
	ProfileURL  = "https://tinder.com/app/profile"
	MessagesURL = "https://tinder.com/app/messages/"

	// App shell; present once logged in
	Content      = `//div[@id="content"]`
	ModalManager = `//div[@id="modal-manager"]`

	// Login
	LoginButton   = `//a[.//div[normalize-space(.)="Log in"]] | //a[normalize-space(.)="Log in"]`
	GoogleLogin   = `//*[@aria-label="Log in with Google"]`
	EmailInput    = `//input[@type="email"]`
	PasswordInput = `//input[@type="password"]`

	// Recommendation card and swipe buttons
	RecCard         = `//div[contains(@class, "recsCardboard")]`
	LikeButton      = `//button[.//span[normalize-space(.)="Like"]]`
	DislikeButton   = `//button[.//span[normalize-space(.)="Nope"]]`
	SuperlikeButton = `//button[.//span[normalize-space(.)="Super Like"]]`

	// Match list
	Tab          = `//button[@role="tab"]`
	MatchesTab   = `//button[@role="tab"][normalize-space(.)="Matches"]`
	MessagesTab  = `//button[@role="tab"][normalize-space(.)="Messages"]`
	MatchPanel   = `//div[@role="tabpanel"]`
	MatchLinks   = `//div[@role="tabpanel"]//div/div/a`
	MessageList  = `//div[@class="messageList"]`
	MessageLinks = `//div[@class="messageList"]//a`

	// Chat
	ChatTextarea   = `//textarea`
	ProfileBullet  = `//button[contains(@class, "bullet")]`
	UnmatchButton  = `//button[normalize-space(.)="Unmatch"]`
	ConfirmUnmatch = ModalManager + `/div/div/div[2]/button[1]`

	// Preferences
	ProfileLink     = `//*[@href="/app/profile"]`
	MinAgeHandle    = `//*[@aria-label="Minimum age"]`
	MaxAgeHandle    = `//*[@aria-label="Maximum age"]`
	GlobalLanguages = `//*[@href="/app/settings/global/languages"]/div`
	GlobalToggle    = `//*[@name="global"]`

	// Profile editing
	EditProfile    = `//a[@href="/app/profile/edit"]`
	BioTextarea    = Content + `//main//textarea`
	AddMediaButton = Content + `//main//span/button`
	PhotoInput     = ModalManager + `//input[@type="file"]`
	ChoosePhoto    = ModalManager + `/div/div/div[1]/div[1]/button[2]`
	SaveProfile    = `//main//a[normalize-space(.)="Done"]`

	// Popups
	DenyLikedYou   = ModalManager + `//main/div/div/div[3]/button[2]`
	DenyUpgrade    = ModalManager + `//main/div/button[2]`
	DenyHomescreen = ModalManager + `//main/div/div[2]/button[2]`
	DenySuperlikes = ModalManager + `//main/div/div[3]/button[2]`
	BackToTinder   = `//button[@title="Back to Tinder"]`
	RemindLater    = ModalManager + `//main/div/div[1]/div[2]/button[2]`
	NoThanks       = ModalManager + `//*[contains(text(), "No Thanks")]`
)

// distanceHandles covers the unit and spelling variants of the distance slider.
var distanceHandles = []string{
	`//*[@aria-label="Maximum distance in kilometres"]`,
	`//*[@aria-label="Maximum distance in kilometers"]`,
	`//*[@aria-label="Maximum distance in miles"]`,
}

// SVG path signatures of the profile info rows.
const (
	workPath      = "M7.15 3.434h5.7V1.452a.728.728 0 0 0-.724-.732H7.874a.737.737 0 0 0-.725.732v1.982z"
	studyPath     = "M11.87 5.026L2.186 9.242c-.25.116-.25.589 0 .705l.474.204v2.622a.78.78 0 0 0-.344.657c0 .42.313.767.69.767.378 0 .692-.348.692-.767a.78.78 0 0 0-.345-.657v-2.322l2.097.921a.42.42 0 0 0-.022.144v3.83c0 .45.27.801.626 1.101.358.302.842.572 1.428.804 1.172.46 2.755.776 4.516.776 1.763 0 3.346-.317 4.518-.777.586-.23 1.07-.501 1.428-.803.355-.3.626-.65.626-1.1v-3.83a.456.456 0 0 0-.022-.145l3.264-1.425c.25-.116.25-.59 0-.705L12.13 5.025c-.082-.046-.22-.017-.26 0v.001zm.13.767l8.743 3.804L12 13.392 3.257 9.599l8.742-3.806zm-5.88 5.865l5.75 2.502a.319.319 0 0 0 .26 0l5.75-2.502v3.687c0 .077-.087.262-.358.491-.372.29-.788.52-1.232.68-1.078.426-2.604.743-4.29.743s-3.212-.317-4.29-.742c-.444-.161-.86-.39-1.232-.68-.273-.23-.358-.415-.358-.492v-3.687z"
	homePath      = "M19.695 9.518H4.427V21.15h15.268V9.52zM3.109 9.482h17.933L12.06 3.709 3.11 9.482z"
	locationPath  = "M11.436 21.17l-.185-.165a35.36 35.36 0 0 1-3.615-3.801C5.222 14.244 4 11.658 4 9.524 4 5.305 7.267 2 11.436 2c4.168 0 7.437 3.305 7.437 7.524 0 4.903-6.953 11.214-7.237 11.48l-.2.167zm0-18.683c-3.869 0-6.9 3.091-6.9 7.037 0 4.401 5.771 9.927 6.897 10.972 1.12-1.054 6.902-6.694 6.902-10.95.001-3.968-3.03-7.059-6.9-7.059h.001z"
	locationPath2 = "M11.445 12.5a2.945 2.945 0 0 1-2.721-1.855 3.04 3.04 0 0 1 .641-3.269 2.905 2.905 0 0 1 3.213-.645 3.003 3.003 0 0 1 1.813 2.776c-.006 1.653-1.322 2.991-2.946 2.993zm0-5.544c-1.378 0-2.496 1.139-2.498 2.542 0 1.404 1.115 2.544 2.495 2.546a2.52 2.52 0 0 0 2.502-2.535 2.527 2.527 0 0 0-2.499-2.545v-.008z"
	genderPath    = "M15.507 13.032c1.14-.952 1.862-2.656 1.862-5.592C17.37 4.436 14.9 2 11.855 2 8.81 2 6.34 4.436 6.34 7.44c0 3.07.786 4.8 2.02 5.726-2.586 1.768-5.054 4.62-4.18 6.204 1.88 3.406 14.28 3.606 15.726 0 .686-1.71-1.828-4.608-4.4-6.338"
)
