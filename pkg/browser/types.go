package browser

import (
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session is one launched browser with the tab tubeforge customizes.
type Session struct {
	// Name is the unique identifier for this session
	Name string

	// Browser is nil for persistent-profile sessions, which only own a context
	Browser playwright.Browser

	// Context is the browser context (isolated or persistent profile)
	Context playwright.BrowserContext

	// Page is the customized tab
	Page playwright.Page

	// Headless indicates if the browser is running in headless mode
	Headless bool

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

// Done is closed when the page is closed, by the user or by Shutdown.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

func (s *Session) markClosed() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout sets the default timeout for operations (in milliseconds)
	Timeout float64

	// UserDataDir, when set, launches a persistent profile so logins and
	// site settings survive restarts
	UserDataDir string
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle"
	WaitUntil string

	// Timeout in milliseconds (0 means default)
	Timeout float64
}

// Default values for sessions
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)
