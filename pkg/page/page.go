// Package page describes the slice of the host page that features act on.
//
// Implementations live in package browser (a live Playwright tab) and
// page/pagetest (an in-memory document for tests). The interfaces are kept
// narrow so a feature only sees the operations it needs.
package page

import (
	"context"
	"errors"
)

// ErrDetached is returned when an element or style no longer belongs to the
// live document.
var ErrDetached = errors.New("page: node detached")

// Element is a handle to one host-page node. Handles have no stable identity
// across reflows; callers re-query instead of caching them, and Release every
// handle they obtain once done with it.
type Element interface {
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	SetAttribute(ctx context.Context, name, value string) error
	RemoveAttribute(ctx context.Context, name string) error
	Remove(ctx context.Context) error
	// Release frees the handle. The node itself is untouched. Releasing
	// twice is a no-op.
	Release()
}

// Release frees every handle in els.
func Release(els []Element) {
	for _, el := range els {
		el.Release()
	}
}

// Style is an injected stylesheet owned by exactly one feature.
type Style interface {
	// ID is the owner tag written on the style node.
	ID() string
	// Remove detaches the stylesheet. Removing twice is a no-op.
	Remove(ctx context.Context) error
}

// Querier finds elements by CSS selector.
type Querier interface {
	// Query returns the first match, or nil when nothing matches.
	Query(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)
}

// Document is the live host document.
type Document interface {
	Querier

	// URL returns the current location.
	URL() string

	// InjectStyle appends a stylesheet tagged with id.
	InjectStyle(ctx context.Context, id, css string) (Style, error)

	// Evaluate runs a script function expression with one argument.
	Evaluate(ctx context.Context, script string, arg any) (any, error)

	// Screenshot captures the first element matching selector as PNG.
	Screenshot(ctx context.Context, selector string) ([]byte, error)

	// Bind exposes fn to page script as window[name]. Binding a name again
	// replaces the Go callback.
	Bind(ctx context.Context, name string, fn func(args ...any)) error
}

// Player controls the main media element.
type Player interface {
	CurrentTime(ctx context.Context) (float64, error)
	Seek(ctx context.Context, seconds float64) error
	SetMuted(ctx context.Context, muted bool) error
	SetPlaybackRate(ctx context.Context, rate float64) error
}

// Navigation events fired by the host single-page application.
const (
	EventNavigateStart  = "yt-navigate-start"
	EventNavigateFinish = "yt-navigate-finish"
)

// NavigationSource attaches listeners for host navigation events.
type NavigationSource interface {
	// OnNavigate registers fn for event. Each call attaches one more listener.
	OnNavigate(ctx context.Context, event string, fn func(url string)) error
}

// ObserveOptions configures a DOM mutation observer on the document root.
type ObserveOptions struct {
	Subtree         bool
	ChildList       bool
	AttributeFilter []string
}

// MutationSource starts DOM mutation observers.
type MutationSource interface {
	// Observe starts an observer that calls onBatch once per mutation batch.
	// The returned stop func disconnects it.
	Observe(ctx context.Context, opts ObserveOptions, onBatch func()) (stop func(context.Context) error, err error)
}
