package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/tubeforge/pkg/logging"
	"github.com/entrhq/tubeforge/pkg/page"
)

// NavigationEvent is passed to navigation subscribers.
type NavigationEvent struct {
	// URL is the location after the navigation.
	URL string
	// Initial is true for the synthetic call made on Subscribe.
	Initial bool
}

// NavigationFunc reacts to a navigation.
type NavigationFunc func(ctx context.Context, ev NavigationEvent) error

// Navigation fans one host navigation event out to named subscribers.
//
// The page listener is attached on the first Subscribe and stays attached for
// the lifetime of the session; Unsubscribe only removes the callback.
type Navigation struct {
	event  string
	source page.NavigationSource
	url    func() string
	post   func(func()) bool
	logger *logging.Logger

	attachMu sync.Mutex
	attached bool

	subs subscribers[NavigationFunc]
}

// NavigationOption configures a Navigation signal.
type NavigationOption func(*Navigation)

// WithPoster routes page events through post (normally eventloop.Loop.Post)
// before notifying subscribers.
func WithPoster(post func(func()) bool) NavigationOption {
	return func(n *Navigation) { n.post = post }
}

// WithCurrentURL sets the func used to fill the initial event's URL.
func WithCurrentURL(url func() string) NavigationOption {
	return func(n *Navigation) { n.url = url }
}

// NewNavigation creates a signal for one host navigation event.
func NewNavigation(event string, source page.NavigationSource, logger *logging.Logger, opts ...NavigationOption) *Navigation {
	if logger == nil {
		logger = logging.Discard()
	}
	n := &Navigation{
		event:  event,
		source: source,
		url:    func() string { return "" },
		logger: logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Event returns the host event name this signal follows.
func (n *Navigation) Event() string {
	return n.event
}

// Subscribe stores fn under id, attaching the page listener if this is the
// first use, and calls fn once immediately with Initial set.
func (n *Navigation) Subscribe(ctx context.Context, id string, fn NavigationFunc) error {
	if err := n.attach(ctx); err != nil {
		return err
	}

	n.subs.put(id, fn)

	ev := NavigationEvent{URL: n.url(), Initial: true}
	if err := guard(func() error { return fn(ctx, ev) }); err != nil {
		n.logger.Errorf("%s subscriber %q failed on subscribe: %v", n.event, id, err)
	}
	return nil
}

func (n *Navigation) attach(ctx context.Context) error {
	n.attachMu.Lock()
	defer n.attachMu.Unlock()

	if n.attached {
		return nil
	}
	if n.source != nil {
		err := n.source.OnNavigate(ctx, n.event, func(url string) {
			if n.post == nil {
				n.Notify(context.Background(), url)
				return
			}
			n.post(func() { n.Notify(context.Background(), url) })
		})
		if err != nil {
			return fmt.Errorf("attach %s listener: %w", n.event, err)
		}
	}
	n.attached = true
	n.logger.Debugf("%s listener attached", n.event)
	return nil
}

// Unsubscribe removes id. The page listener stays attached.
func (n *Navigation) Unsubscribe(id string) {
	n.subs.remove(id)
}

// Notify calls every subscriber in registration order.
func (n *Navigation) Notify(ctx context.Context, url string) {
	ev := NavigationEvent{URL: url}
	dispatch(ctx, n.logger, n.event, n.subs.snapshot(), func(fn NavigationFunc) error {
		return fn(ctx, ev)
	})
}

// Attached reports whether the page listener has been attached.
func (n *Navigation) Attached() bool {
	n.attachMu.Lock()
	defer n.attachMu.Unlock()
	return n.attached
}

// Len returns the number of subscribers.
func (n *Navigation) Len() int {
	return n.subs.len()
}

// Subscribers returns subscriber ids in registration order.
func (n *Navigation) Subscribers() []string {
	return n.subs.ids()
}
