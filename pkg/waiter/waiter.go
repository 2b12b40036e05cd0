// Package waiter polls the host document until a selector matches.
package waiter

import (
	"context"
	"sync"
	"time"

	"github.com/entrhq/tubeforge/pkg/logging"
	"github.com/entrhq/tubeforge/pkg/page"
)

// Default values for polling
const (
	DefaultInterval = 100 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// Scheduler runs fn every d until stop is called. eventloop.Loop satisfies it.
type Scheduler interface {
	Every(d time.Duration, fn func()) (stop func())
}

// Waiter runs best-effort waits for host elements. A wait that times out is
// not an error: the host page may never render the element.
type Waiter struct {
	doc      page.Querier
	sched    Scheduler
	interval time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Waiter) { w.now = now }
}

// New creates a waiter that queries doc on sched.
func New(doc page.Querier, sched Scheduler, logger *logging.Logger, opts ...Option) *Waiter {
	if logger == nil {
		logger = logging.Discard()
	}
	w := &Waiter{
		doc:      doc,
		sched:    sched,
		interval: DefaultInterval,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WaitFor polls for selector and calls onFound exactly once with the first
// match. The element is released when onFound returns. When timeout (DefaultTimeout if zero) passes without a match, or ctx
// is done, polling stops and onFound is never called. The returned cancel
// stops the wait early and may be called any number of times.
//
// Waits are independent: two waits on the same selector each poll and each
// get their own callback.
func (w *Waiter) WaitFor(ctx context.Context, selector string, onFound func(page.Element), timeout time.Duration) (cancel func()) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := w.now().Add(timeout)

	var (
		mu     sync.Mutex
		done   bool
		stopFn func()
	)
	finish := func() bool {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return false
		}
		done = true
		if stopFn != nil {
			stopFn()
		}
		return true
	}

	tick := func() {
		mu.Lock()
		finished := done
		mu.Unlock()
		if finished {
			return
		}

		if ctx.Err() != nil {
			finish()
			return
		}
		// An element that shows up after the deadline is never reported.
		if !w.now().Before(deadline) {
			if finish() {
				w.logger.Debugf("wait for %q: gave up after %s", selector, timeout)
			}
			return
		}

		el, err := w.doc.Query(ctx, selector)
		if err != nil {
			w.logger.Debugf("wait for %q: query failed: %v", selector, err)
		}
		if el != nil {
			if finish() {
				onFound(el)
			}
			el.Release()
		}
	}

	stop := w.sched.Every(w.interval, tick)

	mu.Lock()
	if done {
		mu.Unlock()
		stop()
	} else {
		stopFn = stop
		mu.Unlock()
	}

	return func() { finish() }
}
