package signal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/entrhq/tubeforge/pkg/logging"
	"github.com/entrhq/tubeforge/pkg/page"
)

// ObservedAttributes are the attributes whose changes count as mutations:
// player, theater and fullscreen state plus the attributes features rewrite.
var ObservedAttributes = []string{
	"theater",
	"fullscreen",
	"hidden",
	"player-state",
	"class",
	"src",
	"href",
}

// MutationFunc reacts to a batch of DOM mutations. Callbacks run many times
// per second on a busy page and must be cheap and idempotent.
type MutationFunc func(ctx context.Context, doc page.Document) error

// Mutation fans one shared DOM mutation observer out to named subscribers.
//
// The observer is started when the first subscriber registers and stopped
// as soon as the last one leaves.
type Mutation struct {
	source page.MutationSource
	doc    page.Document
	post   func(func()) bool
	logger *logging.Logger

	// lifecycle serializes observer start/stop against the subscriber count.
	lifecycle sync.Mutex
	stop      func(context.Context) error

	subs subscribers[MutationFunc]

	// queued is set while a posted Notify has not started yet.
	queued atomic.Bool
}

// MutationOption configures a Mutation signal.
type MutationOption func(*Mutation)

// WithMutationPoster routes observer batches through post before notifying.
func WithMutationPoster(post func(func()) bool) MutationOption {
	return func(m *Mutation) { m.post = post }
}

// NewMutation creates the mutation signal over doc.
func NewMutation(source page.MutationSource, doc page.Document, logger *logging.Logger, opts ...MutationOption) *Mutation {
	if logger == nil {
		logger = logging.Discard()
	}
	m := &Mutation{
		source: source,
		doc:    doc,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe stores fn under id, starting the shared observer when id is the
// first subscriber, and calls fn once immediately. When the observer cannot
// be started the subscription is not stored.
func (m *Mutation) Subscribe(ctx context.Context, id string, fn MutationFunc) error {
	m.lifecycle.Lock()
	if m.stop == nil {
		stop, err := m.source.Observe(ctx, page.ObserveOptions{
			Subtree:         true,
			ChildList:       true,
			AttributeFilter: ObservedAttributes,
		}, m.onBatch)
		if err != nil {
			m.lifecycle.Unlock()
			return fmt.Errorf("start mutation observer: %w", err)
		}
		m.stop = stop
		m.logger.Debugf("mutation observer started for %q", id)
	}
	m.subs.put(id, fn)
	m.lifecycle.Unlock()

	if err := guard(func() error { return fn(ctx, m.doc) }); err != nil {
		m.logger.Errorf("mutation subscriber %q failed on subscribe: %v", id, err)
	}
	return nil
}

// Unsubscribe removes id and stops the observer when no subscriber is left.
func (m *Mutation) Unsubscribe(ctx context.Context, id string) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	removed, empty := m.subs.remove(id)
	if !removed || !empty || m.stop == nil {
		return
	}

	stop := m.stop
	m.stop = nil
	if err := stop(ctx); err != nil {
		m.logger.Warnf("stop mutation observer: %v", err)
	}
	m.logger.Debugf("mutation observer stopped")
}

func (m *Mutation) onBatch() {
	if m.post == nil {
		m.Notify(context.Background())
		return
	}
	// Batches arriving while a Notify is queued fold into it.
	if !m.queued.CompareAndSwap(false, true) {
		return
	}
	posted := m.post(func() {
		m.queued.Store(false)
		m.Notify(context.Background())
	})
	if !posted {
		m.queued.Store(false)
	}
}

// Notify calls every subscriber once for the current batch.
func (m *Mutation) Notify(ctx context.Context) {
	dispatch(ctx, m.logger, "mutation", m.subs.snapshot(), func(fn MutationFunc) error {
		return fn(ctx, m.doc)
	})
}

// Active reports whether the shared observer is running.
func (m *Mutation) Active() bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.stop != nil
}

// Len returns the number of subscribers.
func (m *Mutation) Len() int {
	return m.subs.len()
}
