// Package signal implements the change notifications features react to:
// host navigation and DOM mutation.
//
// Both signals keep a registry of named subscribers. Subscribing with an id
// that is already present replaces the callback and keeps its position, so a
// feature can re-subscribe without creating duplicates. Notifications iterate
// a snapshot in registration order and isolate every callback: an error or a
// panic is logged with the subscriber id and the next subscriber still runs.
package signal

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/tubeforge/pkg/logging"
)

type entry[F any] struct {
	id string
	fn F
}

// subscribers is an insertion-ordered id -> callback map.
type subscribers[F any] struct {
	mu      sync.Mutex
	entries []entry[F]
}

// put stores fn under id and reports whether the registry was empty before.
func (s *subscribers[F]) put(id string, fn F) (wasEmpty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasEmpty = len(s.entries) == 0
	for i := range s.entries {
		if s.entries[i].id == id {
			s.entries[i].fn = fn
			return wasEmpty
		}
	}
	s.entries = append(s.entries, entry[F]{id: id, fn: fn})
	return wasEmpty
}

// remove deletes id and reports whether it was present and whether the
// registry is now empty.
func (s *subscribers[F]) remove(id string) (removed, nowEmpty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.entries {
		if s.entries[i].id == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true, len(s.entries) == 0
		}
	}
	return false, len(s.entries) == 0
}

func (s *subscribers[F]) snapshot() []entry[F] {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entry[F], len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *subscribers[F]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *subscribers[F]) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.id
	}
	return out
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// dispatch invokes call for every entry of snap, logging failures.
func dispatch[F any](_ context.Context, logger *logging.Logger, signal string, snap []entry[F], call func(F) error) {
	for _, e := range snap {
		e := e
		if err := guard(func() error { return call(e.fn) }); err != nil {
			logger.Errorf("%s subscriber %q failed: %v", signal, e.id, err)
		}
	}
}
