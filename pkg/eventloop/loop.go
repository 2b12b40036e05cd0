// Package eventloop provides the single cooperative thread every tubeforge
// callback runs on.
//
// Playwright delivers page events on its own goroutines. Those handlers never
// touch feature state directly; they Post a func onto the Loop, which runs
// posted funcs one at a time in FIFO order. Code running on the loop can
// therefore treat signals, the registry and feature fields as single-threaded
// state.
package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/tubeforge/pkg/logging"
)

// DefaultQueueSize is the buffered capacity of the posted-func queue.
const DefaultQueueSize = 256

// Loop runs posted funcs sequentially on one goroutine.
type Loop struct {
	queue   chan func()
	done    chan struct{}
	logger  *logging.Logger
	stopped atomic.Bool
	once    sync.Once
}

// New creates a loop. It does nothing until Run is called.
func New(logger *logging.Logger) *Loop {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loop{
		queue:  make(chan func(), DefaultQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Post enqueues fn. It returns false once the loop has stopped.
// Post blocks while the queue is full.
func (l *Loop) Post(fn func()) bool {
	if l.stopped.Load() {
		return false
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run drains the queue until ctx is done. Funcs still queued at that point are
// dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.queue:
			l.invoke(fn)
		}
	}
}

func (l *Loop) stop() {
	l.once.Do(func() {
		l.stopped.Store(true)
		close(l.done)
	})
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorf("recovered panic in loop task: %v", r)
		}
	}()
	fn()
}

// Every posts fn every d until the returned stop func is called or the loop
// stops. stop is idempotent and safe to call from inside fn; a tick already
// queued when stop runs is skipped.
func (l *Loop) Every(d time.Duration, fn func()) (stop func()) {
	var cancelled atomic.Bool
	quit := make(chan struct{})
	var once sync.Once

	stop = func() {
		once.Do(func() {
			cancelled.Store(true)
			close(quit)
		})
	}

	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-l.done:
				return
			case <-ticker.C:
				ok := l.Post(func() {
					if cancelled.Load() {
						return
					}
					fn()
				})
				if !ok {
					return
				}
			}
		}
	}()

	return stop
}

// AfterFunc posts fn once after d. The returned func cancels it if it has not
// run yet.
func (l *Loop) AfterFunc(d time.Duration, fn func()) (cancel func()) {
	var cancelled atomic.Bool
	timer := time.AfterFunc(d, func() {
		l.Post(func() {
			if cancelled.Load() {
				return
			}
			fn()
		})
	})
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}

// Call posts fn and waits for it to finish. It returns ctx.Err() when ctx is
// done first, or context.Canceled when the loop has stopped. Calling Call from
// the loop goroutine deadlocks.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return context.Canceled
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return context.Canceled
	}
}
