package pagetest

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/tubeforge/pkg/page"
)

// Navigator is a fake page.NavigationSource.
type Navigator struct {
	mu        sync.Mutex
	listeners map[string][]func(url string)
	attaches  int
	err       error
}

var _ page.NavigationSource = (*Navigator)(nil)

// NewNavigator returns a navigator with no listeners.
func NewNavigator() *Navigator {
	return &Navigator{listeners: make(map[string][]func(url string))}
}

// FailWith makes subsequent OnNavigate calls return err.
func (n *Navigator) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// OnNavigate records fn for event.
func (n *Navigator) OnNavigate(_ context.Context, event string, fn func(url string)) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.err != nil {
		return n.err
	}
	n.attaches++
	n.listeners[event] = append(n.listeners[event], fn)
	return nil
}

// Attaches returns the number of listeners attached so far.
func (n *Navigator) Attaches() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attaches
}

// Fire delivers event with url to every listener.
func (n *Navigator) Fire(event, url string) {
	n.mu.Lock()
	fns := append([]func(string){}, n.listeners[event]...)
	n.mu.Unlock()

	for _, fn := range fns {
		fn(url)
	}
}

// Observer is a fake page.MutationSource.
type Observer struct {
	mu      sync.Mutex
	active  map[int]func()
	next    int
	starts  int
	stops   int
	lastOpt page.ObserveOptions
	err     error
}

var _ page.MutationSource = (*Observer)(nil)

// NewObserver returns an observer source with nothing running.
func NewObserver() *Observer {
	return &Observer{active: make(map[int]func())}
}

// FailWith makes subsequent Observe calls return err.
func (o *Observer) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Observe starts a fake observer.
func (o *Observer) Observe(_ context.Context, opts page.ObserveOptions, onBatch func()) (func(context.Context) error, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil {
		return nil, o.err
	}
	id := o.next
	o.next++
	o.starts++
	o.lastOpt = opts
	o.active[id] = onBatch

	return func(context.Context) error {
		o.mu.Lock()
		defer o.mu.Unlock()
		if _, ok := o.active[id]; !ok {
			return errors.New("observer already stopped")
		}
		delete(o.active, id)
		o.stops++
		return nil
	}, nil
}

// Mutate delivers one mutation batch to every running observer.
func (o *Observer) Mutate() {
	o.mu.Lock()
	fns := make([]func(), 0, len(o.active))
	for _, fn := range o.active {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Running returns the number of live observers.
func (o *Observer) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Counts returns how many observers were started and stopped.
func (o *Observer) Counts() (starts, stops int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.starts, o.stops
}

// LastOptions returns the options of the most recent Observe call.
func (o *Observer) LastOptions() page.ObserveOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastOpt
}

// Player is a fake page.Player with a settable clock.
type Player struct {
	mu    sync.Mutex
	now   float64
	muted bool
	rate  float64
	seeks []float64
	err   error
}

var _ page.Player = (*Player)(nil)

// NewPlayer returns a player at position 0, unmuted, rate 1.
func NewPlayer() *Player {
	return &Player{rate: 1}
}

// FailWith makes every call return err.
func (p *Player) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// SetTime moves the playback position without recording a seek.
func (p *Player) SetTime(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = t
}

func (p *Player) CurrentTime(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now, p.err
}

func (p *Player) Seek(_ context.Context, seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.now = seconds
	p.seeks = append(p.seeks, seconds)
	return nil
}

func (p *Player) SetMuted(_ context.Context, muted bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.muted = muted
	return nil
}

func (p *Player) SetPlaybackRate(_ context.Context, rate float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.rate = rate
	return nil
}

// Seeks returns every position passed to Seek.
func (p *Player) Seeks() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.seeks...)
}

// Muted reports the mute state.
func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// Rate returns the playback rate.
func (p *Player) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}
