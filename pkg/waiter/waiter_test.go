package waiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/tubeforge/pkg/eventloop"
	"github.com/entrhq/tubeforge/pkg/page"
	"github.com/entrhq/tubeforge/pkg/page/pagetest"
)

// manualScheduler runs scheduled funcs only when Tick is called.
type manualScheduler struct {
	mu   sync.Mutex
	next int
	jobs map[int]func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{jobs: make(map[int]func())}
}

func (s *manualScheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.jobs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.jobs, id)
	}
}

func (s *manualScheduler) Tick() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.jobs))
	for _, fn := range s.jobs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *manualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

const emptyPage = `<html><head></head><body><div id="app"></div></body></html>`

func TestWaitFor_FiresOnceWhenElementAppears(t *testing.T) {
	doc := pagetest.MustDocument("https://www.youtube.com/", emptyPage)
	sched := newManualScheduler()
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := New(doc, sched, nil, WithClock(clock.Now))

	var found []page.Element
	w.WaitFor(context.Background(), "#x", func(el page.Element) { found = append(found, el) }, time.Second)

	sched.Tick()
	assert.Empty(t, found)

	require.NoError(t, doc.AppendHTML("#app", `<span id="x"></span>`))
	sched.Tick()
	sched.Tick()

	assert.Len(t, found, 1)
	assert.Equal(t, 0, sched.Active(), "polling stops after the match")
}

func TestWaitFor_ReleasesFoundElement(t *testing.T) {
	doc := pagetest.MustDocument("https://www.youtube.com/", emptyPage)
	sched := newManualScheduler()
	w := New(doc, sched, nil)

	require.NoError(t, doc.AppendHTML("#app", `<span id="x"></span>`))
	var id string
	w.WaitFor(context.Background(), "#x", func(el page.Element) {
		v, _, err := el.Attribute(context.Background(), "id")
		require.NoError(t, err)
		id = v
		assert.Equal(t, 1, doc.LiveHandles())
	}, time.Second)
	sched.Tick()

	assert.Equal(t, "x", id)
	assert.Equal(t, 0, doc.LiveHandles())
}

func TestWaitFor_TimeoutIsSilent(t *testing.T) {
	doc := pagetest.MustDocument("https://www.youtube.com/", emptyPage)
	sched := newManualScheduler()
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := New(doc, sched, nil, WithClock(clock.Now))

	called := false
	w.WaitFor(context.Background(), "#x", func(page.Element) { called = true }, 300*time.Millisecond)

	for i := 0; i < 3; i++ {
		clock.Advance(100 * time.Millisecond)
		sched.Tick()
	}
	assert.Equal(t, 0, sched.Active())

	require.NoError(t, doc.AppendHTML("#app", `<span id="x"></span>`))
	sched.Tick()
	assert.False(t, called)
}

func TestWaitFor_DefaultTimeout(t *testing.T) {
	doc := pagetest.MustDocument("https://www.youtube.com/", emptyPage)
	sched := newManualScheduler()
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := New(doc, sched, nil, WithClock(clock.Now))

	w.WaitFor(context.Background(), "#x", func(page.Element) {}, 0)

	clock.Advance(DefaultTimeout - time.Millisecond)
	sched.Tick()
	assert.Equal(t, 1, sched.Active())

	clock.Advance(time.Millisecond)
	sched.Tick()
	assert.Equal(t, 0, sched.Active())
}

func TestWaitFor_TimeoutShorterThanInterval(t *testing.T) {
	doc := pagetest.MustDocument("https://www.youtube.com/", emptyPage)
	sched := newManualScheduler()
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := New(doc, sched, nil, WithClock(clock.Now), WithInterval(100*time.Millisecond))

	calls := 0
	w.WaitFor(context.Background(), "#x", func(page.Element) { calls++ }, 50*time.Millisecond)

	// The first tick lands after the deadline, with the element present.
	clock.Advance(60 * time.Millisecond)
	require.NoError(t, doc.AppendHTML("#app", `<span id="x"></span>`))
	sched.Tick()

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, sched.Active())
}

func TestWaitFor_Cancel(t *testing.T) {
	doc := pagetest.MustDocument("https://www.youtube.com/", emptyPage)
	sched := newManualScheduler()
	w := New(doc, sched, nil)

	called := false
	cancel := w.WaitFor(context.Background(), "#x", func(page.Element) { called = true }, time.Minute)
	cancel()
	cancel()

	require.NoError(t, doc.AppendHTML("#app", `<span id="x"></span>`))
	sched.Tick()
	assert.False(t, called)
	assert.Equal(t, 0, sched.Active())
}

func TestWaitFor_ContextDone(t *testing.T) {
	doc := pagetest.MustDocument("https://www.youtube.com/", emptyPage)
	sched := newManualScheduler()
	w := New(doc, sched, nil)

	ctx, cancel := context.WithCancel(context.Background())
	called := false
	w.WaitFor(ctx, "#x", func(page.Element) { called = true }, time.Minute)
	cancel()

	require.NoError(t, doc.AppendHTML("#app", `<span id="x"></span>`))
	sched.Tick()
	assert.False(t, called)
	assert.Equal(t, 0, sched.Active())
}

func TestWaitFor_IndependentWaits(t *testing.T) {
	doc := pagetest.MustDocument("https://www.youtube.com/", emptyPage)
	sched := newManualScheduler()
	w := New(doc, sched, nil)

	var a, b int
	w.WaitFor(context.Background(), "#x", func(page.Element) { a++ }, time.Minute)
	w.WaitFor(context.Background(), "#x", func(page.Element) { b++ }, time.Minute)
	assert.Equal(t, 2, sched.Active())

	require.NoError(t, doc.AppendHTML("#app", `<span id="x"></span>`))
	sched.Tick()

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestWaitFor_InvalidSelectorKeepsPollingUntilTimeout(t *testing.T) {
	doc := pagetest.MustDocument("https://www.youtube.com/", emptyPage)
	sched := newManualScheduler()
	clock := &fakeClock{t: time.Unix(0, 0)}
	w := New(doc, sched, nil, WithClock(clock.Now))

	w.WaitFor(context.Background(), "[[[", func(page.Element) { t.Fatal("must not fire") }, 200*time.Millisecond)
	sched.Tick()
	assert.Equal(t, 1, sched.Active())

	clock.Advance(200 * time.Millisecond)
	sched.Tick()
	assert.Equal(t, 0, sched.Active())
}

// Two features wait on an element that never renders.
func TestWaitFor_NeverAppearsOnLoop(t *testing.T) {
	doc := pagetest.MustDocument("https://www.youtube.com/", emptyPage)
	loop := eventloop.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-loop.Done()
	}()
	go func() { _ = loop.Run(ctx) }()

	w := New(doc, loop, nil, WithInterval(10*time.Millisecond))

	var fired atomic.Int32
	require.NoError(t, loop.Call(ctx, func() {
		w.WaitFor(ctx, "#x", func(page.Element) { fired.Add(1) }, 200*time.Millisecond)
		w.WaitFor(ctx, "#x", func(page.Element) { fired.Add(1) }, 200*time.Millisecond)
	}))

	time.Sleep(300 * time.Millisecond)
	settled := doc.Queries()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), fired.Load())
	assert.Equal(t, settled, doc.Queries(), "both polls stopped after the timeout")
}
