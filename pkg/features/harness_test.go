package features

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/entrhq/tubeforge/pkg/feature"
	"github.com/entrhq/tubeforge/pkg/page"
	"github.com/entrhq/tubeforge/pkg/page/pagetest"
	"github.com/entrhq/tubeforge/pkg/signal"
	"github.com/entrhq/tubeforge/pkg/skip"
	"github.com/entrhq/tubeforge/pkg/waiter"
)

// manualLoop queues posted funcs and periodic jobs until the test runs them.
type manualLoop struct {
	mu     sync.Mutex
	queue  []func()
	jobs   map[int]func()
	nextID int
}

func newManualLoop() *manualLoop {
	return &manualLoop{jobs: make(map[int]func())}
}

func (l *manualLoop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, fn)
	return true
}

func (l *manualLoop) Every(_ time.Duration, fn func()) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.jobs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.jobs, id)
	}
}

// Drain runs queued funcs, including ones they post, until none are left.
func (l *manualLoop) Drain() {
	for {
		l.mu.Lock()
		q := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(q) == 0 {
			return
		}
		for _, fn := range q {
			fn()
		}
	}
}

// Tick runs every periodic job once.
func (l *manualLoop) Tick() {
	l.mu.Lock()
	fns := make([]func(), 0, len(l.jobs))
	for _, fn := range l.jobs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (l *manualLoop) Jobs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs)
}

// fakeSegments serves a fixed list per video and records reports.
type fakeSegments struct {
	mu       sync.Mutex
	byVideo  map[string][]skip.Segment
	err      error
	fetched  []string
	reported []string
}

func (f *fakeSegments) Fetch(_ context.Context, videoID string) ([]skip.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, videoID)
	if f.err != nil {
		return nil, f.err
	}
	return f.byVideo[videoID], nil
}

func (f *fakeSegments) ReportViewed(_ context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reported = append(f.reported, uuid)
	return nil
}

func (f *fakeSegments) Reported() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.reported...)
}

func (f *fakeSegments) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type harness struct {
	doc      *pagetest.Document
	nav      *pagetest.Navigator
	obs      *pagetest.Observer
	player   *pagetest.Player
	loop     *manualLoop
	segments *fakeSegments
	values   map[string]string
	copied   []string
	env      *Env
	descs    map[string]feature.Descriptor
	deps     feature.Dependents
}

func newHarness(t *testing.T, url, markup string, opts Options) *harness {
	t.Helper()
	h := &harness{
		doc:      pagetest.MustDocument(url, markup),
		nav:      pagetest.NewNavigator(),
		obs:      pagetest.NewObserver(),
		player:   pagetest.NewPlayer(),
		loop:     newManualLoop(),
		segments: &fakeSegments{byVideo: map[string][]skip.Segment{}},
		values:   map[string]string{},
		descs:    map[string]feature.Descriptor{},
	}
	h.env = &Env{
		Doc:       h.doc,
		Player:    h.player,
		NavFinish: signal.NewNavigation(page.EventNavigateFinish, h.nav, nil, signal.WithCurrentURL(h.doc.URL)),
		NavStart:  signal.NewNavigation(page.EventNavigateStart, h.nav, nil, signal.WithCurrentURL(h.doc.URL)),
		Mutations: signal.NewMutation(h.obs, h.doc, nil),
		Waiter:    waiter.New(h.doc, h.loop, nil),
		Loop:      h.loop,
		Segments:  h.segments,
		Value:     func(id string) string { return h.values[id] },
		Clipboard: func(text string) error {
			h.copied = append(h.copied, text)
			return nil
		},
		Now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}

	descs, deps, err := Catalog(h.env, opts)
	require.NoError(t, err)
	for _, d := range descs {
		h.descs[d.ID] = d
	}
	h.deps = deps
	return h
}

func (h *harness) lifecycle(t *testing.T, id string) feature.Lifecycle {
	t.Helper()
	d, ok := h.descs[id]
	require.True(t, ok, "no descriptor %q", id)
	require.NotNil(t, d.Lifecycle, "descriptor %q has no lifecycle", id)
	return d.Lifecycle
}
