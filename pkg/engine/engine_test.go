package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/tubeforge/pkg/features"
	"github.com/entrhq/tubeforge/pkg/page"
	"github.com/entrhq/tubeforge/pkg/page/pagetest"
	"github.com/entrhq/tubeforge/pkg/prefs"
)

const markup = `<html><head></head><body><div id="feed">
<a id="short" href="/shorts/abc">s</a>
</div></body></html>`

type fixture struct {
	doc    *pagetest.Document
	nav    *pagetest.Navigator
	obs    *pagetest.Observer
	store  *prefs.MemoryStore
	engine *Engine
	cancel context.CancelFunc
}

func start(t *testing.T, stored map[string]any) *fixture {
	t.Helper()
	f := &fixture{
		doc:   pagetest.MustDocument("https://www.youtube.com/", markup),
		nav:   pagetest.NewNavigator(),
		obs:   pagetest.NewObserver(),
		store: prefs.NewMemoryStore(stored),
	}
	e, err := New(Deps{
		Doc:       f.doc,
		Player:    pagetest.NewPlayer(),
		Nav:       f.nav,
		Mutations: f.obs,
		Store:     f.store,
		Clipboard: func(string) error { return nil },
	})
	require.NoError(t, err)
	f.engine = e

	loopCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { _ = e.Run(loopCtx) }()
	t.Cleanup(cancel)

	ctx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	require.NoError(t, e.Start(ctx))
	return f
}

// sync waits until everything posted so far has run.
func (f *fixture) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.loop.Call(context.Background(), func() {}))
}

func attr(t *testing.T, doc *pagetest.Document, sel, name string) string {
	t.Helper()
	var v string
	el, err := doc.Query(context.Background(), sel)
	require.NoError(t, err)
	require.NotNil(t, el)
	defer el.Release()
	v, _, err = el.Attribute(context.Background(), name)
	require.NoError(t, err)
	return v
}

func TestNew_RequiresSources(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestEngine_StartActivatesPersistedFlags(t *testing.T) {
	f := start(t, map[string]any{
		features.IDHideComments: true,
		features.IDShortsRelink: true,
		features.IDHideSidebar:  false,
	})

	assert.Len(t, f.doc.Styles(features.IDHideComments), 1)
	assert.Empty(t, f.doc.Styles(features.IDHideSidebar))
	assert.Equal(t, "/watch?v=abc", attr(t, f.doc, "#short", "href"))
	assert.True(t, f.engine.Mutations().Active())
	assert.Equal(t, 1, f.nav.Attaches(), "only navigate-finish is in use")
}

func TestEngine_EventsRunOnLoop(t *testing.T) {
	f := start(t, map[string]any{features.IDShortsRelink: true})

	require.NoError(t, f.doc.AppendHTML("#feed", `<a id="late" href="/shorts/late">l</a>`))
	f.obs.Mutate()
	f.sync(t)
	assert.Equal(t, "/watch?v=late", attr(t, f.doc, "#late", "href"))

	require.NoError(t, f.doc.AppendHTML("#feed", `<a id="nav" href="/shorts/nav">n</a>`))
	f.nav.Fire(page.EventNavigateFinish, "https://www.youtube.com/")
	f.sync(t)
	assert.Equal(t, "/watch?v=nav", attr(t, f.doc, "#nav", "href"))
}

func TestEngine_SetEnabledPersists(t *testing.T) {
	f := start(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.SetEnabled(ctx, features.IDHideEndCards, true))
	assert.Len(t, f.doc.Styles(features.IDHideEndCards), 1)
	assert.Equal(t, true, f.store.Snapshot()[features.IDHideEndCards])

	require.NoError(t, f.engine.SetValue(ctx, features.IDCustomCSS, "p { color: red; }"))
	assert.Equal(t, []string{"p { color: red; }"}, f.doc.Styles(features.IDCustomCSS))

	require.NoError(t, f.engine.SetEnabled(ctx, features.IDHideEndCards, false))
	assert.Empty(t, f.doc.Styles(features.IDHideEndCards))
	assert.Equal(t, false, f.store.Snapshot()[features.IDHideEndCards])
}

func TestEngine_StopTearsDown(t *testing.T) {
	f := start(t, map[string]any{
		features.IDHideComments: true,
		features.IDShortsRelink: true,
	})
	ctx := context.Background()

	require.NoError(t, f.engine.Stop(ctx))

	assert.Empty(t, f.doc.Styles(features.IDHideComments))
	assert.Equal(t, "/shorts/abc", attr(t, f.doc, "#short", "href"))
	assert.False(t, f.engine.Mutations().Active())
	assert.Equal(t, 0, f.obs.Running())
	assert.True(t, f.engine.Registry().Enabled(features.IDHideComments), "flags survive for the next run")
	assert.Equal(t, map[string]any{features.IDHideComments: true, features.IDShortsRelink: true}, f.store.Snapshot())
}
