// Package engine wires the page, the change signals and the feature registry
// onto one event loop.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/tubeforge/pkg/eventloop"
	"github.com/entrhq/tubeforge/pkg/feature"
	"github.com/entrhq/tubeforge/pkg/features"
	"github.com/entrhq/tubeforge/pkg/logging"
	"github.com/entrhq/tubeforge/pkg/page"
	"github.com/entrhq/tubeforge/pkg/prefs"
	"github.com/entrhq/tubeforge/pkg/signal"
	"github.com/entrhq/tubeforge/pkg/waiter"
)

// Deps are the collaborators an Engine drives.
type Deps struct {
	Doc       page.Document
	Player    page.Player
	Nav       page.NavigationSource
	Mutations page.MutationSource
	Store     prefs.Store
	Segments  features.SegmentSource
	Logger    *logging.Logger

	Options features.Options

	// Clipboard overrides the system clipboard, mainly for tests.
	Clipboard func(text string) error
}

// Engine owns the loop every feature callback runs on.
type Engine struct {
	loop      *eventloop.Loop
	store     prefs.Store
	registry  *feature.Registry
	navFinish *signal.Navigation
	navStart  *signal.Navigation
	mutations *signal.Mutation
	logger    *logging.Logger
}

// New builds the signals, the catalog and the registry. Nothing touches the
// page until Start.
func New(deps Deps) (*Engine, error) {
	if deps.Doc == nil || deps.Player == nil || deps.Nav == nil || deps.Mutations == nil {
		return nil, errors.New("engine: document, player, navigation and mutation sources are required")
	}
	if deps.Store == nil {
		deps.Store = prefs.NewMemoryStore(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	loop := eventloop.New(logger.With("loop"))
	e := &Engine{
		loop:   loop,
		store:  deps.Store,
		logger: logger,
	}
	e.navFinish = signal.NewNavigation(page.EventNavigateFinish, deps.Nav, logger.With("signal"),
		signal.WithPoster(loop.Post), signal.WithCurrentURL(deps.Doc.URL))
	e.navStart = signal.NewNavigation(page.EventNavigateStart, deps.Nav, logger.With("signal"),
		signal.WithPoster(loop.Post), signal.WithCurrentURL(deps.Doc.URL))
	e.mutations = signal.NewMutation(deps.Mutations, deps.Doc, logger.With("signal"),
		signal.WithMutationPoster(loop.Post))

	env := &features.Env{
		Doc:       deps.Doc,
		Player:    deps.Player,
		NavFinish: e.navFinish,
		NavStart:  e.navStart,
		Mutations: e.mutations,
		Waiter:    waiter.New(deps.Doc, loop, logger.With("waiter")),
		Loop:      loop,
		Segments:  deps.Segments,
		Logger:    logger.With("features"),
		Clipboard: deps.Clipboard,
	}

	descs, dependents, err := features.Catalog(env, deps.Options)
	if err != nil {
		return nil, err
	}
	registry, err := feature.NewRegistry(descs, dependents, deps.Store, logger.With("registry"))
	if err != nil {
		return nil, err
	}
	env.Value = registry.Value
	e.registry = registry
	return e, nil
}

// Run drives the loop until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.loop.Run(ctx)
}

// Start loads persisted flags over the catalog defaults and activates the
// enabled features. Run must be running.
func (e *Engine) Start(ctx context.Context) error {
	flags, err := prefs.Merge(ctx, e.store, e.registry.Defaults())
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	if err := e.loop.Call(ctx, func() { e.registry.Initialize(ctx, flags) }); err != nil {
		return err
	}

	enabled := 0
	for _, on := range e.registry.Flags() {
		if on {
			enabled++
		}
	}
	e.logger.Infof("started with %d of %d features enabled", enabled, len(e.registry.Descriptors()))
	return nil
}

// SetEnabled toggles a feature on the loop.
func (e *Engine) SetEnabled(ctx context.Context, id string, enabled bool) error {
	var err error
	if callErr := e.loop.Call(ctx, func() { err = e.registry.SetEnabled(ctx, id, enabled) }); callErr != nil {
		return callErr
	}
	return err
}

// SetValue updates a textarea feature on the loop.
func (e *Engine) SetValue(ctx context.Context, id, value string) error {
	var err error
	if callErr := e.loop.Call(ctx, func() { err = e.registry.SetValue(ctx, id, value) }); callErr != nil {
		return callErr
	}
	return err
}

// Stop deactivates every active feature. Persisted flags are untouched.
func (e *Engine) Stop(ctx context.Context) error {
	return e.loop.Call(ctx, func() { e.registry.Shutdown(ctx) })
}

// Registry exposes the registry for read-only inspection.
func (e *Engine) Registry() *feature.Registry {
	return e.registry
}

// Mutations exposes the mutation signal for diagnostics.
func (e *Engine) Mutations() *signal.Mutation {
	return e.mutations
}
