package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/tubeforge/pkg/logging"
	"github.com/entrhq/tubeforge/pkg/page"
)

// StyleAttr is written on every injected style node with the owner id.
const StyleAttr = "data-tubeforge-style"

const injectStyleScript = `(s) => {
  const el = document.createElement('style');
  el.setAttribute('data-tubeforge-style', s.id);
  el.setAttribute('data-tubeforge-token', s.token);
  el.textContent = s.css;
  (document.head || document.documentElement).appendChild(el);
}`

const removeStyleScript = `(token) => {
  document.querySelectorAll('style[data-tubeforge-token="' + token + '"]').forEach((el) => el.remove());
}`

// Document adapts one playwright.Page to page.Document, page.NavigationSource
// and page.MutationSource.
//
// Page script state is lost on every full load. Styles and observers that are
// still live are re-installed from the load handler; bindings and the
// navigation hook survive because they are exposed and added as init scripts.
type Document struct {
	page   playwright.Page
	logger *logging.Logger

	mu        sync.Mutex
	styles    map[string]*style
	bindings  map[string]func(args ...any)
	exposed   map[string]bool
	nav       map[string][]func(url string)
	navHooked bool
	observers map[string]*observer
	mutHooked bool
}

// NewDocument wraps p.
func NewDocument(p playwright.Page, logger *logging.Logger) *Document {
	if logger == nil {
		logger = logging.Discard()
	}
	d := &Document{
		page:      p,
		logger:    logger,
		styles:    make(map[string]*style),
		bindings:  make(map[string]func(args ...any)),
		exposed:   make(map[string]bool),
		nav:       make(map[string][]func(url string)),
		observers: make(map[string]*observer),
	}
	// Playwright runs event handlers on its dispatch goroutine; calling back
	// into the page from there would block it.
	p.OnLoad(func(playwright.Page) { go d.restore() })
	return d
}

// URL returns the page location.
func (d *Document) URL() string {
	return d.page.URL()
}

// Query returns the first element matching selector or nil.
func (d *Document) Query(ctx context.Context, selector string) (page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := d.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if h == nil {
		return nil, nil
	}
	return &element{handle: h}, nil
}

// QueryAll returns every element matching selector.
func (d *Document) QueryAll(ctx context.Context, selector string) ([]page.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hs, err := d.page.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query all %q: %w", selector, err)
	}
	out := make([]page.Element, 0, len(hs))
	for _, h := range hs {
		out = append(out, &element{handle: h})
	}
	return out, nil
}

// Evaluate runs a function expression in the page with arg.
func (d *Document) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if arg == nil {
		return d.page.Evaluate(script)
	}
	return d.page.Evaluate(script, arg)
}

// Screenshot captures the first element matching selector.
func (d *Document) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := d.page.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("screenshot %q: %w", selector, err)
	}
	if h == nil {
		return nil, fmt.Errorf("screenshot %q: no matching element", selector)
	}
	defer h.Dispose()

	png, err := h.Screenshot()
	if err != nil {
		return nil, fmt.Errorf("screenshot %q: %w", selector, err)
	}
	return png, nil
}

// Bind exposes fn as window[name]. The Playwright binding is registered once
// per name; later calls swap the Go callback.
func (d *Document) Bind(ctx context.Context, name string, fn func(args ...any)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.bindings[name] = fn
	exposed := d.exposed[name]
	d.exposed[name] = true
	d.mu.Unlock()

	if exposed {
		return nil
	}

	err := d.page.ExposeBinding(name, func(_ *playwright.BindingSource, args ...interface{}) interface{} {
		d.mu.Lock()
		cb := d.bindings[name]
		d.mu.Unlock()
		if cb != nil {
			cb(args...)
		}
		return nil
	})
	if err != nil {
		d.mu.Lock()
		delete(d.exposed, name)
		d.mu.Unlock()
		return fmt.Errorf("bind %q: %w", name, err)
	}
	return nil
}

// InjectStyle appends a <style> tagged with id. The returned handle removes
// exactly that node, identified by a per-injection token.
func (d *Document) InjectStyle(ctx context.Context, id, css string) (page.Style, error) {
	s := &style{doc: d, id: id, token: uuid.NewString(), css: css}
	if _, err := d.Evaluate(ctx, injectStyleScript, s.arg()); err != nil {
		return nil, fmt.Errorf("inject style %q: %w", id, err)
	}
	d.mu.Lock()
	d.styles[s.token] = s
	d.mu.Unlock()
	return s, nil
}

// restore re-installs live styles and observers after a full page load.
func (d *Document) restore() {
	ctx := context.Background()

	d.mu.Lock()
	styles := make([]*style, 0, len(d.styles))
	for _, s := range d.styles {
		styles = append(styles, s)
	}
	observers := make([]*observer, 0, len(d.observers))
	for _, o := range d.observers {
		observers = append(observers, o)
	}
	d.mu.Unlock()

	sort.Slice(styles, func(i, j int) bool { return styles[i].id < styles[j].id })
	for _, s := range styles {
		if _, err := d.Evaluate(ctx, injectStyleScript, s.arg()); err != nil {
			d.logger.Warnf("re-inject style %q after load: %v", s.id, err)
		}
	}
	for _, o := range observers {
		if err := d.installObserver(ctx, o); err != nil {
			d.logger.Warnf("re-install observer after load: %v", err)
		}
	}
}

type style struct {
	doc   *Document
	id    string
	token string
	css   string

	mu      sync.Mutex
	removed bool
}

func (s *style) arg() map[string]any {
	return map[string]any{"id": s.id, "token": s.token, "css": s.css}
}

func (s *style) ID() string { return s.id }

func (s *style) Remove(ctx context.Context) error {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return nil
	}
	s.removed = true
	s.mu.Unlock()

	s.doc.mu.Lock()
	delete(s.doc.styles, s.token)
	s.doc.mu.Unlock()

	if _, err := s.doc.Evaluate(ctx, removeStyleScript, s.token); err != nil {
		return fmt.Errorf("remove style %q: %w", s.id, err)
	}
	return nil
}

// element wraps an ElementHandle. Handles die with their document; calls on
// a stale handle surface as page.ErrDetached.
type element struct {
	handle playwright.ElementHandle
	once   sync.Once
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v, err := e.handle.GetAttribute(name)
	if err != nil {
		return "", false, detached(err)
	}
	if v == "" {
		// GetAttribute cannot tell an empty attribute from a missing one.
		has, err := e.handle.Evaluate("(el, n) => el.hasAttribute(n)", name)
		if err != nil {
			return "", false, detached(err)
		}
		ok, _ := has.(bool)
		return "", ok, nil
	}
	return v, true, nil
}

func (e *element) SetAttribute(ctx context.Context, name, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.handle.Evaluate("(el, a) => el.setAttribute(a.name, a.value)", map[string]any{"name": name, "value": value})
	return detached(err)
}

func (e *element) RemoveAttribute(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.handle.Evaluate("(el, n) => el.removeAttribute(n)", name)
	return detached(err)
}

func (e *element) Remove(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.handle.Evaluate("(el) => el.remove()")
	return detached(err)
}

// Release disposes the handle so the page can collect it.
func (e *element) Release() {
	e.once.Do(func() { _ = e.handle.Dispose() })
}

func detached(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", page.ErrDetached, err)
}
