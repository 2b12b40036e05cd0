package browser

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/tubeforge/pkg/page"
)

const (
	navigateBinding = "__tubeforgeNavigate"
	mutationBinding = "__tubeforgeMutation"
)

// navHookScript relays the host's SPA navigation events to navigateBinding.
// It runs as an init script on every document and once on the current one.
const navHookScript = `(() => {
  if (window.__tubeforgeNavHooked) return;
  window.__tubeforgeNavHooked = true;
  for (const name of ['yt-navigate-start', 'yt-navigate-finish']) {
    document.addEventListener(name, (e) => {
      // navigate-start fires before location changes; the target is in detail.
      let url = location.href;
      if (e.detail && e.detail.url) url = new URL(e.detail.url, location.href).href;
      if (window.__tubeforgeNavigate) window.__tubeforgeNavigate(name, url);
    });
  }
})()`

const observeScript = `(o) => {
  const all = window.__tubeforgeObservers = window.__tubeforgeObservers || {};
  if (all[o.token]) return;
  const mo = new MutationObserver(() => window.__tubeforgeMutation(o.token));
  const init = { childList: o.childList, subtree: o.subtree };
  if (o.attributeFilter.length > 0) {
    init.attributes = true;
    init.attributeFilter = o.attributeFilter;
  }
  mo.observe(document.documentElement, init);
  all[o.token] = mo;
}`

const disconnectScript = `(token) => {
  const all = window.__tubeforgeObservers || {};
  if (all[token]) { all[token].disconnect(); delete all[token]; }
}`

// OnNavigate attaches fn to a host navigation event. The page-side hook is
// installed on first use; every call adds one more Go listener.
func (d *Document) OnNavigate(ctx context.Context, event string, fn func(url string)) error {
	d.mu.Lock()
	hooked := d.navHooked
	d.nav[event] = append(d.nav[event], fn)
	d.mu.Unlock()

	if hooked {
		return nil
	}

	if err := d.Bind(ctx, navigateBinding, d.dispatchNavigate); err != nil {
		return d.unhookNav(event, err)
	}
	if err := d.page.AddInitScript(playwright.Script{Content: playwright.String(navHookScript)}); err != nil {
		return d.unhookNav(event, fmt.Errorf("install navigation hook: %w", err))
	}
	if _, err := d.page.Evaluate(navHookScript); err != nil {
		return d.unhookNav(event, fmt.Errorf("install navigation hook: %w", err))
	}

	d.mu.Lock()
	d.navHooked = true
	d.mu.Unlock()
	return nil
}

func (d *Document) unhookNav(event string, err error) error {
	d.mu.Lock()
	if ls := d.nav[event]; len(ls) > 0 {
		d.nav[event] = ls[:len(ls)-1]
	}
	d.mu.Unlock()
	return err
}

func (d *Document) dispatchNavigate(args ...any) {
	if len(args) < 2 {
		return
	}
	event, _ := args[0].(string)
	url, _ := args[1].(string)

	d.mu.Lock()
	listeners := append([]func(string){}, d.nav[event]...)
	d.mu.Unlock()

	for _, fn := range listeners {
		fn(url)
	}
}

type observer struct {
	token   string
	opts    page.ObserveOptions
	onBatch func()
}

func (o *observer) arg() map[string]any {
	filter := o.opts.AttributeFilter
	if filter == nil {
		filter = []string{}
	}
	return map[string]any{
		"token":           o.token,
		"subtree":         o.opts.Subtree,
		"childList":       o.opts.ChildList,
		"attributeFilter": filter,
	}
}

// Observe starts a MutationObserver on the document root. onBatch runs once
// per mutation batch on Playwright's goroutine; callers post it onward.
func (d *Document) Observe(ctx context.Context, opts page.ObserveOptions, onBatch func()) (func(context.Context) error, error) {
	d.mu.Lock()
	hooked := d.mutHooked
	d.mu.Unlock()
	if !hooked {
		if err := d.Bind(ctx, mutationBinding, d.dispatchMutation); err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.mutHooked = true
		d.mu.Unlock()
	}

	o := &observer{token: uuid.NewString(), opts: opts, onBatch: onBatch}
	d.mu.Lock()
	d.observers[o.token] = o
	d.mu.Unlock()

	if err := d.installObserver(ctx, o); err != nil {
		d.mu.Lock()
		delete(d.observers, o.token)
		d.mu.Unlock()
		return nil, err
	}

	stop := func(ctx context.Context) error {
		d.mu.Lock()
		_, live := d.observers[o.token]
		delete(d.observers, o.token)
		d.mu.Unlock()
		if !live {
			return nil
		}
		if _, err := d.Evaluate(ctx, disconnectScript, o.token); err != nil {
			return fmt.Errorf("disconnect observer: %w", err)
		}
		return nil
	}
	return stop, nil
}

func (d *Document) installObserver(ctx context.Context, o *observer) error {
	if _, err := d.Evaluate(ctx, observeScript, o.arg()); err != nil {
		return fmt.Errorf("start observer: %w", err)
	}
	return nil
}

func (d *Document) dispatchMutation(args ...any) {
	if len(args) < 1 {
		return
	}
	token, _ := args[0].(string)

	d.mu.Lock()
	o := d.observers[token]
	d.mu.Unlock()

	if o != nil {
		o.onBatch()
	}
}
