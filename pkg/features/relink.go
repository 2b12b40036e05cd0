package features

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"

	"github.com/entrhq/tubeforge/pkg/page"
	"github.com/entrhq/tubeforge/pkg/signal"
)

// OriginalHrefAttr keeps the href a rewritten link had before.
const OriginalHrefAttr = "data-tubeforge-href"

// relink rewrites links matching its patterns to /watch?v=<id>, on every
// navigation and every DOM batch.
type relink struct {
	env      *Env
	patterns []glob.Glob
	active   bool
}

func newRelink(env *Env, patterns []glob.Glob) *relink {
	return &relink{env: env, patterns: patterns}
}

func (f *relink) Activate(ctx context.Context) error {
	if f.active {
		return nil
	}
	err := f.env.NavFinish.Subscribe(ctx, IDShortsRelink, func(ctx context.Context, _ signal.NavigationEvent) error {
		return f.rewrite(ctx)
	})
	if err != nil {
		return err
	}
	err = f.env.Mutations.Subscribe(ctx, IDShortsRelink, func(ctx context.Context, _ page.Document) error {
		return f.rewrite(ctx)
	})
	if err != nil {
		f.env.NavFinish.Unsubscribe(IDShortsRelink)
		return err
	}
	f.active = true
	return nil
}

func (f *relink) Deactivate(ctx context.Context) error {
	if !f.active {
		return nil
	}
	f.active = false
	f.env.NavFinish.Unsubscribe(IDShortsRelink)
	f.env.Mutations.Unsubscribe(ctx, IDShortsRelink)
	return f.restore(ctx)
}

func (f *relink) rewrite(ctx context.Context) error {
	links, err := f.env.Doc.QueryAll(ctx, "a[href]:not(["+OriginalHrefAttr+"])")
	if err != nil {
		return err
	}
	defer page.Release(links)
	for _, a := range links {
		href, ok, err := a.Attribute(ctx, "href")
		if err != nil || !ok {
			continue
		}
		target, ok := f.target(href)
		if !ok {
			continue
		}
		if err := a.SetAttribute(ctx, OriginalHrefAttr, href); err != nil {
			continue
		}
		if err := a.SetAttribute(ctx, "href", target); err != nil {
			return fmt.Errorf("rewrite %q: %w", href, err)
		}
	}
	return nil
}

// target maps a matching href to its watch URL.
func (f *relink) target(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	path := u.Path
	matched := false
	for _, g := range f.patterns {
		if g.Match(path) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	id := parts[len(parts)-1]
	if id == "" {
		return "", false
	}
	return "/watch?v=" + url.QueryEscape(id), true
}

// restore puts original hrefs back. Links the host already replaced are gone
// and need nothing.
func (f *relink) restore(ctx context.Context) error {
	links, err := f.env.Doc.QueryAll(ctx, "a["+OriginalHrefAttr+"]")
	if err != nil {
		return err
	}
	defer page.Release(links)
	var firstErr error
	for _, a := range links {
		orig, ok, err := a.Attribute(ctx, OriginalHrefAttr)
		if err == nil && ok {
			err = a.SetAttribute(ctx, "href", orig)
		}
		if err == nil {
			err = a.RemoveAttribute(ctx, OriginalHrefAttr)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
