package features

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/tubeforge/pkg/feature"
	"github.com/entrhq/tubeforge/pkg/page"
)

// cosmetic is one CSS suppressor row.
type cosmetic struct {
	id, name, description, group string
	sub                          bool
	css                          string
}

var cosmeticTable = []cosmetic{
	{
		id: IDHideShortsShelf, name: "Hide Shorts shelves", group: GroupShorts,
		description: "Remove Shorts rows from feeds and search",
		css:         `ytd-reel-shelf-renderer, ytd-rich-shelf-renderer[is-shorts], grid-shelf-view-model { display: none !important; }`,
	},
	{
		id: IDHideComments, name: "Hide comments", group: GroupWatch,
		description: "Remove the comment section under videos",
		css:         `#comments, ytd-comments { display: none !important; }`,
	},
	{
		id: IDHideEndCards, name: "Hide end screen cards", group: GroupWatch,
		description: "Remove the cards overlaid on the last seconds of a video",
		css:         `.ytp-ce-element, .ytp-endscreen-content { display: none !important; }`,
	},
	{
		id: IDHideHomeChips, name: "Hide topic chips", group: GroupHome, sub: true,
		description: "Remove the filter chip bar on the home feed",
		css:         `ytd-browse[page-subtype="home"] ytd-feed-filter-chip-bar-renderer, ytd-browse[page-subtype="home"] #chips-wrapper { display: none !important; }`,
	},
	{
		id: IDHideHomeShelves, name: "Hide home shelves", group: GroupHome, sub: true,
		description: "Remove promoted sections between home feed rows",
		css:         `ytd-browse[page-subtype="home"] ytd-rich-section-renderer { display: none !important; }`,
	},
	{
		id: IDHideSidebar, name: "Hide related videos", group: GroupWatch,
		description: "Remove the recommendations column next to the player",
		css:         `ytd-watch-flexy #secondary, ytd-watch-flexy #related { display: none !important; }`,
	},
}

// cosmetics returns the cleanHome management entry followed by the table.
func cosmetics(env *Env) []feature.Descriptor {
	out := []feature.Descriptor{{
		ID:          IDCleanHome,
		Name:        "Clean home feed",
		Description: "Enables the home feed clean-up options",
		Group:       GroupHome,
		Default:     false,
		Management:  true,
	}}

	for _, c := range cosmeticTable {
		css := c.css
		out = append(out, feature.Descriptor{
			ID:          c.id,
			Name:        c.name,
			Description: c.description,
			Group:       c.group,
			Type:        feature.TypeToggle,
			Default:     false,
			SubFeature:  c.sub,
			Lifecycle:   newStyleFeature(env, c.id, func() string { return css }),
		})
	}
	return out
}

// styleFeature owns at most one injected stylesheet.
type styleFeature struct {
	env    *Env
	id     string
	css    func() string
	handle page.Style
}

func newStyleFeature(env *Env, id string, css func() string) *styleFeature {
	return &styleFeature{env: env, id: id, css: css}
}

func (f *styleFeature) Activate(ctx context.Context) error {
	if f.handle != nil {
		return nil
	}
	css := f.css()
	if strings.TrimSpace(css) == "" {
		return fmt.Errorf("%s: empty stylesheet", f.id)
	}
	h, err := f.env.Doc.InjectStyle(ctx, f.id, css)
	if err != nil {
		return err
	}
	f.handle = h
	return nil
}

func (f *styleFeature) Deactivate(ctx context.Context) error {
	if f.handle == nil {
		return nil
	}
	h := f.handle
	f.handle = nil
	return h.Remove(ctx)
}
