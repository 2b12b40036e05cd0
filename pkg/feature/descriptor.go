// Package feature holds the feature catalog contract and the registry that
// drives feature lifecycles.
package feature

import (
	"context"
	"strconv"
	"strings"
)

// Type selects how a feature's setting is edited and stored.
type Type string

const (
	// TypeToggle features store a bool under their id.
	TypeToggle Type = "toggle"
	// TypeTextarea features store a string under their id; an empty string
	// means disabled.
	TypeTextarea Type = "textarea"
)

// Lifecycle is the capability every feature implements. Both methods must be
// idempotent: Activate on an active feature and Deactivate on an inactive one
// (including one never activated) are no-ops.
type Lifecycle interface {
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
}

// Funcs adapts two funcs to Lifecycle.
type Funcs struct {
	OnActivate   func(ctx context.Context) error
	OnDeactivate func(ctx context.Context) error
}

func (f Funcs) Activate(ctx context.Context) error {
	if f.OnActivate == nil {
		return nil
	}
	return f.OnActivate(ctx)
}

func (f Funcs) Deactivate(ctx context.Context) error {
	if f.OnDeactivate == nil {
		return nil
	}
	return f.OnDeactivate(ctx)
}

// Descriptor is one catalog entry.
type Descriptor struct {
	ID          string
	Name        string
	Description string
	Group       string
	Type        Type

	// Default is a bool for toggles and a string for textarea features.
	Default any

	// Management features gate the sub-features listed for them in the
	// registry's Dependents map.
	Management bool
	// SubFeature features stay inert unless their management parent is on.
	SubFeature bool

	Lifecycle Lifecycle
}

func (d Descriptor) kind() Type {
	if d.Type == "" {
		return TypeToggle
	}
	return d.Type
}

// Dependents maps a management feature id to its sub-feature ids. The
// mapping is declared by the catalog; the registry applies it on disable.
type Dependents map[string][]string

// Truthy reports whether a stored flag value means "enabled".
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
		return strings.TrimSpace(t) != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
