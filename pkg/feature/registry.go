package feature

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/entrhq/tubeforge/pkg/logging"
	"github.com/entrhq/tubeforge/pkg/prefs"
)

var (
	// ErrUnknownFeature is returned for ids not in the catalog.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrParentDisabled is returned when enabling a sub-feature whose
	// management parent is off.
	ErrParentDisabled = errors.New("parent feature is disabled")
	// ErrNotTextarea is returned by SetValue for toggle features.
	ErrNotTextarea = errors.New("feature has no text value")
)

// Registry owns every feature's recorded state and calls Activate and
// Deactivate on transitions. Lifecycle faults are logged with the feature id
// and never propagate: one broken feature must not block the others.
//
// Callers serialize calls for one id (the engine runs everything on its
// loop); a call that requests the current state is a no-op for the feature.
type Registry struct {
	order   []string
	byID    map[string]Descriptor
	deps    Dependents
	parents map[string]string
	store   prefs.Store
	logger  *logging.Logger

	mu     sync.RWMutex
	values map[string]any
}

// NewRegistry validates the catalog and dependency map.
func NewRegistry(descs []Descriptor, deps Dependents, store prefs.Store, logger *logging.Logger) (*Registry, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Registry{
		byID:    make(map[string]Descriptor, len(descs)),
		deps:    deps,
		parents: make(map[string]string),
		store:   store,
		logger:  logger,
		values:  make(map[string]any, len(descs)),
	}

	for _, d := range descs {
		if d.ID == "" {
			return nil, fmt.Errorf("feature %q: empty id", d.Name)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("feature %q: duplicate id", d.ID)
		}
		if d.Lifecycle == nil {
			d.Lifecycle = Funcs{}
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}

	for parent, children := range deps {
		p, ok := r.byID[parent]
		if !ok {
			return nil, fmt.Errorf("dependents: %w: %q", ErrUnknownFeature, parent)
		}
		if !p.Management {
			return nil, fmt.Errorf("dependents: %q is not a management feature", parent)
		}
		for _, child := range children {
			c, ok := r.byID[child]
			if !ok {
				return nil, fmt.Errorf("dependents of %q: %w: %q", parent, ErrUnknownFeature, child)
			}
			if !c.SubFeature {
				return nil, fmt.Errorf("dependents of %q: %q is not a sub-feature", parent, child)
			}
			if other, taken := r.parents[child]; taken && other != parent {
				return nil, fmt.Errorf("sub-feature %q has two parents: %q and %q", child, other, parent)
			}
			r.parents[child] = parent
		}
	}

	for _, d := range descs {
		r.values[d.ID] = disabledValue(d)
	}
	return r, nil
}

// Defaults returns every feature's default stored value, keyed by id.
func (r *Registry) Defaults() map[string]any {
	out := make(map[string]any, len(r.order))
	for _, id := range r.order {
		d := r.byID[id]
		if d.Default == nil {
			out[id] = disabledValue(d)
			continue
		}
		out[id] = d.Default
	}
	return out
}

// Initialize activates every feature whose value in flags is truthy.
// Sub-features whose parent is not on stay off. Unknown keys are ignored.
func (r *Registry) Initialize(ctx context.Context, flags map[string]any) {
	for _, id := range r.order {
		d := r.byID[id]
		v, ok := flags[id]
		if !ok {
			continue
		}
		r.setValue(id, normalize(d, v))
	}

	for _, id := range r.order {
		d := r.byID[id]
		if !r.Enabled(id) {
			continue
		}
		if parent, ok := r.parents[id]; ok && !r.Enabled(parent) {
			r.logger.Warnf("feature %q skipped: parent %q is disabled", id, parent)
			r.setValue(id, disabledValue(d))
			continue
		}
		r.call(ctx, d, "activate")
	}
}

// SetEnabled moves a feature to the requested state and persists it.
// Turning a management feature off first turns off its active sub-features.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	d, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, id)
	}

	if enabled && !r.Enabled(id) {
		if parent, ok := r.parents[id]; ok && !r.Enabled(parent) {
			return fmt.Errorf("enable %q: %w: %q", id, ErrParentDisabled, parent)
		}
	}

	next := disabledValue(d)
	if enabled {
		next = enabledValue(d, r.value(id))
	}

	if enabled == r.Enabled(id) {
		return r.persist(ctx, id, r.value(id))
	}

	if !enabled {
		// A failed save does not stop the cascade: the runtime always ends
		// with the parent and every child off, and the save errors are joined.
		var errs []error
		for _, child := range r.deps[id] {
			if !r.Enabled(child) {
				continue
			}
			cd := r.byID[child]
			r.call(ctx, cd, "deactivate")
			r.setValue(child, disabledValue(cd))
			errs = append(errs, r.persist(ctx, child, disabledValue(cd)))
		}
		r.call(ctx, d, "deactivate")
		r.setValue(id, next)
		errs = append(errs, r.persist(ctx, id, next))
		return errors.Join(errs...)
	}

	if !isEnabled(d, next) {
		return fmt.Errorf("enable %q: no value to apply", id)
	}
	r.setValue(id, next)
	r.call(ctx, d, "activate")
	return r.persist(ctx, id, next)
}

// SetValue stores a textarea feature's text. An empty value disables it; a
// changed value on an active feature re-applies it.
func (r *Registry) SetValue(ctx context.Context, id, value string) error {
	d, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFeature, id)
	}
	if d.kind() != TypeTextarea {
		return fmt.Errorf("set %q: %w", id, ErrNotTextarea)
	}

	if strings.TrimSpace(value) == "" {
		return r.SetEnabled(ctx, id, false)
	}

	was := r.Enabled(id)
	if was && r.Value(id) == value {
		return r.persist(ctx, id, value)
	}
	if !was {
		if parent, ok := r.parents[id]; ok && !r.Enabled(parent) {
			return fmt.Errorf("enable %q: %w: %q", id, ErrParentDisabled, parent)
		}
	}

	if was {
		r.call(ctx, d, "deactivate")
	}
	r.setValue(id, value)
	r.call(ctx, d, "activate")
	return r.persist(ctx, id, value)
}

// Shutdown deactivates every enabled feature, last registered first, without
// changing recorded or persisted state.
func (r *Registry) Shutdown(ctx context.Context) {
	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		if r.Enabled(id) {
			r.call(ctx, r.byID[id], "deactivate")
		}
	}
}

// Enabled reports the recorded state of id.
func (r *Registry) Enabled(id string) bool {
	d, ok := r.byID[id]
	if !ok {
		return false
	}
	return isEnabled(d, r.value(id))
}

// Value returns a textarea feature's text, or "" for toggles and unknown ids.
func (r *Registry) Value(id string) string {
	s, _ := r.value(id).(string)
	return s
}

// Flags returns the enabled state of every feature.
func (r *Registry) Flags() map[string]bool {
	return lo.SliceToMap(r.order, func(id string) (string, bool) {
		return id, r.Enabled(id)
	})
}

// Descriptors returns the catalog in registration order.
func (r *Registry) Descriptors() []Descriptor {
	return lo.Map(r.order, func(id string, _ int) Descriptor {
		return r.byID[id]
	})
}

// Parent returns the management feature gating id, if any.
func (r *Registry) Parent(id string) (string, bool) {
	p, ok := r.parents[id]
	return p, ok
}

func (r *Registry) value(id string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[id]
}

func (r *Registry) setValue(id string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[id] = v
}

func (r *Registry) persist(ctx context.Context, id string, v any) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, id, v); err != nil {
		return fmt.Errorf("persist %q: %w", id, err)
	}
	return nil
}

// call runs one lifecycle step, converting errors and panics into log lines.
func (r *Registry) call(ctx context.Context, d Descriptor, step string) {
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		if step == "activate" {
			return d.Lifecycle.Activate(ctx)
		}
		return d.Lifecycle.Deactivate(ctx)
	}()
	if err != nil {
		r.logger.Errorf("feature %q %s failed: %v", d.ID, step, err)
		return
	}
	r.logger.Debugf("feature %q %sd", d.ID, step)
}

func isEnabled(d Descriptor, v any) bool {
	if d.kind() == TypeTextarea {
		s, _ := v.(string)
		return strings.TrimSpace(s) != ""
	}
	return Truthy(v)
}

func disabledValue(d Descriptor) any {
	if d.kind() == TypeTextarea {
		return ""
	}
	return false
}

// enabledValue keeps a textarea's current text, falling back to its default.
func enabledValue(d Descriptor, current any) any {
	if d.kind() != TypeTextarea {
		return true
	}
	if s, _ := current.(string); strings.TrimSpace(s) != "" {
		return s
	}
	if s, _ := d.Default.(string); s != "" {
		return s
	}
	return ""
}

// normalize converts a stored value to the shape the feature type expects.
func normalize(d Descriptor, v any) any {
	if d.kind() == TypeTextarea {
		switch t := v.(type) {
		case string:
			return t
		case bool:
			if t {
				return enabledValue(d, nil)
			}
			return ""
		default:
			return ""
		}
	}
	return Truthy(v)
}
