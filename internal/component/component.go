// Package component implements the C12 component & embed builders:
// template registry lookup, string interpolation/templating, and the
// ordered resolution rules for colors, emoji, styles, and select kinds.
package component

import (
	"fmt"

	"github.com/rakunlabs/flowbot/internal/spec"
)

// Registry holds named component templates, one map per kind.
type Registry struct {
	buttons map[string]spec.ComponentTemplate
	selects map[string]spec.ComponentTemplate
	modals  map[string]spec.ComponentTemplate
}

func NewRegistry(c spec.Components) *Registry {
	r := &Registry{
		buttons: make(map[string]spec.ComponentTemplate, len(c.Buttons)),
		selects: make(map[string]spec.ComponentTemplate, len(c.Selects)),
		modals:  make(map[string]spec.ComponentTemplate, len(c.Modals)),
	}
	for _, t := range c.Buttons {
		r.buttons[t.Name] = t
	}
	for _, t := range c.Selects {
		r.selects[t.Name] = t
	}
	for _, t := range c.Modals {
		r.modals[t.Name] = t
	}
	return r
}

func (r *Registry) button(name string) (spec.ComponentTemplate, error) {
	t, ok := r.buttons[name]
	if !ok {
		return spec.ComponentTemplate{}, fmt.Errorf("component: no button template %q", name)
	}
	return t, nil
}

func (r *Registry) selectTemplate(name string) (spec.ComponentTemplate, error) {
	t, ok := r.selects[name]
	if !ok {
		return spec.ComponentTemplate{}, fmt.Errorf("component: no select template %q", name)
	}
	return t, nil
}

func (r *Registry) modal(name string) (spec.ComponentTemplate, error) {
	t, ok := r.modals[name]
	if !ok {
		return spec.ComponentTemplate{}, fmt.Errorf("component: no modal template %q", name)
	}
	return t, nil
}

// resolveTemplate accepts either a template name (string) or an
// inline definition (map[string]any, used directly as Fields).
func resolveTemplate(lookup func(string) (spec.ComponentTemplate, error), v any) (spec.ComponentTemplate, error) {
	switch val := v.(type) {
	case string:
		return lookup(val)
	case map[string]any:
		return spec.ComponentTemplate{Fields: val}, nil
	default:
		return spec.ComponentTemplate{}, fmt.Errorf("component: expected template name or inline definition, got %T", v)
	}
}
