package lifecycle

import (
	"fmt"
	"sort"
)

// Registry holds one validated blueprint per entity kind. It is built once at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	blueprints map[string]*Blueprint
}

// NewRegistry collects blueprints, rejecting duplicate kinds. Blueprints are
// already validated by NewBlueprint; the registry only guards uniqueness.
func NewRegistry(blueprints ...*Blueprint) (*Registry, error) {
	byKind := make(map[string]*Blueprint, len(blueprints))
	for _, bp := range blueprints {
		if _, dup := byKind[bp.Kind]; dup {
			return nil, fmt.Errorf("registry: duplicate blueprint for kind %q", bp.Kind)
		}
		byKind[bp.Kind] = bp
	}
	return &Registry{blueprints: byKind}, nil
}

// Blueprint returns the blueprint for an entity kind.
func (r *Registry) Blueprint(kind string) (*Blueprint, bool) {
	bp, ok := r.blueprints[kind]
	return bp, ok
}

// Kinds lists the registered entity kinds, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.blueprints))
	for kind := range r.blueprints {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
