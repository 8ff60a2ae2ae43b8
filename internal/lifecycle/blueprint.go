// Package lifecycle implements the blueprint-driven transition engine that
// governs edits to stateful broker records (claims, policies). A blueprint is
// declarative data: per state it names who may edit, which fields are
// writable, which transitions are legal, and which fields a transition
// requires. The engine evaluates those rules in a fixed order inside one
// storage transaction.
package lifecycle

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

// StateName is one named lifecycle stage of a record.
type StateName string

// RoleID identifies an actor role. The engine treats it as opaque; roles are
// resolved upstream by the identity layer.
type RoleID string

// Fields is a record's governed field values. A key present with a nil value
// is an explicit null, which is distinct from the key being absent.
type Fields map[string]any

// StatusField is the reserved payload key carrying a requested transition.
// It is never part of a blueprint's field universe.
const StatusField = "status"

// StateRule declares, for a single state, who may edit, what they may edit,
// where the record may move next, and what each move requires.
type StateRule struct {
	Label                  string
	AllowedEditors         []RoleID
	EditableFields         []string
	AllowedTransitions     []StateName
	TransitionRequirements map[StateName][]string
}

// Blueprint is the full lifecycle table for one entity kind. Construct with
// NewBlueprint, which validates referential integrity once so per-request
// evaluation has no failure paths of its own.
type Blueprint struct {
	Kind         string
	InitialState StateName
	FieldNames   []string
	States       map[StateName]StateRule

	compiled map[StateName]compiledRule
	universe map[string]struct{}
}

type compiledRule struct {
	editors     map[RoleID]struct{}
	editable    map[string]struct{}
	transitions map[StateName]struct{}
}

var fieldNameRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// NewBlueprint validates and compiles a blueprint. Callers are expected to
// fail fast (refuse to start) on error: an invalid blueprint is an authoring
// bug, not a runtime condition.
func NewBlueprint(kind string, initial StateName, fieldNames []string, states map[StateName]StateRule) (*Blueprint, error) {
	if kind == "" {
		return nil, fmt.Errorf("blueprint: kind is required")
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("blueprint %s: at least one state is required", kind)
	}
	if _, ok := states[initial]; !ok {
		return nil, fmt.Errorf("blueprint %s: initial state %q is not declared", kind, initial)
	}

	universe := make(map[string]struct{}, len(fieldNames))
	for _, name := range fieldNames {
		if !fieldNameRe.MatchString(name) {
			return nil, fmt.Errorf("blueprint %s: invalid field name %q", kind, name)
		}
		if name == StatusField {
			return nil, fmt.Errorf("blueprint %s: field name %q is reserved", kind, StatusField)
		}
		if _, dup := universe[name]; dup {
			return nil, fmt.Errorf("blueprint %s: duplicate field name %q", kind, name)
		}
		universe[name] = struct{}{}
	}

	compiled := make(map[StateName]compiledRule, len(states))
	for state, rule := range states {
		cr := compiledRule{
			editors:     make(map[RoleID]struct{}, len(rule.AllowedEditors)),
			editable:    make(map[string]struct{}, len(rule.EditableFields)),
			transitions: make(map[StateName]struct{}, len(rule.AllowedTransitions)),
		}
		for _, role := range rule.AllowedEditors {
			cr.editors[role] = struct{}{}
		}
		for _, field := range rule.EditableFields {
			if _, ok := universe[field]; !ok {
				return nil, fmt.Errorf("blueprint %s: state %s: editable field %q is not declared", kind, state, field)
			}
			cr.editable[field] = struct{}{}
		}
		for _, target := range rule.AllowedTransitions {
			if _, ok := states[target]; !ok {
				return nil, fmt.Errorf("blueprint %s: state %s: transition target %s is not declared", kind, state, target)
			}
			cr.transitions[target] = struct{}{}
		}
		for target, required := range rule.TransitionRequirements {
			if _, ok := cr.transitions[target]; !ok {
				return nil, fmt.Errorf("blueprint %s: state %s: requirement for %s, which is not an allowed transition", kind, state, target)
			}
			for _, field := range required {
				if _, ok := universe[field]; !ok {
					return nil, fmt.Errorf("blueprint %s: state %s -> %s: required field %q is not declared", kind, state, target, field)
				}
			}
		}
		compiled[state] = cr
	}

	return &Blueprint{
		Kind:         kind,
		InitialState: initial,
		FieldNames:   append([]string(nil), fieldNames...),
		States:       states,
		compiled:     compiled,
		universe:     universe,
	}, nil
}

// Rule returns the declared rule for a state.
func (b *Blueprint) Rule(state StateName) (StateRule, bool) {
	rule, ok := b.States[state]
	return rule, ok
}

// HasState reports whether the state is declared in this blueprint.
func (b *Blueprint) HasState(state StateName) bool {
	_, ok := b.States[state]
	return ok
}

// CanEdit reports whether the role may submit any edit while the record is in
// the given state. An empty editor set freezes the state for everyone.
func (b *Blueprint) CanEdit(state StateName, role RoleID) bool {
	cr, ok := b.compiled[state]
	if !ok {
		return false
	}
	_, ok = cr.editors[role]
	return ok
}

// ForbiddenFields returns every touched field that is not editable in the
// given state, sorted, so a rejection can list the whole problem at once.
func (b *Blueprint) ForbiddenFields(state StateName, touched []string) []string {
	cr, ok := b.compiled[state]
	if !ok {
		return append([]string(nil), touched...)
	}
	var forbidden []string
	for _, field := range touched {
		if _, editable := cr.editable[field]; !editable {
			forbidden = append(forbidden, field)
		}
	}
	sort.Strings(forbidden)
	return forbidden
}

// TransitionAllowed reports whether moving from one state to another is
// declared legal.
func (b *Blueprint) TransitionAllowed(from, to StateName) bool {
	cr, ok := b.compiled[from]
	if !ok {
		return false
	}
	_, ok = cr.transitions[to]
	return ok
}

// MissingRequirements returns every field required for the from->to
// transition that is null or absent in the merged record, sorted.
func (b *Blueprint) MissingRequirements(from, to StateName, merged Fields) []string {
	rule, ok := b.States[from]
	if !ok {
		return nil
	}
	var missing []string
	for _, field := range rule.TransitionRequirements[to] {
		if value, present := merged[field]; !present || value == nil {
			missing = append(missing, field)
		}
	}
	sort.Strings(missing)
	return missing
}

// Terminal reports whether the state has no outgoing transitions.
func (b *Blueprint) Terminal(state StateName) bool {
	cr, ok := b.compiled[state]
	return ok && len(cr.transitions) == 0
}

// Record is the engine's view of a stateful entity: identity, current state,
// and the governed field map. Fields outside the blueprint's universe (ids,
// bookkeeping timestamps) are not represented here; they are never writable
// through the engine.
type Record struct {
	ID        uuid.UUID
	Kind      string
	Status    StateName
	Fields    Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep-enough copy for audit snapshots. Field values are
// JSON-scalar or JSON-composite; top-level copy suffices because the engine
// never mutates nested values in place.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Merge returns current overridden by proposed. A proposed key present with
// an explicit null wins over the stored value; keys absent from proposed keep
// their stored value.
func Merge(current, proposed Fields) Fields {
	merged := current.Clone()
	for k, v := range proposed {
		merged[k] = v
	}
	return merged
}
