package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// RejectionKind categorizes why an edit was refused. Rejections are
// deterministic for a given record state and payload; they are never
// retry-eligible.
type RejectionKind string

const (
	RejectedUnauthorized        RejectionKind = "unauthorized"
	RejectedForbiddenFields     RejectionKind = "forbidden_fields"
	RejectedIllegalTransition   RejectionKind = "illegal_transition"
	RejectedMissingRequirements RejectionKind = "missing_requirements"
)

// Rejection is the structured outcome of a failed check. It carries the full
// offending set (every forbidden or missing field, the exact from/to pair) so
// the caller can build a precise message without re-deriving the blueprint.
type Rejection struct {
	Kind  RejectionKind
	State StateName // record state at evaluation time
	Role  RoleID    // populated for unauthorized rejections

	// Fields holds the forbidden or missing field names, sorted.
	Fields []string

	// From and To are populated for illegal-transition and
	// missing-requirements rejections.
	From StateName
	To   StateName
}

func (r *Rejection) Error() string {
	switch r.Kind {
	case RejectedUnauthorized:
		return fmt.Sprintf("role %s may not edit records in state %s", r.Role, r.State)
	case RejectedForbiddenFields:
		return fmt.Sprintf("fields not editable in state %s: %s", r.State, strings.Join(r.Fields, ", "))
	case RejectedIllegalTransition:
		return fmt.Sprintf("transition %s -> %s is not allowed", r.From, r.To)
	case RejectedMissingRequirements:
		return fmt.Sprintf("transition %s -> %s requires fields: %s", r.From, r.To, strings.Join(r.Fields, ", "))
	default:
		return fmt.Sprintf("edit rejected in state %s", r.State)
	}
}

// AsRejection unwraps err into a Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}
