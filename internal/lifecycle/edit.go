package lifecycle

import "sort"

// EditRequest is a partial field map the caller wants applied, optionally
// carrying a requested transition under the reserved "status" key. Structural
// validation (types, formats) happens upstream; the engine only re-checks
// per-state permissibility.
type EditRequest struct {
	Fields Fields
}

// RequestedStatus extracts the transition request, if any. ok is false when
// the payload carries no status key. A status key holding a non-string value
// is a malformed payload and reported via malformed=true.
func (r EditRequest) RequestedStatus() (status StateName, ok bool, malformed bool) {
	raw, present := r.Fields[StatusField]
	if !present {
		return "", false, false
	}
	s, isString := raw.(string)
	if !isString {
		return "", false, true
	}
	return StateName(s), true, false
}

// TouchedFields returns the payload's field names excluding the status key,
// sorted. A key present with an explicit null counts as touched; only keys
// absent from the map are untouched.
func (r EditRequest) TouchedFields() []string {
	touched := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		if name == StatusField {
			continue
		}
		touched = append(touched, name)
	}
	sort.Strings(touched)
	return touched
}

// ProposedFields returns the payload without the status key, for merging.
func (r EditRequest) ProposedFields() Fields {
	proposed := make(Fields, len(r.Fields))
	for name, value := range r.Fields {
		if name == StatusField {
			continue
		}
		proposed[name] = value
	}
	return proposed
}
