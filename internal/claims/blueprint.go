// Package claims declares the lifecycle blueprint for insurance claims.
package claims

import (
	"brokergate/internal/lifecycle"
	"brokergate/internal/roles"
)

// Kind is the claim entity kind in the blueprint registry and record store.
const Kind = "claim"

// Claim states.
const (
	StateDraft       lifecycle.StateName = "DRAFT"
	StatePendingInfo lifecycle.StateName = "PENDING_INFO"
	StateValidation  lifecycle.StateName = "VALIDATION"
	StateSubmitted   lifecycle.StateName = "SUBMITTED"
	StateReturned    lifecycle.StateName = "RETURNED"
	StateSettled     lifecycle.StateName = "SETTLED"
	StateCancelled   lifecycle.StateName = "CANCELLED"
)

// fieldNames is the governed field universe for claims. Identifiers and
// bookkeeping timestamps live outside the blueprint and are never writable
// through the engine.
var fieldNames = []string{
	"policyId",
	"description",
	"incidentDate",
	"amountClaimed",
	"amountApproved",
	"settlementDate",
	"returnReason",
	"documentsUrl",
	"reviewNotes",
	"active",
	"principalId",
}

// NewBlueprint builds the seven-state claim lifecycle. Settlement is the
// financially sensitive edge: SUBMITTED -> SETTLED demands an approved amount
// and a settlement date before the transition is accepted.
func NewBlueprint() (*lifecycle.Blueprint, error) {
	states := map[lifecycle.StateName]lifecycle.StateRule{
		StateDraft: {
			Label:          "Draft",
			AllowedEditors: []lifecycle.RoleID{roles.Broker, roles.Admin},
			EditableFields: []string{"policyId", "description", "incidentDate", "amountClaimed", "documentsUrl"},
			AllowedTransitions: []lifecycle.StateName{
				StateValidation, StateCancelled,
			},
			TransitionRequirements: map[lifecycle.StateName][]string{
				StateValidation: {"policyId", "description", "incidentDate", "amountClaimed"},
			},
		},
		StatePendingInfo: {
			Label:          "Pending Information",
			AllowedEditors: []lifecycle.RoleID{roles.Broker, roles.ClaimsAnalyst, roles.Admin},
			EditableFields: []string{"description", "documentsUrl", "reviewNotes"},
			AllowedTransitions: []lifecycle.StateName{
				StateValidation, StateCancelled,
			},
		},
		StateValidation: {
			Label:          "Under Validation",
			AllowedEditors: []lifecycle.RoleID{roles.ClaimsAnalyst, roles.Admin},
			EditableFields: []string{"amountClaimed", "reviewNotes"},
			AllowedTransitions: []lifecycle.StateName{
				StatePendingInfo, StateSubmitted, StateReturned, StateCancelled,
			},
			TransitionRequirements: map[lifecycle.StateName][]string{
				StateSubmitted: {"amountClaimed"},
				StateReturned:  {"returnReason"},
			},
		},
		StateSubmitted: {
			Label:          "Submitted",
			AllowedEditors: []lifecycle.RoleID{roles.ClaimsAnalyst, roles.Admin},
			EditableFields: []string{"amountApproved", "settlementDate", "returnReason", "reviewNotes"},
			AllowedTransitions: []lifecycle.StateName{
				StateSettled, StateReturned,
			},
			TransitionRequirements: map[lifecycle.StateName][]string{
				StateSettled:  {"amountApproved", "settlementDate"},
				StateReturned: {"returnReason"},
			},
		},
		StateReturned: {
			Label:          "Returned",
			AllowedEditors: []lifecycle.RoleID{roles.Broker, roles.Admin},
			EditableFields: []string{"description", "documentsUrl", "amountClaimed"},
			AllowedTransitions: []lifecycle.StateName{
				StateValidation, StateCancelled,
			},
			TransitionRequirements: map[lifecycle.StateName][]string{
				StateValidation: {"description"},
			},
		},
		StateSettled: {
			Label:          "Settled",
			AllowedEditors: []lifecycle.RoleID{roles.Admin},
			EditableFields: []string{"reviewNotes"},
		},
		StateCancelled: {
			Label:          "Cancelled",
			AllowedEditors: []lifecycle.RoleID{roles.Admin},
			EditableFields: []string{"reviewNotes"},
		},
	}
	return lifecycle.NewBlueprint(Kind, StateDraft, fieldNames, states)
}

// MustBlueprint panics on an invalid blueprint. Called at startup only;
// blueprint authoring errors must refuse to boot.
func MustBlueprint() *lifecycle.Blueprint {
	bp, err := NewBlueprint()
	if err != nil {
		panic(err)
	}
	return bp
}
