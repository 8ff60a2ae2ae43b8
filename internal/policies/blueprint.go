// Package policies declares the lifecycle blueprint for insurance policies.
package policies

import (
	"brokergate/internal/lifecycle"
	"brokergate/internal/roles"
)

// Kind is the policy entity kind in the blueprint registry and record store.
const Kind = "policy"

// Policy states.
const (
	StatePending   lifecycle.StateName = "PENDING"
	StateActive    lifecycle.StateName = "ACTIVE"
	StateExpired   lifecycle.StateName = "EXPIRED"
	StateCancelled lifecycle.StateName = "CANCELLED"
)

var fieldNames = []string{
	"policyNumber",
	"clientId",
	"monthlyPremium",
	"ambCopay",
	"hospitalCopay",
	"startDate",
	"endDate",
	"notes",
	"active",
	"principalId",
}

// NewBlueprint builds the four-state policy lifecycle. Activation is the
// guarded edge: a policy may not go ACTIVE without its number, premium
// schedule, and start date in place.
func NewBlueprint() (*lifecycle.Blueprint, error) {
	states := map[lifecycle.StateName]lifecycle.StateRule{
		StatePending: {
			Label:          "Pending",
			AllowedEditors: []lifecycle.RoleID{roles.Broker, roles.Admin},
			EditableFields: []string{
				"policyNumber", "clientId", "monthlyPremium", "ambCopay",
				"hospitalCopay", "startDate", "endDate", "notes",
			},
			AllowedTransitions: []lifecycle.StateName{
				StateActive, StateCancelled,
			},
			TransitionRequirements: map[lifecycle.StateName][]string{
				StateActive: {"policyNumber", "clientId", "monthlyPremium", "ambCopay", "startDate"},
			},
		},
		StateActive: {
			Label:          "Active",
			AllowedEditors: []lifecycle.RoleID{roles.Admin},
			EditableFields: []string{"endDate", "notes", "active"},
			AllowedTransitions: []lifecycle.StateName{
				StateExpired, StateCancelled,
			},
			TransitionRequirements: map[lifecycle.StateName][]string{
				StateExpired: {"endDate"},
			},
		},
		StateExpired: {
			Label:          "Expired",
			AllowedEditors: []lifecycle.RoleID{roles.Admin},
			EditableFields: []string{"notes"},
		},
		StateCancelled: {
			Label:          "Cancelled",
			AllowedEditors: []lifecycle.RoleID{roles.Admin},
			EditableFields: []string{"notes"},
		},
	}
	return lifecycle.NewBlueprint(Kind, StatePending, fieldNames, states)
}

// MustBlueprint panics on an invalid blueprint. Called at startup only.
func MustBlueprint() *lifecycle.Blueprint {
	bp, err := NewBlueprint()
	if err != nil {
		panic(err)
	}
	return bp
}
