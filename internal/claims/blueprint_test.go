package claims

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brokergate/internal/lifecycle"
	"brokergate/internal/roles"
)

func TestNewBlueprint(t *testing.T) {
	bp, err := NewBlueprint()
	require.NoError(t, err)

	assert.Equal(t, Kind, bp.Kind)
	assert.Equal(t, StateDraft, bp.InitialState)
}

func TestClaimEditors(t *testing.T) {
	bp := MustBlueprint()

	t.Run("broker drafts, analyst reviews", func(t *testing.T) {
		assert.True(t, bp.CanEdit(StateDraft, roles.Broker))
		assert.False(t, bp.CanEdit(StateDraft, roles.ClaimsAnalyst))
		assert.True(t, bp.CanEdit(StateValidation, roles.ClaimsAnalyst))
		assert.False(t, bp.CanEdit(StateValidation, roles.Broker))
	})

	t.Run("terminal states admit admin only", func(t *testing.T) {
		for _, state := range []lifecycle.StateName{StateSettled, StateCancelled} {
			assert.True(t, bp.CanEdit(state, roles.Admin))
			assert.False(t, bp.CanEdit(state, roles.Broker))
			assert.False(t, bp.CanEdit(state, roles.ClaimsAnalyst))
		}
	})
}

func TestClaimTransitions(t *testing.T) {
	bp := MustBlueprint()

	assert.True(t, bp.TransitionAllowed(StateDraft, StateValidation))
	assert.True(t, bp.TransitionAllowed(StateValidation, StateSubmitted))
	assert.True(t, bp.TransitionAllowed(StateSubmitted, StateSettled))
	assert.True(t, bp.TransitionAllowed(StateSubmitted, StateReturned))
	assert.True(t, bp.TransitionAllowed(StateReturned, StateValidation))

	assert.False(t, bp.TransitionAllowed(StateDraft, StateSettled), "no settlement without review")
	assert.False(t, bp.TransitionAllowed(StateSettled, StateSubmitted))
	assert.True(t, bp.Terminal(StateSettled))
	assert.True(t, bp.Terminal(StateCancelled))
}

func TestSettlementRequirements(t *testing.T) {
	bp := MustBlueprint()

	missing := bp.MissingRequirements(StateSubmitted, StateSettled, lifecycle.Fields{
		"amountApproved": 850,
	})
	assert.Equal(t, []string{"settlementDate"}, missing)

	missing = bp.MissingRequirements(StateSubmitted, StateSettled, lifecycle.Fields{
		"amountApproved": 850,
		"settlementDate": "2026-09-01",
	})
	assert.Empty(t, missing)
}

func TestReturnRequiresReason(t *testing.T) {
	bp := MustBlueprint()

	missing := bp.MissingRequirements(StateSubmitted, StateReturned, lifecycle.Fields{})
	assert.Equal(t, []string{"returnReason"}, missing)
}
