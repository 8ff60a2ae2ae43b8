// Package identity bridges accepted lifecycle edits to the authentication
// layer's session state.
package identity

import (
	"context"
	"log/slog"

	"brokergate/internal/identity/sessions"
	"brokergate/internal/lifecycle"
)

// DeactivationHook revokes a linked principal's sessions when a record's
// active flag is cleared by an accepted edit. It runs post-commit: the edit
// stands whether or not revocation succeeds, and failures are logged by the
// engine, not surfaced to the caller.
type DeactivationHook struct {
	revoker sessions.Revoker
	logger  *slog.Logger
}

func NewDeactivationHook(revoker sessions.Revoker, logger *slog.Logger) *DeactivationHook {
	return &DeactivationHook{revoker: revoker, logger: logger}
}

func (h *DeactivationHook) AfterApply(ctx context.Context, before, after *lifecycle.Record) error {
	if !flagCleared(before.Fields, after.Fields) {
		return nil
	}
	principalID, ok := after.Fields["principalId"].(string)
	if !ok || principalID == "" {
		return nil
	}
	if err := h.revoker.RevokeAllForPrincipal(ctx, principalID); err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "revoked sessions for deactivated principal",
		"kind", after.Kind,
		"record_id", after.ID.String(),
	)
	return nil
}

// flagCleared reports an active -> inactive flip. A record with no active
// flag, or one that was already inactive, does not trigger revocation.
func flagCleared(before, after lifecycle.Fields) bool {
	wasActive, _ := before["active"].(bool)
	isActive, hasFlag := after["active"].(bool)
	return wasActive && hasFlag && !isActive
}
