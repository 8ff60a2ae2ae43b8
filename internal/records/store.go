// Package records persists the stateful broker entities the lifecycle engine
// governs. Stores are pure I/O; every rule decision belongs to the engine.
package records

import (
	"context"

	"github.com/google/uuid"

	"brokergate/internal/lifecycle"
)

// Store is the full record persistence contract. The lifecycle engine uses
// only the GetForUpdate/ApplyMerge pair; Create and Get serve the surrounding
// CRUD shell.
type Store interface {
	Create(ctx context.Context, rec *lifecycle.Record) error
	Get(ctx context.Context, kind string, id uuid.UUID) (*lifecycle.Record, error)
	GetForUpdate(ctx context.Context, kind string, id uuid.UUID) (*lifecycle.Record, error)
	ApplyMerge(ctx context.Context, kind string, id uuid.UUID, proposed lifecycle.Fields, status *lifecycle.StateName) (*lifecycle.Record, error)
}
