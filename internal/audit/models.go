// Package audit defines the append-only trail written for every accepted
// record edit. Entries commit in the same transaction as the mutation they
// describe; a rejected edit never produces one.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transition records the state pair of an accepted status change.
type Transition struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Entry is one immutable audit record: who changed what, with full before and
// after field snapshots. Uses plain map/string types so consumers (outbox
// relay, admin listing) need no knowledge of blueprint internals.
type Entry struct {
	ID         uuid.UUID
	RecordID   uuid.UUID
	EntityKind string
	ActorID    string
	ActorRole  string
	Timestamp  time.Time
	Before     map[string]any
	After      map[string]any
	Transition *Transition
}

// OutboxRow is one unpublished outbox record awaiting relay to Kafka.
type OutboxRow struct {
	ID      uuid.UUID
	EntryID uuid.UUID
	Payload []byte
}

// Store persists audit entries. Append must participate in the ambient
// transaction when one is open (pkg/platform/tx) so the entry commits or
// rolls back with the record mutation.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]Entry, error)
}
