package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Publisher captures structured audit entries. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit fills in identity and timestamp defaults and appends the entry.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return p.store.Append(ctx, entry)
}

// List returns the trail for one record, newest first.
func (p *Publisher) List(ctx context.Context, recordID uuid.UUID) ([]Entry, error) {
	return p.store.ListByRecord(ctx, recordID)
}
