package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"brokergate/internal/audit"
	txcontext "brokergate/pkg/platform/tx"
)

// Store persists audit entries using the transactional outbox pattern: the
// queryable audit_entries row and the audit_outbox row are written through
// the ambient transaction, so both commit or roll back with the record
// mutation they describe. The outbox relay publishes committed rows to Kafka.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// entryPayload is the JSON shape stored in the outbox and published to Kafka.
type entryPayload struct {
	ID         string            `json:"id"`
	RecordID   string            `json:"record_id"`
	EntityKind string            `json:"entity_kind"`
	ActorID    string            `json:"actor_id"`
	ActorRole  string            `json:"actor_role"`
	Timestamp  string            `json:"timestamp"`
	Before     map[string]any    `json:"before"`
	After      map[string]any    `json:"after"`
	Transition *audit.Transition `json:"transition,omitempty"`
}

// Append writes the audit entry and its outbox row. Must be called inside the
// engine's transaction; audit writes are never independently retryable.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	exec := txcontext.Pick(ctx, s.db)

	before, err := json.Marshal(entry.Before)
	if err != nil {
		return fmt.Errorf("marshal before snapshot: %w", err)
	}
	after, err := json.Marshal(entry.After)
	if err != nil {
		return fmt.Errorf("marshal after snapshot: %w", err)
	}
	var fromState, toState *string
	if entry.Transition != nil {
		fromState = &entry.Transition.From
		toState = &entry.Transition.To
	}

	query := `
		INSERT INTO audit_entries (
			id, record_id, entity_kind, actor_id, actor_role,
			timestamp, before_fields, after_fields, from_state, to_state
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := exec.ExecContext(ctx, query,
		entry.ID,
		entry.RecordID,
		entry.EntityKind,
		entry.ActorID,
		entry.ActorRole,
		entry.Timestamp,
		before,
		after,
		fromState,
		toState,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(entryPayload{
		ID:         entry.ID.String(),
		RecordID:   entry.RecordID.String(),
		EntityKind: entry.EntityKind,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Before:     entry.Before,
		After:      entry.After,
		Transition: entry.Transition,
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	outbox := `
		INSERT INTO audit_outbox (id, entry_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := exec.ExecContext(ctx, outbox, uuid.New(), entry.ID, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByRecord returns the audit trail for one record, newest first.
func (s *Store) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]audit.Entry, error) {
	query := `
		SELECT id, record_id, entity_kind, actor_id, actor_role,
		       timestamp, before_fields, after_fields, from_state, to_state
		FROM audit_entries
		WHERE record_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			entry              audit.Entry
			before, after      []byte
			fromState, toState *string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.RecordID,
			&entry.EntityKind,
			&entry.ActorID,
			&entry.ActorRole,
			&entry.Timestamp,
			&before,
			&after,
			&fromState,
			&toState,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal(before, &entry.Before); err != nil {
			return nil, fmt.Errorf("unmarshal before snapshot: %w", err)
		}
		if err := json.Unmarshal(after, &entry.After); err != nil {
			return nil, fmt.Errorf("unmarshal after snapshot: %w", err)
		}
		if fromState != nil && toState != nil {
			entry.Transition = &audit.Transition{From: *fromState, To: *toState}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

// PendingOutbox returns up to limit unpublished outbox rows, oldest first,
// for the relay.
func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]audit.OutboxRow, error) {
	query := `
		SELECT id, entry_id, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var pending []audit.OutboxRow
	for rows.Next() {
		var row audit.OutboxRow
		if err := rows.Scan(&row.ID, &row.EntryID, &row.Payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		pending = append(pending, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return pending, nil
}

// MarkPublished stamps outbox rows after a successful produce.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	query := `UPDATE audit_outbox SET published_at = NOW() WHERE id = ANY($1::uuid[])`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(raw)); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
