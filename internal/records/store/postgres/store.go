package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"brokergate/internal/lifecycle"
	"brokergate/pkg/platform/sentinel"
	txcontext "brokergate/pkg/platform/tx"
)

// Store persists claims and policies in PostgreSQL, one table per entity
// kind, with the governed field map in a jsonb column. All statements route
// through the ambient transaction when one is open so the engine's
// check-and-apply sequence and its audit append commit atomically.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// tables maps entity kinds to their tables. Kinds are closed and declared
// here; an unknown kind is a programming error, not caller input.
var tables = map[string]string{
	"claim":  "claims",
	"policy": "policies",
}

func tableFor(kind string) (string, error) {
	table, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("no table for entity kind %q", kind)
	}
	return table, nil
}

func (s *Store) Create(ctx context.Context, rec *lifecycle.Record) error {
	table, err := tableFor(rec.Kind)
	if err != nil {
		return err
	}
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("marshal record fields: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, status, fields, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
	`, table)
	now := time.Now().UTC()
	if _, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query, rec.ID, string(rec.Status), fields, now); err != nil {
		return fmt.Errorf("insert %s record: %w", rec.Kind, mapPQError(err))
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (s *Store) Get(ctx context.Context, kind string, id uuid.UUID) (*lifecycle.Record, error) {
	return s.get(ctx, kind, id, false)
}

// GetForUpdate reads the record under an exclusive row lock. The lock holds
// for the remainder of the ambient transaction, serializing concurrent edits
// of the same record.
func (s *Store) GetForUpdate(ctx context.Context, kind string, id uuid.UUID) (*lifecycle.Record, error) {
	return s.get(ctx, kind, id, true)
}

func (s *Store) get(ctx context.Context, kind string, id uuid.UUID, forUpdate bool) (*lifecycle.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, status, fields, created_at, updated_at
		FROM %s
		WHERE id = $1
	`, table)
	if forUpdate {
		query += " FOR UPDATE"
	}
	rec, err := scanRecord(txcontext.Pick(ctx, s.db).QueryRowContext(ctx, query, id), kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get %s %s: %w", kind, id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s record: %w", kind, mapPQError(err))
	}
	return rec, nil
}

// ApplyMerge shallow-merges the proposed fields into the stored jsonb map and
// optionally moves the status, returning the updated row. An explicit JSON
// null in proposed overwrites the stored value with null, which is exactly
// the merge semantics the requirement checker evaluates against.
func (s *Store) ApplyMerge(ctx context.Context, kind string, id uuid.UUID, proposed lifecycle.Fields, status *lifecycle.StateName) (*lifecycle.Record, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	merge, err := json.Marshal(proposed)
	if err != nil {
		return nil, fmt.Errorf("marshal proposed fields: %w", err)
	}
	var newStatus *string
	if status != nil {
		v := string(*status)
		newStatus = &v
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET fields = fields || $2::jsonb,
		    status = COALESCE($3, status),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, status, fields, created_at, updated_at
	`, table)
	rec, err := scanRecord(txcontext.Pick(ctx, s.db).QueryRowContext(ctx, query, id, merge, newStatus), kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("merge %s %s: %w", kind, id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("merge %s record: %w", kind, mapPQError(err))
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, kind string) (*lifecycle.Record, error) {
	var (
		rec       lifecycle.Record
		status    string
		rawFields []byte
	)
	if err := row.Scan(&rec.ID, &status, &rawFields, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Kind = kind
	rec.Status = lifecycle.StateName(status)
	if err := json.Unmarshal(rawFields, &rec.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal record fields: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = lifecycle.Fields{}
	}
	return &rec, nil
}

// mapPQError folds driver-level concurrency failures into sentinel errors so
// the engine can classify them as transient rather than validation failures.
func mapPQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return fmt.Errorf("%w: %v", sentinel.ErrSerialization, err)
	case "55P03", "57014": // lock_not_available, query_canceled
		return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	case "23505": // unique_violation
		return fmt.Errorf("%w: %v", sentinel.ErrConflict, err)
	default:
		return err
	}
}
