package postgres

import (
	"context"
	"database/sql"
	"fmt"

	txcontext "brokergate/pkg/platform/tx"
)

// TxRunner wraps each unit of work in a serializable transaction and carries
// it through context so the record store and audit store share it. The
// exclusive row lock taken by GetForUpdate plus commit-or-rollback semantics
// give the engine its no-partial-application and no-lost-update guarantees.
type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

// RunInTx ignores key; row locks already serialize per record.
func (r *TxRunner) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	t, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapPQError(err))
	}

	if err := fn(txcontext.WithTx(ctx, t)); err != nil {
		if rbErr := t.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapPQError(err))
	}
	return nil
}
