package memory

import (
	"context"
	"sync"
	"time"

	dErrors "brokergate/pkg/domain-errors"
)

// TxRunner provides the per-record mutual exclusion the engine requires,
// using sharded mutexes keyed by record id so distinct records do not
// contend. It offers exclusion, not rollback; the engine only writes after
// every check has passed, which preserves the no-partial-application
// guarantee for the in-memory stores.
const numShards = 128

// defaultTxTimeout bounds a unit of work so a stuck caller cannot hold a
// shard forever.
const defaultTxTimeout = 5 * time.Second

type TxRunner struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewTxRunner() *TxRunner {
	return &TxRunner{timeout: defaultTxTimeout}
}

func (r *TxRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	shard := &r.shards[hashKey(key)%numShards]
	shard.Lock()
	defer shard.Unlock()

	// Check again after acquiring the lock.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	return fn(ctx)
}

// hashKey uses FNV-1a for even shard distribution.
func hashKey(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
