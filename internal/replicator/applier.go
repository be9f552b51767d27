package replicator

import (
	"context"
	"fmt"

	"github.com/dbsmedya/tablesync/internal/database"
	"github.com/dbsmedya/tablesync/internal/types"
)

// BatchApplier writes fetched rows to the target.
type BatchApplier interface {
	Apply(ctx context.Context, table string, key []string, batch *types.RowBatch) (int64, error)
}

// Applier inserts batches into the target, skipping rows whose key already
// exists so that replaying a batch is harmless. Any other constraint
// violation fails the batch.
type Applier struct {
	db        *database.DB
	disableFK bool
}

// NewApplier creates an applier over the target database.
func NewApplier(db *database.DB, disableFK bool) *Applier {
	return &Applier{db: db, disableFK: disableFK}
}

// Apply writes batch in one target transaction and returns the number of
// rows actually inserted. key names the target's key columns.
func (a *Applier) Apply(ctx context.Context, table string, key []string, batch *types.RowBatch) (int64, error) {
	if len(key) == 0 {
		return 0, fmt.Errorf("no key columns given for %s", table)
	}
	n, err := a.db.InsertMany(ctx, table, batch, database.InsertOptions{
		SkipExistingKey:         key,
		DisableForeignKeyChecks: a.disableFK,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to apply %d rows to %s: %w", batch.Len(), table, err)
	}
	return n, nil
}
