package replicator

import (
	"context"
	"fmt"

	"github.com/dbsmedya/tablesync/internal/database"
	"github.com/dbsmedya/tablesync/internal/types"
)

// BatchFetcher reads new rows from the source.
type BatchFetcher interface {
	MaxCursor(ctx context.Context, table, column string) (int64, bool, error)
	FetchBatch(ctx context.Context, table, column string, after int64, limit int) (*types.RowBatch, error)
}

// Fetcher reads source rows in ascending cursor order.
type Fetcher struct {
	db *database.DB
}

// NewFetcher creates a fetcher over the source database.
func NewFetcher(db *database.DB) *Fetcher {
	return &Fetcher{db: db}
}

// MaxCursor returns the largest cursor value of table. ok is false when the
// table is empty.
func (f *Fetcher) MaxCursor(ctx context.Context, table, column string) (int64, bool, error) {
	v, err := f.db.MaxValue(ctx, table, column)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read max %s of %s: %w", column, table, err)
	}
	if v == nil {
		return 0, false, nil
	}
	n, err := types.ParseInt64(v)
	if err != nil {
		return 0, false, fmt.Errorf("max %s of %s: %w: %v", column, table, ErrNonNumericCursor, err)
	}
	return n, true, nil
}

// FetchBatch returns at most limit rows with column > after, ascending.
// An empty batch means the table is caught up.
func (f *Fetcher) FetchBatch(ctx context.Context, table, column string, after int64, limit int) (*types.RowBatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("batch limit must be positive, got %d", limit)
	}
	batch, err := f.db.SelectWhere(ctx, table,
		[]database.Cond{database.Gt(column, after)},
		[]database.Order{database.Asc(column)},
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s after %d: %w", table, after, err)
	}
	return batch, nil
}
