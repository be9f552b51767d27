package replicator

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/dbsmedya/tablesync/internal/config"
	"github.com/dbsmedya/tablesync/internal/database"
	"github.com/dbsmedya/tablesync/internal/logger"
	"github.com/dbsmedya/tablesync/internal/types"
)

func openSQLite(t *testing.T, name string) *database.DB {
	t.Helper()
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })
	return database.New(conn, database.SQLite{})
}

func mustExec(t *testing.T, db *database.DB, query string, args ...interface{}) {
	t.Helper()
	_, err := db.Exec(context.Background(), query, args...)
	require.NoError(t, err)
}

// seedOrders creates table name with an integer key and inserts ids 1..n.
func seedOrders(t *testing.T, db *database.DB, name string, n int) {
	t.Helper()
	mustExec(t, db, fmt.Sprintf(`CREATE TABLE %q (id INTEGER PRIMARY KEY, note TEXT NOT NULL)`, name))
	insertOrders(t, db, name, 1, n)
}

// insertOrders inserts ids from..to inclusive.
func insertOrders(t *testing.T, db *database.DB, name string, from, to int) {
	t.Helper()
	if to < from {
		return
	}
	ctx := context.Background()
	tx, err := db.Conn().BeginTx(ctx, nil)
	require.NoError(t, err)
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %q (id, note) VALUES (?, ?)`, name))
	require.NoError(t, err)
	for i := from; i <= to; i++ {
		_, err := stmt.ExecContext(ctx, i, fmt.Sprintf("row-%d", i))
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())
	require.NoError(t, tx.Commit())
}

func countRows(t *testing.T, db *database.DB, table string) int64 {
	t.Helper()
	n, err := db.Count(context.Background(), table, nil)
	require.NoError(t, err)
	return n
}

func testSyncConfig() config.SyncConfig {
	cfg := config.DefaultConfig().Sync
	cfg.RetryBackoffSeconds = 0
	cfg.QueryTimeoutSeconds = 10
	return cfg
}

func newTestOrchestrator(t *testing.T, source, target *database.DB, cfg config.SyncConfig) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(source, target, cfg, logger.NewNop())
	require.NoError(t, err)
	return o
}

func checkpointOf(t *testing.T, o *Orchestrator, table string) *Checkpoint {
	t.Helper()
	cp, err := o.Checkpoints().Get(context.Background(), table)
	require.NoError(t, err)
	return cp
}

func resultFor(t *testing.T, res *RunResult, table string) TableResult {
	t.Helper()
	for _, tr := range res.Tables {
		if tr.Table == table {
			return tr
		}
	}
	t.Fatalf("no result for table %s", table)
	return TableResult{}
}

// countingFetcher records calls and the largest batch it returned.
type countingFetcher struct {
	BatchFetcher

	mu          sync.Mutex
	maxCalls    int
	fetchCalls  int
	largestSeen int
}

func (f *countingFetcher) MaxCursor(ctx context.Context, table, column string) (int64, bool, error) {
	f.mu.Lock()
	f.maxCalls++
	f.mu.Unlock()
	return f.BatchFetcher.MaxCursor(ctx, table, column)
}

func (f *countingFetcher) FetchBatch(ctx context.Context, table, column string, after int64, limit int) (*types.RowBatch, error) {
	batch, err := f.BatchFetcher.FetchBatch(ctx, table, column, after, limit)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if batch.Len() > f.largestSeen {
		f.largestSeen = batch.Len()
	}
	return batch, err
}

// faultyApplier fails the calls whose 1-based index is in failOn.
type faultyApplier struct {
	BatchApplier

	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (a *faultyApplier) Apply(ctx context.Context, table string, key []string, batch *types.RowBatch) (int64, error) {
	a.mu.Lock()
	a.calls++
	fail := a.failOn[a.calls]
	a.mu.Unlock()
	if fail {
		return 0, fmt.Errorf("apply call %d: connection reset", a.calls)
	}
	return a.BatchApplier.Apply(ctx, table, key, batch)
}
