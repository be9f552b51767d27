package replicator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapThenCatchUp(t *testing.T) {
	tests := []struct {
		rows    int
		batches int
	}{
		{0, 0},
		{1, 1},
		{5000, 1},
		{5001, 2},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("rows=%d", tt.rows), func(t *testing.T) {
			ctx := context.Background()
			source := openSQLite(t, "source")
			target := openSQLite(t, "target")
			seedOrders(t, source, "orders", tt.rows)

			o := newTestOrchestrator(t, source, target, testSyncConfig())

			// First run only bootstraps
			res, err := o.Run(ctx)
			require.NoError(t, err)
			assert.False(t, res.Failed())
			tr := resultFor(t, res, "orders")
			assert.Equal(t, OutcomeBootstrapped, tr.Outcome)
			assert.Equal(t, "id", tr.CursorColumn)
			assert.Equal(t, int64(0), countRows(t, target, "orders"))

			cp := checkpointOf(t, o, "orders")
			require.NotNil(t, cp)
			assert.Equal(t, "id", cp.CursorColumn)
			assert.Equal(t, int64(0), cp.LastCursorValue)

			// Second run copies everything
			res, err = o.Run(ctx)
			require.NoError(t, err)
			tr = resultFor(t, res, "orders")
			if tt.rows == 0 {
				assert.Equal(t, OutcomeUpToDate, tr.Outcome)
			} else {
				assert.Equal(t, OutcomeCaughtUp, tr.Outcome)
			}
			assert.Equal(t, tt.batches, tr.Batches)
			assert.Equal(t, int64(tt.rows), tr.RowsApplied)
			assert.Equal(t, int64(tt.rows), countRows(t, target, "orders"))

			cp = checkpointOf(t, o, "orders")
			assert.Equal(t, int64(tt.rows), cp.LastCursorValue)
			assert.Equal(t, int64(tt.rows), cp.TotalRowsSynced)
		})
	}
}

func TestRun_UpToDateMakesNoFetch(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 20)

	o := newTestOrchestrator(t, source, target, testSyncConfig())
	_, err := o.Run(ctx)
	require.NoError(t, err)
	_, err = o.Run(ctx)
	require.NoError(t, err)

	fetcher := &countingFetcher{BatchFetcher: o.fetcher}
	o.fetcher = fetcher

	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpToDate, resultFor(t, res, "orders").Outcome)
	assert.Equal(t, 1, fetcher.maxCalls)
	assert.Zero(t, fetcher.fetchCalls)
}

func TestRun_NewRowsAreAppended(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 10)

	o := newTestOrchestrator(t, source, target, testSyncConfig())
	for i := 0; i < 2; i++ {
		_, err := o.Run(ctx)
		require.NoError(t, err)
	}
	insertOrders(t, source, "orders", 11, 15)

	res, err := o.Run(ctx)
	require.NoError(t, err)
	tr := resultFor(t, res, "orders")
	assert.Equal(t, OutcomeCaughtUp, tr.Outcome)
	assert.Equal(t, int64(10), tr.StartCursor)
	assert.Equal(t, int64(15), tr.EndCursor)
	assert.Equal(t, int64(5), tr.RowsApplied)
	assert.Equal(t, int64(15), countRows(t, target, "orders"))
	assert.Equal(t, int64(15), checkpointOf(t, o, "orders").TotalRowsSynced)
}

func TestRun_NoPrimaryKeyIsIsolated(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	mustExec(t, source, `CREATE TABLE audit_log (msg TEXT)`)
	mustExec(t, source, `INSERT INTO audit_log (msg) VALUES ('a'), ('b')`)
	seedOrders(t, source, "orders", 3)

	o := newTestOrchestrator(t, source, target, testSyncConfig())
	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.False(t, res.Failed())

	tr := resultFor(t, res, "audit_log")
	assert.Equal(t, OutcomeSkippedNoPK, tr.Outcome)
	assert.ErrorIs(t, tr.Err, ErrNoPrimaryKey)
	assert.Equal(t, OutcomeBootstrapped, resultFor(t, res, "orders").Outcome)

	exists, err := target.TableExists(ctx, "audit_log")
	require.NoError(t, err)
	assert.False(t, exists, "no DDL for a table without primary key")
	assert.Nil(t, checkpointOf(t, o, "audit_log"))

	res, err = o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedNoPK, resultFor(t, res, "audit_log").Outcome)
	assert.Equal(t, OutcomeCaughtUp, resultFor(t, res, "orders").Outcome)
}

func TestRun_ViewsAreSkipped(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 3)
	mustExec(t, source, `CREATE VIEW recent_orders AS SELECT * FROM orders WHERE id > 1`)

	o := newTestOrchestrator(t, source, target, testSyncConfig())
	res, err := o.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSkippedEngine, resultFor(t, res, "recent_orders").Outcome)
	exists, err := target.TableExists(ctx, "recent_orders")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_BatchBound(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 10)

	cfg := testSyncConfig()
	cfg.Limit = 3
	o := newTestOrchestrator(t, source, target, cfg)
	_, err := o.Run(ctx)
	require.NoError(t, err)

	fetcher := &countingFetcher{BatchFetcher: o.fetcher}
	o.fetcher = fetcher

	res, err := o.Run(ctx)
	require.NoError(t, err)
	tr := resultFor(t, res, "orders")
	assert.Equal(t, 4, tr.Batches)
	assert.Equal(t, 3, fetcher.largestSeen)
	// 3+3+3+1 and one empty fetch
	assert.Equal(t, 5, fetcher.fetchCalls)
	assert.Equal(t, int64(10), countRows(t, target, "orders"))
}

func TestRun_MaxBatchesPerTable(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 10)

	cfg := testSyncConfig()
	cfg.Limit = 3
	cfg.MaxBatchesPerTable = 2
	o := newTestOrchestrator(t, source, target, cfg)
	_, err := o.Run(ctx)
	require.NoError(t, err)

	res, err := o.Run(ctx)
	require.NoError(t, err)
	tr := resultFor(t, res, "orders")
	assert.Equal(t, OutcomeCaughtUp, tr.Outcome)
	assert.Equal(t, 2, tr.Batches)
	assert.Equal(t, int64(6), checkpointOf(t, o, "orders").LastCursorValue)

	res, err = o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), resultFor(t, res, "orders").EndCursor)
}

func TestRun_CrashResume(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 10)

	cfg := testSyncConfig()
	cfg.Limit = 3
	cfg.MaxRetries = 0
	o := newTestOrchestrator(t, source, target, cfg)
	_, err := o.Run(ctx)
	require.NoError(t, err)

	realApplier := o.applier
	o.applier = &faultyApplier{BatchApplier: realApplier, failOn: map[int]bool{2: true}}

	res, err := o.Run(ctx)
	require.NoError(t, err, "table failures do not abort the run")
	assert.True(t, res.Failed())
	tr := resultFor(t, res, "orders")
	assert.Equal(t, OutcomeFailed, tr.Outcome)
	assert.Error(t, tr.Err)
	assert.Equal(t, int64(3), checkpointOf(t, o, "orders").LastCursorValue)

	// Rows past the checkpoint already on the target, as after an apply
	// whose checkpoint write was lost
	insertOrders(t, target, "orders", 4, 5)

	o.applier = realApplier
	res, err = o.Run(ctx)
	require.NoError(t, err)
	tr = resultFor(t, res, "orders")
	assert.Equal(t, OutcomeCaughtUp, tr.Outcome)
	assert.Equal(t, int64(5), tr.RowsApplied)
	assert.Equal(t, int64(10), countRows(t, target, "orders"))

	cp := checkpointOf(t, o, "orders")
	assert.Equal(t, int64(10), cp.LastCursorValue)
	assert.Equal(t, int64(8), cp.TotalRowsSynced)
}

func TestRun_CrashResume_LostCheckpointWrite(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 10)

	cfg := testSyncConfig()
	cfg.Limit = 3
	cfg.MaxRetries = 0
	o := newTestOrchestrator(t, source, target, cfg)
	_, err := o.Run(ctx)
	require.NoError(t, err)

	// The batch commits on the target but its checkpoint update does not
	mustExec(t, target, `CREATE TRIGGER block_advance BEFORE UPDATE ON mysql_sync_runtime
		BEGIN SELECT RAISE(ABORT, 'checkpoint write lost'); END`)

	res, err := o.Run(ctx)
	require.NoError(t, err)
	tr := resultFor(t, res, "orders")
	assert.Equal(t, OutcomeFailed, tr.Outcome)
	assert.Contains(t, tr.Err.Error(), "checkpoint write lost")
	assert.Equal(t, int64(3), countRows(t, target, "orders"), "the first batch was applied")
	assert.Equal(t, int64(0), checkpointOf(t, o, "orders").LastCursorValue, "cursor is stale")

	mustExec(t, target, `DROP TRIGGER block_advance`)

	res, err = o.Run(ctx)
	require.NoError(t, err)
	tr = resultFor(t, res, "orders")
	assert.Equal(t, OutcomeCaughtUp, tr.Outcome)
	assert.Equal(t, int64(0), tr.StartCursor)
	assert.Equal(t, int64(10), tr.EndCursor)
	assert.Equal(t, int64(7), tr.RowsApplied, "the replayed batch inserts nothing")

	var distinct int64
	require.NoError(t, target.Conn().QueryRowContext(ctx, `SELECT COUNT(DISTINCT id) FROM orders`).Scan(&distinct))
	assert.Equal(t, int64(10), countRows(t, target, "orders"))
	assert.Equal(t, int64(10), distinct)

	cp := checkpointOf(t, o, "orders")
	assert.Equal(t, int64(10), cp.LastCursorValue)
	assert.Equal(t, int64(7), cp.TotalRowsSynced)
}

func TestRun_ConstraintViolationFailsWithoutAdvancing(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 3)
	// Stricter than the source: row 2 cannot be stored
	mustExec(t, target, `CREATE TABLE orders (id INTEGER PRIMARY KEY, note TEXT NOT NULL CHECK (note <> 'row-2'))`)

	o := newTestOrchestrator(t, source, target, testSyncConfig())
	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBootstrapped, resultFor(t, res, "orders").Outcome)

	res, err = o.Run(ctx)
	require.NoError(t, err)
	tr := resultFor(t, res, "orders")
	assert.Equal(t, OutcomeFailed, tr.Outcome)
	assert.Error(t, tr.Err)
	assert.Equal(t, int64(0), tr.EndCursor)
	assert.Equal(t, int64(0), countRows(t, target, "orders"))

	cp := checkpointOf(t, o, "orders")
	assert.Equal(t, int64(0), cp.LastCursorValue)
	assert.Equal(t, int64(0), cp.TotalRowsSynced)
}

func TestRun_FractionalCursorFailsTable(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	mustExec(t, source, `CREATE TABLE prices (id REAL PRIMARY KEY, note TEXT)`)
	mustExec(t, source, `INSERT INTO prices (id, note) VALUES (1.0, 'a'), (2.5, 'b')`)

	o := newTestOrchestrator(t, source, target, testSyncConfig())
	_, err := o.Run(ctx)
	require.NoError(t, err)

	res, err := o.Run(ctx)
	require.NoError(t, err)
	tr := resultFor(t, res, "prices")
	assert.Equal(t, OutcomeFailed, tr.Outcome)
	assert.ErrorIs(t, tr.Err, ErrNonNumericCursor)
	assert.Equal(t, int64(0), checkpointOf(t, o, "prices").LastCursorValue)
}

func TestRun_RetriesTransientApplyFailure(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 4)

	cfg := testSyncConfig()
	cfg.MaxRetries = 2
	o := newTestOrchestrator(t, source, target, cfg)
	_, err := o.Run(ctx)
	require.NoError(t, err)

	applier := &faultyApplier{BatchApplier: o.applier, failOn: map[int]bool{1: true, 2: true}}
	o.applier = applier

	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCaughtUp, resultFor(t, res, "orders").Outcome)
	assert.Equal(t, 3, applier.calls)
	assert.Equal(t, int64(4), countRows(t, target, "orders"))
}

func TestRun_CheckpointWithoutTargetTableFails(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 2)

	o := newTestOrchestrator(t, source, target, testSyncConfig())
	_, err := o.Run(ctx)
	require.NoError(t, err)
	mustExec(t, target, `DROP TABLE orders`)

	res, err := o.Run(ctx)
	require.NoError(t, err)
	tr := resultFor(t, res, "orders")
	assert.Equal(t, OutcomeFailed, tr.Outcome)
	assert.ErrorIs(t, tr.Err, ErrTargetTableMissing)
	assert.NotNil(t, checkpointOf(t, o, "orders"), "checkpoint is never deleted")
}

func TestRun_ExistingTargetTableGetsCheckpointOnly(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 5)
	seedOrders(t, target, "orders", 2)

	o := newTestOrchestrator(t, source, target, testSyncConfig())
	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBootstrapped, resultFor(t, res, "orders").Outcome)
	assert.Equal(t, int64(2), countRows(t, target, "orders"))

	res, err = o.Run(ctx)
	require.NoError(t, err)
	tr := resultFor(t, res, "orders")
	assert.Equal(t, int64(3), tr.RowsApplied)
	assert.Equal(t, int64(5), countRows(t, target, "orders"))
}

func TestRun_FiltersAndCheckpointTableHidden(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 1)
	seedOrders(t, source, "tmp_orders", 1)
	// A source that is itself a replica carries its own checkpoint table
	mustExec(t, source, `CREATE TABLE mysql_sync_runtime (id INTEGER PRIMARY KEY)`)

	cfg := testSyncConfig()
	cfg.Exclude = []string{"tmp_*"}
	o := newTestOrchestrator(t, source, target, cfg)
	res, err := o.Run(ctx)
	require.NoError(t, err)

	require.Len(t, res.Tables, 1)
	assert.Equal(t, "orders", res.Tables[0].Table)
}

func TestRun_Workers(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	names := []string{"a_orders", "b_orders", "c_orders", "d_orders", "e_orders"}
	for i, name := range names {
		seedOrders(t, source, name, 10*(i+1))
	}

	cfg := testSyncConfig()
	cfg.Workers = 3
	cfg.Limit = 7
	o := newTestOrchestrator(t, source, target, cfg)
	for i := 0; i < 2; i++ {
		res, err := o.Run(ctx)
		require.NoError(t, err)
		require.False(t, res.Failed())
	}

	for i, name := range names {
		assert.Equal(t, int64(10*(i+1)), countRows(t, target, name), name)
		assert.Equal(t, int64(10*(i+1)), checkpointOf(t, o, name).LastCursorValue, name)
	}
}

func TestRun_ResultOrderFollowsSource(t *testing.T) {
	ctx := context.Background()
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	for _, name := range []string{"c", "a", "b"} {
		seedOrders(t, source, name, 1)
	}

	cfg := testSyncConfig()
	cfg.Workers = 2
	o := newTestOrchestrator(t, source, target, cfg)
	o.newRunID = func() string { return "run-1" }

	res, err := o.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	require.Len(t, res.Tables, 3)
	// sqlite_master is listed by name
	assert.Equal(t, []string{"a", "b", "c"}, []string{res.Tables[0].Table, res.Tables[1].Table, res.Tables[2].Table})
	assert.Equal(t, 3, res.Counts()[OutcomeBootstrapped])
}

func TestRun_CancelledContext(t *testing.T) {
	source := openSQLite(t, "source")
	target := openSQLite(t, "target")
	seedOrders(t, source, "orders", 1)

	o := newTestOrchestrator(t, source, target, testSyncConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	source := openSQLite(t, "source")

	_, err := NewOrchestrator(nil, source, testSyncConfig(), nil)
	assert.Error(t, err)

	cfg := testSyncConfig()
	cfg.Limit = 0
	_, err = NewOrchestrator(source, source, cfg, nil)
	assert.Error(t, err)
}
