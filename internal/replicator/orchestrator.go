package replicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/tablesync/internal/config"
	"github.com/dbsmedya/tablesync/internal/database"
	"github.com/dbsmedya/tablesync/internal/lock"
	"github.com/dbsmedya/tablesync/internal/logger"
	"github.com/dbsmedya/tablesync/internal/types"
)

// Orchestrator runs one sync pass over every source table.
//
// Per table the flow is:
//   - no engine: skipped
//   - no checkpoint: bootstrap (create table if needed, checkpoint at 0)
//   - checkpoint: catch up by fetching, applying and advancing batches
//
// A failing table is recorded and the run moves on to the next one.
type Orchestrator struct {
	source *database.DB
	target *database.DB
	cfg    config.SyncConfig

	introspector *Introspector
	checkpoints  *CheckpointStore
	bootstrapper *Bootstrapper
	fetcher      BatchFetcher
	applier      BatchApplier
	retry        retryPolicy

	logger   *logger.Logger
	now      func() time.Time
	newRunID func() string
}

// NewOrchestrator wires the replication components for one source/target
// pair.
func NewOrchestrator(source, target *database.DB, cfg config.SyncConfig, log *logger.Logger) (*Orchestrator, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("batch limit must be positive, got %d", cfg.Limit)
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if cfg.CheckpointTable == "" {
		cfg.CheckpointTable = config.DefaultCheckpointTable
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	introspector := NewIntrospector(cfg.CheckpointTable, cfg.Selects)
	checkpoints, err := NewCheckpointStore(target, cfg.CheckpointTable, log)
	if err != nil {
		return nil, err
	}
	bootstrapper, err := NewBootstrapper(source, target, introspector, checkpoints, cfg.DisableForeignKeyChecks, log)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		source:       source,
		target:       target,
		cfg:          cfg,
		introspector: introspector,
		checkpoints:  checkpoints,
		bootstrapper: bootstrapper,
		fetcher:      NewFetcher(source),
		applier:      NewApplier(target, cfg.DisableForeignKeyChecks),
		retry: retryPolicy{
			retries: cfg.MaxRetries,
			backoff: cfg.RetryBackoff(),
			timeout: cfg.QueryTimeout(),
			logger:  log,
		},
		logger:   log,
		now:      time.Now,
		newRunID: uuid.NewString,
	}, nil
}

// Checkpoints returns the checkpoint store on the target.
func (o *Orchestrator) Checkpoints() *CheckpointStore {
	return o.checkpoints
}

// Run performs one sync pass. The returned error is set only for failures
// that stop the whole run: lock contention, an unusable checkpoint table,
// an unreadable source catalog or cancellation. Table failures are
// reported in the result; check RunResult.Failed.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunID:     o.newRunID(),
		StartedAt: o.now(),
	}
	log := o.logger.WithRun(result.RunID)

	run := func(ctx context.Context) error {
		return o.run(ctx, log, result)
	}

	var err error
	if o.cfg.Lock {
		runLock := lock.NewRunLock(o.target, o.cfg.CheckpointTable)
		log.Debugw("Acquiring run lock", "lock", runLock.LockName())
		err = runLock.WithLock(ctx, run)
	} else {
		err = run(ctx)
	}

	result.CompletedAt = o.now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	if err != nil {
		log.Errorw("Sync run aborted", "error", err)
		return result, err
	}

	log.Infow("Sync run completed",
		"tables", len(result.Tables),
		"failed", result.FailedCount(),
		"rows_applied", result.RowsApplied(),
		"duration", result.Duration,
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, log *logger.Logger, result *RunResult) error {
	if err := o.checkpoints.Init(ctx); err != nil {
		return err
	}

	tables, err := o.introspector.ListTables(ctx, o.source)
	if err != nil {
		return fmt.Errorf("failed to list source tables: %w", err)
	}

	log.Infow("Starting sync run",
		"tables", tables.Len(),
		"workers", o.cfg.Workers,
		"limit", o.cfg.Limit,
	)

	descs := make([]TableDescriptor, 0, tables.Len())
	for el := tables.Front(); el != nil; el = el.Next() {
		descs = append(descs, el.Value)
	}

	slots := make([]*TableResult, len(descs))
	if o.cfg.Workers == 1 {
		for i, desc := range descs {
			if ctx.Err() != nil {
				break
			}
			res := o.syncTable(ctx, log.WithTable(desc.Name), desc)
			slots[i] = &res
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.cfg.Workers)
		for i, desc := range descs {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				res := o.syncTable(ctx, log.WithTable(desc.Name), desc)
				slots[i] = &res
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, res := range slots {
		if res != nil {
			result.Tables = append(result.Tables, *res)
		}
	}
	return ctx.Err()
}

func (o *Orchestrator) syncTable(ctx context.Context, log *logger.Logger, desc TableDescriptor) TableResult {
	started := o.now()
	res := o.processTable(ctx, log, desc)
	res.Table = desc.Name
	res.Duration = o.now().Sub(started)

	switch res.Outcome {
	case OutcomeFailed:
		log.Errorw("Table sync failed", "error", res.Err)
	case OutcomeSkippedEngine, OutcomeSkippedNoPK:
		log.Warnw("Table skipped", "reason", string(res.Outcome))
	default:
		log.Infow("Table done",
			"outcome", string(res.Outcome),
			"rows_applied", res.RowsApplied,
			"batches", res.Batches,
			"cursor", res.EndCursor,
		)
	}
	return res
}

func (o *Orchestrator) processTable(ctx context.Context, log *logger.Logger, desc TableDescriptor) TableResult {
	if !desc.HasEngine() {
		return TableResult{Outcome: OutcomeSkippedEngine}
	}

	var cp *Checkpoint
	err := o.retry.do(ctx, "read checkpoint", func(ctx context.Context) error {
		var err error
		cp, err = o.checkpoints.Get(ctx, desc.Name)
		return err
	})
	if err != nil {
		return failed(err)
	}

	var targetExists bool
	err = o.retry.do(ctx, "check target table", func(ctx context.Context) error {
		var err error
		targetExists, err = o.introspector.TableExists(ctx, o.target, desc.Name)
		return err
	})
	if err != nil {
		return failed(err)
	}

	if cp == nil {
		return o.bootstrap(ctx, desc, targetExists)
	}
	if !targetExists {
		return failed(fmt.Errorf("%s: %w", desc.Name, ErrTargetTableMissing))
	}
	return o.catchUp(ctx, log, desc, cp)
}

func (o *Orchestrator) bootstrap(ctx context.Context, desc TableDescriptor, targetExists bool) TableResult {
	var cp *Checkpoint
	err := o.retry.attempt(ctx, func(ctx context.Context) error {
		var err error
		cp, err = o.bootstrapper.Bootstrap(ctx, desc, targetExists)
		return err
	})
	if errors.Is(err, ErrNoPrimaryKey) {
		return TableResult{Outcome: OutcomeSkippedNoPK, Err: err}
	}
	if err != nil {
		return failed(err)
	}
	return TableResult{
		Outcome:      OutcomeBootstrapped,
		CursorColumn: cp.CursorColumn,
	}
}

func (o *Orchestrator) catchUp(ctx context.Context, log *logger.Logger, desc TableDescriptor, cp *Checkpoint) TableResult {
	res := TableResult{
		CursorColumn: cp.CursorColumn,
		StartCursor:  cp.LastCursorValue,
		EndCursor:    cp.LastCursorValue,
	}

	// The stored column wins over the current source key so the cursor
	// keeps its meaning across runs.
	if res.CursorColumn == "" {
		pk, err := o.introspector.PrimaryKeyOf(ctx, o.source, desc.Name)
		if errors.Is(err, ErrNoPrimaryKey) {
			res.Outcome = OutcomeSkippedNoPK
			res.Err = err
			return res
		}
		if err != nil {
			return failedWith(res, err)
		}
		res.CursorColumn = pk
	}
	col := res.CursorColumn

	var maxCursor int64
	var hasRows bool
	err := o.retry.do(ctx, "read max cursor", func(ctx context.Context) error {
		var err error
		maxCursor, hasRows, err = o.fetcher.MaxCursor(ctx, desc.Name, col)
		return err
	})
	if err != nil {
		return failedWith(res, err)
	}
	if !hasRows || maxCursor <= res.StartCursor {
		log.Debugw("Table up to date", "cursor", res.StartCursor, "source_max", maxCursor)
		res.Outcome = OutcomeUpToDate
		return res
	}

	// Duplicates are detected on the target's own key; a table created
	// by hand without one falls back to the cursor column.
	var key []string
	err = o.retry.do(ctx, "read target key", func(ctx context.Context) error {
		var err error
		key, err = o.introspector.KeyColumns(ctx, o.target, desc.Name)
		return err
	})
	if err != nil {
		return failedWith(res, err)
	}
	if len(key) == 0 {
		key = []string{col}
	}

	cursor := res.StartCursor
	for {
		if o.cfg.MaxBatchesPerTable > 0 && res.Batches >= o.cfg.MaxBatchesPerTable {
			log.Infow("Batch cap reached, continuing next run",
				"batches", res.Batches,
				"cursor", cursor,
				"source_max", maxCursor,
			)
			break
		}
		if res.Batches > 0 {
			if err := sleepContext(ctx, o.cfg.Sleep()); err != nil {
				return failedWith(res, err)
			}
		}

		next, n, written, err := o.syncBatch(ctx, desc.Name, col, key, cursor)
		if err != nil {
			return failedWith(res, err)
		}
		if n == 0 {
			break
		}

		res.Batches++
		res.RowsApplied += written
		cursor = next
		res.EndCursor = cursor

		log.WithBatch(res.Batches).Debugw("Batch applied",
			"rows_fetched", n,
			"rows_written", written,
			"cursor", cursor,
		)
	}

	res.Outcome = OutcomeCaughtUp
	return res
}

// syncBatch fetches, applies and checkpoints one batch after cursor. It
// returns the new cursor, the rows fetched and the rows written; zero rows
// fetched means the table is caught up.
func (o *Orchestrator) syncBatch(ctx context.Context, table, col string, key []string, cursor int64) (int64, int, int64, error) {
	var batch *types.RowBatch
	err := o.retry.do(ctx, "fetch batch", func(ctx context.Context) error {
		var err error
		batch, err = o.fetcher.FetchBatch(ctx, table, col, cursor, o.cfg.Limit)
		return err
	})
	if err != nil {
		return cursor, 0, 0, err
	}
	if batch.Len() == 0 {
		return cursor, 0, 0, nil
	}
	if batch.Len() > o.cfg.Limit {
		return cursor, 0, 0, fmt.Errorf("fetched %d rows from %s, limit is %d", batch.Len(), table, o.cfg.Limit)
	}

	next, err := batch.MaxInt64(col)
	if err != nil {
		return cursor, 0, 0, fmt.Errorf("%s.%s: %w: %v", table, col, ErrNonNumericCursor, err)
	}
	if next <= cursor {
		return cursor, 0, 0, fmt.Errorf("%s.%s: batch max %d is not above checkpoint %d", table, col, next, cursor)
	}

	var written int64
	err = o.retry.do(ctx, "apply batch", func(ctx context.Context) error {
		var err error
		written, err = o.applier.Apply(ctx, table, key, batch)
		return err
	})
	if err != nil {
		return cursor, 0, 0, err
	}

	// A batch that was already on the target still advances the cursor,
	// with zero rows added, or the next fetch would return it again.
	err = o.retry.do(ctx, "advance checkpoint", func(ctx context.Context) error {
		return o.checkpoints.Advance(ctx, table, next, written, o.now())
	})
	if err != nil {
		return cursor, 0, 0, err
	}
	return next, batch.Len(), written, nil
}

func failed(err error) TableResult {
	return TableResult{Outcome: OutcomeFailed, Err: err}
}

func failedWith(res TableResult, err error) TableResult {
	res.Outcome = OutcomeFailed
	res.Err = err
	return res
}
