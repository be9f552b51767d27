package replicator

import (
	"context"
	"fmt"
	"time"

	"github.com/dbsmedya/tablesync/internal/database"
	"github.com/dbsmedya/tablesync/internal/logger"
	"github.com/dbsmedya/tablesync/internal/types"
)

// Checkpoint table columns.
const (
	colID        = "id"
	colTableName = "tableName"
	colAddDate   = "addDate"
	colLastTime  = "lastTime"
	colPkID      = "pkId"
	colLastPkID  = "lastPkId"
	colRows      = "rows"
)

// CheckpointStore persists per-table sync progress in a table on the target.
//
// There is one row per replicated table. The row is created when the table
// is bootstrapped and only ever moved forward afterwards. The store never
// deletes rows.
type CheckpointStore struct {
	db     *database.DB
	table  string
	logger *logger.Logger
}

// NewCheckpointStore creates a store backed by table on db.
func NewCheckpointStore(db *database.DB, table string, log *logger.Logger) (*CheckpointStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if table == "" {
		return nil, fmt.Errorf("checkpoint table name is empty")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &CheckpointStore{
		db:     db,
		table:  table,
		logger: log,
	}, nil
}

// Table returns the name of the backing table.
func (s *CheckpointStore) Table() string {
	return s.table
}

// Init creates the backing table if it does not exist.
func (s *CheckpointStore) Init(ctx context.Context) error {
	ddl := s.db.Dialect().CheckpointTableDDL(s.table)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create checkpoint table %s: %w", s.table, err)
	}
	s.logger.Debugw("Checkpoint table ready", "table", s.table)
	return nil
}

// Get returns the checkpoint of tableName, or nil when there is none.
func (s *CheckpointStore) Get(ctx context.Context, tableName string) (*Checkpoint, error) {
	row, err := s.db.FindOne(ctx, s.table, []database.Cond{database.Eq(colTableName, tableName)})
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint of %s: %w", tableName, err)
	}
	if row == nil {
		return nil, nil
	}
	return checkpointFromRow(row)
}

// Create inserts a new checkpoint. It returns ErrDuplicateCheckpoint when
// the table already has one, including when a concurrent writer wins the
// race between the pre-check and the insert.
func (s *CheckpointStore) Create(ctx context.Context, cp Checkpoint) error {
	existing, err := s.Get(ctx, cp.TableName)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%s: %w", cp.TableName, ErrDuplicateCheckpoint)
	}

	batch := types.NewRowBatch([]string{colTableName, colAddDate, colLastTime, colPkID, colLastPkID, colRows})
	if err := batch.Append(
		cp.TableName,
		cp.AddedAt.UTC(),
		cp.LastSyncedAt.UTC(),
		cp.CursorColumn,
		cp.LastCursorValue,
		cp.TotalRowsSynced,
	); err != nil {
		return err
	}

	if _, err := s.db.InsertMany(ctx, s.table, batch, database.InsertOptions{}); err != nil {
		if s.db.Dialect().IsDuplicateKey(err) {
			return fmt.Errorf("%s: %w", cp.TableName, ErrDuplicateCheckpoint)
		}
		return fmt.Errorf("failed to create checkpoint of %s: %w", cp.TableName, err)
	}

	s.logger.Infow("Checkpoint created",
		"table", cp.TableName,
		"cursor_column", cp.CursorColumn,
		"cursor", cp.LastCursorValue,
	)
	return nil
}

// Advance moves the checkpoint of tableName to newCursor, adds rowsAdded to
// the synced row total and stamps ts. The update only matches while the
// stored cursor is below newCursor, so the cursor never moves back and a
// repeated advance does not count its rows twice.
//
// When nothing matched but the stored cursor already equals newCursor, an
// earlier attempt committed and the call succeeds. A missing or newer
// checkpoint yields ErrCheckpointNotAdvanced.
func (s *CheckpointStore) Advance(ctx context.Context, tableName string, newCursor, rowsAdded int64, ts time.Time) error {
	n, err := s.db.UpdateWhere(ctx, s.table,
		[]database.Cond{
			database.Eq(colTableName, tableName),
			database.Lt(colLastPkID, newCursor),
		},
		[]database.Assignment{
			database.Set(colLastPkID, newCursor),
			database.Incr(colRows, rowsAdded),
			database.Set(colLastTime, ts.UTC()),
		})
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint of %s: %w", tableName, err)
	}
	if n > 0 {
		return nil
	}

	cp, err := s.Get(ctx, tableName)
	if err != nil {
		return err
	}
	if cp != nil && cp.LastCursorValue == newCursor {
		s.logger.Debugw("Checkpoint already at cursor", "table", tableName, "cursor", newCursor)
		return nil
	}
	return fmt.Errorf("%s to %d: %w", tableName, newCursor, ErrCheckpointNotAdvanced)
}

// List returns all checkpoints ordered by table name.
func (s *CheckpointStore) List(ctx context.Context) ([]Checkpoint, error) {
	batch, err := s.db.SelectWhere(ctx, s.table, nil, []database.Order{database.Asc(colTableName)}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	checkpoints := make([]Checkpoint, 0, batch.Len())
	for i := 0; i < batch.Len(); i++ {
		cp, err := checkpointFromRow(batch.Row(i))
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, *cp)
	}
	return checkpoints, nil
}

func checkpointFromRow(row types.Row) (*Checkpoint, error) {
	cursor, err := types.ParseInt64(row[colLastPkID])
	if err != nil {
		return nil, fmt.Errorf("checkpoint of %s has invalid %s: %w", types.ToString(row[colTableName]), colLastPkID, err)
	}

	return &Checkpoint{
		ID:              types.ToInt64(row[colID]),
		TableName:       types.ToString(row[colTableName]),
		AddedAt:         types.ToTime(row[colAddDate]),
		LastSyncedAt:    types.ToTime(row[colLastTime]),
		CursorColumn:    types.ToString(row[colPkID]),
		LastCursorValue: cursor,
		TotalRowsSynced: types.ToInt64(row[colRows]),
	}, nil
}
