package replicator

import (
	"context"
	"errors"
	"fmt"

	"github.com/dbsmedya/tablesync/internal/config"
	"github.com/dbsmedya/tablesync/internal/database"
	"github.com/dbsmedya/tablesync/internal/logger"
)

// Action is what a sync run would do with a table.
type Action string

const (
	ActionBootstrap        Action = "bootstrap"
	ActionCreateCheckpoint Action = "create-checkpoint"
	ActionCatchUp          Action = "catch-up"
	ActionUpToDate         Action = "up-to-date"
	ActionSkipNoEngine     Action = "skip-no-engine"
	ActionSkipNoPrimaryKey Action = "skip-no-primary-key"
	ActionBlocked          Action = "blocked"
)

// PlanEntry is the planned handling of one table.
type PlanEntry struct {
	Table          string
	Engine         string
	Action         Action
	CursorColumn   string
	Cursor         int64
	SourceMax      int64
	PendingRows    int64
	PendingBatches int64
	Note           string
}

// Plan is the dry-run result for a whole run.
type Plan struct {
	CheckpointTable       string
	CheckpointTableExists bool
	BatchSize             int
	Entries               []PlanEntry
}

// PendingRows returns the rows a run would copy across all tables.
func (p *Plan) PendingRows() int64 {
	var n int64
	for _, e := range p.Entries {
		n += e.PendingRows
	}
	return n
}

// Planner computes what a sync run would do without writing anything.
type Planner struct {
	source       *database.DB
	target       *database.DB
	cfg          config.SyncConfig
	introspector *Introspector
	checkpoints  *CheckpointStore
	fetcher      *Fetcher
	logger       *logger.Logger
}

// NewPlanner creates a planner for one source/target pair.
func NewPlanner(source, target *database.DB, cfg config.SyncConfig, log *logger.Logger) (*Planner, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if cfg.CheckpointTable == "" {
		cfg.CheckpointTable = config.DefaultCheckpointTable
	}
	checkpoints, err := NewCheckpointStore(target, cfg.CheckpointTable, log)
	if err != nil {
		return nil, err
	}
	return &Planner{
		source:       source,
		target:       target,
		cfg:          cfg,
		introspector: NewIntrospector(cfg.CheckpointTable, cfg.Selects),
		checkpoints:  checkpoints,
		fetcher:      NewFetcher(source),
		logger:       log,
	}, nil
}

// Plan inspects source and target and returns one entry per source table.
// The pending row count is exact at the time of the call.
func (p *Planner) Plan(ctx context.Context) (*Plan, error) {
	plan := &Plan{
		CheckpointTable: p.cfg.CheckpointTable,
		BatchSize:       p.cfg.Limit,
	}

	exists, err := p.introspector.TableExists(ctx, p.target, p.cfg.CheckpointTable)
	if err != nil {
		return nil, fmt.Errorf("failed to check checkpoint table: %w", err)
	}
	plan.CheckpointTableExists = exists

	tables, err := p.introspector.ListTables(ctx, p.source)
	if err != nil {
		return nil, fmt.Errorf("failed to list source tables: %w", err)
	}

	for el := tables.Front(); el != nil; el = el.Next() {
		entry, err := p.planTable(ctx, el.Value, exists)
		if err != nil {
			return nil, err
		}
		plan.Entries = append(plan.Entries, entry)
	}

	p.logger.Infow("Plan computed",
		"tables", len(plan.Entries),
		"pending_rows", plan.PendingRows(),
	)
	return plan, nil
}

func (p *Planner) planTable(ctx context.Context, desc TableDescriptor, haveCheckpoints bool) (PlanEntry, error) {
	entry := PlanEntry{Table: desc.Name, Engine: desc.Engine}
	if !desc.HasEngine() {
		entry.Action = ActionSkipNoEngine
		return entry, nil
	}

	var cp *Checkpoint
	if haveCheckpoints {
		var err error
		if cp, err = p.checkpoints.Get(ctx, desc.Name); err != nil {
			return entry, err
		}
	}

	targetExists, err := p.introspector.TableExists(ctx, p.target, desc.Name)
	if err != nil {
		return entry, err
	}

	if cp == nil {
		pk, err := p.introspector.PrimaryKeyOf(ctx, p.source, desc.Name)
		if errors.Is(err, ErrNoPrimaryKey) {
			entry.Action = ActionSkipNoPrimaryKey
			return entry, nil
		}
		if err != nil {
			return entry, err
		}
		entry.CursorColumn = pk
		entry.Action = ActionBootstrap
		if targetExists {
			entry.Action = ActionCreateCheckpoint
		}
		entry.Note = "rows are copied on the following run"
		return entry, nil
	}

	entry.CursorColumn = cp.CursorColumn
	entry.Cursor = cp.LastCursorValue
	if !targetExists {
		entry.Action = ActionBlocked
		entry.Note = "target table missing; delete the checkpoint row to bootstrap again"
		return entry, nil
	}

	srcMax, ok, err := p.fetcher.MaxCursor(ctx, desc.Name, cp.CursorColumn)
	if err != nil {
		return entry, err
	}
	entry.SourceMax = srcMax
	if !ok || srcMax <= cp.LastCursorValue {
		entry.Action = ActionUpToDate
		return entry, nil
	}

	pending, err := p.source.Count(ctx, desc.Name, []database.Cond{database.Gt(cp.CursorColumn, cp.LastCursorValue)})
	if err != nil {
		return entry, fmt.Errorf("failed to count pending rows of %s: %w", desc.Name, err)
	}
	entry.Action = ActionCatchUp
	entry.PendingRows = pending
	if p.cfg.Limit > 0 {
		entry.PendingBatches = (pending + int64(p.cfg.Limit) - 1) / int64(p.cfg.Limit)
	}
	return entry, nil
}
