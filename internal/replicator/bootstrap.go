package replicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbsmedya/tablesync/internal/database"
	"github.com/dbsmedya/tablesync/internal/logger"
)

// Bootstrapper prepares a table that has no checkpoint yet: it creates the
// target table when missing and records a checkpoint at cursor zero. It
// copies no rows; the next catch-up does the backfill.
type Bootstrapper struct {
	source       *database.DB
	target       *database.DB
	introspector *Introspector
	checkpoints  *CheckpointStore
	disableFK    bool
	logger       *logger.Logger
	now          func() time.Time
}

// NewBootstrapper creates a bootstrapper. With disableFK the target DDL
// runs with foreign key checks off.
func NewBootstrapper(source, target *database.DB, introspector *Introspector, checkpoints *CheckpointStore, disableFK bool, log *logger.Logger) (*Bootstrapper, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if introspector == nil {
		return nil, fmt.Errorf("introspector is nil")
	}
	if checkpoints == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &Bootstrapper{
		source:       source,
		target:       target,
		introspector: introspector,
		checkpoints:  checkpoints,
		disableFK:    disableFK,
		logger:       log,
		now:          time.Now,
	}, nil
}

// Bootstrap creates the target table (unless targetExists) and the
// checkpoint of desc. The primary key is resolved before anything is
// written, so a table without one is left untouched and ErrNoPrimaryKey is
// returned as is. Every other failure is a *BootstrapError.
func (b *Bootstrapper) Bootstrap(ctx context.Context, desc TableDescriptor, targetExists bool) (*Checkpoint, error) {
	pk := desc.PrimaryKey
	if pk == "" {
		var err error
		pk, err = b.introspector.PrimaryKeyOf(ctx, b.source, desc.Name)
		if errors.Is(err, ErrNoPrimaryKey) {
			return nil, err
		}
		if err != nil {
			return nil, &BootstrapError{Table: desc.Name, Stage: "primary key", Err: err}
		}
	}

	if !targetExists {
		ddl, err := b.introspector.TableDefinition(ctx, b.source, desc.Name)
		if err != nil {
			return nil, &BootstrapError{Table: desc.Name, Stage: "read definition", Err: err}
		}
		if err := b.target.ExecSchema(ctx, ddl, b.disableFK); err != nil {
			return nil, &BootstrapError{Table: desc.Name, Stage: "create table", Err: err}
		}
		b.logger.Infow("Created target table", "table", desc.Name)
	} else {
		b.logger.Infow("Target table exists, creating checkpoint only", "table", desc.Name)
	}

	now := b.now()
	cp := Checkpoint{
		TableName:    desc.Name,
		AddedAt:      now,
		LastSyncedAt: now,
		CursorColumn: pk,
	}
	if err := b.checkpoints.Create(ctx, cp); err != nil {
		return nil, &BootstrapError{Table: desc.Name, Stage: "checkpoint", Err: err}
	}
	return &cp, nil
}
