package replicator

import (
	"context"
	"fmt"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/tablesync/internal/database"
)

// Introspector reads table metadata through a database dialect.
type Introspector struct {
	checkpointTable string
	selects         func(table string) bool
}

// NewIntrospector creates an introspector that hides the checkpoint table
// and any table rejected by selects. A nil selects keeps every table.
func NewIntrospector(checkpointTable string, selects func(table string) bool) *Introspector {
	if selects == nil {
		selects = func(string) bool { return true }
	}
	return &Introspector{
		checkpointTable: checkpointTable,
		selects:         selects,
	}
}

// ListTables returns the replicable tables of db keyed by name, in source
// enumeration order. Objects without an engine are included with an empty
// Engine so the caller can report them.
func (i *Introspector) ListTables(ctx context.Context, db *database.DB) (*orderedmap.OrderedMap[string, TableDescriptor], error) {
	infos, err := db.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	tables := orderedmap.NewOrderedMap[string, TableDescriptor]()
	for _, info := range infos {
		if info.Name == i.checkpointTable || !i.selects(info.Name) {
			continue
		}
		tables.Set(info.Name, TableDescriptor{Name: info.Name, Engine: info.Engine})
	}
	return tables, nil
}

// PrimaryKeyOf returns the first primary key column of table.
// Composite keys use their leading column as the cursor.
func (i *Introspector) PrimaryKeyOf(ctx context.Context, db *database.DB, table string) (string, error) {
	cols, err := db.PrimaryKey(ctx, table)
	if err != nil {
		return "", err
	}
	if len(cols) == 0 {
		return "", fmt.Errorf("%s: %w", table, ErrNoPrimaryKey)
	}
	return cols[0], nil
}

// KeyColumns returns every primary key column of table, in key order. It
// is empty for a table without a primary key.
func (i *Introspector) KeyColumns(ctx context.Context, db *database.DB, table string) ([]string, error) {
	return db.PrimaryKey(ctx, table)
}

// TableDefinition returns the table's DDL as CREATE TABLE IF NOT EXISTS.
func (i *Introspector) TableDefinition(ctx context.Context, db *database.DB, table string) (string, error) {
	return db.CreateTableDDL(ctx, table)
}

// TableExists reports whether table exists in db.
func (i *Introspector) TableExists(ctx context.Context, db *database.DB, table string) (bool, error) {
	return db.TableExists(ctx, table)
}
