package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dbsmedya/tablesync/internal/config"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// TableInfo is one entry of a schema listing. Engine is empty for objects
// that hold no rows of their own, such as views.
type TableInfo struct {
	Name   string
	Engine string
}

// Dialect isolates everything that differs between database products:
// SQL text, catalog queries, error classification and connection strings.
type Dialect interface {
	// Name is the normalized driver name (config.DriverMySQL etc).
	Name() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// BuildDSN renders a driver connection string.
	BuildDSN(cfg *config.DatabaseConfig) (string, error)

	QuoteIdent(name string) string
	// Placeholder returns the bind marker for the 1-based position pos.
	Placeholder(pos int) string
	// MaxParams is the bind parameter limit of one statement.
	MaxParams() int
	// KeyConflictClause returns the INSERT suffix that skips rows whose
	// key columns collide with an existing row and lets every other
	// constraint fail. It is empty when the product cannot scope a
	// conflict to one key.
	KeyConflictClause(key []string) string
	// ForeignKeyChecks returns a session statement toggling FK checks, or ""
	// when the product has no such switch.
	ForeignKeyChecks(enabled bool) string
	// IsDuplicateKey reports whether err is a unique or primary key violation.
	IsDuplicateKey(err error) bool

	ListTables(ctx context.Context, q Querier) ([]TableInfo, error)
	PrimaryKey(ctx context.Context, q Querier, table string) ([]string, error)
	// CreateTableDDL returns a CREATE TABLE IF NOT EXISTS statement that
	// reproduces the table on the same product.
	CreateTableDDL(ctx context.Context, q Querier, table string) (string, error)
	TableExists(ctx context.Context, q Querier, table string) (bool, error)

	// CheckpointTableDDL returns the statement creating the sync state table.
	CheckpointTableDDL(table string) string
	// LockStatements return single-argument (lock name) queries that yield 1
	// on success. Both are empty when the product has no advisory locks.
	LockStatements() (acquire, release string)
}

// DialectFor returns the dialect for a normalized driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case config.DriverMySQL:
		return MySQL{}, nil
	case config.DriverPostgres:
		return Postgres{}, nil
	case config.DriverSQLite:
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// scanStrings collects a single string column.
func scanStrings(rows *sql.Rows) ([]string, error) {
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// quoteList quotes columns and joins them with commas.
func quoteList(d Dialect, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}
