package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dbsmedya/tablesync/internal/config"
	"github.com/dbsmedya/tablesync/internal/sqlutil"
)

// SQLite implements Dialect for file-backed SQLite databases.
type SQLite struct{}

func (SQLite) Name() string       { return config.DriverSQLite }
func (SQLite) DriverName() string { return "sqlite" }

// BuildDSN returns the file path with a busy timeout so a concurrent
// reader does not fail writes immediately.
func (SQLite) BuildDSN(cfg *config.DatabaseConfig) (string, error) {
	if cfg.Database == "" {
		return "", fmt.Errorf("sqlite database path is empty")
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	for k, v := range cfg.Params {
		q.Add(k, v)
	}
	return "file:" + cfg.Database + "?" + q.Encode(), nil
}

func (SQLite) QuoteIdent(name string) string { return sqlutil.QuoteANSI(name) }
func (SQLite) Placeholder(int) string        { return "?" }

// MaxParams is SQLITE_MAX_VARIABLE_NUMBER of builds before 3.32.
func (SQLite) MaxParams() int { return 999 }

// KeyConflictClause uses the upsert form; OR IGNORE would also skip CHECK
// and NOT NULL failures.
func (d SQLite) KeyConflictClause(key []string) string {
	return " ON CONFLICT (" + quoteList(d, key) + ") DO NOTHING"
}

// ForeignKeyChecks is empty: PRAGMA foreign_keys is a no-op inside a
// transaction.
func (SQLite) ForeignKeyChecks(bool) string { return "" }

func (SQLite) IsDuplicateKey(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	switch sqErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// extended result codes off
		return strings.Contains(sqErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

// ListTables reports tables with engine "sqlite" and views without one.
func (SQLite) ListTables(ctx context.Context, q Querier) ([]TableInfo, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT name, CASE type WHEN 'table' THEN 'sqlite' ELSE '' END FROM sqlite_master "+
			"WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite\\_%' ESCAPE '\\' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []TableInfo
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.Name, &t.Engine); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (SQLite) PrimaryKey(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk", table)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary key of %s: %w", table, err)
	}
	return scanStrings(rows)
}

func (SQLite) CreateTableDDL(ctx context.Context, q Querier, table string) (string, error) {
	var ddl string
	err := q.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&ddl)
	if err != nil {
		return "", fmt.Errorf("failed to read definition of %s: %w", table, err)
	}
	guarded, ok := sqlutil.GuardCreateTable(ddl)
	if !ok {
		return "", fmt.Errorf("unexpected definition for %s: not a CREATE TABLE statement", table)
	}
	return guarded, nil
}

func (SQLite) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

func (d SQLite) CheckpointTableDDL(table string) string {
	return "CREATE TABLE IF NOT EXISTS " + d.QuoteIdent(table) + ` (
  "id" INTEGER PRIMARY KEY AUTOINCREMENT,
  "tableName" TEXT NOT NULL DEFAULT '' UNIQUE,
  "addDate" DATETIME NOT NULL,
  "lastTime" DATETIME NOT NULL,
  "pkId" TEXT NOT NULL DEFAULT '',
  "lastPkId" BIGINT NOT NULL DEFAULT 0,
  "rows" BIGINT NOT NULL DEFAULT 0
)`
}

// LockStatements is empty; SQLite serializes writers itself.
func (SQLite) LockStatements() (string, string) { return "", "" }
