package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/dbsmedya/tablesync/internal/config"
	"github.com/dbsmedya/tablesync/internal/sqlutil"
)

// mysqlErrDupEntry is ER_DUP_ENTRY.
const mysqlErrDupEntry = 1062

// MySQL implements Dialect for MySQL and MariaDB.
type MySQL struct{}

func (MySQL) Name() string       { return config.DriverMySQL }
func (MySQL) DriverName() string { return "mysql" }

// BuildDSN constructs a go-sql-driver DSN. Charset defaults to utf8mb4.
// Extra DSN params are handed to the driver's own parser so that driver
// options like timeout are honored and unknown keys become session variables.
func (MySQL) BuildDSN(cfg *config.DatabaseConfig) (string, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	// Matched rather than changed rows, so a checkpoint update that
	// rewrites identical values still counts.
	mc.ClientFoundRows = true

	charset := cfg.Charset
	if charset == "" {
		charset = "utf8mb4"
	}
	mc.Params = map[string]string{"charset": charset}

	switch cfg.TLS {
	case "disable":
		mc.TLSConfig = "false"
	case "required":
		mc.TLSConfig = "true"
	default:
		mc.TLSConfig = "preferred"
	}

	dsn := mc.FormatDSN()
	if len(cfg.Params) > 0 {
		extra := url.Values{}
		for k, v := range cfg.Params {
			extra.Set(k, v)
		}
		dsn += "&" + extra.Encode()
	}

	if _, err := mysql.ParseDSN(dsn); err != nil {
		return "", fmt.Errorf("invalid mysql dsn params: %w", err)
	}
	return dsn, nil
}

func (MySQL) QuoteIdent(name string) string { return sqlutil.QuoteBacktick(name) }
func (MySQL) Placeholder(int) string        { return "?" }
func (MySQL) MaxParams() int                { return 65535 }

// KeyConflictClause is empty. INSERT IGNORE also swallows FK, NOT NULL and
// truncation errors, and ON DUPLICATE KEY fires for every unique index, so
// existing keys are filtered out before a plain INSERT instead.
func (MySQL) KeyConflictClause([]string) string { return "" }

func (MySQL) ForeignKeyChecks(enabled bool) string {
	if enabled {
		return "SET FOREIGN_KEY_CHECKS=1"
	}
	return "SET FOREIGN_KEY_CHECKS=0"
}

func (MySQL) IsDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDupEntry
}

// ListTables lists base tables and views of the connected schema.
// information_schema reports a NULL engine for views.
func (MySQL) ListTables(ctx context.Context, q Querier) ([]TableInfo, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT TABLE_NAME, ENGINE FROM information_schema.TABLES "+
			"WHERE TABLE_SCHEMA = DATABASE() ORDER BY TABLE_NAME")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []TableInfo
	for rows.Next() {
		var name string
		var engine sql.NullString
		if err := rows.Scan(&name, &engine); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		tables = append(tables, TableInfo{Name: name, Engine: engine.String})
	}
	return tables, rows.Err()
}

func (MySQL) PrimaryKey(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE "+
			"WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY' "+
			"ORDER BY ORDINAL_POSITION", table)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary key of %s: %w", table, err)
	}
	return scanStrings(rows)
}

func (d MySQL) CreateTableDDL(ctx context.Context, q Querier, table string) (string, error) {
	var name, ddl string
	err := q.QueryRowContext(ctx, "SHOW CREATE TABLE "+d.QuoteIdent(table)).Scan(&name, &ddl)
	if err != nil {
		return "", fmt.Errorf("failed to read definition of %s: %w", table, err)
	}
	guarded, ok := sqlutil.GuardCreateTable(ddl)
	if !ok {
		return "", fmt.Errorf("unexpected definition for %s: not a CREATE TABLE statement", table)
	}
	return guarded, nil
}

func (MySQL) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?",
		table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// CheckpointTableDDL quotes every column; ROWS is reserved since MySQL 8.0.
func (d MySQL) CheckpointTableDDL(table string) string {
	return "CREATE TABLE IF NOT EXISTS " + d.QuoteIdent(table) + ` (
  ` + "`id`" + ` INT UNSIGNED NOT NULL AUTO_INCREMENT,
  ` + "`tableName`" + ` VARCHAR(191) NOT NULL DEFAULT '',
  ` + "`addDate`" + ` DATETIME NOT NULL,
  ` + "`lastTime`" + ` DATETIME NOT NULL,
  ` + "`pkId`" + ` VARCHAR(64) NOT NULL DEFAULT '',
  ` + "`lastPkId`" + ` BIGINT NOT NULL DEFAULT 0,
  ` + "`rows`" + ` BIGINT NOT NULL DEFAULT 0,
  PRIMARY KEY (` + "`id`" + `),
  UNIQUE KEY ` + "`uk_tableName`" + ` (` + "`tableName`" + `)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
}

// LockStatements uses GET_LOCK with a zero timeout: a held lock fails fast.
func (MySQL) LockStatements() (string, string) {
	return "SELECT GET_LOCK(?, 0)", "SELECT RELEASE_LOCK(?)"
}
