package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/dbsmedya/tablesync/internal/config"
	"github.com/dbsmedya/tablesync/internal/sqlutil"
)

// pgUniqueViolation is SQLSTATE unique_violation.
const pgUniqueViolation = "23505"

// pgRelOID resolves the unquoted relation name in $1 within current_schema().
const pgRelOID = `(SELECT c.oid FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE n.nspname = current_schema() AND c.relname = $1)`

// Postgres implements Dialect for PostgreSQL. Unqualified table names
// resolve against current_schema().
type Postgres struct{}

func (Postgres) Name() string       { return config.DriverPostgres }
func (Postgres) DriverName() string { return "pgx" }

// BuildDSN renders a postgres:// URL. An explicit sslmode param wins over
// the TLS setting.
func (Postgres) BuildDSN(cfg *config.DatabaseConfig) (string, error) {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}

	q := url.Values{}
	switch cfg.TLS {
	case "disable":
		q.Set("sslmode", "disable")
	case "required":
		q.Set("sslmode", "require")
	default:
		q.Set("sslmode", "prefer")
	}
	for k, v := range cfg.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	dsn := u.String()
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("invalid postgres dsn: %w", err)
	}
	return dsn, nil
}

func (Postgres) QuoteIdent(name string) string { return sqlutil.QuoteANSI(name) }
func (Postgres) Placeholder(pos int) string    { return "$" + strconv.Itoa(pos) }
func (Postgres) MaxParams() int                { return 65535 }

func (d Postgres) KeyConflictClause(key []string) string {
	return " ON CONFLICT (" + quoteList(d, key) + ") DO NOTHING"
}

func (Postgres) ForeignKeyChecks(bool) string { return "" }

func (Postgres) IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// ListTables reports ordinary and partitioned tables with their access
// method as engine. Views, materialized views and foreign tables carry no
// engine. Partitions are left out; rows are read through their parent.
func (Postgres) ListTables(ctx context.Context, q Querier) ([]TableInfo, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.relname,
		       CASE WHEN c.relkind IN ('r', 'p') THEN COALESCE(am.amname, 'heap') ELSE '' END
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_am am ON am.oid = c.relam
		WHERE n.nspname = current_schema()
		  AND c.relkind IN ('r', 'p', 'v', 'm', 'f')
		  AND NOT c.relispartition
		ORDER BY c.relname`)
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

func (Postgres) PrimaryKey(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = `+pgRelOID+` AND i.indisprimary
		ORDER BY array_position(i.indkey::int2[], a.attnum)`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary key of %s: %w", table, err)
	}
	return scanStrings(rows)
}

type pgColumn struct {
	name     string
	typ      string
	notNull  bool
	def      string
	identity string
}

// render produces the column clause. Sequence defaults become serial types
// and identity columns become BY DEFAULT, so the target accepts the source's
// explicit key values and owns its own sequence.
func (c pgColumn) render() string {
	typ := c.typ
	def := c.def
	if strings.HasPrefix(def, "nextval(") {
		switch typ {
		case "integer":
			typ, def = "serial", ""
		case "bigint":
			typ, def = "bigserial", ""
		case "smallint":
			typ, def = "smallserial", ""
		}
	}

	var b strings.Builder
	b.WriteString(sqlutil.QuoteANSI(c.name))
	b.WriteString(" ")
	b.WriteString(typ)
	if c.identity != "" {
		b.WriteString(" GENERATED BY DEFAULT AS IDENTITY")
	}
	if c.notNull {
		b.WriteString(" NOT NULL")
	}
	if def != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(def)
	}
	return b.String()
}

// CreateTableDDL rebuilds the table from the catalog: columns, defaults,
// and primary key, unique and check constraints. Foreign keys are omitted
// because the referenced tables may not exist on the target yet.
func (d Postgres) CreateTableDDL(ctx context.Context, q Querier, table string) (string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT a.attname,
		       format_type(a.atttypid, a.atttypmod),
		       a.attnotnull,
		       COALESCE(pg_get_expr(ad.adbin, ad.adrelid), ''),
		       a.attidentity::text
		FROM pg_attribute a
		LEFT JOIN pg_attrdef ad ON ad.adrelid = a.attrelid AND ad.adnum = a.attnum
		WHERE a.attrelid = `+pgRelOID+` AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`, table)
	if err != nil {
		return "", fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	var parts []string
	for rows.Next() {
		var c pgColumn
		if err := rows.Scan(&c.name, &c.typ, &c.notNull, &c.def, &c.identity); err != nil {
			_ = rows.Close()
			return "", fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		parts = append(parts, c.render())
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return "", err
	}
	_ = rows.Close()

	if len(parts) == 0 {
		return "", fmt.Errorf("table %s not found or has no columns", table)
	}

	crows, err := q.QueryContext(ctx, `
		SELECT 'CONSTRAINT ' || quote_ident(conname) || ' ' || pg_get_constraintdef(oid)
		FROM pg_constraint
		WHERE conrelid = `+pgRelOID+` AND contype IN ('p', 'u', 'c')
		ORDER BY contype, conname`, table)
	if err != nil {
		return "", fmt.Errorf("failed to read constraints of %s: %w", table, err)
	}
	constraints, err := scanStrings(crows)
	if err != nil {
		return "", fmt.Errorf("failed to scan constraints of %s: %w", table, err)
	}
	parts = append(parts, constraints...)

	return "CREATE TABLE IF NOT EXISTS " + d.QuoteIdent(table) + " (\n  " + strings.Join(parts, ",\n  ") + "\n)", nil
}

func (Postgres) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, "SELECT EXISTS "+pgRelOID, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return exists, nil
}

func (d Postgres) CheckpointTableDDL(table string) string {
	return "CREATE TABLE IF NOT EXISTS " + d.QuoteIdent(table) + ` (
  "id" BIGSERIAL PRIMARY KEY,
  "tableName" VARCHAR(191) NOT NULL DEFAULT '' UNIQUE,
  "addDate" TIMESTAMP NOT NULL,
  "lastTime" TIMESTAMP NOT NULL,
  "pkId" VARCHAR(64) NOT NULL DEFAULT '',
  "lastPkId" BIGINT NOT NULL DEFAULT 0,
  "rows" BIGINT NOT NULL DEFAULT 0
)`
}

// LockStatements use session-level advisory locks keyed by hashtext(name).
func (Postgres) LockStatements() (string, string) {
	return "SELECT CASE WHEN pg_try_advisory_lock(hashtext($1)) THEN 1 ELSE 0 END",
		"SELECT CASE WHEN pg_advisory_unlock(hashtext($1)) THEN 1 ELSE 0 END"
}
