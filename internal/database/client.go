package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dbsmedya/tablesync/internal/sqlutil"
	"github.com/dbsmedya/tablesync/internal/types"
)

// Cond is a single column comparison in a WHERE clause. Conditions are
// joined with AND.
type Cond struct {
	Column string
	Op     string
	Value  interface{}
}

// Eq, Gt, Lt and Lte build the comparisons the replicator needs.
func Eq(column string, v interface{}) Cond  { return Cond{Column: column, Op: "=", Value: v} }
func Gt(column string, v interface{}) Cond  { return Cond{Column: column, Op: ">", Value: v} }
func Lt(column string, v interface{}) Cond  { return Cond{Column: column, Op: "<", Value: v} }
func Lte(column string, v interface{}) Cond { return Cond{Column: column, Op: "<=", Value: v} }

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Asc orders ascending by column.
func Asc(column string) Order { return Order{Column: column} }

// Assignment is one SET term of an UPDATE. With Increment the value is
// added to the current column value.
type Assignment struct {
	Column    string
	Value     interface{}
	Increment bool
}

// Set and Incr build assignments.
func Set(column string, v interface{}) Assignment  { return Assignment{Column: column, Value: v} }
func Incr(column string, v interface{}) Assignment { return Assignment{Column: column, Value: v, Increment: true} }

var allowedOps = map[string]bool{"=": true, ">": true, ">=": true, "<": true, "<=": true, "<>": true}

// InsertOptions controls InsertMany.
type InsertOptions struct {
	// SkipExistingKey names key columns. Rows whose key is already present
	// on the table are skipped; any other constraint failure is an error.
	SkipExistingKey []string
	// DisableForeignKeyChecks turns FK checks off for the batch transaction
	// where the product supports it.
	DisableForeignKeyChecks bool
}

// DB is the query surface the replicator uses against one endpoint. It
// renders SQL for its dialect; callers pass only identifiers and values.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// New wraps an open connection pool.
func New(conn *sql.DB, dialect Dialect) *DB {
	return &DB{conn: conn, dialect: dialect}
}

// Conn returns the underlying pool.
func (d *DB) Conn() *sql.DB { return d.conn }

// Dialect returns the SQL dialect of this endpoint.
func (d *DB) Dialect() Dialect { return d.dialect }

// Query runs a statement and buffers the result set.
func (d *DB) Query(ctx context.Context, query string, args ...interface{}) (*types.RowBatch, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanBatch(rows)
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return d.conn.ExecContext(ctx, query, args...)
}

// SelectWhere selects all columns of table matching conds. A limit of zero
// or less means no limit.
func (d *DB) SelectWhere(ctx context.Context, table string, conds []Cond, order []Order, limit int) (*types.RowBatch, error) {
	where, args, err := d.whereClause(conds, 1)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(d.dialect.QuoteIdent(table))
	b.WriteString(where)
	if len(order) > 0 {
		terms := make([]string, len(order))
		for i, o := range order {
			terms[i] = d.dialect.QuoteIdent(o.Column)
			if o.Desc {
				terms[i] += " DESC"
			} else {
				terms[i] += " ASC"
			}
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}
	if limit > 0 {
		b.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}

	return d.Query(ctx, b.String(), args...)
}

// FindOne returns the first row matching conds, or nil when none does.
func (d *DB) FindOne(ctx context.Context, table string, conds []Cond) (types.Row, error) {
	batch, err := d.SelectWhere(ctx, table, conds, nil, 1)
	if err != nil {
		return nil, err
	}
	if batch.Len() == 0 {
		return nil, nil
	}
	return batch.Row(0), nil
}

// MaxValue returns MAX(column), which is nil for an empty table.
func (d *DB) MaxValue(ctx context.Context, table, column string) (interface{}, error) {
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", d.dialect.QuoteIdent(column), d.dialect.QuoteIdent(table))

	var v interface{}
	if err := d.conn.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Count returns the number of rows matching conds.
func (d *DB) Count(ctx context.Context, table string, conds []Cond) (int64, error) {
	where, args, err := d.whereClause(conds, 1)
	if err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + d.dialect.QuoteIdent(table) + where

	var n int64
	if err := d.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateWhere applies assignments to rows matching conds and returns the
// number of rows matched.
func (d *DB) UpdateWhere(ctx context.Context, table string, conds []Cond, set []Assignment) (int64, error) {
	if len(set) == 0 {
		return 0, fmt.Errorf("update of %s has no assignments", table)
	}

	terms := make([]string, len(set))
	args := make([]interface{}, 0, len(set)+len(conds))
	for i, a := range set {
		col := d.dialect.QuoteIdent(a.Column)
		mark := d.dialect.Placeholder(i + 1)
		if a.Increment {
			terms[i] = fmt.Sprintf("%s = %s + %s", col, col, mark)
		} else {
			terms[i] = fmt.Sprintf("%s = %s", col, mark)
		}
		args = append(args, a.Value)
	}

	where, whereArgs, err := d.whereClause(conds, len(set)+1)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := "UPDATE " + d.dialect.QuoteIdent(table) + " SET " + strings.Join(terms, ", ") + where
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InsertMany writes the batch in one transaction, splitting it into
// multi-row statements that fit the dialect's parameter limit. It returns
// the number of rows actually inserted, which is lower than batch.Len()
// when rows with an existing key are skipped.
func (d *DB) InsertMany(ctx context.Context, table string, batch *types.RowBatch, opts InsertOptions) (int64, error) {
	if batch.Len() == 0 {
		return 0, nil
	}
	if len(batch.Columns) == 0 {
		return 0, fmt.Errorf("batch for %s has no columns", table)
	}

	rowsPerStmt := d.dialect.MaxParams() / len(batch.Columns)
	if rowsPerStmt < 1 {
		return 0, fmt.Errorf("table %s has %d columns, more than one statement can bind", table, len(batch.Columns))
	}

	conn, err := d.conn.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// FK checks are a session setting; restore them on the pinned session
	// whether or not the batch commits.
	if off := d.dialect.ForeignKeyChecks(false); opts.DisableForeignKeyChecks && off != "" {
		if _, err := conn.ExecContext(ctx, off); err != nil {
			return 0, fmt.Errorf("failed to disable foreign key checks: %w", err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), d.dialect.ForeignKeyChecks(true))
		}()
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	rows, suffix := batch, ""
	if len(opts.SkipExistingKey) > 0 {
		suffix = d.dialect.KeyConflictClause(opts.SkipExistingKey)
		if suffix == "" {
			if rows, err = d.withoutExistingKeys(ctx, tx, table, batch, opts.SkipExistingKey); err != nil {
				return 0, err
			}
		}
	}

	var inserted int64
	for from := 0; from < rows.Len(); from += rowsPerStmt {
		to := from + rowsPerStmt
		if to > rows.Len() {
			to = rows.Len()
		}
		query, args := d.insertStatement(table, rows.Slice(from, to), suffix)
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert rows %d-%d into %s: %w", from, to-1, table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	return inserted, nil
}

// ExecSchema runs a DDL statement, with foreign key checks off when asked
// so that a table may reference one that is not created yet.
func (d *DB) ExecSchema(ctx context.Context, ddl string, disableForeignKeyChecks bool) error {
	off := d.dialect.ForeignKeyChecks(false)
	if !disableForeignKeyChecks || off == "" {
		_, err := d.conn.ExecContext(ctx, ddl)
		return err
	}

	conn, err := d.conn.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, off); err != nil {
		return fmt.Errorf("failed to disable foreign key checks: %w", err)
	}
	_, execErr := conn.ExecContext(ctx, ddl)
	if _, err := conn.ExecContext(context.WithoutCancel(ctx), d.dialect.ForeignKeyChecks(true)); err != nil && execErr == nil {
		return fmt.Errorf("failed to re-enable foreign key checks: %w", err)
	}
	return execErr
}

// ListTables lists tables and views of the connected schema.
func (d *DB) ListTables(ctx context.Context) ([]TableInfo, error) {
	return d.dialect.ListTables(ctx, d.conn)
}

// PrimaryKey returns the primary key columns of table in key order.
func (d *DB) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	return d.dialect.PrimaryKey(ctx, d.conn, table)
}

// CreateTableDDL returns a guarded CREATE TABLE statement for table.
func (d *DB) CreateTableDDL(ctx context.Context, table string) (string, error) {
	return d.dialect.CreateTableDDL(ctx, d.conn, table)
}

// TableExists reports whether table exists.
func (d *DB) TableExists(ctx context.Context, table string) (bool, error) {
	return d.dialect.TableExists(ctx, d.conn, table)
}

// withoutExistingKeys drops the rows of batch whose key is already on
// table, reading the keys through q so the check and the insert share a
// transaction.
func (d *DB) withoutExistingKeys(ctx context.Context, q Querier, table string, batch *types.RowBatch, key []string) (*types.RowBatch, error) {
	idx := make([]int, len(key))
	for i, col := range key {
		if idx[i] = batch.ColumnIndex(col); idx[i] < 0 {
			return nil, fmt.Errorf("key column %s is not in the batch for %s", col, table)
		}
	}

	existing := make(map[string]struct{})
	selectKeys := "SELECT " + quoteList(d.dialect, key) + " FROM " + d.dialect.QuoteIdent(table) +
		" WHERE " + d.dialect.QuoteIdent(key[0]) + " IN ("
	chunk := d.dialect.MaxParams()
	for from := 0; from < batch.Len(); from += chunk {
		to := from + chunk
		if to > batch.Len() {
			to = batch.Len()
		}
		args := make([]interface{}, 0, to-from)
		for _, row := range batch.Rows[from:to] {
			args = append(args, row[idx[0]])
		}

		rows, err := q.QueryContext(ctx, selectKeys+sqlutil.Placeholders(len(args), 1, d.dialect.Placeholder)+")", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to read existing keys of %s: %w", table, err)
		}
		found, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		for _, row := range found.Rows {
			existing[keyString(row, nil)] = struct{}{}
		}
	}
	if len(existing) == 0 {
		return batch, nil
	}

	kept := types.NewRowBatch(batch.Columns)
	for _, row := range batch.Rows {
		if _, ok := existing[keyString(row, idx)]; !ok {
			kept.Rows = append(kept.Rows, row)
		}
	}
	return kept, nil
}

// keyString renders the key values of row for set lookups. With nil idx
// the whole row is the key. Driver types differ between endpoints, so
// values are compared as text.
func keyString(row []interface{}, idx []int) string {
	parts := make([]string, 0, len(row))
	if idx == nil {
		for _, v := range row {
			parts = append(parts, types.ToString(v))
		}
	} else {
		for _, j := range idx {
			parts = append(parts, types.ToString(row[j]))
		}
	}
	return strings.Join(parts, "\x00")
}

func (d *DB) insertStatement(table string, batch *types.RowBatch, suffix string) (string, []interface{}) {
	cols := make([]string, len(batch.Columns))
	for i, c := range batch.Columns {
		cols[i] = d.dialect.QuoteIdent(c)
	}

	width := len(batch.Columns)
	tuples := make([]string, batch.Len())
	args := make([]interface{}, 0, batch.Len()*width)
	for i, row := range batch.Rows {
		tuples[i] = "(" + sqlutil.Placeholders(width, i*width+1, d.dialect.Placeholder) + ")"
		args = append(args, row...)
	}

	query := "INSERT INTO " + d.dialect.QuoteIdent(table) +
		" (" + strings.Join(cols, ", ") + ") VALUES " + strings.Join(tuples, ", ") + suffix
	return query, args
}

func (d *DB) whereClause(conds []Cond, start int) (string, []interface{}, error) {
	if len(conds) == 0 {
		return "", nil, nil
	}
	terms := make([]string, len(conds))
	args := make([]interface{}, len(conds))
	for i, c := range conds {
		if !allowedOps[c.Op] {
			return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
		terms[i] = fmt.Sprintf("%s %s %s", d.dialect.QuoteIdent(c.Column), c.Op, d.dialect.Placeholder(start+i))
		args[i] = c.Value
	}
	return " WHERE " + strings.Join(terms, " AND "), args, nil
}

// scanBatch reads every row into a RowBatch and closes rows.
func scanBatch(rows *sql.Rows) (*types.RowBatch, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	batch := types.NewRowBatch(columns)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := batch.Append(values...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return batch, nil
}
