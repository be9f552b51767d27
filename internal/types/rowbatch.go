// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import "fmt"

// Row is a single record keyed by column name.
type Row map[string]interface{}

// RowBatch is an ordered set of rows sharing one column list.
// Rows fetched for replication are ordered ascending by the cursor column.
type RowBatch struct {
	Columns []string
	Rows    [][]interface{}
}

// NewRowBatch creates an empty batch for the given columns.
func NewRowBatch(columns []string) *RowBatch {
	return &RowBatch{Columns: columns}
}

// Len returns the number of rows in the batch. A nil batch is empty.
func (b *RowBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Append adds a row. The value count must match the column count.
func (b *RowBatch) Append(values ...interface{}) error {
	if len(values) != len(b.Columns) {
		return fmt.Errorf("row has %d values, batch has %d columns", len(values), len(b.Columns))
	}
	b.Rows = append(b.Rows, values)
	return nil
}

// ColumnIndex returns the position of a column, or -1.
func (b *RowBatch) ColumnIndex(name string) int {
	for i, c := range b.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Row returns row i as a Row map.
func (b *RowBatch) Row(i int) Row {
	row := make(Row, len(b.Columns))
	for j, c := range b.Columns {
		row[c] = b.Rows[i][j]
	}
	return row
}

// MaxInt64 returns the largest value of an integer column across the batch.
func (b *RowBatch) MaxInt64(column string) (int64, error) {
	if b.Len() == 0 {
		return 0, fmt.Errorf("batch is empty")
	}
	idx := b.ColumnIndex(column)
	if idx < 0 {
		return 0, fmt.Errorf("column %q not in batch", column)
	}

	var max int64
	for i, row := range b.Rows {
		v, err := ParseInt64(row[idx])
		if err != nil {
			return 0, fmt.Errorf("row %d column %q: %w", i, column, err)
		}
		if i == 0 || v > max {
			max = v
		}
	}
	return max, nil
}

// Slice returns rows [from, to) sharing the column list.
func (b *RowBatch) Slice(from, to int) *RowBatch {
	return &RowBatch{Columns: b.Columns, Rows: b.Rows[from:to]}
}
