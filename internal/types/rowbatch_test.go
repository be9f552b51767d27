package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowBatch_Empty(t *testing.T) {
	var nilBatch *RowBatch
	assert.Equal(t, 0, nilBatch.Len())

	b := NewRowBatch([]string{"id", "name"})
	assert.Equal(t, 0, b.Len())

	_, err := b.MaxInt64("id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch is empty")
}

func TestRowBatch_AppendAndRow(t *testing.T) {
	b := NewRowBatch([]string{"id", "name"})
	require.NoError(t, b.Append(int64(1), "alice"))
	require.NoError(t, b.Append(int64(2), []byte("bob")))

	err := b.Append(int64(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row has 1 values, batch has 2 columns")

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 1, b.ColumnIndex("name"))
	assert.Equal(t, -1, b.ColumnIndex("missing"))

	row := b.Row(1)
	assert.Equal(t, int64(2), row["id"])
	assert.Equal(t, []byte("bob"), row["name"])
}

func TestRowBatch_MaxInt64(t *testing.T) {
	b := NewRowBatch([]string{"id"})
	require.NoError(t, b.Append(int64(10)))
	require.NoError(t, b.Append([]byte("30")))
	require.NoError(t, b.Append(int64(20)))

	max, err := b.MaxInt64("id")
	require.NoError(t, err)
	assert.Equal(t, int64(30), max)

	_, err = b.MaxInt64("other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "other" not in batch`)
}

func TestRowBatch_MaxInt64_NonNumeric(t *testing.T) {
	b := NewRowBatch([]string{"code"})
	require.NoError(t, b.Append("abc"))

	_, err := b.MaxInt64("code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 0")
}

func TestRowBatch_Slice(t *testing.T) {
	b := NewRowBatch([]string{"id"})
	for i := 1; i <= 5; i++ {
		require.NoError(t, b.Append(int64(i)))
	}

	s := b.Slice(1, 3)
	assert.Equal(t, b.Columns, s.Columns)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, int64(2), s.Rows[0][0])
}
