package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/sheetingest/internal/domain"
)

var _ Warehouse = (*Memory)(nil)

func customerRow(id int64, key string) []any {
	return []any{id, "Acme", "AR", "Retail", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		"run-1", key, "customers.xlsx", int64(2), time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryAppendIsIdempotentPerBatchKey(t *testing.T) {
	ctx := context.Background()
	wh := NewMemory()
	table := RawTable(domain.KindCustomers)
	require.NoError(t, wh.EnsureTables(ctx, []Table{table}))

	batch := Batch{Key: "k1", Table: table, Rows: [][]any{customerRow(1, "k1"), customerRow(2, "k1")}}

	applied, err := wh.Append(ctx, batch)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = wh.Append(ctx, batch)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Len(t, wh.Rows(table.Name), 2)

	batch.Key = "k2"
	applied, err = wh.Append(ctx, batch)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Len(t, wh.Rows(table.Name), 4)
}

func TestMemoryAppendRejectsWholeBatchOnBadRow(t *testing.T) {
	ctx := context.Background()
	wh := NewMemory()
	table := RawTable(domain.KindCustomers)
	require.NoError(t, wh.EnsureTables(ctx, []Table{table}))

	batch := Batch{Key: "k1", Table: table, Rows: [][]any{customerRow(1, "k1"), {int64(2)}}}
	_, err := wh.Append(ctx, batch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermanent))
	assert.Empty(t, wh.Rows(table.Name))
}

func TestMemoryAppendUnknownTable(t *testing.T) {
	wh := NewMemory()
	_, err := wh.Append(context.Background(), Batch{Table: Table{Name: "nope"}, Rows: [][]any{{}}})
	assert.ErrorIs(t, err, ErrTableNotFound)
	assert.False(t, Retryable(err))
}

func TestMemoryPrimaryKeys(t *testing.T) {
	ctx := context.Background()
	wh := NewMemory()

	keys, err := wh.PrimaryKeys(ctx, domain.KindCustomers)
	require.NoError(t, err)
	assert.Empty(t, keys)

	table := RawTable(domain.KindCustomers)
	require.NoError(t, wh.EnsureTables(ctx, []Table{table}))
	_, err = wh.Append(ctx, Batch{Key: "a", Table: table, Rows: [][]any{customerRow(7, "a"), customerRow(3, "a")}})
	require.NoError(t, err)
	_, err = wh.Append(ctx, Batch{Key: "b", Table: table, Rows: [][]any{customerRow(3, "b")}})
	require.NoError(t, err)

	keys, err = wh.PrimaryKeys(ctx, domain.KindCustomers)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, keys)
}

func TestMemoryReplaceSwapsTableContent(t *testing.T) {
	ctx := context.Background()
	wh := NewMemory()
	table := RawTable(domain.KindCustomers)
	require.NoError(t, wh.EnsureTables(ctx, []Table{table}))

	first := Batch{Key: "a", Table: table, Replace: true, Rows: [][]any{customerRow(1, "a"), customerRow(2, "a")}}
	applied, err := wh.Append(ctx, first)
	require.NoError(t, err)
	assert.True(t, applied)

	second := Batch{Key: "b", Table: table, Replace: true, Rows: [][]any{customerRow(1, "b"), customerRow(2, "b"), customerRow(3, "b")}}
	applied, err = wh.Append(ctx, second)
	require.NoError(t, err)
	assert.True(t, applied)

	keys, err := wh.PrimaryKeys(ctx, domain.KindCustomers)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, keys)
	assert.Len(t, wh.Rows(table.Name), 3)

	applied, err = wh.Append(ctx, second)
	require.NoError(t, err)
	assert.False(t, applied)

	// An older key no longer matches after the table was replaced.
	applied, err = wh.Append(ctx, first)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Len(t, wh.Rows(table.Name), 2)
}

func TestMemoryEmptyReplaceClearsTable(t *testing.T) {
	ctx := context.Background()
	wh := NewMemory()
	table := InvalidTable(domain.KindSales)
	require.NoError(t, wh.EnsureTables(ctx, []Table{table}))

	applied, err := wh.Append(ctx, Batch{Key: "a", Table: table, Replace: true})
	require.NoError(t, err)
	assert.False(t, applied)

	row := []any{"1", nil, nil, nil, nil, nil, nil, "missing:customer_id", "run", "b", "sales.xlsx", int64(2), time.Unix(0, 0)}
	_, err = wh.Append(ctx, Batch{Key: "b", Table: table, Replace: true, Rows: [][]any{row}})
	require.NoError(t, err)
	require.Len(t, wh.Rows(table.Name), 1)

	applied, err = wh.Append(ctx, Batch{Key: "c", Table: table, Replace: true})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Empty(t, wh.Rows(table.Name))
}

func TestMemoryRecords(t *testing.T) {
	ctx := context.Background()
	wh := NewMemory()
	table := RawTable(domain.KindCustomers)
	require.NoError(t, wh.EnsureTables(ctx, []Table{table}))
	_, err := wh.Append(ctx, Batch{Key: "a", Table: table, Rows: [][]any{customerRow(9, "a")}})
	require.NoError(t, err)

	records := wh.Records(table.Name)
	require.Len(t, records, 1)
	assert.Equal(t, int64(9), records[0]["customer_id"])
	assert.Equal(t, "a", records[0][ColumnBatchKey])
}
