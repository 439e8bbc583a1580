package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/sheetingest/internal/domain"
	"github.com/rpattn/sheetingest/internal/retry"
)

type flakyWarehouse struct {
	*Memory
	failures []error
	calls    int
}

func (f *flakyWarehouse) Append(ctx context.Context, batch Batch) (bool, error) {
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return false, err
	}
	return f.Memory.Append(ctx, batch)
}

func testPolicy(attempts int) retry.Policy {
	return retry.Policy{
		Attempts:   attempts,
		Initial:    time.Millisecond,
		Max:        time.Millisecond,
		Multiplier: 1,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

func newFlaky(t *testing.T, failures ...error) (*flakyWarehouse, Table) {
	t.Helper()
	mem := NewMemory()
	table := RawTable(domain.KindCustomers)
	require.NoError(t, mem.EnsureTables(context.Background(), []Table{table}))
	return &flakyWarehouse{Memory: mem, failures: failures}, table
}

func TestLoaderRetriesTransientFailures(t *testing.T) {
	wh, table := newFlaky(t, errors.New("backend unavailable"), errors.New("backend unavailable"))
	retries := 0
	policy := testPolicy(3)
	policy.OnRetry = func(int, error, time.Duration) { retries++ }

	loader := NewLoader(wh, policy, nil)
	result, err := loader.Load(context.Background(), Batch{Key: "k", Table: table, Rows: [][]any{customerRow(1, "k")}})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 2, retries)
	assert.Len(t, wh.Rows(table.Name), 1)
}

func TestLoaderExhaustion(t *testing.T) {
	boom := errors.New("backend unavailable")
	wh, table := newFlaky(t, boom, boom, boom)

	loader := NewLoader(wh, testPolicy(3), nil)
	result, err := loader.Load(context.Background(), Batch{Key: "k", Table: table, Rows: [][]any{customerRow(1, "k")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLoad)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, result.Attempts)
	assert.Empty(t, wh.Rows(table.Name))
}

func TestLoaderDoesNotRetryPermanentErrors(t *testing.T) {
	wh, table := newFlaky(t, ErrPermanent)

	loader := NewLoader(wh, testPolicy(3), nil)
	result, err := loader.Load(context.Background(), Batch{Key: "k", Table: table, Rows: [][]any{customerRow(1, "k")}})
	assert.ErrorIs(t, err, ErrLoad)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, 1, wh.calls)
}

func TestLoaderSkipsEmptyBatch(t *testing.T) {
	wh, table := newFlaky(t)

	loader := NewLoader(wh, testPolicy(3), nil)
	result, err := loader.Load(context.Background(), Batch{Key: "k", Table: table})
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Zero(t, wh.calls)
}

func TestLoaderWritesEmptyReplaceBatch(t *testing.T) {
	wh, table := newFlaky(t)
	loader := NewLoader(wh, testPolicy(3), nil)
	_, err := loader.Load(context.Background(), Batch{Key: "a", Table: table, Rows: [][]any{customerRow(1, "a")}})
	require.NoError(t, err)

	result, err := loader.Load(context.Background(), Batch{Key: "b", Table: table, Replace: true})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, 1, result.Attempts)
	assert.Empty(t, wh.Rows(table.Name))
}

func TestLoaderPrimaryKeys(t *testing.T) {
	wh, table := newFlaky(t)
	loader := NewLoader(wh, testPolicy(3), nil)
	_, err := loader.Load(context.Background(), Batch{Key: "a", Table: table, Rows: [][]any{customerRow(4, "a"), customerRow(2, "a")}})
	require.NoError(t, err)

	keys, err := loader.PrimaryKeys(context.Background(), domain.KindCustomers)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 4}, keys)
}

func TestLoaderReportsAlreadyPresentBatch(t *testing.T) {
	wh, table := newFlaky(t)
	loader := NewLoader(wh, testPolicy(3), nil)
	batch := Batch{Key: "k", Table: table, Rows: [][]any{customerRow(1, "k")}}

	first, err := loader.Load(context.Background(), batch)
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), batch)
	require.NoError(t, err)

	assert.True(t, first.Applied)
	assert.False(t, second.Applied)
	assert.Len(t, wh.Rows(table.Name), 1)
}
