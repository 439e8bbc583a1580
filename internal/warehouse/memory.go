package warehouse

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rpattn/sheetingest/internal/domain"
)

// Memory is an in-process warehouse for local runs and tests.
type Memory struct {
	mu     sync.Mutex
	tables map[string]*memoryTable
}

type memoryTable struct {
	spec    Table
	rows    [][]any
	batches map[string]struct{}
}

// NewMemory returns an empty warehouse.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]*memoryTable)}
}

// EnsureTables creates missing tables. Existing tables keep their rows.
func (m *Memory) EnsureTables(ctx context.Context, tables []Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, table := range tables {
		if _, ok := m.tables[table.Name]; ok {
			continue
		}
		m.tables[table.Name] = &memoryTable{spec: table, batches: make(map[string]struct{})}
	}
	return nil
}

// Append adds or replaces all rows of batch under a single lock.
func (m *Memory) Append(ctx context.Context, batch Batch) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.tables[batch.Table.Name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTableNotFound, batch.Table.Name)
	}
	if batch.Key != "" {
		if _, seen := table.batches[batch.Key]; seen {
			return false, nil
		}
	}

	width := len(table.spec.Columns)
	for i, row := range batch.Rows {
		if len(row) != width {
			return false, fmt.Errorf("%w: %s row %d has %d values, want %d",
				ErrPermanent, batch.Table.Name, i, len(row), width)
		}
	}

	if batch.Replace {
		if len(batch.Rows) == 0 && len(table.rows) == 0 {
			return false, nil
		}
		table.rows = nil
		table.batches = make(map[string]struct{})
	}
	for _, row := range batch.Rows {
		copied := make([]any, width)
		copy(copied, row)
		table.rows = append(table.rows, copied)
	}
	if batch.Key != "" {
		table.batches[batch.Key] = struct{}{}
	}
	return true, nil
}

// PrimaryKeys returns the distinct primary keys of kind's raw table in
// ascending order.
func (m *Memory) PrimaryKeys(ctx context.Context, kind domain.Kind) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.tables[kind.RawTable()]
	if !ok {
		return []int64{}, nil
	}
	idx := table.spec.ColumnIndex(kind.PrimaryKey())
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s has no column %s", ErrPermanent, table.spec.Name, kind.PrimaryKey())
	}

	seen := make(map[int64]struct{}, len(table.rows))
	keys := make([]int64, 0, len(table.rows))
	for _, row := range table.rows {
		id, ok := row[idx].(int64)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, id)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys, nil
}

// Rows returns a copy of the rows stored in table.
func (m *Memory) Rows(table string) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return nil
	}
	out := make([][]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = append([]any(nil), row...)
	}
	return out
}

// Records returns the rows of table keyed by column name.
func (m *Memory) Records(table string) []map[string]any {
	m.mu.Lock()
	spec := Table{}
	if t, ok := m.tables[table]; ok {
		spec = t.spec
	}
	m.mu.Unlock()

	rows := m.Rows(table)
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		record := make(map[string]any, len(spec.Columns))
		for i, column := range spec.Columns {
			record[column.Name] = row[i]
		}
		out = append(out, record)
	}
	return out
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
