package warehouse

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/sheetingest/internal/db"
	"github.com/rpattn/sheetingest/internal/domain"
)

var _ Warehouse = (*Postgres)(nil)

func TestMigrationsCreateEveryTable(t *testing.T) {
	up, err := fs.ReadFile(db.Migrations(), "000001_init.up.sql")
	require.NoError(t, err)
	down, err := fs.ReadFile(db.Migrations(), "000001_init.down.sql")
	require.NoError(t, err)

	sql := string(up)
	for _, table := range AllTables() {
		start := strings.Index(sql, "CREATE TABLE IF NOT EXISTS "+table.Name+" (")
		require.GreaterOrEqual(t, start, 0, "missing table %s", table.Name)
		end := strings.Index(sql[start:], ");")
		body := sql[start : start+end]
		for _, column := range table.Columns {
			assert.Contains(t, body, "\n    "+column.Name+" ", "table %s lacks column %s", table.Name, column.Name)
		}
		assert.Contains(t, string(down), "DROP TABLE IF EXISTS "+table.Name+";")
	}
}

func TestPostgresRowNullsEmptyTypedValues(t *testing.T) {
	table := MetadataTable()
	row := make([]any, len(table.Columns))
	for i := range row {
		row[i] = ""
	}
	out := postgresRow(table, row)
	assert.Equal(t, "", out[table.ColumnIndex("entity")])
	assert.Nil(t, out[table.ColumnIndex("max_id")])
	assert.Nil(t, out[table.ColumnIndex("started_at")])
}

func TestClassifyPostgresError(t *testing.T) {
	cases := []struct {
		code      string
		sentinel  error
		retryable bool
	}{
		{"42P01", ErrTableNotFound, false},
		{"22007", ErrPermanent, false},
		{"23502", ErrPermanent, false},
		{"42501", ErrPermanent, false},
		{"40001", nil, true},
		{"08006", nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := classifyPostgresError(fmt.Errorf("copy: %w", &pgconn.PgError{Code: tc.code}))
			if tc.sentinel != nil {
				assert.True(t, errors.Is(err, tc.sentinel))
			}
			assert.Equal(t, tc.retryable, Retryable(err))
		})
	}
}

func TestAllTables(t *testing.T) {
	tables := AllTables()
	require.Len(t, tables, 10)
	assert.Equal(t, "raw_customers", tables[0].Name)
	assert.Equal(t, "invalid_customers", tables[1].Name)
	assert.Equal(t, MetadataTableName, tables[8].Name)
	assert.Equal(t, ErrorsTableName, tables[9].Name)

	raw := RawTable(domain.KindSales)
	assert.Equal(t, 0, raw.ColumnIndex("sale_id"))
	assert.Equal(t, len(domain.KindSales.Fields()), raw.ColumnIndex(ColumnRunID))

	invalid := InvalidTable(domain.KindSales)
	assert.Equal(t, len(domain.KindSales.Fields()), invalid.ColumnIndex(ColumnErrorReason))
	assert.Equal(t, -1, invalid.ColumnIndex("missing"))
}
