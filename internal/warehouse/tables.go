package warehouse

import (
	"github.com/rpattn/sheetingest/internal/domain"
)

// Names of the audit tables.
const (
	MetadataTableName = "ingestion_metadata"
	ErrorsTableName   = "ingestion_errors"
)

// Bookkeeping and audit column names.
const (
	ColumnRunID       = "run_id"
	ColumnBatchKey    = "batch_key"
	ColumnSourceFile  = "source_file"
	ColumnRowNumber   = "row_number"
	ColumnIngestedAt  = "ingested_at"
	ColumnErrorReason = "error_reason"
)

// Column is one column of a warehouse table.
type Column struct {
	Name     string
	Type     domain.FieldType
	Required bool
}

// Table describes a warehouse table.
type Table struct {
	Name    string
	Columns []Column
}

// ColumnNames returns the column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		names[i] = column.Name
	}
	return names
}

// ColumnIndex returns the position of name, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, column := range t.Columns {
		if column.Name == name {
			return i
		}
	}
	return -1
}

var bookkeepingColumns = []Column{
	{Name: ColumnRunID, Type: domain.FieldTypeString, Required: true},
	{Name: ColumnBatchKey, Type: domain.FieldTypeString, Required: true},
	{Name: ColumnSourceFile, Type: domain.FieldTypeString, Required: true},
	{Name: ColumnRowNumber, Type: domain.FieldTypeInteger, Required: true},
	{Name: ColumnIngestedAt, Type: domain.FieldTypeTimestamp, Required: true},
}

// RawTable is the table of valid rows for kind: typed entity columns followed
// by the bookkeeping columns.
func RawTable(kind domain.Kind) Table {
	fields := kind.Fields()
	columns := make([]Column, 0, len(fields)+len(bookkeepingColumns))
	for _, field := range fields {
		columns = append(columns, Column{Name: field.Name, Type: field.Type, Required: field.Required})
	}
	columns = append(columns, bookkeepingColumns...)
	return Table{Name: kind.RawTable(), Columns: columns}
}

// InvalidTable is the quarantine table for kind. Entity columns are nullable
// strings so rows with type errors keep their source text.
func InvalidTable(kind domain.Kind) Table {
	fields := kind.Fields()
	columns := make([]Column, 0, len(fields)+len(bookkeepingColumns)+1)
	for _, field := range fields {
		columns = append(columns, Column{Name: field.Name, Type: domain.FieldTypeString})
	}
	columns = append(columns, Column{Name: ColumnErrorReason, Type: domain.FieldTypeString, Required: true})
	columns = append(columns, bookkeepingColumns...)
	return Table{Name: kind.InvalidTable(), Columns: columns}
}

// MetadataTable holds one row per processed file and one per run.
func MetadataTable() Table {
	return Table{
		Name: MetadataTableName,
		Columns: []Column{
			{Name: "run_id", Type: domain.FieldTypeString, Required: true},
			{Name: "scope", Type: domain.FieldTypeString, Required: true},
			{Name: "entity", Type: domain.FieldTypeString},
			{Name: "file_name", Type: domain.FieldTypeString},
			{Name: "table_name", Type: domain.FieldTypeString},
			{Name: "status", Type: domain.FieldTypeString, Required: true},
			{Name: "rows_read", Type: domain.FieldTypeInteger, Required: true},
			{Name: "rows_valid", Type: domain.FieldTypeInteger, Required: true},
			{Name: "rows_invalid", Type: domain.FieldTypeInteger, Required: true},
			{Name: "max_id", Type: domain.FieldTypeInteger},
			{Name: "batch_key", Type: domain.FieldTypeString},
			{Name: "error_message", Type: domain.FieldTypeString},
			{Name: "started_at", Type: domain.FieldTypeTimestamp, Required: true},
			{Name: "finished_at", Type: domain.FieldTypeTimestamp, Required: true},
		},
	}
}

// ErrorsTable holds one row per rejected record or file failure.
func ErrorsTable() Table {
	return Table{
		Name: ErrorsTableName,
		Columns: []Column{
			{Name: "run_id", Type: domain.FieldTypeString, Required: true},
			{Name: "entity", Type: domain.FieldTypeString},
			{Name: "file_name", Type: domain.FieldTypeString},
			{Name: "row_number", Type: domain.FieldTypeInteger},
			{Name: "record_id", Type: domain.FieldTypeString},
			{Name: "error_type", Type: domain.FieldTypeString, Required: true},
			{Name: "error_message", Type: domain.FieldTypeString, Required: true},
			{Name: "batch_key", Type: domain.FieldTypeString},
			{Name: "created_at", Type: domain.FieldTypeTimestamp, Required: true},
		},
	}
}

// AllTables lists every table the pipeline writes to.
func AllTables() []Table {
	tables := make([]Table, 0, 2*len(domain.ProcessingOrder)+2)
	for _, kind := range domain.ProcessingOrder {
		tables = append(tables, RawTable(kind), InvalidTable(kind))
	}
	return append(tables, MetadataTable(), ErrorsTable())
}
