// Package validation checks spreadsheet rows against the fixed entity schemas
// and turns valid rows into typed records.
package validation

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/rpattn/sheetingest/internal/domain"
	"github.com/rpattn/sheetingest/internal/sheet"
)

// Reason prefixes attached to invalid rows.
const (
	ReasonMissingField = "missing_field"
	ReasonTypeError    = "type_error"
	ReasonFKViolation  = "fk_violation"
	ReasonDuplicateKey = "duplicate_key"
)

// Result is the validation outcome for one input row.
type Result struct {
	Kind      domain.Kind
	RowNumber int
	// Raw holds the trimmed source cell per schema column, empty when absent.
	Raw     map[string]string
	Record  domain.Record
	Reasons []string
}

// Valid reports whether the row passed every check.
func (r Result) Valid() bool {
	return len(r.Reasons) == 0
}

// Reason joins all failure reasons.
func (r Result) Reason() string {
	return strings.Join(r.Reasons, "; ")
}

// RecordID identifies the source row: its primary key as written in the file,
// or its row number when the key is missing.
func (r Result) RecordID() string {
	if id := r.Raw[r.Kind.PrimaryKey()]; id != "" {
		return id
	}
	return "row:" + strconv.Itoa(r.RowNumber)
}

// Validate checks each row of table against kind's schema and the reference
// set. Results are produced lazily, one per row, in input order. refs may be
// nil for kinds without referential columns.
func Validate(kind domain.Kind, table sheet.Table, refs *References) iter.Seq[Result] {
	fields := kind.Fields()
	columns := resolveColumns(kind, table)
	pk := kind.PrimaryKey()

	return func(yield func(Result) bool) {
		seen := make(map[int64]int)

		for _, row := range table.Rows {
			result := Result{
				Kind:      kind,
				RowNumber: row.Number,
				Raw:       make(map[string]string, len(fields)),
			}
			values := make(map[string]any, len(fields))

			for _, field := range fields {
				idx, ok := columns[field.Name]
				raw := ""
				if ok && idx < len(row.Cells) {
					raw = strings.TrimSpace(row.Cells[idx])
				}
				result.Raw[field.Name] = raw

				if raw == "" {
					if field.Required {
						result.Reasons = append(result.Reasons, ReasonMissingField+":"+field.Name)
					}
					continue
				}

				coerced, err := coerceValue(field.Type, raw, table.SerialDates)
				if err != nil {
					result.Reasons = append(result.Reasons, ReasonTypeError+":"+field.Name)
					continue
				}
				values[field.Name] = coerced

				if field.ReferenceEntityType != "" {
					if refs == nil || !refs.Contains(field.ReferenceEntityType, coerced.(int64)) {
						result.Reasons = append(result.Reasons, ReasonFKViolation+":"+field.Name)
					}
				}
			}

			if result.Valid() {
				id := values[pk].(int64)
				if first, dup := seen[id]; dup {
					result.Reasons = append(result.Reasons, fmt.Sprintf("%s:%s (first seen at row %d)", ReasonDuplicateKey, pk, first))
				} else {
					seen[id] = row.Number
				}
			}

			if result.Valid() {
				record, err := domain.NewRecord(kind, values)
				if err != nil {
					result.Reasons = append(result.Reasons, ReasonTypeError+":"+err.Error())
				} else {
					result.Record = record
				}
			}

			if !yield(result) {
				return
			}
		}
	}
}

// resolveColumns maps schema field names onto table column indexes. An exact
// header wins over an alias for the same field.
func resolveColumns(kind domain.Kind, table sheet.Table) map[string]int {
	columns := make(map[string]int)
	for idx, header := range table.Headers {
		canonical := kind.CanonicalHeader(header)
		if existing, ok := columns[canonical]; ok && table.Headers[existing] == canonical {
			continue
		}
		columns[canonical] = idx
	}
	return columns
}

// MissingColumns lists required schema columns absent from the header row.
func MissingColumns(kind domain.Kind, table sheet.Table) []string {
	columns := resolveColumns(kind, table)
	var missing []string
	for _, field := range kind.Fields() {
		if _, ok := columns[field.Name]; !ok && field.Required {
			missing = append(missing, field.Name)
		}
	}
	return missing
}
