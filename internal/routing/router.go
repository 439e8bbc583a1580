// Package routing splits validation results into the rows bound for raw
// tables and the rows bound for quarantine.
package routing

import (
	"iter"

	"github.com/rpattn/sheetingest/internal/validation"
)

// Routed is the partition of one file's validation results.
type Routed struct {
	Valid   []validation.Result
	Invalid []validation.Result
}

// Read returns the number of routed rows.
func (r Routed) Read() int {
	return len(r.Valid) + len(r.Invalid)
}

// Route drains results and partitions them, keeping input order within each
// side.
func Route(results iter.Seq[validation.Result]) Routed {
	routed := Routed{
		Valid:   []validation.Result{},
		Invalid: []validation.Result{},
	}
	for result := range results {
		if result.Valid() {
			routed.Valid = append(routed.Valid, result)
		} else {
			routed.Invalid = append(routed.Invalid, result)
		}
	}
	return routed
}

// IDs returns the primary keys of the valid records.
func (r Routed) IDs() []int64 {
	ids := make([]int64, 0, len(r.Valid))
	for _, result := range r.Valid {
		ids = append(ids, result.Record.ID())
	}
	return ids
}

// MaxID returns the largest valid primary key, or nil when nothing is valid.
func (r Routed) MaxID() *int64 {
	var maxID *int64
	for _, result := range r.Valid {
		id := result.Record.ID()
		if maxID == nil || id > *maxID {
			maxID = &id
		}
	}
	return maxID
}
