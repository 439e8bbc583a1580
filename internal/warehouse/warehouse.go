// Package warehouse appends batches of rows to analytical tables.
package warehouse

import (
	"context"
	"errors"

	"github.com/rpattn/sheetingest/internal/domain"
)

var (
	// ErrPermanent marks failures that a retry cannot fix, such as a schema
	// mismatch or denied access.
	ErrPermanent = errors.New("permanent warehouse error")
	// ErrLoad is returned by Loader when a batch could not be appended.
	ErrLoad = errors.New("load failed")
	// ErrTableNotFound is returned when a batch targets an unknown table.
	ErrTableNotFound = errors.New("table not found")
)

// Batch is a set of rows written atomically to one table. Row values follow
// the order of Table.Columns.
type Batch struct {
	// Key identifies the batch content. A non-empty key already present in
	// the table's batch_key column makes the write a no-op.
	Key   string
	Table Table
	Rows  [][]any
	// Replace swaps the whole table content for Rows instead of appending.
	// A replace batch is written even when it has no rows.
	Replace bool
}

// Len returns the number of rows in the batch.
func (b Batch) Len() int {
	return len(b.Rows)
}

// Warehouse is the storage backend for ingested rows.
type Warehouse interface {
	// EnsureTables makes sure every table exists with its schema.
	EnsureTables(ctx context.Context, tables []Table) error
	// Append writes all rows of batch or none of them. It reports false when
	// the batch key was already present, or an empty replace met an empty
	// table, and nothing was written.
	Append(ctx context.Context, batch Batch) (bool, error)
	// PrimaryKeys returns the primary keys currently stored in kind's raw
	// table.
	PrimaryKeys(ctx context.Context, kind domain.Kind) ([]int64, error)
	Close() error
}

// Retryable reports whether a failed append may be attempted again.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrPermanent) && !errors.Is(err, ErrTableNotFound) &&
		!errors.Is(err, context.Canceled)
}
