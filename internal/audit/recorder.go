// Package audit appends run metadata and error entries to the warehouse.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/sheetingest/internal/domain"
	"github.com/rpattn/sheetingest/internal/warehouse"
)

// Metadata scopes.
const (
	ScopeFile = "file"
	ScopeRun  = "run"
)

// Recorder writes ingestion_metadata and ingestion_errors rows. Failures are
// logged and returned; callers decide whether they are fatal.
type Recorder struct {
	loader *warehouse.Loader
	log    *zap.Logger
}

// NewRecorder writes through loader.
func NewRecorder(loader *warehouse.Loader, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{loader: loader, log: log.Named("audit")}
}

// RecordFile appends the metadata row of one processed file.
func (r *Recorder) RecordFile(ctx context.Context, runID uuid.UUID, outcome domain.FileOutcome) error {
	tableName := ""
	if outcome.Kind != "" {
		tableName = outcome.Kind.RawTable()
	}
	row := []any{
		runID.String(),
		ScopeFile,
		nullable(string(outcome.Kind)),
		outcome.FileName,
		nullable(tableName),
		string(outcome.Status),
		int64(outcome.Counts.Read),
		int64(outcome.Counts.Valid),
		int64(outcome.Counts.Invalid),
		nullableID(outcome.MaxID),
		nullable(outcome.BatchKey),
		nullable(outcome.Error),
		outcome.StartedAt.UTC(),
		outcome.FinishedAt.UTC(),
	}

	err := r.append(ctx, warehouse.Batch{Table: warehouse.MetadataTable(), Rows: [][]any{row}})
	if err != nil {
		r.log.Error("failed to record file metadata",
			zap.String("run_id", runID.String()),
			zap.String("file", outcome.FileName),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// RecordRun appends the run level metadata row.
func (r *Recorder) RecordRun(ctx context.Context, run *domain.Run) error {
	row := []any{
		run.ID.String(),
		ScopeRun,
		nil,
		nil,
		nil,
		string(run.Status),
		int64(run.Totals.Read),
		int64(run.Totals.Valid),
		int64(run.Totals.Invalid),
		nil,
		nil,
		nullable(run.Error),
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	}

	err := r.append(ctx, warehouse.Batch{Table: warehouse.MetadataTable(), Rows: [][]any{row}})
	if err != nil {
		r.log.Error("failed to record run summary", zap.String("run_id", run.ID.String()), zap.Error(err))
		return err
	}
	return nil
}

// RecordErrors appends one ingestion_errors row per entry. A non-empty
// batchKey makes the append idempotent across reruns of the same input.
func (r *Recorder) RecordErrors(ctx context.Context, batchKey string, entries []domain.ErrorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(entries))
	for _, entry := range entries {
		var rowNumber any
		if entry.RowNumber != nil {
			rowNumber = int64(*entry.RowNumber)
		}
		key := entry.BatchKey
		if key == "" {
			key = batchKey
		}
		rows = append(rows, []any{
			entry.RunID.String(),
			nullable(string(entry.Kind)),
			nullable(entry.FileName),
			rowNumber,
			nullable(entry.RecordID),
			string(entry.Type),
			entry.Message,
			nullable(key),
			entry.CreatedAt.UTC(),
		})
	}

	err := r.append(ctx, warehouse.Batch{Key: batchKey, Table: warehouse.ErrorsTable(), Rows: rows})
	if err != nil {
		r.log.Error("failed to record errors", zap.Int("entries", len(entries)), zap.Error(err))
		return err
	}
	return nil
}

func (r *Recorder) append(ctx context.Context, batch warehouse.Batch) error {
	if _, err := r.loader.Load(ctx, batch); err != nil {
		return fmt.Errorf("record %s: %w", batch.Table.Name, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

// FileErrorEntry builds the entry for a file that failed before or during
// loading.
func FileErrorEntry(runID uuid.UUID, outcome domain.FileOutcome, errType domain.ErrorType, at time.Time) domain.ErrorEntry {
	return domain.ErrorEntry{
		RunID:     runID,
		Kind:      outcome.Kind,
		FileName:  outcome.FileName,
		Type:      errType,
		Message:   outcome.Error,
		BatchKey:  outcome.BatchKey,
		CreatedAt: at,
	}
}
