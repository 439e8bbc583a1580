package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rpattn/sheetingest/internal/domain"
	"github.com/rpattn/sheetingest/internal/validation"
	"github.com/rpattn/sheetingest/internal/warehouse"
)

// BatchKey identifies the rows derived from one file: the same kind, file
// content and reference keys always route to the same rows.
func BatchKey(kind domain.Kind, payload []byte, referenceDigest string) string {
	content := sha256.Sum256(payload)

	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(content[:])
	h.Write([]byte{0})
	h.Write([]byte(referenceDigest))
	return hex.EncodeToString(h.Sum(nil))
}

// rowMeta carries the bookkeeping columns shared by every row of a file.
type rowMeta struct {
	RunID      string
	BatchKey   string
	SourceFile string
	IngestedAt time.Time
}

func (m rowMeta) append(row []any, rowNumber int) []any {
	return append(row, m.RunID, m.BatchKey, m.SourceFile, int64(rowNumber), m.IngestedAt.UTC())
}

// unstored drops results whose primary key is already in stored.
func unstored(results []validation.Result, stored []int64) []validation.Result {
	if len(stored) == 0 {
		return results
	}
	seen := make(map[int64]struct{}, len(stored))
	for _, id := range stored {
		seen[id] = struct{}{}
	}
	out := make([]validation.Result, 0, len(results))
	for _, result := range results {
		if _, ok := seen[result.Record.ID()]; !ok {
			out = append(out, result)
		}
	}
	return out
}

// rawBatch renders valid results as typed rows of kind's raw table.
func rawBatch(kind domain.Kind, meta rowMeta, results []validation.Result) warehouse.Batch {
	table := warehouse.RawTable(kind)
	rows := make([][]any, 0, len(results))
	for _, result := range results {
		values := result.Record.Values()
		row := make([]any, 0, len(table.Columns))
		row = append(row, values...)
		rows = append(rows, meta.append(row, result.RowNumber))
	}
	return warehouse.Batch{Key: meta.BatchKey, Table: table, Rows: rows}
}

// invalidBatch renders rejected results with their source text and reasons.
func invalidBatch(kind domain.Kind, meta rowMeta, results []validation.Result) warehouse.Batch {
	table := warehouse.InvalidTable(kind)
	fields := kind.Fields()
	rows := make([][]any, 0, len(results))
	for _, result := range results {
		row := make([]any, 0, len(table.Columns))
		for _, field := range fields {
			if raw := result.Raw[field.Name]; raw != "" {
				row = append(row, raw)
			} else {
				row = append(row, nil)
			}
		}
		row = append(row, result.Reason())
		rows = append(rows, meta.append(row, result.RowNumber))
	}
	return warehouse.Batch{Key: meta.BatchKey, Table: table, Rows: rows}
}

// validationErrors turns rejected results into ingestion_errors entries.
func validationErrors(meta rowMeta, run domain.Run, kind domain.Kind, results []validation.Result) []domain.ErrorEntry {
	entries := make([]domain.ErrorEntry, 0, len(results))
	for _, result := range results {
		rowNumber := result.RowNumber
		entries = append(entries, domain.ErrorEntry{
			RunID:     run.ID,
			Kind:      kind,
			FileName:  meta.SourceFile,
			RowNumber: &rowNumber,
			RecordID:  result.RecordID(),
			Type:      domain.ErrorTypeValidation,
			Message:   result.Reason(),
			BatchKey:  meta.BatchKey,
			CreatedAt: meta.IngestedAt,
		})
	}
	return entries
}
