package domain

import (
	"time"

	"github.com/google/uuid"
)

// ErrorType classifies an ingestion error entry.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeFetch      ErrorType = "fetch"
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeLoad       ErrorType = "load"
)

// ErrorEntry captures one invalid row or one file level failure.
type ErrorEntry struct {
	RunID     uuid.UUID `json:"run_id"`
	Kind      Kind      `json:"entity"`
	FileName  string    `json:"file_name"`
	RowNumber *int      `json:"row_number,omitempty"`
	RecordID  string    `json:"record_id,omitempty"`
	Type      ErrorType `json:"error_type"`
	Message   string    `json:"error_message"`
	BatchKey  string    `json:"batch_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
