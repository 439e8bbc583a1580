// Package storage retrieves spreadsheet objects from a bucket.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrFileNotFound is returned when the bucket or object does not exist.
	// It is permanent and must not be retried.
	ErrFileNotFound = errors.New("file not found")
	// ErrFetch wraps transport failures that may succeed on retry.
	ErrFetch = errors.New("fetch failed")
)

// Fetcher downloads whole objects into memory.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, name string) ([]byte, error)
	Close() error
}

// Retryable reports whether a fetch error may be retried.
func Retryable(err error) bool {
	return err != nil && !errors.Is(err, ErrFileNotFound)
}
