// Package secrets reads named configuration values from a secret store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a secret has no value.
var ErrNotFound = errors.New("secret not found")

// Store returns the current value of a named secret.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
	Close() error
}

// StaticStore serves secrets from memory. Local runs fill it from the
// process configuration.
type StaticStore struct {
	values map[string]string
}

// NewStaticStore copies values into a new store. Keys are case-insensitive.
func NewStaticStore(values map[string]string) *StaticStore {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[strings.ToLower(k)] = v
	}
	return &StaticStore{values: copied}
}

// Get returns the value for name or ErrNotFound.
func (s *StaticStore) Get(ctx context.Context, name string) (string, error) {
	value, ok := s.values[strings.ToLower(name)]
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return value, nil
}

// Close is a no-op.
func (s *StaticStore) Close() error {
	return nil
}
