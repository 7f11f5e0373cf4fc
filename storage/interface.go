package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrNotFound is returned when a key does not exist (or has expired).
var ErrNotFound = errors.New("key not found")

// HashStore is the narrow key-value surface the paste service depends on.
// Each key holds a flat map of string fields. Implementations must make
// IncrementField atomic with respect to concurrent callers; nothing else in
// the interface needs to be.
type HashStore interface {
	// SetFields overwrites the listed fields, creating the key if absent
	SetFields(ctx context.Context, key string, fields map[string]string) error

	// GetFields returns all fields of key, or ErrNotFound
	GetFields(ctx context.Context, key string) (map[string]string, error)

	// IncrementField atomically adds delta to a numeric field and returns the
	// new value. It returns ErrNotFound instead of creating a missing key.
	IncrementField(ctx context.Context, key, field string, delta int64) (int64, error)

	// SetExpiry schedules key for deletion after ttl, replacing any previous
	// expiry. Setting an expiry on a missing key is not an error.
	SetExpiry(ctx context.Context, key string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present
	Exists(ctx context.Context, key string) (bool, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases the backend connection
	Close() error
}

// parseCounter decodes a stored integer field.
func parseCounter(key, field, raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s of %s is not an integer: %q", field, key, raw)
	}
	return v, nil
}
