package storage

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// MemoryStore implements HashStore in process memory. A single mutex
// serializes every operation, which is what makes IncrementField atomic.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
	closed  bool
}

type memoryEntry struct {
	fields   map[string]string
	deadline time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

var errStoreClosed = errors.New("store is closed")

// lookup returns the live entry for key, evicting it if its deadline passed.
// Caller must hold m.mu.
func (m *MemoryStore) lookup(key string) (*memoryEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.deadline.IsZero() && !m.now().Before(e.deadline) {
		delete(m.entries, key)
		return nil, false
	}
	return e, true
}

// SetFields overwrites the given fields
func (m *MemoryStore) SetFields(ctx context.Context, key string, fields map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStoreClosed
	}

	e, ok := m.lookup(key)
	if !ok {
		e = &memoryEntry{fields: make(map[string]string, len(fields))}
		m.entries[key] = e
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	return nil
}

// GetFields returns a copy of the fields for key
func (m *MemoryStore) GetFields(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errStoreClosed
	}

	e, ok := m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out, nil
}

// IncrementField adds delta to field under the store lock
func (m *MemoryStore) IncrementField(ctx context.Context, key, field string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errStoreClosed
	}

	e, ok := m.lookup(key)
	if !ok {
		return 0, ErrNotFound
	}
	var cur int64
	if raw, ok := e.fields[field]; ok {
		v, err := parseCounter(key, field, raw)
		if err != nil {
			return 0, err
		}
		cur = v
	}
	cur += delta
	e.fields[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

// SetExpiry sets the eviction deadline for key
func (m *MemoryStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStoreClosed
	}

	if e, ok := m.lookup(key); ok {
		e.deadline = m.now().Add(ttl)
	}
	return nil
}

// Delete removes key
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStoreClosed
	}
	delete(m.entries, key)
	return nil
}

// Exists reports whether key is present and not expired
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, errStoreClosed
	}
	_, ok := m.lookup(key)
	return ok, nil
}

// Ping fails only after Close
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errStoreClosed
	}
	return ctx.Err()
}

// Close marks the store closed
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Sweep evicts every entry whose deadline is at or before now. Reads already
// hide such entries, so this only reclaims memory.
func (m *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errStoreClosed
	}

	removed := 0
	for k, e := range m.entries {
		if !e.deadline.IsZero() && !now.Before(e.deadline) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}
