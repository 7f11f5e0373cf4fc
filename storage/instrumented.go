package storage

import (
	"context"
	"errors"
	"time"

	"github.com/johnwmail/vpaste/internal/metrics"
)

// Instrumented wraps a HashStore and records the latency and result of every
// call. ErrNotFound counts as a successful call.
type Instrumented struct {
	next    HashStore
	metrics *metrics.Metrics
}

// NewInstrumented wraps next. A nil m disables recording.
func NewInstrumented(next HashStore, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

// Unwrap returns the wrapped store
func (s *Instrumented) Unwrap() HashStore {
	return s.next
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.metrics.ObserveStore(op, start, err)
}

func (s *Instrumented) SetFields(ctx context.Context, key string, fields map[string]string) error {
	start := time.Now()
	err := s.next.SetFields(ctx, key, fields)
	s.observe("set_fields", start, err)
	return err
}

func (s *Instrumented) GetFields(ctx context.Context, key string) (map[string]string, error) {
	start := time.Now()
	fields, err := s.next.GetFields(ctx, key)
	s.observe("get_fields", start, err)
	return fields, err
}

func (s *Instrumented) IncrementField(ctx context.Context, key, field string, delta int64) (int64, error) {
	start := time.Now()
	v, err := s.next.IncrementField(ctx, key, field, delta)
	s.observe("increment_field", start, err)
	return v, err
}

func (s *Instrumented) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	start := time.Now()
	err := s.next.SetExpiry(ctx, key, ttl)
	s.observe("set_expiry", start, err)
	return err
}

func (s *Instrumented) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.next.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}

func (s *Instrumented) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.next.Exists(ctx, key)
	s.observe("exists", start, err)
	return ok, err
}

func (s *Instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *Instrumented) Close() error {
	return s.next.Close()
}
