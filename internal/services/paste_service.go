package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/johnwmail/vpaste/internal/metrics"
	"github.com/johnwmail/vpaste/internal/slug"
	"github.com/johnwmail/vpaste/models"
	"github.com/johnwmail/vpaste/storage"
)

// ErrStoreUnavailable wraps every failure of the backing store, including
// records it returned in an undecodable shape. It means "unknown", never
// "dead".
var ErrStoreUnavailable = errors.New("paste store unavailable")

// maxIDAttempts is how many fresh identifiers Create tries before giving up
// on collisions.
const maxIDAttempts = 3

// ValidationError reports a rejected create request
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// DeathReason says which predicate made a paste unavailable
type DeathReason string

const (
	ReasonMissing        DeathReason = "missing"
	ReasonViewsExhausted DeathReason = "views_exhausted"
	ReasonExpired        DeathReason = "expired"
)

// Result is the outcome of ConsumeView or Get. When Live is false only
// Reason is set.
type Result struct {
	Live bool

	Paste *models.Paste
	// RemainingViews is models.Unlimited when the paste has no view ceiling.
	RemainingViews int64
	// ExpiresAt is nil when the paste never expires.
	ExpiresAt *time.Time

	Reason DeathReason
}

func dead(reason DeathReason) Result {
	return Result{Reason: reason}
}

// CreatePasteRequest represents a request to create a paste. Nil limits mean
// unlimited.
type CreatePasteRequest struct {
	Content    string
	TTLSeconds *int64
	MaxViews   *int64
}

// CreatePasteResponse represents the response from creating a paste
type CreatePasteResponse struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt *time.Time
}

// PasteService handles paste business logic. It keeps no mutable state of
// its own; every shared counter lives in the store.
type PasteService struct {
	store     storage.HashStore
	ids       *slug.Generator
	keyPrefix string
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option customizes a PasteService
type Option func(*PasteService)

// WithKeyPrefix namespaces paste keys in the store
func WithKeyPrefix(prefix string) Option {
	return func(s *PasteService) { s.keyPrefix = prefix }
}

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *PasteService) { s.logger = logger }
}

// WithMetrics enables outcome counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *PasteService) { s.metrics = m }
}

// NewPasteService creates a new paste service
func NewPasteService(store storage.HashStore, ids *slug.Generator, opts ...Option) *PasteService {
	s := &PasteService{
		store:  store,
		ids:    ids,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PasteService) key(id string) string {
	return s.keyPrefix + id
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// ValidateCreate checks a create request without touching the store
func ValidateCreate(req CreatePasteRequest) error {
	if req.Content == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	if req.TTLSeconds != nil && *req.TTLSeconds < 1 {
		return &ValidationError{Field: "ttl_seconds", Message: "must be an integer >= 1"}
	}
	if req.TTLSeconds != nil && *req.TTLSeconds > models.MaxTTLSeconds {
		return &ValidationError{Field: "ttl_seconds", Message: fmt.Sprintf("must be an integer <= %d", models.MaxTTLSeconds)}
	}
	if req.MaxViews != nil && *req.MaxViews < 1 {
		return &ValidationError{Field: "max_views", Message: "must be an integer >= 1"}
	}
	return nil
}

// Create stores a new paste and returns its identifier
func (s *PasteService) Create(ctx context.Context, req CreatePasteRequest, now time.Time) (*CreatePasteResponse, error) {
	if err := ValidateCreate(req); err != nil {
		s.metrics.Outcome("create", "invalid")
		return nil, err
	}

	id, err := s.newID(ctx)
	if err != nil {
		s.metrics.Outcome("create", "error")
		return nil, err
	}

	paste := models.NewPaste(id, req.Content, req.TTLSeconds, req.MaxViews, now)
	key := s.key(id)
	if err := s.store.SetFields(ctx, key, paste.ToFields()); err != nil {
		s.metrics.Outcome("create", "error")
		return nil, storeError("write paste", err)
	}

	// Backstop only: ConsumeView enforces expiry on its own.
	if paste.HasExpiry() && paste.TTLSeconds > 0 {
		ttl := time.Duration(paste.TTLSeconds) * time.Second
		if err := s.store.SetExpiry(ctx, key, ttl); err != nil {
			s.logger.Warn("Failed to set backstop expiry", "id", id, "ttl", ttl, "error", err)
		}
	}

	s.metrics.Outcome("create", "created")
	s.logger.Debug("Paste created", "id", id, "max_views", paste.MaxViews, "ttl_seconds", paste.TTLSeconds)

	return &CreatePasteResponse{
		ID:        id,
		CreatedAt: time.UnixMilli(paste.CreatedAt).UTC(),
		ExpiresAt: paste.ExpiresTime(),
	}, nil
}

// newID draws identifiers until one is unused in the store.
func (s *PasteService) newID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := s.ids.Generate()
		if err != nil {
			return "", fmt.Errorf("generate id: %w", err)
		}
		exists, err := s.store.Exists(ctx, s.key(id))
		if err != nil {
			return "", storeError("check id", err)
		}
		if !exists {
			return id, nil
		}
		s.logger.Warn("Generated id already in use", "id", id, "attempt", attempt+1)
	}
	return "", fmt.Errorf("failed to generate unique id after %d attempts", maxIDAttempts)
}

// load reads and decodes a paste. A missing key returns (nil, nil).
func (s *PasteService) load(ctx context.Context, id string) (*models.Paste, error) {
	fields, err := s.store.GetFields(ctx, s.key(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("read paste", err)
	}
	paste, err := models.FromFields(id, fields)
	if err != nil {
		return nil, storeError("decode paste", err)
	}
	return paste, nil
}

// ConsumeView returns the paste content and counts one view against it.
// The view counter is incremented before the ceiling is enforced, so at
// most MaxViews callers ever receive content, however many race.
func (s *PasteService) ConsumeView(ctx context.Context, id string, now time.Time) (Result, error) {
	paste, err := s.load(ctx, id)
	if err != nil {
		s.metrics.Outcome("consume", "error")
		return Result{}, err
	}
	if paste == nil {
		return s.died("consume", id, ReasonMissing, false), nil
	}

	if paste.ViewsExhausted() {
		return s.kill(ctx, id, ReasonViewsExhausted), nil
	}
	if paste.ExpiredAt(now) {
		return s.kill(ctx, id, ReasonExpired), nil
	}

	views, err := s.store.IncrementField(ctx, s.key(id), models.FieldViews, 1)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted between the read and the increment.
		return s.died("consume", id, ReasonMissing, false), nil
	}
	if err != nil {
		s.metrics.Outcome("consume", "error")
		return Result{}, storeError("increment views", err)
	}

	if paste.HasViewLimit() && views > paste.MaxViews {
		return s.kill(ctx, id, ReasonViewsExhausted), nil
	}

	paste.Views = views
	s.metrics.Outcome("consume", "live")
	return Result{
		Live:           true,
		Paste:          paste,
		RemainingViews: paste.RemainingViews(views),
		ExpiresAt:      paste.ExpiresTime(),
	}, nil
}

// Get is a non-consuming preview. It applies the same death predicates as
// ConsumeView but never increments or deletes.
func (s *PasteService) Get(ctx context.Context, id string, now time.Time) (Result, error) {
	paste, err := s.load(ctx, id)
	if err != nil {
		s.metrics.Outcome("get", "error")
		return Result{}, err
	}
	switch {
	case paste == nil:
		return s.died("get", id, ReasonMissing, false), nil
	case paste.ViewsExhausted():
		return s.died("get", id, ReasonViewsExhausted, false), nil
	case paste.ExpiredAt(now):
		return s.died("get", id, ReasonExpired, false), nil
	}

	s.metrics.Outcome("get", "live")
	return Result{
		Live:           true,
		Paste:          paste,
		RemainingViews: paste.RemainingViews(paste.Views),
		ExpiresAt:      paste.ExpiresTime(),
	}, nil
}

// kill deletes a dead paste. A failed delete is logged; the paste is dead
// either way and the next reader will retry the delete.
func (s *PasteService) kill(ctx context.Context, id string, reason DeathReason) Result {
	if err := s.store.Delete(ctx, s.key(id)); err != nil {
		s.logger.Warn("Failed to delete dead paste", "id", id, "reason", reason, "error", err)
	}
	return s.died("consume", id, reason, true)
}

func (s *PasteService) died(op, id string, reason DeathReason, deleted bool) Result {
	s.metrics.Outcome(op, string(reason))
	s.logger.Debug("Paste unavailable", "op", op, "id", id, "reason", reason, "deleted", deleted)
	return dead(reason)
}

// Ping checks the backing store
func (s *PasteService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return storeError("ping", err)
	}
	return nil
}
