package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Unlimited is the stored sentinel for "no limit" on maxViews, ttlSeconds
// and expiresAt. It is distinct from 0 and from a missing field.
const Unlimited int64 = -1

// MaxTTLSeconds caps ttlSeconds at 100 years so that both the millisecond
// deadline and the time.Duration backstop stay far from int64 overflow.
const MaxTTLSeconds int64 = 100 * 365 * 24 * 60 * 60

// Hash field names as stored in the backing store.
const (
	FieldContent    = "content"
	FieldViews      = "views"
	FieldMaxViews   = "maxViews"
	FieldTTLSeconds = "ttlSeconds"
	FieldCreatedAt  = "createdAt"
	FieldExpiresAt  = "expiresAt"
)

// ErrMalformedRecord is returned when a stored hash cannot be decoded into a
// Paste.
var ErrMalformedRecord = errors.New("malformed paste record")

// Paste represents a paste and its lifecycle metadata
type Paste struct {
	ID         string `json:"id"`
	Content    string `json:"-"`
	Views      int64  `json:"views"`
	MaxViews   int64  `json:"max_views"`   // Unlimited when no ceiling
	TTLSeconds int64  `json:"ttl_seconds"` // Unlimited when no TTL
	CreatedAt  int64  `json:"created_at"`  // unix ms
	ExpiresAt  int64  `json:"expires_at"`  // unix ms, Unlimited when no TTL
}

// NewPaste builds a fresh record created at now. A nil ttlSeconds or
// maxViews means unlimited.
func NewPaste(id, content string, ttlSeconds, maxViews *int64, now time.Time) *Paste {
	p := &Paste{
		ID:         id,
		Content:    content,
		Views:      0,
		MaxViews:   Unlimited,
		TTLSeconds: Unlimited,
		CreatedAt:  now.UnixMilli(),
		ExpiresAt:  Unlimited,
	}
	if maxViews != nil {
		p.MaxViews = *maxViews
	}
	if ttlSeconds != nil {
		p.TTLSeconds = *ttlSeconds
		p.ExpiresAt = p.CreatedAt + *ttlSeconds*1000
	}
	return p
}

// HasViewLimit reports whether the paste has a finite view ceiling.
func (p *Paste) HasViewLimit() bool {
	return p.MaxViews != Unlimited
}

// HasExpiry reports whether the paste has a finite expiry.
func (p *Paste) HasExpiry() bool {
	return p.ExpiresAt != Unlimited
}

// ViewsExhausted reports whether the view ceiling has been reached.
func (p *Paste) ViewsExhausted() bool {
	return p.HasViewLimit() && p.Views >= p.MaxViews
}

// ExpiredAt reports whether the paste is dead by time at now. The expiry
// instant itself is already dead.
func (p *Paste) ExpiredAt(now time.Time) bool {
	return p.HasExpiry() && now.UnixMilli() >= p.ExpiresAt
}

// RemainingViews returns how many views are left after views consumptions,
// or Unlimited.
func (p *Paste) RemainingViews(views int64) int64 {
	if !p.HasViewLimit() {
		return Unlimited
	}
	if rem := p.MaxViews - views; rem > 0 {
		return rem
	}
	return 0
}

// ExpiresTime returns the expiry as a time, or nil when unlimited.
func (p *Paste) ExpiresTime() *time.Time {
	if !p.HasExpiry() {
		return nil
	}
	t := time.UnixMilli(p.ExpiresAt).UTC()
	return &t
}

// ToFields encodes the paste into the hash representation written to the
// store. Every value is a base-10 integer or the raw content.
func (p *Paste) ToFields() map[string]string {
	return map[string]string{
		FieldContent:    p.Content,
		FieldViews:      strconv.FormatInt(p.Views, 10),
		FieldMaxViews:   strconv.FormatInt(p.MaxViews, 10),
		FieldTTLSeconds: strconv.FormatInt(p.TTLSeconds, 10),
		FieldCreatedAt:  strconv.FormatInt(p.CreatedAt, 10),
		FieldExpiresAt:  strconv.FormatInt(p.ExpiresAt, 10),
	}
}

// FromFields decodes a stored hash. Missing or non-numeric fields yield
// ErrMalformedRecord; a missing ttlSeconds is tolerated as Unlimited.
func FromFields(id string, fields map[string]string) (*Paste, error) {
	content, ok := fields[FieldContent]
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing %s", ErrMalformedRecord, id, FieldContent)
	}

	p := &Paste{ID: id, Content: content, TTLSeconds: Unlimited}

	required := []struct {
		name string
		dst  *int64
	}{
		{FieldViews, &p.Views},
		{FieldMaxViews, &p.MaxViews},
		{FieldCreatedAt, &p.CreatedAt},
		{FieldExpiresAt, &p.ExpiresAt},
	}
	for _, f := range required {
		raw, ok := fields[f.name]
		if !ok {
			return nil, fmt.Errorf("%w: %s: missing %s", ErrMalformedRecord, id, f.name)
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s=%q", ErrMalformedRecord, id, f.name, raw)
		}
		*f.dst = v
	}

	if raw, ok := fields[FieldTTLSeconds]; ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s=%q", ErrMalformedRecord, id, FieldTTLSeconds, raw)
		}
		p.TTLSeconds = v
	}

	if p.Views < 0 {
		return nil, fmt.Errorf("%w: %s: negative views %d", ErrMalformedRecord, id, p.Views)
	}

	return p, nil
}
