package clock

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// TestNowHeader carries a millisecond timestamp that replaces the wall clock
// for a single request. It is honored only in test mode.
const TestNowHeader = "X-Test-Now-Ms"

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// System is the wall clock
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Fixed always reports the same instant. Used by tests.
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return time.Time(f) }

// FromRequest resolves "now" for a request. When testMode is false the header
// is ignored entirely and base decides. A malformed or negative header also
// falls back to base.
func FromRequest(r *http.Request, testMode bool, base Clock) time.Time {
	if testMode && r != nil {
		if raw := strings.TrimSpace(r.Header.Get(TestNowHeader)); raw != "" {
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms >= 0 {
				return time.UnixMilli(ms)
			}
		}
	}
	return base.Now()
}
