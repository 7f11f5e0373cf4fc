package utils

import (
	"fmt"
	"strings"
	"time"
)

// isoMillis is the ISO-8601 layout used in API responses: UTC with
// millisecond precision, e.g. 2024-01-02T03:04:05.000Z.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// FormatISO formats t as an ISO-8601 UTC timestamp with milliseconds
func FormatISO(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// FormatISOPtr formats t, or returns nil when t is nil
func FormatISOPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatISO(*t)
	return &s
}

// HumanizeDuration renders d as "1d 2h 3m 4s", dropping leading zero units.
// Durations under a second render as "0s".
func HumanizeDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	total := int64(d / time.Second)
	units := []struct {
		suffix string
		size   int64
	}{
		{"d", 86400},
		{"h", 3600},
		{"m", 60},
		{"s", 1},
	}

	var parts []string
	for _, u := range units {
		n := total / u.size
		total %= u.size
		if n == 0 && len(parts) == 0 && u.suffix != "s" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
	}
	return strings.Join(parts, " ")
}
