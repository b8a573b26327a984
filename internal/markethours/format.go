package markethours

import (
	"fmt"
	"time"
)

// Interchange layouts. Persisted and serialized instants are always UTC.
const (
	UTCTimestampLayout = "2006-01-02T15:04:05Z"
	DateLayout         = "2006-01-02"
)

// FormatUTCTimestamp renders t as a second-precision UTC timestamp.
func FormatUTCTimestamp(t time.Time) string {
	return t.UTC().Format(UTCTimestampLayout)
}

// FormatUTCDate renders the UTC calendar date of t.
func FormatUTCDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// FormatLocalDate renders the exchange-local calendar date of t.
func (c *Calendar) FormatLocalDate(t time.Time) string {
	return c.DateOf(t).String()
}

// ParseInstant parses an RFC 3339 timestamp. The offset is mandatory, so
// a bare civil time such as "2024-01-15T10:00:00" is rejected rather than
// guessed.
func ParseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse instant %q: %w", s, err)
	}
	return t, nil
}

// IsPastDelayThreshold reports whether t is more than delay before now.
func IsPastDelayThreshold(t, now time.Time, delay time.Duration) bool {
	return t.Before(now.Add(-delay))
}
