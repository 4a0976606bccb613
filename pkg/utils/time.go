package utils

import "time"

// FormatRFC3339 formats t in UTC using RFC3339Nano, the layout stored by the
// persistence adapters.
func FormatRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseRFC3339 parses a stored timestamp, returning the zero time for empty input
func ParseRFC3339(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
