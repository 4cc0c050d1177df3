package models

import (
	"fmt"
	"strings"
	"time"
)

// FeedTime handles MBTA V3 API timestamps, which always carry a UTC offset
// (e.g. 2024-05-01T07:42:13-04:00). A JSON null or empty string leaves the
// value unset so callers can tell a missing timestamp from a zero one.
type FeedTime struct {
	time.Time
	Valid bool
}

// UnmarshalJSON parses ISO-8601 timestamps with an explicit offset
func (ft *FeedTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), "\"")
	if s == "null" || s == "" {
		ft.Time, ft.Valid = time.Time{}, false
		return nil
	}

	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
	}

	var parseErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			ft.Time, ft.Valid = t, true
			return nil
		}
		parseErr = err
	}

	return fmt.Errorf("unable to parse time %q: %w", s, parseErr)
}

// MarshalJSON converts the time back to JSON, keeping the original offset
func (ft FeedTime) MarshalJSON() ([]byte, error) {
	if !ft.Valid {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("\"%s\"", ft.Time.Format(time.RFC3339))), nil
}
