package app

import (
	"fmt"
	"time"
)

// TimeLayout is how run and entry times are printed.
const TimeLayout = "2006-01-02 15:04:05"

const dateLayout = "2006-01-02"

// ParseTimeBound parses a list bound given as "YYYY-MM-DD" or
// "YYYY-MM-DD HH:MM:SS" in local time. An empty string is an open bound.
func ParseTimeBound(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{TimeLayout, dateLayout} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q: want YYYY-MM-DD or YYYY-MM-DD HH:MM:SS", s)
}

// FormatTime prints t in local time, or "-" when t is nil.
func FormatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(TimeLayout)
}
