package normalize

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Date formats accepted by the --since flag.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006",
	"02-01-2006",
}

// ParseDate attempts to parse a date string in multiple common formats.
// Returns nil if the input is empty or unparseable.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// DaysSince converts a --since date into a whole-day lookback ending at now,
// rounding partial days up.
func DaysSince(s string, now time.Time) (int, error) {
	t := ParseDate(s)
	if t == nil {
		return 0, fmt.Errorf("unrecognized date %q", s)
	}
	if !t.Before(now) {
		return 0, fmt.Errorf("date %s is not in the past", t.Format(time.RFC3339))
	}
	return int(math.Ceil(now.Sub(*t).Hours() / 24)), nil
}
