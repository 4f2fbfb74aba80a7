package normalize

import (
	"strings"
	"time"
)

// Date layouts found across the registry exports, tried in order.
// Day-first layouts win over month-first ones: 03/04/2021 is April 3rd.
var dayFirstFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

var monthFirstFormats = []string{
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
}

// ParseDateFlexible attempts a day-first parse and falls back to month-first.
// Returns nil for empty or unparseable input; best-effort, never panics.
func ParseDateFlexible(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dayFirstFormats {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.Truncate(24 * time.Hour)
			return &t
		}
	}
	for _, layout := range monthFirstFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
