package profiling

import (
	"strings"
	"time"
)

// dateLayouts are tried in order: day-first numeric forms, then month-first,
// then ISO and textual month forms.
var dateLayouts = []string{
	// day-first
	"02/01/2006", "2/1/2006", "02/01/2006 15:04", "02/01/2006 15:04:05", "2/1/2006 15:04",
	"02-01-2006", "2-1-2006", "02.01.2006", "2.1.2006",
	"02/01/06", "2/1/06", "02-01-06", "2-1-06",
	// month-first
	"01/02/2006", "1/2/2006", "01/02/2006 15:04", "01/02/2006 15:04:05", "1/2/2006 15:04",
	"01-02-2006", "1-2-2006", "01/02/06", "1/2/06", "01-02-06", "1-2-06",
	// ISO
	"2006-01-02", "2006-01-02 15:04", "2006-01-02 15:04:05", "2006-01-02T15:04:05",
	time.RFC3339, "2006/01/02", "2006/1/2", "20060102",
	// textual months
	"2 Jan 2006", "02 Jan 2006", "2 January 2006", "Jan 2, 2006", "January 2, 2006",
	"Jan 2 2006", "2-Jan-2006", "02-Jan-06", "2-Jan-06", "Mon, 02 Jan 2006",
}

// ParseDate parses s with day-first precedence. Bare 8-digit strings are only
// accepted when they look like a calendar date in 1900..2199.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == "20060102" && (t.Year() < 1900 || t.Year() >= 2200) {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// ISODate formats t as YYYY-MM-DD.
func ISODate(t time.Time) string { return t.Format("2006-01-02") }
