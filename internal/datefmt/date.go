// Package datefmt converts between the display date format (dd/MM/yyyy) and
// the canonical API format (yyyy-MM-dd).
package datefmt

import (
	"regexp"
	"strings"
	"time"
)

const (
	APILayout     = "2006-01-02"
	DisplayLayout = "02/01/2006"
)

var (
	isoDateRegex     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	isoDateTimeRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T`)
	displayDateRegex = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)
)

// fallbackLayouts are tried, in order, when none of the fixed shapes match.
var fallbackLayouts = []string{
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ToAPIDate normalizes s to yyyy-MM-dd. It returns "" when s is blank or
// cannot be understood.
func ToAPIDate(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}

	if isoDateRegex.MatchString(trimmed) {
		return trimmed
	}

	if isoDateTimeRegex.MatchString(trimmed) {
		return trimmed[:10]
	}

	if m := displayDateRegex.FindStringSubmatch(trimmed); m != nil {
		day, month, year := m[1], m[2], m[3]
		return year + "-" + month + "-" + day
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return TimeToAPIDate(t)
		}
	}

	return ""
}

// TimeToAPIDate formats t as a UTC calendar date. The zero time yields "".
func TimeToAPIDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(APILayout)
}

// FormatForDisplay renders any accepted input as dd/MM/yyyy, or "" when the
// input cannot be normalized.
func FormatForDisplay(s string) string {
	apiDate := ToAPIDate(s)
	if apiDate == "" {
		return ""
	}

	parts := strings.Split(apiDate, "-")
	return parts[2] + "/" + parts[1] + "/" + parts[0]
}

// FormatTimeForDisplay is FormatForDisplay for time values.
func FormatTimeForDisplay(t time.Time) string {
	return FormatForDisplay(TimeToAPIDate(t))
}
