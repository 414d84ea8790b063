package util

import (
	"fmt"
	"time"
)

// Local is the fixed UTC+9 trading-time reference. No daylight saving
// adjustment is ever applied.
var Local = time.FixedZone("KST", 9*60*60)

// TSFormat is the timestamp layout used in persisted rows.
const TSFormat = "2006-01-02 15:04"

// DateFormat is the compact layout used in partition and daily file names.
const DateFormat = "20060102"

// Now returns the current time in the local trading zone.
func Now() time.Time {
	return time.Now().In(Local)
}

// DayStart truncates a time to local midnight.
func DayStart(t time.Time) time.Time {
	t = t.In(Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Local)
}

// DateKey formats a time as the compact date used in file names.
func DateKey(t time.Time) string {
	return t.In(Local).Format(DateFormat)
}

// FormatTS renders a timestamp in the persisted row layout.
func FormatTS(t time.Time) string {
	return t.In(Local).Format(TSFormat)
}

// ParseTS parses a persisted row timestamp.
func ParseTS(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TSFormat, s, Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// ParseLocalDate parses upstream date strings in either compact or dashed
// form into local midnight.
func ParseLocalDate(s string) (time.Time, error) {
	for _, layout := range []string{DateFormat, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q: unrecognized layout", s)
}
