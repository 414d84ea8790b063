package models

import "time"

// HistoryRecord is one wide-format row of the rolling history: the end-of-day
// value of every tracked indicator for a single calendar date, plus combined
// provenance and quality. Rows are immutable except for same-date overwrite.
type HistoryRecord struct {
	Date    time.Time
	Values  map[string]float64 // column name -> value; missing columns stay blank
	SrcTag  string
	Quality string
}

// Retention policy constants.
const (
	HistoryRetainRows = 90  // rolling history rows kept
	RawRetainDays     = 180 // raw partition age before deletion eligibility
	IndexRetainFiles  = 180 // daily file index entries kept
)
