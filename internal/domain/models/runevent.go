package models

import "time"

// Run phases. Morning produces the provisional snapshot; afternoon re-fetches
// and reconciles it into the confirmed record.
const (
	PhaseMorning   = "morning"
	PhaseAfternoon = "afternoon"
)

// RunEvent is one appended line of the per-day run log.
type RunEvent struct {
	Date     time.Time     `json:"date"`
	Phase    string        `json:"phase"`
	Status   string        `json:"status"`
	Coverage float64       `json:"coverage"`
	Resolved int           `json:"resolved"`
	Absent   int           `json:"absent"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}
