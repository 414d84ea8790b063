package models

import (
	"fmt"
	"sort"
	"time"
)

// Quality tags carried by every observation. A value only becomes "final"
// through afternoon reconciliation; acquisition assigns primary or secondary.
const (
	QualityPrimary   = "primary"
	QualitySecondary = "secondary"
	QualityFinal     = "final"
)

// NoteRevised marks an afternoon value that moved beyond the category
// threshold relative to the morning value.
const NoteRevised = "revised"

// NoteInsufficientHistory marks a derived value that could not be computed
// because the raw series was too short.
const NoteInsufficientHistory = "insufficient_history"

// Point is one raw sample of an upstream series.
type Point struct {
	Time  time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Series is an ordered (ascending by time) run of points for one asset/key.
type Series []Point

// Values returns the series values in order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}

// Last returns the most recent point, or false when the series is empty.
func (s Series) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// ObsKey uniquely identifies an observation within one snapshot.
type ObsKey struct {
	Asset  string
	Key    string
	Window string
}

func (k ObsKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Asset, k.Key, k.Window)
}

// Observation is one resolved data point. Value == nil means the point could
// not be resolved; Notes then records the failure chain. An absent value is
// never promoted to final.
type Observation struct {
	Timestamp time.Time `json:"ts"`
	Asset     string    `json:"asset"`
	Key       string    `json:"key"`
	Window    string    `json:"window"`
	Value     *float64  `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	ChangeAbs *float64  `json:"change_abs,omitempty"`
	ChangePct *float64  `json:"change_pct,omitempty"`
	Source    string    `json:"source"`
	Quality   string    `json:"quality"`
	Notes     string    `json:"notes,omitempty"`
}

// ID returns the snapshot key of the observation.
func (o Observation) ID() ObsKey {
	return ObsKey{Asset: o.Asset, Key: o.Key, Window: o.Window}
}

// Resolved reports whether the observation carries a value.
func (o Observation) Resolved() bool {
	return o.Value != nil
}

// Float wraps a float64 into an optional value.
func Float(v float64) *float64 { return &v }

// Snapshot is the ordered set of observations produced by one run, keyed
// uniquely by (asset, key, window).
type Snapshot struct {
	rows map[ObsKey]Observation
}

// NewSnapshot creates an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{rows: make(map[ObsKey]Observation)}
}

// Put inserts or replaces an observation. When a row already exists for the
// key, the newer timestamp wins.
func (s *Snapshot) Put(o Observation) {
	id := o.ID()
	if cur, ok := s.rows[id]; ok && cur.Timestamp.After(o.Timestamp) {
		return
	}
	s.rows[id] = o
}

// Get returns the observation for a key.
func (s *Snapshot) Get(k ObsKey) (Observation, bool) {
	o, ok := s.rows[k]
	return o, ok
}

// Len returns the number of rows.
func (s *Snapshot) Len() int { return len(s.rows) }

// Keys returns all keys sorted by (asset, key, window) so every iteration is
// reproducible.
func (s *Snapshot) Keys() []ObsKey {
	keys := make([]ObsKey, 0, len(s.rows))
	for k := range s.rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Asset != keys[j].Asset {
			return keys[i].Asset < keys[j].Asset
		}
		if keys[i].Key != keys[j].Key {
			return keys[i].Key < keys[j].Key
		}
		return keys[i].Window < keys[j].Window
	})
	return keys
}

// Rows returns all observations in deterministic key order.
func (s *Snapshot) Rows() []Observation {
	keys := s.Keys()
	rows := make([]Observation, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, s.rows[k])
	}
	return rows
}

// Coverage returns the fraction of required keys that resolved to a value.
// An empty requirement set counts as full coverage.
func (s *Snapshot) Coverage(required []ObsKey) float64 {
	if len(required) == 0 {
		return 1.0
	}
	covered := 0
	for _, k := range required {
		if o, ok := s.rows[k]; ok && o.Resolved() {
			covered++
		}
	}
	return float64(covered) / float64(len(required))
}
