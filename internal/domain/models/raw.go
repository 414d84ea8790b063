package models

import "time"

// RawSample is one row of a raw per-asset partition: a single upstream series
// point together with the provenance assigned at acquisition.
type RawSample struct {
	Time    time.Time
	Asset   string
	Key     string
	Window  string
	Value   float64
	Source  string
	Quality string
}

// RawSamples flattens a resolved series into partition rows.
func RawSamples(o Observation, series Series) []RawSample {
	rows := make([]RawSample, 0, len(series))
	for _, p := range series {
		rows = append(rows, RawSample{
			Time:    p.Time,
			Asset:   o.Asset,
			Key:     o.Key,
			Window:  o.Window,
			Value:   p.Value,
			Source:  o.Source,
			Quality: o.Quality,
		})
	}
	return rows
}
