package repository

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"MarketPull/internal/domain/models"
	"MarketPull/pkg/util"
)

// rawRow is the raw partition schema shared by both encodings.
type rawRow struct {
	TS      int64   `parquet:"ts" json:"ts"`
	Asset   string  `parquet:"asset" json:"asset"`
	Key     string  `parquet:"key" json:"key"`
	Window  string  `parquet:"window" json:"window"`
	Value   float64 `parquet:"value" json:"value"`
	Source  string  `parquet:"source" json:"source"`
	Quality string  `parquet:"quality" json:"quality"`
}

func toRawRows(samples []models.RawSample) []rawRow {
	rows := make([]rawRow, len(samples))
	for i, s := range samples {
		rows[i] = rawRow{
			TS:      s.Time.Unix(),
			Asset:   s.Asset,
			Key:     s.Key,
			Window:  s.Window,
			Value:   s.Value,
			Source:  s.Source,
			Quality: s.Quality,
		}
	}
	return rows
}

// mergeRawParquet rewrites the partition with existing plus new rows. Parquet
// files cannot be appended in place, so the merge goes through the atomic
// rewrite path like every other artifact.
func mergeRawParquet(path string, samples []models.RawSample) error {
	var existing []rawRow
	if _, err := os.Stat(path); err == nil {
		existing, err = parquet.ReadFile[rawRow](path)
		if err != nil {
			return fmt.Errorf("read parquet: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat parquet: %w", err)
	}
	rows := append(existing, toRawRows(samples)...)
	rows = dedupeRawRows(rows)

	return writeAtomic(path, func(w io.Writer) error {
		pw := parquet.NewGenericWriter[rawRow](w, parquet.Compression(&parquet.Snappy))
		if _, err := pw.Write(rows); err != nil {
			return fmt.Errorf("write parquet: %w", err)
		}
		return pw.Close()
	})
}

var rawCSVHeader = []string{"ts", "asset", "key", "window", "value", "source", "quality"}

// mergeRawCSV is the plain-text fallback encoding for environments without
// parquet tooling.
func mergeRawCSV(path string, samples []models.RawSample) error {
	existing, err := readRawCSV(path)
	if err != nil {
		return err
	}
	rows := append(existing, toRawRows(samples)...)
	rows = dedupeRawRows(rows)

	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(rawCSVHeader); err != nil {
			return err
		}
		for _, r := range rows {
			rec := []string{
				util.FormatTS(time.Unix(r.TS, 0).In(util.Local)),
				r.Asset,
				r.Key,
				r.Window,
				formatFloat(r.Value),
				r.Source,
				r.Quality,
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func readRawCSV(path string) ([]rawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open raw csv: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read raw csv: %w", err)
	}
	var rows []rawRow
	for i, rec := range records {
		if i == 0 || len(rec) != len(rawCSVHeader) {
			continue
		}
		ts, err := util.ParseTS(rec[0])
		if err != nil {
			continue
		}
		v := parseOptFloat(rec[4])
		if v == nil {
			continue
		}
		rows = append(rows, rawRow{
			TS:      ts.Unix(),
			Asset:   rec[1],
			Key:     rec[2],
			Window:  rec[3],
			Value:   *v,
			Source:  rec[5],
			Quality: rec[6],
		})
	}
	return rows, nil
}

// dedupeRawRows drops exact sample duplicates so the afternoon re-fetch does
// not double every overlapping point. Later rows win.
func dedupeRawRows(rows []rawRow) []rawRow {
	type ident struct {
		ts          int64
		key, window string
		source      string
	}
	seen := make(map[ident]int, len(rows))
	out := rows[:0]
	for _, r := range rows {
		id := ident{ts: r.TS, key: r.Key, window: r.Window, source: r.Source}
		if i, ok := seen[id]; ok {
			out[i] = r
			continue
		}
		seen[id] = len(out)
		out = append(out, r)
	}
	return out
}

func readIndex(path string) ([]indexEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}
	var entries []indexEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("parse index: %w", err)
	}
	return entries, nil
}

func writeIndex(path string, entries []indexEntry) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	})
}
