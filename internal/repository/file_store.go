package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"MarketPull/internal/domain/models"
	applogger "MarketPull/pkg/logger"
	"MarketPull/pkg/util"
)

// Raw partition formats.
const (
	RawFormatParquet = "parquet"
	RawFormatCSV     = "csv"
)

// FileStore implements SnapshotStore on the local filesystem. Every file
// replacement goes through a same-directory temp file and rename, so readers
// never observe a half-written artifact.
//
// Layout under root:
//
//	raw/<asset>/<YYYYMMDD>.parquet   per-asset raw partitions
//	daily/<YYYYMMDD>.csv             per-day observation rows
//	latest.csv                       single confirmed wide row
//	history.csv                      rolling wide history
//	index.json                       bounded daily-file index
type FileStore struct {
	root      string
	columns   []string
	rawFormat string
	l         *applogger.Logger
}

// FileStoreOption customizes the store.
type FileStoreOption func(*FileStore)

// WithHistoryColumns sets the wide-row column order for latest and history
// files.
func WithHistoryColumns(cols []string) FileStoreOption {
	return func(s *FileStore) { s.columns = cols }
}

// WithRawFormat selects the raw partition encoding.
func WithRawFormat(format string) FileStoreOption {
	return func(s *FileStore) { s.rawFormat = format }
}

// WithStoreLogger injects a structured logger.
func WithStoreLogger(l *applogger.Logger) FileStoreOption {
	return func(s *FileStore) { s.l = l }
}

// NewFileStore creates the store and its directory skeleton.
func NewFileStore(root string, opts ...FileStoreOption) (*FileStore, error) {
	s := &FileStore{root: root, rawFormat: RawFormatParquet}
	for _, opt := range opts {
		opt(s)
	}
	for _, dir := range []string{s.rawDir(), s.dailyDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return s, nil
}

func (s *FileStore) rawDir() string   { return filepath.Join(s.root, "raw") }
func (s *FileStore) dailyDir() string { return filepath.Join(s.root, "daily") }

func (s *FileStore) dailyPath(date time.Time) string {
	return filepath.Join(s.dailyDir(), util.DateKey(date)+".csv")
}

func (s *FileStore) rawPath(asset string, date time.Time) string {
	ext := ".parquet"
	if s.rawFormat == RawFormatCSV {
		ext = ".csv"
	}
	return filepath.Join(s.rawDir(), asset, util.DateKey(date)+ext)
}

// AppendRaw merges the run's samples into per-asset partitions. Both runs of
// a day land in the same partition file.
func (s *FileStore) AppendRaw(ctx context.Context, date time.Time, samples []models.RawSample) error {
	byAsset := make(map[string][]models.RawSample)
	for _, sm := range samples {
		byAsset[sm.Asset] = append(byAsset[sm.Asset], sm)
	}

	assets := make([]string, 0, len(byAsset))
	for a := range byAsset {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	for _, asset := range assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := s.rawPath(asset, date)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create raw dir: %w", err)
		}

		var err error
		if s.rawFormat == RawFormatCSV {
			err = mergeRawCSV(path, byAsset[asset])
		} else {
			err = mergeRawParquet(path, byAsset[asset])
			if err != nil {
				// degrade to the delimited format rather than abort the run
				csvPath := strings.TrimSuffix(path, ".parquet") + ".csv"
				if s.l != nil {
					s.l.Warn("parquet partition write failed, falling back to csv",
						applogger.String("path", path),
						applogger.Error(err))
				}
				err = mergeRawCSV(csvPath, byAsset[asset])
			}
		}
		if err != nil {
			return fmt.Errorf("raw partition %s: %w", path, err)
		}
	}
	if s.l != nil {
		s.l.Debug("raw partitions updated",
			applogger.Int("assets", len(assets)),
			applogger.Int("samples", len(samples)))
	}
	return nil
}

var dailyHeader = []string{"ts", "asset", "key", "window", "value", "unit", "change_abs", "change_pct", "source", "quality", "notes"}

// AppendDaily merges the snapshot into the day's file; for keys written by
// both runs the newer timestamp wins.
func (s *FileStore) AppendDaily(ctx context.Context, date time.Time, snap *models.Snapshot) error {
	existing, err := s.LoadDaily(ctx, date)
	if err != nil {
		return err
	}
	for _, row := range snap.Rows() {
		existing.Put(row)
	}

	return writeAtomic(s.dailyPath(date), func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(dailyHeader); err != nil {
			return err
		}
		for _, row := range existing.Rows() {
			rec := []string{
				util.FormatTS(row.Timestamp),
				row.Asset,
				row.Key,
				row.Window,
				optFloat(row.Value),
				row.Unit,
				optFloat(row.ChangeAbs),
				optFloat(row.ChangePct),
				row.Source,
				row.Quality,
				row.Notes,
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// LoadDaily reads the day's file. A missing file is an empty snapshot.
func (s *FileStore) LoadDaily(_ context.Context, date time.Time) (*models.Snapshot, error) {
	snap := models.NewSnapshot()

	f, err := os.Open(s.dailyPath(date))
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return nil, fmt.Errorf("open daily: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(dailyHeader)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read daily: %w", err)
	}
	for i, rec := range records {
		if i == 0 {
			continue
		}
		ts, err := util.ParseTS(rec[0])
		if err != nil {
			return nil, fmt.Errorf("daily row %d: %w", i, err)
		}
		snap.Put(models.Observation{
			Timestamp: ts,
			Asset:     rec[1],
			Key:       rec[2],
			Window:    rec[3],
			Value:     parseOptFloat(rec[4]),
			Unit:      rec[5],
			ChangeAbs: parseOptFloat(rec[6]),
			ChangePct: parseOptFloat(rec[7]),
			Source:    rec[8],
			Quality:   rec[9],
			Notes:     rec[10],
		})
	}
	return snap, nil
}

// ReplaceLatest swaps the confirmed single-row summary.
func (s *FileStore) ReplaceLatest(_ context.Context, rec models.HistoryRecord) error {
	return writeAtomic(filepath.Join(s.root, "latest.csv"), func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(s.historyHeader()); err != nil {
			return err
		}
		if err := cw.Write(s.historyRow(rec)); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
}

// UpsertHistory inserts or overwrites the record's date row, keeps the rows
// sorted ascending and truncates to the retained count.
func (s *FileStore) UpsertHistory(_ context.Context, rec models.HistoryRecord) error {
	path := filepath.Join(s.root, "history.csv")
	rows, err := s.readHistory(path)
	if err != nil {
		return err
	}

	replaced := false
	for i := range rows {
		if util.DateKey(rows[i].Date) == util.DateKey(rec.Date) {
			rows[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		rows = append(rows, rec)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	if len(rows) > models.HistoryRetainRows {
		rows = rows[len(rows)-models.HistoryRetainRows:]
	}

	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(s.historyHeader()); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write(s.historyRow(r)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func (s *FileStore) historyHeader() []string {
	header := make([]string, 0, len(s.columns)+3)
	header = append(header, "date")
	header = append(header, s.columns...)
	return append(header, "src", "quality")
}

func (s *FileStore) historyRow(rec models.HistoryRecord) []string {
	row := make([]string, 0, len(s.columns)+3)
	row = append(row, util.DateKey(rec.Date))
	for _, col := range s.columns {
		if v, ok := rec.Values[col]; ok {
			row = append(row, formatFloat(v))
		} else {
			row = append(row, "")
		}
	}
	return append(row, rec.SrcTag, rec.Quality)
}

func (s *FileStore) readHistory(path string) ([]models.HistoryRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	if len(header) < 3 || header[0] != "date" {
		return nil, fmt.Errorf("history: unexpected header")
	}
	cols := header[1 : len(header)-2]

	out := make([]models.HistoryRecord, 0, len(records)-1)
	for i, rec := range records[1:] {
		date, err := util.ParseLocalDate(rec[0])
		if err != nil {
			return nil, fmt.Errorf("history row %d: %w", i+1, err)
		}
		values := make(map[string]float64, len(cols))
		for j, col := range cols {
			cell := rec[j+1]
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("history row %d col %s: %w", i+1, col, err)
			}
			values[col] = v
		}
		out = append(out, models.HistoryRecord{
			Date:    date,
			Values:  values,
			SrcTag:  rec[len(rec)-2],
			Quality: rec[len(rec)-1],
		})
	}
	return out, nil
}

type indexEntry struct {
	Date string `json:"date"`
	File string `json:"file"`
}

// UpdateIndex records the day's file and evicts entries beyond retention.
func (s *FileStore) UpdateIndex(_ context.Context, date time.Time) error {
	path := filepath.Join(s.root, "index.json")
	entries, err := readIndex(path)
	if err != nil {
		return err
	}

	key := util.DateKey(date)
	found := false
	for _, e := range entries {
		if e.Date == key {
			found = true
			break
		}
	}
	if !found {
		entries = append(entries, indexEntry{Date: key, File: filepath.Join("daily", key+".csv")})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })
	if len(entries) > models.IndexRetainFiles {
		entries = entries[len(entries)-models.IndexRetainFiles:]
	}
	return writeIndex(path, entries)
}

// StaleRawPartitions lists raw partition files whose date is past the raw
// retention window. The store only reports; deletion is an operator action.
func (s *FileStore) StaleRawPartitions(_ context.Context, asOf time.Time) ([]string, error) {
	cutoff := util.DayStart(asOf).AddDate(0, 0, -models.RawRetainDays)

	var stale []string
	err := filepath.WalkDir(s.rawDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		date, perr := util.ParseLocalDate(name)
		if perr != nil {
			return nil
		}
		if date.Before(cutoff) {
			stale = append(stale, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan raw partitions: %w", err)
	}
	sort.Strings(stale)
	return stale, nil
}

// writeAtomic writes through a same-directory temp file and renames it into
// place.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func parseOptFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return models.Float(v)
}
