package repository

import (
	"context"
	"time"

	"MarketPull/internal/domain/models"
)

// SnapshotStore owns every persisted artifact of a run: raw partitions, the
// daily series file, the latest summary, the rolling history and the daily
// file index.
type SnapshotStore interface {
	// AppendRaw appends series samples to per-asset, per-date partitions.
	AppendRaw(ctx context.Context, date time.Time, samples []models.RawSample) error
	// AppendDaily merges the run's snapshot into the day's series file.
	AppendDaily(ctx context.Context, date time.Time, snap *models.Snapshot) error
	// LoadDaily reads the day's series file; a missing file yields an empty
	// snapshot, not an error.
	LoadDaily(ctx context.Context, date time.Time) (*models.Snapshot, error)
	// ReplaceLatest atomically swaps the single-row latest summary.
	ReplaceLatest(ctx context.Context, rec models.HistoryRecord) error
	// UpsertHistory inserts or overwrites the record's date row and enforces
	// the retained row count.
	UpsertHistory(ctx context.Context, rec models.HistoryRecord) error
	// UpdateIndex records the day's file in the bounded index, evicting the
	// oldest entries beyond the retention count.
	UpdateIndex(ctx context.Context, date time.Time) error
	// StaleRawPartitions lists raw partition files older than the raw
	// retention window. Deletion is left to the operating environment.
	StaleRawPartitions(ctx context.Context, asOf time.Time) ([]string, error)
}

// Mirror copies the day's confirmed record into an external warehouse.
// Mirror failures never fail a run.
type Mirror interface {
	MirrorHistory(ctx context.Context, rec models.HistoryRecord) error
	Close() error
}

// Publisher emits confirmed observations for downstream consumers.
type Publisher interface {
	PublishFinal(ctx context.Context, rows []models.Observation) error
	Close() error
}

// RunLog appends one structured event per run for operational review.
// Logging failures never fail a run.
type RunLog interface {
	Record(ctx context.Context, e models.RunEvent) error
}

// Metrics records pipeline health counters.
type Metrics interface {
	RecordAttempt(source, result string)
	RecordResolved(asset, key, quality string)
	RecordCoverage(phase string, ratio float64)
	RecordLatency(op string, seconds float64)
}
