package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"MarketPull/internal/domain/models"
	pkgch "MarketPull/pkg/clickhouse"
	applogger "MarketPull/pkg/logger"
)

// CHHistoryMirror copies confirmed wide rows into a ClickHouse warehouse for
// long-horizon analytics. It is a best-effort sink: the local filesystem
// store stays the source of truth.
type CHHistoryMirror struct {
	db *sql.DB
	ch *pkgch.Client
	l  *applogger.Logger
}

// HistorySchema is the idempotent DDL for the mirror table.
var HistorySchema = []string{
	`CREATE DATABASE IF NOT EXISTS marketpull`,
	`CREATE TABLE IF NOT EXISTS marketpull.history_daily (
        date Date,
        name LowCardinality(String),
        value Float64,
        src LowCardinality(String),
        quality LowCardinality(String)
    ) ENGINE = ReplacingMergeTree ORDER BY (date, name)`,
}

// NewCHHistoryMirror initializes the mirror and ensures the schema exists.
func NewCHHistoryMirror(ctx context.Context, ch *pkgch.Client, l *applogger.Logger) (*CHHistoryMirror, error) {
	if err := ch.InitSchema(ctx, HistorySchema); err != nil {
		return nil, err
	}
	return &CHHistoryMirror{db: ch.DB(), ch: ch, l: l}, nil
}

func (m *CHHistoryMirror) MirrorHistory(ctx context.Context, rec models.HistoryRecord) error {
	names := make([]string, 0, len(rec.Values))
	for name := range rec.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mirror tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO marketpull.history_daily (date, name, value, src, quality) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare mirror insert: %w", err)
	}
	defer stmt.Close()

	for _, name := range names {
		if _, err := stmt.ExecContext(ctx, rec.Date, name, rec.Values[name], rec.SrcTag, rec.Quality); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("mirror insert %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mirror tx: %w", err)
	}

	if m.l != nil {
		m.l.Info("history mirrored",
			applogger.String("date", rec.Date.Format("2006-01-02")),
			applogger.Int("columns", len(names)))
	}
	return nil
}

func (m *CHHistoryMirror) Close() error { return m.ch.Close() }
