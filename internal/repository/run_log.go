package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"MarketPull/internal/domain/models"
	"MarketPull/pkg/util"
)

// FileRunLog appends one JSON line per run to a per-day log file. The log is
// append-only; unlike snapshot artifacts it is never rewritten.
type FileRunLog struct {
	dir string
}

// NewFileRunLog creates the run-log directory.
func NewFileRunLog(dir string) (*FileRunLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create runlog dir: %w", err)
	}
	return &FileRunLog{dir: dir}, nil
}

func (l *FileRunLog) Record(_ context.Context, e models.RunEvent) error {
	path := filepath.Join(l.dir, util.DateKey(e.Date)+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open runlog: %w", err)
	}
	defer f.Close()

	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write runlog: %w", err)
	}
	return nil
}
