package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"MarketPull/internal/domain/models"
	"MarketPull/pkg/util"
)

func TestRunLogAppendsOneLinePerRun(t *testing.T) {
	dir := t.TempDir()
	rl, err := NewFileRunLog(dir)
	if err != nil {
		t.Fatalf("create run log: %v", err)
	}

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, util.Local)
	ctx := context.Background()

	morning := models.RunEvent{Date: day, Phase: models.PhaseMorning, Status: "ok", Coverage: 1.0, Resolved: 10}
	afternoon := models.RunEvent{Date: day, Phase: models.PhaseAfternoon, Status: "degraded", Coverage: 0.7, Resolved: 7, Absent: 3, Error: "afternoon coverage 0.70 below 0.80"}
	if err := rl.Record(ctx, morning); err != nil {
		t.Fatalf("record morning: %v", err)
	}
	if err := rl.Record(ctx, afternoon); err != nil {
		t.Fatalf("record afternoon: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, util.DateKey(day)+".jsonl"))
	if err != nil {
		t.Fatalf("open run log file: %v", err)
	}
	defer f.Close()

	var events []models.RunEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e models.RunEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("parse line: %v", err)
		}
		events = append(events, e)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Phase != models.PhaseMorning || events[0].Status != "ok" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Status != "degraded" || events[1].Absent != 3 {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}
