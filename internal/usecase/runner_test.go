package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
	"MarketPull/internal/service/sources"
	"MarketPull/pkg/util"
)

type memStore struct {
	raw     []models.RawSample
	daily   map[string]*models.Snapshot
	latest  *models.HistoryRecord
	history []models.HistoryRecord
	index   []string

	latestErr  error
	historyErr error
}

func newMemStore() *memStore {
	return &memStore{daily: make(map[string]*models.Snapshot)}
}

func (s *memStore) AppendRaw(_ context.Context, _ time.Time, samples []models.RawSample) error {
	s.raw = append(s.raw, samples...)
	return nil
}

func (s *memStore) AppendDaily(_ context.Context, date time.Time, snap *models.Snapshot) error {
	key := util.DateKey(date)
	cur, ok := s.daily[key]
	if !ok {
		cur = models.NewSnapshot()
		s.daily[key] = cur
	}
	for _, row := range snap.Rows() {
		cur.Put(row)
	}
	return nil
}

func (s *memStore) LoadDaily(_ context.Context, date time.Time) (*models.Snapshot, error) {
	if snap, ok := s.daily[util.DateKey(date)]; ok {
		return snap, nil
	}
	return models.NewSnapshot(), nil
}

func (s *memStore) ReplaceLatest(_ context.Context, rec models.HistoryRecord) error {
	if s.latestErr != nil {
		return s.latestErr
	}
	s.latest = &rec
	return nil
}

func (s *memStore) UpsertHistory(_ context.Context, rec models.HistoryRecord) error {
	if s.historyErr != nil {
		return s.historyErr
	}
	s.history = append(s.history, rec)
	return nil
}

func (s *memStore) UpdateIndex(_ context.Context, date time.Time) error {
	s.index = append(s.index, util.DateKey(date))
	return nil
}

func (s *memStore) StaleRawPartitions(_ context.Context, _ time.Time) ([]string, error) {
	return nil, nil
}

func runnerCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(`
thresholds:
  index: 1.0
  rates: 0.05
  fx: 0.5
  commodity: 0.5
  hv_corr: 0.02
assets:
  kospi: index
  usdkrw: fx
requests:
  - asset: kospi
    key: close
    window: 1d
    mandatory: true
    chain: [primary]
  - asset: usdkrw
    key: close
    window: 1d
    mandatory: true
    chain: [primary]
  - asset: kospi
    key: hv30
    window: 30d
    derive:
      fn: realized_vol
      source: {asset: kospi, key: close, window: 1d}
history:
  - asset: kospi
    key: close
    window: 1d
    column: kospi_close
  - asset: kospi
    key: hv30
    window: 30d
    column: kospi_hv30
    min: 0.0
`))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func newTestRunner(t *testing.T, cat *catalog.Catalog, store *memStore, adapters ...sources.Adapter) *Runner {
	t.Helper()
	log := testLogger(t)
	resolver := NewFallbackResolver(adapters, 2, time.Second, newStubMetrics(), log)
	r := NewRunner(cat, resolver, NewReconciler(cat, log), store, nil, nil, nil, newStubMetrics(), log)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, util.Local)
	r.now = func() time.Time { return base }
	return r
}

func TestRunSnapshotPersistsAndDerives(t *testing.T) {
	store := newMemStore()
	primary := &fakeAdapter{name: "primary", series: dailySeries(40, 2700)}
	r := newTestRunner(t, runnerCatalog(t), store, primary)

	if err := r.RunSnapshot(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, ok := store.daily["20240501"]
	if !ok {
		t.Fatalf("daily snapshot not persisted")
	}
	if snap.Len() != 3 {
		t.Fatalf("expected 2 fetched + 1 derived rows, got %d", snap.Len())
	}
	hv, ok := snap.Get(models.ObsKey{Asset: "kospi", Key: "hv30", Window: "30d"})
	if !ok || !hv.Resolved() {
		t.Fatalf("derived volatility missing or absent")
	}
	if hv.Source != SourceDerived {
		t.Fatalf("derived row source = %s", hv.Source)
	}
	if hv.Quality != models.QualityPrimary {
		t.Fatalf("all-primary inputs must yield primary, got %s", hv.Quality)
	}
	if len(store.raw) != 80 {
		t.Fatalf("expected 80 raw samples, got %d", len(store.raw))
	}
	if len(store.index) == 0 {
		t.Fatalf("index not updated")
	}
}

func TestRunSnapshotCoverageShortfall(t *testing.T) {
	store := newMemStore()
	primary := &fakeAdapter{name: "primary", err: sources.ErrUnavailable}
	r := newTestRunner(t, runnerCatalog(t), store, primary)

	err := r.RunSnapshot(context.Background())
	var cov *CoverageError
	if !errors.As(err, &cov) {
		t.Fatalf("expected CoverageError, got %v", err)
	}
	if cov.Ratio != 0 {
		t.Fatalf("expected zero coverage, got %v", cov.Ratio)
	}
	// The degraded snapshot is still persisted for inspection.
	if _, ok := store.daily["20240501"]; !ok {
		t.Fatalf("degraded snapshot must still be written")
	}
}

func TestRunSnapshotShortHistoryLeavesDerivedAbsent(t *testing.T) {
	store := newMemStore()
	primary := &fakeAdapter{name: "primary", series: dailySeries(10, 2700)}
	r := newTestRunner(t, runnerCatalog(t), store, primary)

	if err := r.RunSnapshot(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hv, _ := store.daily["20240501"].Get(models.ObsKey{Asset: "kospi", Key: "hv30", Window: "30d"})
	if hv.Resolved() {
		t.Fatalf("10 samples must not produce a volatility value")
	}
	if hv.Notes != models.NoteInsufficientHistory {
		t.Fatalf("expected insufficient_history note, got %q", hv.Notes)
	}
}

// coverageCatalog builds a catalog of mandatory single-adapter requests, one
// per asset.
func coverageCatalog(t *testing.T, assets ...string) *catalog.Catalog {
	t.Helper()
	var b strings.Builder
	b.WriteString("thresholds:\n  commodity: 0.5\n  hv_corr: 0.02\nassets:\n")
	for _, a := range assets {
		fmt.Fprintf(&b, "  %s: commodity\n", a)
	}
	b.WriteString("requests:\n")
	for _, a := range assets {
		fmt.Fprintf(&b, "  - asset: %s\n    key: close\n    window: 1d\n    mandatory: true\n    chain: [primary]\n", a)
	}
	cat, err := catalog.Parse([]byte(b.String()))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func TestRunSnapshotExactCoverageBoundaryPasses(t *testing.T) {
	// four of five mandatory keys resolve: exactly the 0.80 minimum
	store := newMemStore()
	adapter := &selectiveAdapter{
		name:   "primary",
		series: dailySeries(5, 100),
		fail:   map[string]error{"kospi": sources.ErrUnavailable},
	}
	r := newTestRunner(t, coverageCatalog(t, "gold", "wti", "copper", "btc", "kospi"), store, adapter)

	if err := r.RunSnapshot(context.Background()); err != nil {
		t.Fatalf("coverage at the minimum must pass, got %v", err)
	}
}

func TestRunSnapshotJustBelowCoverageBoundaryDegrades(t *testing.T) {
	// three of four mandatory keys resolve: 0.75
	store := newMemStore()
	adapter := &selectiveAdapter{
		name:   "primary",
		series: dailySeries(5, 100),
		fail:   map[string]error{"kospi": sources.ErrUnavailable},
	}
	r := newTestRunner(t, coverageCatalog(t, "gold", "wti", "btc", "kospi"), store, adapter)

	err := r.RunSnapshot(context.Background())
	var cov *CoverageError
	if !errors.As(err, &cov) {
		t.Fatalf("expected CoverageError, got %v", err)
	}
	if cov.Ratio != 0.75 {
		t.Fatalf("expected ratio 0.75, got %v", cov.Ratio)
	}
}

type memRunLog struct {
	events []models.RunEvent
}

func (l *memRunLog) Record(_ context.Context, e models.RunEvent) error {
	l.events = append(l.events, e)
	return nil
}

func TestRunReconcilePersistFailuresReachRunLog(t *testing.T) {
	store := newMemStore()
	store.latestErr = errors.New("disk full")
	rl := &memRunLog{}
	log := testLogger(t)
	cat := runnerCatalog(t)
	primary := &fakeAdapter{name: "primary", series: dailySeries(40, 2700)}
	resolver := NewFallbackResolver([]sources.Adapter{primary}, 2, time.Second, newStubMetrics(), log)
	r := NewRunner(cat, resolver, NewReconciler(cat, log), store, nil, nil, rl, newStubMetrics(), log)
	r.now = func() time.Time { return time.Date(2024, 5, 1, 16, 0, 0, 0, util.Local) }

	if err := r.RunReconcile(context.Background()); err == nil {
		t.Fatal("expected replace latest to fail")
	}
	if len(rl.events) == 0 {
		t.Fatal("failure never reached the run log")
	}
	last := rl.events[len(rl.events)-1]
	if last.Phase != models.PhaseAfternoon || last.Status != "failed" {
		t.Fatalf("unexpected event %+v", last)
	}
	if !strings.Contains(last.Error, "replace latest") {
		t.Fatalf("expected replace latest error, got %q", last.Error)
	}

	store.latestErr = nil
	store.historyErr = errors.New("disk full")
	if err := r.RunReconcile(context.Background()); err == nil {
		t.Fatal("expected upsert history to fail")
	}
	last = rl.events[len(rl.events)-1]
	if last.Status != "failed" || !strings.Contains(last.Error, "upsert history") {
		t.Fatalf("expected upsert history failure event, got %+v", last)
	}
}

func TestRunReconcileWritesConfirmedRecord(t *testing.T) {
	store := newMemStore()
	primary := &fakeAdapter{name: "primary", series: dailySeries(40, 2700)}
	cat := runnerCatalog(t)
	r := newTestRunner(t, cat, store, primary)

	if err := r.RunSnapshot(context.Background()); err != nil {
		t.Fatalf("morning run: %v", err)
	}
	r.now = func() time.Time { return time.Date(2024, 5, 1, 16, 0, 0, 0, util.Local) }
	if err := r.RunReconcile(context.Background()); err != nil {
		t.Fatalf("afternoon run: %v", err)
	}

	if store.latest == nil {
		t.Fatalf("latest record not replaced")
	}
	if store.latest.Quality != models.QualityFinal {
		t.Fatalf("confirmed record quality = %s", store.latest.Quality)
	}
	if v, ok := store.latest.Values["kospi_close"]; !ok || v != 2700 {
		t.Fatalf("kospi_close column = %v (present=%v)", v, ok)
	}
	if len(store.history) != 1 {
		t.Fatalf("expected one history upsert, got %d", len(store.history))
	}

	close1d, _ := store.daily["20240501"].Get(models.ObsKey{Asset: "kospi", Key: "close", Window: "1d"})
	if close1d.Quality != models.QualityFinal {
		t.Fatalf("reconciled row must be final, got %s", close1d.Quality)
	}
}
