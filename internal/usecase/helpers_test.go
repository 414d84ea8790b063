package usecase

import (
	"context"
	"testing"
	"time"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
	"MarketPull/pkg/logger"
	"MarketPull/pkg/util"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testCatalog(t *testing.T) *catalog.Catalog {
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
    chain: [primary, backup]
  - asset: usdkrw
    key: close
    window: 1d
    mandatory: true
    chain: [primary, backup]
history:
  - asset: kospi
    key: close
    window: 1d
    column: kospi_close
`))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

// fakeAdapter scripts one outcome per call and counts invocations.
type fakeAdapter struct {
	name   string
	series models.Series
	err    error
	calls  int
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Attempt(_ context.Context, _ catalog.Request) (models.Series, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.series, nil
}

// selectiveAdapter serves a series except for scripted assets, which fail.
type selectiveAdapter struct {
	name   string
	series models.Series
	fail   map[string]error
}

func (a *selectiveAdapter) Name() string { return a.name }

func (a *selectiveAdapter) Attempt(_ context.Context, req catalog.Request) (models.Series, error) {
	if err, ok := a.fail[req.Asset]; ok {
		return nil, err
	}
	return a.series, nil
}

type stubMetrics struct {
	attempts map[string]int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{attempts: make(map[string]int)}
}

func (m *stubMetrics) RecordAttempt(source, result string)      { m.attempts[source+"/"+result]++ }
func (m *stubMetrics) RecordResolved(_, _, _ string)            {}
func (m *stubMetrics) RecordCoverage(_ string, _ float64)       {}
func (m *stubMetrics) RecordLatency(_ string, _ float64)        {}

func dailySeries(n int, last float64) models.Series {
	day := util.DayStart(time.Date(2024, 5, 1, 0, 0, 0, 0, util.Local))
	s := make(models.Series, n)
	for i := 0; i < n; i++ {
		s[i] = models.Point{Time: day.AddDate(0, 0, i-n+1), Value: last - float64(n-1-i)}
	}
	return s
}

func obsAt(asset, key, window string, ts time.Time, v *float64, source, quality, notes string) models.Observation {
	return models.Observation{
		Timestamp: ts,
		Asset:     asset,
		Key:       key,
		Window:    window,
		Value:     v,
		Source:    source,
		Quality:   quality,
		Notes:     notes,
	}
}
