package usecase

import (
	"testing"
	"time"

	"MarketPull/internal/domain/models"
	"MarketPull/pkg/util"
)

func snapWith(rows ...models.Observation) *models.Snapshot {
	s := models.NewSnapshot()
	for _, r := range rows {
		s.Put(r)
	}
	return s
}

func TestReconcileWithinThresholdIsFinalWithoutNote(t *testing.T) {
	r := NewReconciler(testCatalog(t), testLogger(t))
	am := time.Date(2024, 5, 1, 8, 0, 0, 0, util.Local)
	pm := am.Add(8 * time.Hour)

	// kospi is category index with threshold 1.0; a 0.2 move stays quiet.
	out := r.Reconcile(
		snapWith(obsAt("kospi", "close", "1d", am, models.Float(100.0), "exchange", models.QualityPrimary, "")),
		snapWith(obsAt("kospi", "close", "1d", pm, models.Float(100.2), "exchange", models.QualityPrimary, "")),
	)

	got, ok := out.Get(models.ObsKey{Asset: "kospi", Key: "close", Window: "1d"})
	if !ok {
		t.Fatalf("key missing from reconciled snapshot")
	}
	if got.Quality != models.QualityFinal {
		t.Fatalf("expected final quality, got %s", got.Quality)
	}
	if got.Notes != "" {
		t.Fatalf("expected no revision note, got %q", got.Notes)
	}
	if *got.Value != 100.2 {
		t.Fatalf("afternoon value must win, got %v", *got.Value)
	}
}

func TestReconcileBreachMarksRevised(t *testing.T) {
	r := NewReconciler(testCatalog(t), testLogger(t))
	am := time.Date(2024, 5, 1, 8, 0, 0, 0, util.Local)
	pm := am.Add(8 * time.Hour)

	out := r.Reconcile(
		snapWith(obsAt("kospi", "close", "1d", am, models.Float(100.0), "exchange", models.QualityPrimary, "")),
		snapWith(obsAt("kospi", "close", "1d", pm, models.Float(101.5), "exchange", models.QualityPrimary, "")),
	)

	got, _ := out.Get(models.ObsKey{Asset: "kospi", Key: "close", Window: "1d"})
	if got.Notes != models.NoteRevised {
		t.Fatalf("expected revised note, got %q", got.Notes)
	}
	if got.Quality != models.QualityFinal {
		t.Fatalf("revised rows are still final, got %s", got.Quality)
	}
	if *got.Value != 101.5 {
		t.Fatalf("afternoon value must win, got %v", *got.Value)
	}
}

func TestReconcileExactThresholdIsRevised(t *testing.T) {
	r := NewReconciler(testCatalog(t), testLogger(t))
	am := time.Date(2024, 5, 1, 8, 0, 0, 0, util.Local)
	pm := am.Add(8 * time.Hour)

	out := r.Reconcile(
		snapWith(obsAt("kospi", "close", "1d", am, models.Float(100.0), "exchange", models.QualityPrimary, "")),
		snapWith(obsAt("kospi", "close", "1d", pm, models.Float(101.0), "exchange", models.QualityPrimary, "")),
	)
	got, _ := out.Get(models.ObsKey{Asset: "kospi", Key: "close", Window: "1d"})
	if got.Notes != models.NoteRevised {
		t.Fatalf("a move equal to the threshold counts as revised, got %q", got.Notes)
	}
}

func TestReconcileMorningOnlyKeptUnpromoted(t *testing.T) {
	r := NewReconciler(testCatalog(t), testLogger(t))
	am := time.Date(2024, 5, 1, 8, 0, 0, 0, util.Local)

	morning := snapWith(obsAt("usdkrw", "close", "1d", am, models.Float(1350.0), "vendor", models.QualitySecondary, ""))
	out := r.Reconcile(morning, models.NewSnapshot())

	got, ok := out.Get(models.ObsKey{Asset: "usdkrw", Key: "close", Window: "1d"})
	if !ok {
		t.Fatalf("morning-only key must survive reconciliation")
	}
	if got.Quality != models.QualitySecondary {
		t.Fatalf("morning-only rows must not be promoted, got %s", got.Quality)
	}
}

func TestReconcileAfternoonFailureFallsBackToMorning(t *testing.T) {
	r := NewReconciler(testCatalog(t), testLogger(t))
	am := time.Date(2024, 5, 1, 8, 0, 0, 0, util.Local)
	pm := am.Add(8 * time.Hour)

	out := r.Reconcile(
		snapWith(obsAt("kospi", "close", "1d", am, models.Float(100.0), "exchange", models.QualityPrimary, "")),
		snapWith(obsAt("kospi", "close", "1d", pm, nil, "", models.QualitySecondary, "parse_failed:exchange,timeout")),
	)

	got, _ := out.Get(models.ObsKey{Asset: "kospi", Key: "close", Window: "1d"})
	if !got.Resolved() {
		t.Fatalf("morning value must back a failed afternoon fetch")
	}
	if *got.Value != 100.0 || got.Quality != models.QualityPrimary {
		t.Fatalf("expected unchanged morning row, got %v/%s", *got.Value, got.Quality)
	}
}

func TestReconcileAfternoonOnlyIsFinal(t *testing.T) {
	r := NewReconciler(testCatalog(t), testLogger(t))
	pm := time.Date(2024, 5, 1, 16, 0, 0, 0, util.Local)

	out := r.Reconcile(
		models.NewSnapshot(),
		snapWith(obsAt("kospi", "close", "1d", pm, models.Float(100.0), "exchange", models.QualityPrimary, "")),
	)
	got, _ := out.Get(models.ObsKey{Asset: "kospi", Key: "close", Window: "1d"})
	if got.Quality != models.QualityFinal {
		t.Fatalf("afternoon-only resolved rows promote to final, got %s", got.Quality)
	}
}

func TestReconcileNeverDropsKeys(t *testing.T) {
	r := NewReconciler(testCatalog(t), testLogger(t))
	am := time.Date(2024, 5, 1, 8, 0, 0, 0, util.Local)
	pm := am.Add(8 * time.Hour)

	morning := snapWith(
		obsAt("kospi", "close", "1d", am, models.Float(100.0), "exchange", models.QualityPrimary, ""),
		obsAt("usdkrw", "close", "1d", am, models.Float(1350.0), "vendor", models.QualitySecondary, ""),
	)
	afternoon := snapWith(
		obsAt("kospi", "close", "1d", pm, models.Float(100.1), "exchange", models.QualityPrimary, ""),
	)
	out := r.Reconcile(morning, afternoon)
	if out.Len() != 2 {
		t.Fatalf("expected union of keys, got %d rows", out.Len())
	}
}
