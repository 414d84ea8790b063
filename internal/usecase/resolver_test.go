package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
	"MarketPull/internal/service/sources"
	"MarketPull/pkg/util"
)

func testRequest() catalog.Request {
	return catalog.Request{
		Asset:  "kospi",
		Key:    "close",
		Window: "1d",
		Chain:  []string{"primary", "backup"},
	}
}

func TestResolvePrimarySuccess(t *testing.T) {
	primary := &fakeAdapter{name: "primary", series: dailySeries(5, 2700)}
	backup := &fakeAdapter{name: "backup", series: dailySeries(5, 9999)}
	r := NewFallbackResolver([]sources.Adapter{primary, backup}, 2, time.Second, newStubMetrics(), testLogger(t))

	res := r.Resolve(context.Background(), testRequest(), util.Now())
	if !res.Obs.Resolved() {
		t.Fatalf("expected resolved observation")
	}
	if res.Obs.Quality != models.QualityPrimary {
		t.Fatalf("expected primary quality, got %s", res.Obs.Quality)
	}
	if res.Obs.Source != "primary" {
		t.Fatalf("expected primary source, got %s", res.Obs.Source)
	}
	if res.Obs.Notes != "" {
		t.Fatalf("expected empty notes, got %q", res.Obs.Notes)
	}
	if backup.calls != 0 {
		t.Fatalf("backup should not be invoked after primary success, calls=%d", backup.calls)
	}
	if *res.Obs.Value != 2700 {
		t.Fatalf("expected last series value, got %v", *res.Obs.Value)
	}
}

func TestResolveFallbackIsSecondaryWithNotes(t *testing.T) {
	primary := &fakeAdapter{name: "primary", err: sources.ErrTimeout}
	backup := &fakeAdapter{name: "backup", series: dailySeries(5, 1350.5)}
	r := NewFallbackResolver([]sources.Adapter{primary, backup}, 2, time.Second, newStubMetrics(), testLogger(t))

	res := r.Resolve(context.Background(), testRequest(), util.Now())
	if res.Obs.Quality != models.QualitySecondary {
		t.Fatalf("fallback success must be secondary, got %s", res.Obs.Quality)
	}
	if res.Obs.Source != "backup" {
		t.Fatalf("expected backup source, got %s", res.Obs.Source)
	}
	if res.Obs.Notes != "parse_failed:primary,timeout" {
		t.Fatalf("unexpected notes %q", res.Obs.Notes)
	}
}

func TestResolveExhaustedChain(t *testing.T) {
	primary := &fakeAdapter{name: "primary", err: sources.ErrAuthFailure}
	backup := &fakeAdapter{name: "backup", err: sources.ErrMalformedPayload}
	r := NewFallbackResolver([]sources.Adapter{primary, backup}, 2, time.Second, newStubMetrics(), testLogger(t))

	res := r.Resolve(context.Background(), testRequest(), util.Now())
	if res.Obs.Resolved() {
		t.Fatalf("expected absent observation")
	}
	want := "parse_failed:primary,auth_failed;parse_failed:backup,malformed_payload"
	if res.Obs.Notes != want {
		t.Fatalf("notes = %q, want %q", res.Obs.Notes, want)
	}
	if len(res.Series) != 0 {
		t.Fatalf("expected no series on failure")
	}
}

func TestResolveEmptySeriesCountsAsFailure(t *testing.T) {
	primary := &fakeAdapter{name: "primary", series: models.Series{}}
	backup := &fakeAdapter{name: "backup", series: dailySeries(3, 10)}
	r := NewFallbackResolver([]sources.Adapter{primary, backup}, 2, time.Second, newStubMetrics(), testLogger(t))

	res := r.Resolve(context.Background(), testRequest(), util.Now())
	if res.Obs.Source != "backup" {
		t.Fatalf("expected fallthrough to backup, got %s", res.Obs.Source)
	}
	if !strings.Contains(res.Obs.Notes, "empty_result") {
		t.Fatalf("expected empty_result note, got %q", res.Obs.Notes)
	}
}

func TestResolveUnknownAdapterFallsThrough(t *testing.T) {
	backup := &fakeAdapter{name: "backup", series: dailySeries(3, 10)}
	r := NewFallbackResolver([]sources.Adapter{backup}, 2, time.Second, newStubMetrics(), testLogger(t))

	res := r.Resolve(context.Background(), testRequest(), util.Now())
	if res.Obs.Source != "backup" {
		t.Fatalf("expected backup to serve, got %s", res.Obs.Source)
	}
	if !strings.Contains(res.Obs.Notes, "parse_failed:primary,unavailable") {
		t.Fatalf("missing unavailable note, got %q", res.Obs.Notes)
	}
}

func TestResolveAllBuildsSnapshotAndSeries(t *testing.T) {
	primary := &fakeAdapter{name: "primary", series: dailySeries(5, 100)}
	r := NewFallbackResolver([]sources.Adapter{primary}, 4, time.Second, newStubMetrics(), testLogger(t))

	reqs := []catalog.Request{
		{Asset: "kospi", Key: "close", Window: "1d", Chain: []string{"primary"}},
		{Asset: "usdkrw", Key: "close", Window: "1d", Chain: []string{"primary"}},
		{Asset: "kospi", Key: "hv30", Window: "30d", Derive: &catalog.Derive{Fn: "realized_vol"}},
	}
	snap, series, err := r.ResolveAll(context.Background(), reqs, util.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("derived requests must be skipped, got %d rows", snap.Len())
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 raw series, got %d", len(series))
	}
	if _, ok := snap.Get(models.ObsKey{Asset: "kospi", Key: "hv30", Window: "30d"}); ok {
		t.Fatalf("derived key must not be resolved by the chain")
	}
}
