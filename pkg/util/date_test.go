package util

import (
	"testing"
	"time"
)

func TestParseLocalDateCompact(t *testing.T) {
	got, err := ParseLocalDate("20240501")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 5, 1, 0, 0, 0, 0, Local)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseLocalDateDashed(t *testing.T) {
	got, err := ParseLocalDate("2024-05-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if DateKey(got) != "20240501" {
		t.Fatalf("unexpected date key %s", DateKey(got))
	}
}

func TestParseLocalDateInvalid(t *testing.T) {
	if _, err := ParseLocalDate("May 1st"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTSRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 15, 30, 0, 0, Local)
	got, err := ParseTS(FormatTS(ts))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(ts) {
		t.Fatalf("got %v want %v", got, ts)
	}
}

func TestLocalIsFixedOffset(t *testing.T) {
	_, offset := Now().Zone()
	if offset != 9*60*60 {
		t.Fatalf("expected fixed +9h offset, got %d", offset)
	}
}
