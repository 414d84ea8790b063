package sources

import (
	"context"
	"errors"
	"testing"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
)

type flakyAdapter struct {
	name  string
	err   error
	calls int
}

func (f *flakyAdapter) Name() string { return f.name }

func (f *flakyAdapter) Attempt(_ context.Context, _ catalog.Request) (models.Series, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return models.Series{{Value: 1}}, nil
}

func TestGuardPassesThroughSuccess(t *testing.T) {
	inner := &flakyAdapter{name: "vendor"}
	g := NewGuard(inner, 100, 10)

	s, err := g.Attempt(context.Background(), catalog.Request{Asset: "wti", Key: "price"})
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if len(s) != 1 {
		t.Fatalf("expected passthrough series, got %d points", len(s))
	}
	if g.Name() != "vendor" {
		t.Fatalf("expected inner name, got %q", g.Name())
	}
}

func TestGuardOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyAdapter{name: "vendor", err: ErrMalformedPayload}
	g := NewGuard(inner, 1000, 100)
	req := catalog.Request{Asset: "wti", Key: "price"}

	for i := 0; i < 5; i++ {
		if _, err := g.Attempt(context.Background(), req); err == nil {
			t.Fatalf("attempt %d: expected failure", i)
		}
	}
	callsBefore := inner.calls

	_, err := g.Attempt(context.Background(), req)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable after breaker opened, got %v", err)
	}
	if inner.calls != callsBefore {
		t.Fatal("expected open breaker to skip the inner adapter")
	}
}

func TestGuardHonorsCancelledContext(t *testing.T) {
	inner := &flakyAdapter{name: "vendor"}
	g := NewGuard(inner, 0.001, 1)
	req := catalog.Request{Asset: "wti", Key: "price"}

	// first call consumes the burst token
	if _, err := g.Attempt(context.Background(), req); err != nil {
		t.Fatalf("first attempt failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Attempt(ctx, req); err == nil {
		t.Fatal("expected error waiting on cancelled context")
	}
}
