package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"MarketPull/pkg/cache"
	pkghttp "MarketPull/pkg/http"
)

func tokenServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		if r.PostFormValue("appkey") == "" || r.PostFormValue("appsecret") == "" {
			http.Error(w, "missing credentials", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-1",
			"expires_in":   3600,
		})
	}))
}

func newTestSession(url string) *Session {
	return NewSession(Config{
		Mode:          ModeLive,
		TokenURL:      url,
		AppKey:        "key",
		AppSecret:     "secret",
		RefreshMargin: time.Minute,
	}, pkghttp.NewClient(pkghttp.WithTimeout(5*time.Second)), cache.NewMemoryCache())
}

func TestTokenFetchedOnceWhileValid(t *testing.T) {
	var hits int32
	srv := tokenServer(t, &hits)
	defer srv.Close()

	s := newTestSession(srv.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tok, err := s.Token(ctx)
		if err != nil {
			t.Fatalf("token call %d failed: %v", i, err)
		}
		if tok != "tok-1" {
			t.Fatalf("unexpected token %q", tok)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected 1 upstream refresh, got %d", got)
	}
}

func TestInvalidateForcesRefresh(t *testing.T) {
	var hits int32
	srv := tokenServer(t, &hits)
	defer srv.Close()

	s := newTestSession(srv.URL)
	ctx := context.Background()

	if _, err := s.Token(ctx); err != nil {
		t.Fatalf("first token failed: %v", err)
	}
	s.Invalidate(ctx)
	if _, err := s.Token(ctx); err != nil {
		t.Fatalf("second token failed: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Fatalf("expected 2 upstream refreshes, got %d", got)
	}
}

func TestSimulationModeIsNeverLive(t *testing.T) {
	s := NewSession(Config{
		Mode:      ModeSimulation,
		AppKey:    "key",
		AppSecret: "secret",
	}, pkghttp.NewClient(), cache.NewMemoryCache())

	if s.Live() {
		t.Fatal("simulation session must not report live")
	}
	if _, err := s.Token(context.Background()); err == nil {
		t.Fatal("expected token request to fail in simulation mode")
	}
}

func TestAutoModeNeedsBothCredentials(t *testing.T) {
	s := NewSession(Config{Mode: ModeAuto, AppKey: "key"}, pkghttp.NewClient(), cache.NewMemoryCache())
	if s.Live() {
		t.Fatal("auto mode without a secret must not be live")
	}

	s = NewSession(Config{Mode: ModeAuto, AppKey: "key", AppSecret: "secret"}, pkghttp.NewClient(), cache.NewMemoryCache())
	if !s.Live() {
		t.Fatal("auto mode with both credentials must be live")
	}
}
