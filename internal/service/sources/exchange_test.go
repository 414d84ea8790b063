package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MarketPull/internal/catalog"
	"MarketPull/internal/service/auth"
	"MarketPull/pkg/cache"
	pkghttp "MarketPull/pkg/http"
)

func exchangeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/tokenP", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
	})
	mux.HandleFunc("/daily", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"rt_cd":"0","output2":[
			{"stck_bsop_date":"20240430","bstp_nmix_prpr":"2650.5"},
			{"stck_bsop_date":"20240501","bstp_nmix_prpr":"2,700.0"},
			{"stck_bsop_date":"20240429","bstp_nmix_prpr":"2630.0"}
		]}`))
	})
	mux.HandleFunc("/breadth", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rt_cd":"0","output":{"ascn_issu_cnt":"512"}}`))
	})
	return httptest.NewServer(mux)
}

func newExchangeAdapter(baseURL string, series map[string]Endpoint) *ExchangeAdapter {
	client := pkghttp.NewClient(pkghttp.WithTimeout(5 * time.Second))
	session := auth.NewSession(auth.Config{
		Mode:      auth.ModeLive,
		TokenURL:  baseURL + "/oauth2/tokenP",
		AppKey:    "key",
		AppSecret: "secret",
	}, client, cache.NewMemoryCache())
	return NewExchangeAdapter(baseURL, session, client, series)
}

func TestExchangeParsesDailySeries(t *testing.T) {
	srv := exchangeServer(t)
	defer srv.Close()

	a := newExchangeAdapter(srv.URL, map[string]Endpoint{
		"0001": {Path: "/daily", ResultPath: "output2", DateField: "stck_bsop_date", ValueField: "bstp_nmix_prpr"},
	})
	s, err := a.Attempt(context.Background(), catalog.Request{
		Asset: "kospi", Key: "close", Window: "1d",
		Symbols: map[string]string{"exchange": "0001"},
	})
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if len(s) != 3 {
		t.Fatalf("expected 3 points, got %d", len(s))
	}
	for i := 1; i < len(s); i++ {
		if !s[i-1].Time.Before(s[i].Time) {
			t.Fatalf("series not sorted ascending at %d", i)
		}
	}
	last, _ := s.Last()
	if last.Value != 2700.0 {
		t.Fatalf("expected grouped-digit value 2700.0 last, got %v", last.Value)
	}
}

func TestExchangeParsesSnapshotObject(t *testing.T) {
	srv := exchangeServer(t)
	defer srv.Close()

	a := newExchangeAdapter(srv.URL, map[string]Endpoint{
		"0001-adv": {Path: "/breadth", ResultPath: "output", ValueField: "ascn_issu_cnt"},
	})
	s, err := a.Attempt(context.Background(), catalog.Request{
		Asset: "kospi", Key: "advance", Window: "1d",
		Symbols: map[string]string{"exchange": "0001-adv"},
	})
	if err != nil {
		t.Fatalf("attempt failed: %v", err)
	}
	if len(s) != 1 {
		t.Fatalf("expected 1 point, got %d", len(s))
	}
	if s[0].Value != 512 {
		t.Fatalf("expected 512, got %v", s[0].Value)
	}
}

func TestExchangeUnavailableWithoutCredentials(t *testing.T) {
	client := pkghttp.NewClient()
	session := auth.NewSession(auth.Config{Mode: auth.ModeAuto}, client, cache.NewMemoryCache())
	a := NewExchangeAdapter("http://unused", session, client, nil)

	_, err := a.Attempt(context.Background(), catalog.Request{
		Asset: "kospi", Key: "close",
		Symbols: map[string]string{"exchange": "0001"},
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestExchangeMissingSymbolIsUnavailable(t *testing.T) {
	srv := exchangeServer(t)
	defer srv.Close()

	a := newExchangeAdapter(srv.URL, nil)
	_, err := a.Attempt(context.Background(), catalog.Request{Asset: "kospi", Key: "close"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable for missing symbol, got %v", err)
	}
}
