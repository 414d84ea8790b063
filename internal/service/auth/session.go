// Package auth owns the exchange credential pair and the cached bearer
// token shared by all concurrent fetches.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"MarketPull/pkg/cache"
	pkghttp "MarketPull/pkg/http"
)

// Run modes. In auto mode the session goes live exactly when both credentials
// are present; missing credentials make the primary adapter unavailable and
// the chain falls through.
const (
	ModeLive       = "live"
	ModeSimulation = "simulation"
	ModeAuto       = "auto"
)

const tokenCacheKey = "exchange_token"

// Token is a bearer token with its absolute expiry.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (t Token) valid(margin time.Duration) bool {
	return t.AccessToken != "" && time.Now().Add(margin).Before(t.ExpiresAt)
}

// Config carries the session settings. Credentials arrive resolved from the
// environment; the session never reads env vars itself.
type Config struct {
	Mode          string
	TokenURL      string
	AppKey        string
	AppSecret     string
	RefreshMargin time.Duration
}

// Session is the explicitly-owned shared authentication state. Refresh is
// single-flight-guarded: at most one concurrent token request per process,
// with the result fanned out to all waiters. Reads after refresh hit the
// in-memory copy without further synchronization beyond the RWMutex.
type Session struct {
	cfg    Config
	client *pkghttp.Client
	store  cache.Service
	group  singleflight.Group

	mu    sync.RWMutex
	token Token
}

// NewSession creates a session backed by the given HTTP client and token
// cache. The cache may span processes (Redis) so parallel runners share one
// refresh.
func NewSession(cfg Config, client *pkghttp.Client, store cache.Service) *Session {
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = 2 * time.Minute
	}
	return &Session{cfg: cfg, client: client, store: store}
}

// Live reports whether the primary exchange adapter can be used.
func (s *Session) Live() bool {
	switch s.cfg.Mode {
	case ModeSimulation:
		return false
	default:
		return s.cfg.AppKey != "" && s.cfg.AppSecret != ""
	}
}

// Token returns a valid bearer token, refreshing it when needed.
func (s *Session) Token(ctx context.Context) (string, error) {
	if !s.Live() {
		return "", fmt.Errorf("auth: session not live (mode=%s)", s.cfg.Mode)
	}

	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()
	if tok.valid(s.cfg.RefreshMargin) {
		return tok.AccessToken, nil
	}

	v, err, _ := s.group.Do(tokenCacheKey, func() (interface{}, error) {
		// another waiter may have refreshed while we queued
		s.mu.RLock()
		cur := s.token
		s.mu.RUnlock()
		if cur.valid(s.cfg.RefreshMargin) {
			return cur, nil
		}

		if cached, ok := s.fromCache(ctx); ok {
			s.setToken(cached)
			return cached, nil
		}

		fresh, err := s.requestToken(ctx)
		if err != nil {
			return Token{}, err
		}
		s.setToken(fresh)
		s.toCache(ctx, fresh)
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v.(Token).AccessToken, nil
}

// Invalidate drops the cached token, forcing the next call to refresh.
func (s *Session) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.token = Token{}
	s.mu.Unlock()
	if s.store != nil {
		_ = s.store.Delete(ctx, tokenCacheKey)
	}
}

func (s *Session) setToken(t Token) {
	s.mu.Lock()
	s.token = t
	s.mu.Unlock()
}

func (s *Session) fromCache(ctx context.Context) (Token, bool) {
	if s.store == nil {
		return Token{}, false
	}
	var raw string
	if err := s.store.Get(ctx, tokenCacheKey, &raw); err != nil {
		return Token{}, false
	}
	var tok Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return Token{}, false
	}
	if !tok.valid(s.cfg.RefreshMargin) {
		return Token{}, false
	}
	return tok, true
}

func (s *Session) toCache(ctx context.Context, tok Token) {
	if s.store == nil {
		return
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return
	}
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return
	}
	_ = s.store.Set(ctx, tokenCacheKey, string(b), ttl)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (s *Session) requestToken(ctx context.Context) (Token, error) {
	var resp tokenResponse
	err := s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    s.cfg.TokenURL,
		Body: map[string]string{
			"grant_type": "client_credentials",
			"appkey":     s.cfg.AppKey,
			"appsecret":  s.cfg.AppSecret,
		},
	}, &resp)
	if err != nil {
		return Token{}, fmt.Errorf("auth: token request: %w", err)
	}
	if resp.AccessToken == "" {
		return Token{}, fmt.Errorf("auth: token response missing access_token")
	}
	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	// renew one minute early so in-flight requests never carry a dying token
	return Token{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(expiresIn-60) * time.Second),
	}, nil
}
