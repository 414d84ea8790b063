// Package sources implements the fetch strategies behind the fallback chain:
// the primary exchange API, the backup vendor API, web-scrape parsers and a
// deterministic simulation source. Adapters only fetch; quality and
// provenance are assigned by the resolver.
package sources

import (
	"context"
	"errors"
	"fmt"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
)

// Adapter attempts to fetch one ordered series for a tracked request. It
// either succeeds or fails with a classifiable reason; it never fabricates
// data.
type Adapter interface {
	Name() string
	Attempt(ctx context.Context, req catalog.Request) (models.Series, error)
}

// Failure reasons recorded in the observation's notes chain.
var (
	ErrTimeout          = errors.New("timeout")
	ErrAuthFailure      = errors.New("auth_failed")
	ErrMalformedPayload = errors.New("malformed_payload")
	ErrEmptyResult      = errors.New("empty_result")
	ErrUnavailable      = errors.New("unavailable")
)

// Reason maps an attempt error onto its note token. Unknown errors collapse
// to malformed_payload so the chain note stays machine-readable.
func Reason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrAuthFailure):
		return "auth_failed"
	case errors.Is(err, ErrEmptyResult):
		return "empty_result"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "malformed_payload"
	}
}

// FailNote formats one failed step of the fallback chain.
func FailNote(source string, err error) string {
	return fmt.Sprintf("parse_failed:%s,%s", source, Reason(err))
}

// symbolFor returns the upstream symbol a request maps to for one adapter.
func symbolFor(req catalog.Request, adapter string) (string, error) {
	sym, ok := req.Symbols[adapter]
	if !ok || sym == "" {
		return "", fmt.Errorf("%w: no %s symbol for %s/%s", ErrUnavailable, adapter, req.Asset, req.Key)
	}
	return sym, nil
}

// periodsOr returns the requested series length with a default.
func periodsOr(req catalog.Request, def int) int {
	if req.Periods > 0 {
		return req.Periods
	}
	return def
}
