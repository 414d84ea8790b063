package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
)

// Guard wraps a live adapter with a per-source rate limiter and circuit
// breaker so one failing upstream neither gets hammered nor stalls the pool.
type Guard struct {
	inner   Adapter
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuard wraps an adapter. rps limits sustained request rate; burst allows
// short spikes. The breaker opens after five consecutive failures and probes
// again after 30 seconds.
func NewGuard(inner Adapter, rps float64, burst int) *Guard {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &Guard{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    inner.Name(),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (g *Guard) Name() string { return g.inner.Name() }

func (g *Guard) Attempt(ctx context.Context, req catalog.Request) (models.Series, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", ErrTimeout, err)
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.Attempt(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return nil, err
	}
	return out.(models.Series), nil
}
