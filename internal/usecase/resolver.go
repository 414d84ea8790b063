package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
	drepo "MarketPull/internal/domain/repository"
	"MarketPull/internal/service/indicator"
	"MarketPull/internal/service/sources"
	"MarketPull/pkg/logger"
)

// Resolution is one resolver outcome: the observation written into the
// snapshot plus the raw series that backed it, kept for derived indicators
// and raw partitions.
type Resolution struct {
	Obs    models.Observation
	Series models.Series
}

// FallbackResolver walks each request's adapter chain in priority order and
// stops at the first success. Quality is primary only when the designated
// first source answered; every failed step is appended to the notes chain.
type FallbackResolver struct {
	adapters map[string]sources.Adapter
	workers  int
	timeout  time.Duration
	metrics  drepo.Metrics
	log      *logger.Logger
}

// NewFallbackResolver builds a resolver over the registered adapters.
// workers bounds concurrent requests; timeout bounds each single attempt.
func NewFallbackResolver(adapters []sources.Adapter, workers int, timeout time.Duration, metrics drepo.Metrics, log *logger.Logger) *FallbackResolver {
	byName := make(map[string]sources.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FallbackResolver{
		adapters: byName,
		workers:  workers,
		timeout:  timeout,
		metrics:  metrics,
		log:      log,
	}
}

// Resolve runs one request's chain. It never returns an error: an exhausted
// chain yields an absent observation carrying the full failure chain.
func (r *FallbackResolver) Resolve(ctx context.Context, req catalog.Request, at time.Time) Resolution {
	var notes []string

	for i, name := range req.Chain {
		adapter, ok := r.adapters[name]
		if !ok {
			notes = append(notes, sources.FailNote(name, sources.ErrUnavailable))
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		series, err := adapter.Attempt(attemptCtx, req)
		cancel()
		if err == nil && len(series) == 0 {
			err = sources.ErrEmptyResult
		}
		if err != nil {
			r.metrics.RecordAttempt(name, sources.Reason(err))
			notes = append(notes, sources.FailNote(name, err))
			r.log.Debug("source attempt failed",
				logger.String("source", name),
				logger.String("asset", req.Asset),
				logger.String("key", req.Key),
				logger.Error(err))
			continue
		}
		r.metrics.RecordAttempt(name, "ok")

		quality := models.QualitySecondary
		if i == 0 {
			quality = models.QualityPrimary
		}
		last, _ := series.Last()
		abs, pct := indicator.SeriesChange(series.Values())

		obs := models.Observation{
			Timestamp: at,
			Asset:     req.Asset,
			Key:       req.Key,
			Window:    req.Window,
			Value:     models.Float(last.Value),
			Unit:      req.Unit,
			ChangeAbs: abs,
			ChangePct: pct,
			Source:    name,
			Quality:   quality,
			Notes:     strings.Join(notes, ";"),
		}
		r.metrics.RecordResolved(req.Asset, req.Key, quality)
		return Resolution{Obs: obs, Series: series}
	}

	r.log.Warn("request unresolved",
		logger.String("asset", req.Asset),
		logger.String("key", req.Key),
		logger.String("notes", strings.Join(notes, ";")))
	return Resolution{Obs: models.Observation{
		Timestamp: at,
		Asset:     req.Asset,
		Key:       req.Key,
		Window:    req.Window,
		Unit:      req.Unit,
		Quality:   models.QualitySecondary,
		Notes:     strings.Join(notes, ";"),
	}}
}

// ResolveAll resolves every chained request through a bounded worker pool and
// returns the assembled snapshot plus the raw series per resolved key.
// Derived requests are skipped; they are computed after resolution.
func (r *FallbackResolver) ResolveAll(ctx context.Context, reqs []catalog.Request, at time.Time) (*models.Snapshot, map[models.ObsKey]models.Series, error) {
	snap := models.NewSnapshot()
	series := make(map[models.ObsKey]models.Series)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, req := range reqs {
		if req.Derive != nil {
			continue
		}
		req := req
		g.Go(func() error {
			res := r.Resolve(gctx, req, at)
			mu.Lock()
			snap.Put(res.Obs)
			if len(res.Series) > 0 {
				series[res.Obs.ID()] = res.Series
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return snap, series, nil
}
