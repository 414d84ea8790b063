package usecase

import (
	"context"
	"fmt"
	"time"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
	drepo "MarketPull/internal/domain/repository"
	"MarketPull/internal/service/indicator"
	"MarketPull/pkg/logger"
	"MarketPull/pkg/util"
)

// MinCoverage is the mandatory-key coverage a run must reach to count as
// successful. Exactly the minimum passes.
const MinCoverage = 0.80

// SourceDerived tags observations computed locally from resolved series.
const SourceDerived = "derived"

// CoverageError reports a run that persisted its artifacts but resolved too
// few mandatory keys. Callers map it onto the degraded exit status.
type CoverageError struct {
	Phase string
	Ratio float64
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("%s coverage %.2f below %.2f", e.Phase, e.Ratio, MinCoverage)
}

// Runner drives the two daily phases end to end: resolve, derive, persist,
// and in the afternoon reconcile into the confirmed record.
type Runner struct {
	cat       *catalog.Catalog
	resolver  *FallbackResolver
	recon     *Reconciler
	store     drepo.SnapshotStore
	mirror    drepo.Mirror
	publisher drepo.Publisher
	runlog    drepo.RunLog
	metrics   drepo.Metrics
	log       *logger.Logger
	now       func() time.Time
}

// NewRunner wires the pipeline. mirror, publisher and runlog may be nil;
// they are best-effort sinks and never fail a run.
func NewRunner(
	cat *catalog.Catalog,
	resolver *FallbackResolver,
	recon *Reconciler,
	store drepo.SnapshotStore,
	mirror drepo.Mirror,
	publisher drepo.Publisher,
	runlog drepo.RunLog,
	metrics drepo.Metrics,
	log *logger.Logger,
) *Runner {
	return &Runner{
		cat:       cat,
		resolver:  resolver,
		recon:     recon,
		store:     store,
		mirror:    mirror,
		publisher: publisher,
		runlog:    runlog,
		metrics:   metrics,
		log:       log,
		now:       util.Now,
	}
}

// RunSnapshot executes the morning phase: resolve everything, compute derived
// indicators and persist the provisional snapshot.
func (r *Runner) RunSnapshot(ctx context.Context) error {
	start := r.now()
	day := util.DayStart(start)

	snap, series, err := r.acquire(ctx, start)
	if err != nil {
		r.recordEvent(ctx, day, models.PhaseMorning, start, nil, err)
		return err
	}

	if err := r.persistSnapshot(ctx, day, snap, series); err != nil {
		r.recordEvent(ctx, day, models.PhaseMorning, start, snap, err)
		return err
	}

	return r.finish(ctx, day, models.PhaseMorning, start, snap)
}

// RunReconcile executes the afternoon phase: resolve again, reconcile against
// the morning snapshot, and persist the confirmed record, rolling history and
// index.
func (r *Runner) RunReconcile(ctx context.Context) error {
	start := r.now()
	day := util.DayStart(start)

	pm, series, err := r.acquire(ctx, start)
	if err != nil {
		r.recordEvent(ctx, day, models.PhaseAfternoon, start, nil, err)
		return err
	}

	morning, err := r.store.LoadDaily(ctx, day)
	if err != nil {
		r.recordEvent(ctx, day, models.PhaseAfternoon, start, pm, err)
		return fmt.Errorf("load morning snapshot: %w", err)
	}
	final := r.recon.Reconcile(morning, pm)

	if err := r.persistSnapshot(ctx, day, final, series); err != nil {
		r.recordEvent(ctx, day, models.PhaseAfternoon, start, final, err)
		return err
	}

	rec := r.historyRecord(day, final)
	if err := r.store.ReplaceLatest(ctx, rec); err != nil {
		err = fmt.Errorf("replace latest: %w", err)
		r.recordEvent(ctx, day, models.PhaseAfternoon, start, final, err)
		return err
	}
	if err := r.store.UpsertHistory(ctx, rec); err != nil {
		err = fmt.Errorf("upsert history: %w", err)
		r.recordEvent(ctx, day, models.PhaseAfternoon, start, final, err)
		return err
	}

	if stale, err := r.store.StaleRawPartitions(ctx, start); err != nil {
		r.log.Warn("stale partition scan failed", logger.Error(err))
	} else if len(stale) > 0 {
		r.log.Info("raw partitions past retention", logger.Int("count", len(stale)))
	}

	if r.mirror != nil {
		if err := r.mirror.MirrorHistory(ctx, rec); err != nil {
			r.log.Warn("history mirror failed", logger.Error(err))
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishFinal(ctx, finalRows(final)); err != nil {
			r.log.Warn("final publish failed", logger.Error(err))
		}
	}

	return r.finish(ctx, day, models.PhaseAfternoon, start, final)
}

// acquire resolves every chained request and layers the derived indicators on
// top.
func (r *Runner) acquire(ctx context.Context, at time.Time) (*models.Snapshot, map[models.ObsKey]models.Series, error) {
	snap, series, err := r.resolver.ResolveAll(ctx, r.cat.Requests(), at)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve: %w", err)
	}
	for _, req := range r.cat.Requests() {
		if req.Derive == nil {
			continue
		}
		snap.Put(r.derive(req, snap, series, at))
	}
	return snap, series, nil
}

func (r *Runner) persistSnapshot(ctx context.Context, day time.Time, snap *models.Snapshot, series map[models.ObsKey]models.Series) error {
	if err := r.store.AppendRaw(ctx, day, rawRows(snap, series)); err != nil {
		return fmt.Errorf("append raw: %w", err)
	}
	if err := r.store.AppendDaily(ctx, day, snap); err != nil {
		return fmt.Errorf("append daily: %w", err)
	}
	if err := r.store.UpdateIndex(ctx, day); err != nil {
		return fmt.Errorf("update index: %w", err)
	}
	return nil
}

// finish records run metrics and the run-log event, then applies the coverage
// gate. The snapshot is already persisted by this point: a shortfall degrades
// the run, it does not undo it.
func (r *Runner) finish(ctx context.Context, day time.Time, phase string, start time.Time, snap *models.Snapshot) error {
	coverage := snap.Coverage(r.cat.MandatoryKeys())
	r.metrics.RecordCoverage(phase, coverage)
	r.metrics.RecordLatency(phase, r.now().Sub(start).Seconds())

	var runErr error
	if coverage < MinCoverage {
		runErr = &CoverageError{Phase: phase, Ratio: coverage}
	}
	r.recordEvent(ctx, day, phase, start, snap, runErr)

	r.log.Info("run complete",
		logger.String("phase", phase),
		logger.Any("coverage", coverage),
		logger.Int("rows", snap.Len()))
	return runErr
}

func (r *Runner) recordEvent(ctx context.Context, day time.Time, phase string, start time.Time, snap *models.Snapshot, runErr error) {
	if r.runlog == nil {
		return
	}
	e := models.RunEvent{
		Date:     day,
		Phase:    phase,
		Status:   "ok",
		Duration: r.now().Sub(start),
	}
	if snap != nil {
		e.Coverage = snap.Coverage(r.cat.MandatoryKeys())
		for _, row := range snap.Rows() {
			if row.Resolved() {
				e.Resolved++
			} else {
				e.Absent++
			}
		}
	}
	if runErr != nil {
		e.Status = "failed"
		e.Error = runErr.Error()
		if _, ok := runErr.(*CoverageError); ok {
			e.Status = "degraded"
		}
	}
	if err := r.runlog.Record(ctx, e); err != nil {
		r.log.Warn("run log write failed", logger.Error(err))
	}
}

// derive computes one catalog-configured indicator from already resolved
// inputs. A short or missing input series leaves the value absent with an
// insufficient_history note.
func (r *Runner) derive(req catalog.Request, snap *models.Snapshot, series map[models.ObsKey]models.Series, at time.Time) models.Observation {
	d := req.Derive
	obs := models.Observation{
		Timestamp: at,
		Asset:     req.Asset,
		Key:       req.Key,
		Window:    req.Window,
		Unit:      req.Unit,
		Source:    SourceDerived,
		Quality:   models.QualitySecondary,
	}

	src := series[d.Source.ID()]
	var (
		v      float64
		ok     bool
		inputs []models.ObsKey
	)
	switch d.Fn {
	case "realized_vol":
		v, ok = indicator.RealizedVol(src.Values(), derivePeriods(d, indicator.VolWindow))
		inputs = []models.ObsKey{d.Source.ID()}
	case "rolling_corr":
		v, ok = indicator.RollingCorr(src, series[d.Other.ID()], derivePeriods(d, indicator.CorrWindow))
		inputs = []models.ObsKey{d.Source.ID(), d.Other.ID()}
	case "breadth":
		var parts [4]float64
		ok = true
		for i, key := range [4]string{"advance", "decline", "adv_volume", "dec_volume"} {
			k := models.ObsKey{Asset: d.Source.Asset, Key: key, Window: d.Source.Window}
			inputs = append(inputs, k)
			in, found := snap.Get(k)
			if !found || !in.Resolved() {
				ok = false
				break
			}
			parts[i] = *in.Value
		}
		if ok {
			v, ok = indicator.BreadthRatio(parts[0], parts[1], parts[2], parts[3])
		}
	case "basis", "spread":
		a, aok := resolvedValue(snap, d.Source.ID())
		b, bok := resolvedValue(snap, d.Other.ID())
		if aok && bok {
			v, ok = indicator.Basis(a, b), true
		}
		inputs = []models.ObsKey{d.Source.ID(), d.Other.ID()}
	case "simple_return":
		v, ok = indicator.SimpleReturn(src.Values(), derivePeriods(d, 1))
		inputs = []models.ObsKey{d.Source.ID()}
	case "bp_change":
		v, ok = indicator.BPChange(src.Values())
		inputs = []models.ObsKey{d.Source.ID()}
	case "pct_change":
		v, ok = indicator.PctChange(src.Values())
		inputs = []models.ObsKey{d.Source.ID()}
	default:
		r.log.Error("unknown derive fn", logger.String("fn", d.Fn),
			logger.String("asset", req.Asset), logger.String("key", req.Key))
	}

	if !ok {
		obs.Notes = models.NoteInsufficientHistory
		return obs
	}
	obs.Value = models.Float(v)
	obs.Quality = inputQuality(snap, inputs)
	r.metrics.RecordResolved(req.Asset, req.Key, obs.Quality)
	return obs
}

// inputQuality propagates provenance: a derived value is primary only when
// every input came from the designated first source.
func inputQuality(snap *models.Snapshot, keys []models.ObsKey) string {
	for _, k := range keys {
		o, ok := snap.Get(k)
		if !ok || o.Quality != models.QualityPrimary {
			return models.QualitySecondary
		}
	}
	return models.QualityPrimary
}

func resolvedValue(snap *models.Snapshot, k models.ObsKey) (float64, bool) {
	o, ok := snap.Get(k)
	if !ok || !o.Resolved() {
		return 0, false
	}
	return *o.Value, true
}

func derivePeriods(d *catalog.Derive, def int) int {
	if d.Periods > 0 {
		return d.Periods
	}
	return def
}

// historyRecord projects the confirmed snapshot onto the wide history layout.
// Out-of-range values are left blank rather than carried.
func (r *Runner) historyRecord(day time.Time, snap *models.Snapshot) models.HistoryRecord {
	values := make(map[string]float64)
	srcs := make(map[string]bool)
	for _, col := range r.cat.HistoryColumns() {
		o, ok := snap.Get(models.ObsKey{Asset: col.Asset, Key: col.Key, Window: col.Window})
		if !ok || !o.Resolved() || !col.InRange(*o.Value) {
			continue
		}
		values[col.Column] = *o.Value
		if o.Source != "" {
			srcs[o.Source] = true
		}
	}

	tag := "mixed"
	switch len(srcs) {
	case 0:
		tag = "none"
	case 1:
		for s := range srcs {
			tag = s
		}
	}
	return models.HistoryRecord{Date: day, Values: values, SrcTag: tag, Quality: models.QualityFinal}
}

func finalRows(snap *models.Snapshot) []models.Observation {
	rows := make([]models.Observation, 0, snap.Len())
	for _, row := range snap.Rows() {
		if row.Quality == models.QualityFinal && row.Resolved() {
			rows = append(rows, row)
		}
	}
	return rows
}

func rawRows(snap *models.Snapshot, series map[models.ObsKey]models.Series) []models.RawSample {
	var rows []models.RawSample
	for _, k := range snap.Keys() {
		s, ok := series[k]
		if !ok {
			continue
		}
		o, _ := snap.Get(k)
		rows = append(rows, models.RawSamples(o, s)...)
	}
	return rows
}
