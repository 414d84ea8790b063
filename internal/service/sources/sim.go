package sources

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
	"MarketPull/internal/service/auth"
	"MarketPull/pkg/util"
)

// SimAdapter produces a deterministic synthetic series for explicitly
// configured simulation runs. The shape depends only on (asset, key) and the
// anchor date, so re-running a phase reproduces identical output.
//
// Outside simulation mode every attempt reports unavailable: synthetic values
// must never stand in for failed live sources, an absent value is the correct
// outcome there.
type SimAdapter struct {
	mode   string
	anchor func() time.Time
}

// NewSimAdapter builds the simulation source for the given run mode. anchor
// may be nil; it then uses the current local date.
func NewSimAdapter(mode string, anchor func() time.Time) *SimAdapter {
	if anchor == nil {
		anchor = util.Now
	}
	return &SimAdapter{mode: mode, anchor: anchor}
}

func (a *SimAdapter) Name() string { return "sim" }

func (a *SimAdapter) Attempt(_ context.Context, req catalog.Request) (models.Series, error) {
	if a.mode != auth.ModeSimulation {
		return nil, fmt.Errorf("%w: simulation not configured", ErrUnavailable)
	}
	periods := periodsOr(req, 120)

	h := fnv.New64a()
	h.Write([]byte(req.Asset))
	h.Write([]byte{'/'})
	h.Write([]byte(req.Key))
	seed := h.Sum64()

	base := 50 + float64(seed%5000)
	amplitude := base * 0.01
	day := util.DayStart(a.anchor())

	series := make(models.Series, periods)
	for i := 0; i < periods; i++ {
		phase := float64(int(seed%13)+i) / 5.0
		series[i] = models.Point{
			Time:  day.AddDate(0, 0, i-periods+1),
			Value: base + amplitude*math.Sin(phase),
		}
	}
	return series, nil
}
