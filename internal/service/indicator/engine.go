// Package indicator computes derived metrics from ordered raw series.
// Every function is deterministic and free of ambient state: identical input
// history always reproduces identical output.
package indicator

import (
	"math"

	"MarketPull/internal/domain/models"
)

const (
	// VolWindow is the trailing sample count for realized volatility.
	VolWindow = 30
	// CorrWindow is the trailing aligned-pair count for rolling correlation.
	CorrWindow = 20
	// tradingDaysPerYear annualizes daily volatility.
	tradingDaysPerYear = 252
)

// RealizedVol returns the annualized standard deviation of the trailing
// `window` log returns. It requires at least `window` samples; otherwise the
// second return is false and the caller records insufficient_history.
func RealizedVol(values []float64, window int) (float64, bool) {
	if window <= 0 || len(values) < window {
		return 0, false
	}

	returns := logReturns(values)
	if len(returns) > window {
		returns = returns[len(returns)-window:]
	}
	if len(returns) < 2 {
		return 0, false
	}

	sd, ok := sampleStdDev(returns)
	if !ok {
		return 0, false
	}
	return math.Sqrt(tradingDaysPerYear) * sd, true
}

// RollingCorr returns the Pearson correlation of the two return series over
// the trailing `window` timestamp-aligned points. Undefined when fewer than
// `window` aligned points exist or either side has zero variance.
func RollingCorr(a, b models.Series, window int) (float64, bool) {
	if window <= 0 {
		return 0, false
	}

	bByTime := make(map[int64]float64, len(b))
	for _, p := range b {
		bByTime[p.Time.Unix()] = p.Value
	}

	var xs, ys []float64
	for _, p := range a {
		if v, ok := bByTime[p.Time.Unix()]; ok {
			xs = append(xs, p.Value)
			ys = append(ys, v)
		}
	}
	if len(xs) < window {
		return 0, false
	}
	xs = xs[len(xs)-window:]
	ys = ys[len(ys)-window:]

	return pearson(xs, ys)
}

// BreadthRatio returns (advancing/declining issues) / (advancing/declining
// volume). Zero decliners or zero declining volume leave the ratio undefined
// rather than faulting.
func BreadthRatio(adv, dec, advVol, decVol float64) (float64, bool) {
	if dec == 0 || decVol == 0 {
		return 0, false
	}
	return (adv / dec) / (advVol / decVol), true
}

// Basis returns front-contract price minus spot price in native quoting units.
func Basis(futures, spot float64) float64 {
	return futures - spot
}

// SimpleReturn returns the percentage change over the trailing `periods`
// steps of the series.
func SimpleReturn(values []float64, periods int) (float64, bool) {
	if periods <= 0 || len(values) <= periods {
		return 0, false
	}
	base := values[len(values)-1-periods]
	if base == 0 {
		return 0, false
	}
	return values[len(values)-1]/base - 1, true
}

// BPChange returns the one-step change of a yield series in basis points.
func BPChange(values []float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	return (values[len(values)-1] - values[len(values)-2]) * 100, true
}

// PctChange returns the one-step percentage change of the series.
func PctChange(values []float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	prev := values[len(values)-2]
	if prev == 0 {
		return 0, false
	}
	return values[len(values)-1]/prev - 1, true
}

// SeriesChange returns the one-step absolute and percentage change, used for
// the change_abs / change_pct columns of spot observations.
func SeriesChange(values []float64) (abs, pct *float64) {
	if len(values) < 2 {
		return nil, nil
	}
	last, prev := values[len(values)-1], values[len(values)-2]
	abs = models.Float(last - prev)
	if prev != 0 {
		pct = models.Float(last/prev - 1)
	}
	return abs, pct
}

func logReturns(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 || values[i] <= 0 {
			continue
		}
		out = append(out, math.Log(values[i]/values[i-1]))
	}
	return out
}

func sampleStdDev(values []float64) (float64, bool) {
	n := len(values)
	if n < 2 {
		return 0, false
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	ss := 0.0
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1)), true
}

func pearson(xs, ys []float64) (float64, bool) {
	n := float64(len(xs))
	if n == 0 {
		return 0, false
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n

	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}
