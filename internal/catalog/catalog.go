// Package catalog holds the static asset universe: asset to category mapping,
// per-category revision thresholds, the tracked request set and the wide
// history layout. It is loaded once per run and never mutated afterwards.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"MarketPull/internal/domain/models"
)

// Category groups assets sharing one revision threshold.
type Category string

const (
	CategoryIndex     Category = "index"
	CategoryRates     Category = "rates"
	CategoryFX        Category = "fx"
	CategoryCommodity Category = "commodity"
	CategoryHVCorr    Category = "hv_corr"
)

func (c Category) valid() bool {
	switch c {
	case CategoryIndex, CategoryRates, CategoryFX, CategoryCommodity, CategoryHVCorr:
		return true
	}
	return false
}

// Request is one tracked (asset, key, window) data point and how to obtain
// it: either fetched through an adapter chain or derived from already
// resolved series.
type Request struct {
	Asset     string            `yaml:"asset"`
	Key       string            `yaml:"key"`
	Window    string            `yaml:"window"`
	Unit      string            `yaml:"unit"`
	Mandatory bool              `yaml:"mandatory"`
	Chain     []string          `yaml:"chain"`   // adapter names, priority order
	Symbols   map[string]string `yaml:"symbols"` // adapter name -> upstream symbol
	Periods   int               `yaml:"periods"` // series length to request
	Derive    *Derive           `yaml:"derive"`  // set for computed indicators
}

// Ref points at another tracked request.
type Ref struct {
	Asset  string `yaml:"asset"`
	Key    string `yaml:"key"`
	Window string `yaml:"window"`
}

// ID returns the snapshot key the reference resolves to.
func (r Ref) ID() models.ObsKey {
	return models.ObsKey{Asset: r.Asset, Key: r.Key, Window: r.Window}
}

// Derive describes a computed indicator. Fn selects the formula; Source (and
// Other, for two-series formulas) name the input series. The breadth formula
// reads the conventional advance/decline keys of the Source asset instead.
type Derive struct {
	Fn      string `yaml:"fn"` // realized_vol, rolling_corr, breadth, basis, spread, simple_return, bp_change, pct_change
	Source  Ref    `yaml:"source"`
	Other   Ref    `yaml:"other"`
	Periods int    `yaml:"periods"`
}

// ID returns the snapshot key the request resolves into.
func (r Request) ID() models.ObsKey {
	return models.ObsKey{Asset: r.Asset, Key: r.Key, Window: r.Window}
}

// HistoryColumn maps one (asset, key) pair onto a wide history column, with
// an optional accepted value range. Out-of-range values are left blank.
type HistoryColumn struct {
	Asset  string   `yaml:"asset"`
	Key    string   `yaml:"key"`
	Window string   `yaml:"window"`
	Column string   `yaml:"column"`
	Min    *float64 `yaml:"min"`
	Max    *float64 `yaml:"max"`
}

// InRange reports whether v passes the column's validators.
func (h HistoryColumn) InRange(v float64) bool {
	if h.Min != nil && v < *h.Min {
		return false
	}
	if h.Max != nil && v > *h.Max {
		return false
	}
	return true
}

type file struct {
	Thresholds map[Category]float64 `yaml:"thresholds"`
	Assets     map[string]Category  `yaml:"assets"`
	Requests   []Request            `yaml:"requests"`
	History    []HistoryColumn      `yaml:"history"`
}

// Catalog is the immutable lookup structure built once per run.
type Catalog struct {
	thresholds map[Category]float64
	assets     map[string]Category
	requests   []Request
	history    []HistoryColumn
}

// Load reads and validates a catalog YAML file.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse builds a catalog from YAML bytes.
func Parse(b []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if len(f.Thresholds) == 0 {
		return nil, fmt.Errorf("catalog: thresholds are required")
	}
	for cat := range f.Thresholds {
		if !cat.valid() {
			return nil, fmt.Errorf("catalog: unknown category %q", cat)
		}
	}
	for asset, cat := range f.Assets {
		if !cat.valid() {
			return nil, fmt.Errorf("catalog: asset %s has unknown category %q", asset, cat)
		}
		if _, ok := f.Thresholds[cat]; !ok {
			return nil, fmt.Errorf("catalog: category %q has no threshold", cat)
		}
	}
	for i, r := range f.Requests {
		if r.Asset == "" || r.Key == "" {
			return nil, fmt.Errorf("catalog: request %d missing asset or key", i)
		}
		if _, ok := f.Assets[r.Asset]; !ok {
			return nil, fmt.Errorf("catalog: request %s/%s references unmapped asset", r.Asset, r.Key)
		}
		if len(r.Chain) == 0 && r.Derive == nil {
			return nil, fmt.Errorf("catalog: request %s/%s has neither chain nor derive", r.Asset, r.Key)
		}
	}

	return &Catalog{
		thresholds: f.Thresholds,
		assets:     f.Assets,
		requests:   f.Requests,
		history:    f.History,
	}, nil
}

// Category returns the category for an asset.
func (c *Catalog) Category(asset string) (Category, bool) {
	cat, ok := c.assets[asset]
	return cat, ok
}

// Threshold returns the revision threshold for an asset's category. Unmapped
// assets fall back to the hv_corr threshold, the tightest default.
func (c *Catalog) Threshold(asset string) float64 {
	if cat, ok := c.assets[asset]; ok {
		if thr, ok := c.thresholds[cat]; ok {
			return thr
		}
	}
	return c.thresholds[CategoryHVCorr]
}

// Requests returns the tracked request set in file order.
func (c *Catalog) Requests() []Request {
	return c.requests
}

// MandatoryKeys returns the snapshot keys that count toward coverage.
func (c *Catalog) MandatoryKeys() []models.ObsKey {
	keys := make([]models.ObsKey, 0, len(c.requests))
	for _, r := range c.requests {
		if r.Mandatory {
			keys = append(keys, r.ID())
		}
	}
	return keys
}

// HistoryColumns returns the wide history layout in file order.
func (c *Catalog) HistoryColumns() []HistoryColumn {
	return c.history
}
