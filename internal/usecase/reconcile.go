package usecase

import (
	"math"

	"MarketPull/internal/catalog"
	"MarketPull/internal/domain/models"
	"MarketPull/pkg/logger"
)

// Reconciler confirms a day's values by comparing the afternoon snapshot
// against the morning one. The afternoon value is authoritative: resolved
// afternoon rows are promoted to final, and a move at or beyond the asset
// category's threshold is flagged as revised.
type Reconciler struct {
	cat *catalog.Catalog
	log *logger.Logger
}

// NewReconciler builds a reconciler over the catalog's thresholds.
func NewReconciler(cat *catalog.Catalog, log *logger.Logger) *Reconciler {
	return &Reconciler{cat: cat, log: log}
}

// Reconcile merges the two snapshots over the union of their keys. No key is
// ever dropped: rows only present in the morning run are kept unchanged and
// stay below final quality.
func (r *Reconciler) Reconcile(morning, afternoon *models.Snapshot) *models.Snapshot {
	out := models.NewSnapshot()

	seen := make(map[models.ObsKey]bool, afternoon.Len())
	for _, k := range afternoon.Keys() {
		seen[k] = true
		pm, _ := afternoon.Get(k)
		am, hasAM := morning.Get(k)

		if !pm.Resolved() {
			// Afternoon failed: fall back to the morning row when it has a
			// value, otherwise keep the afternoon failure record.
			if hasAM && am.Resolved() {
				out.Put(am)
			} else {
				out.Put(pm)
			}
			continue
		}

		final := pm
		final.Quality = models.QualityFinal
		if hasAM && am.Resolved() {
			if diff := math.Abs(*pm.Value - *am.Value); diff >= r.cat.Threshold(k.Asset) {
				final.Notes = models.NoteRevised
				r.log.Info("value revised",
					logger.String("asset", k.Asset),
					logger.String("key", k.Key),
					logger.Any("morning", *am.Value),
					logger.Any("afternoon", *pm.Value))
			}
		}
		out.Put(final)
	}

	for _, k := range morning.Keys() {
		if seen[k] {
			continue
		}
		am, _ := morning.Get(k)
		out.Put(am)
	}
	return out
}
