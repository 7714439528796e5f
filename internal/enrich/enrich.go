package enrich

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/store"
)

// Lookup resolves a catalog id to an image URL.
type Lookup interface {
	LookupImage(ctx context.Context, catalogID string) (string, error)
}

// Stats summarizes one enrichment pass.
type Stats struct {
	Scanned  int `json:"scanned"`
	Resolved int `json:"resolved"`
	Cached   int `json:"cached"`
	Missing  int `json:"missing"`
	Failed   int `json:"failed"`
}

// Enricher walks cards still carrying the placeholder image and resolves
// their real image URLs.
type Enricher struct {
	store  store.Store
	lookup Lookup
	cache  *Cache
	limit  int
}

// New builds an Enricher. cache may be nil to disable local caching.
func New(st store.Store, lookup Lookup, cache *Cache, batchLimit int) *Enricher {
	if batchLimit <= 0 {
		batchLimit = 500
	}
	return &Enricher{store: st, lookup: lookup, cache: cache, limit: batchLimit}
}

// Run performs one enrichment pass. Individual lookup failures are logged and
// skipped so one bad card never aborts the pass; those cards stay on the
// placeholder and surface again next run.
func (e *Enricher) Run(ctx context.Context) (Stats, error) {
	log := zap.L().With(zap.String("component", "enrich"))
	var stats Stats
	attempted := make(map[string]bool)

	for {
		// Grow the window past cards already attempted this pass so a run of
		// permanent failures at the front cannot starve the rest.
		want := e.limit + len(attempted)
		cards, err := e.store.MissingImages(ctx, want)
		if err != nil {
			return stats, err
		}

		for _, card := range cards {
			if attempted[card.UUID] {
				continue
			}
			attempted[card.UUID] = true
			stats.Scanned++

			if err := ctx.Err(); err != nil {
				return stats, eris.Wrap(err, "enrich: pass cancelled")
			}

			url, fromCache, err := e.resolve(ctx, card.ScryfallID)
			switch {
			case eris.Is(err, ErrNotFound):
				stats.Missing++
				log.Debug("card absent from catalog",
					zap.String("uuid", card.UUID),
					zap.String("catalog_id", card.ScryfallID))
				continue
			case err != nil:
				stats.Failed++
				log.Warn("image lookup failed",
					zap.String("uuid", card.UUID),
					zap.String("name", card.Name),
					zap.Error(err))
				continue
			}

			if err := e.store.SetImageURL(ctx, card.UUID, url); err != nil {
				stats.Failed++
				log.Warn("store image url failed", zap.String("uuid", card.UUID), zap.Error(err))
				continue
			}
			stats.Resolved++
			if fromCache {
				stats.Cached++
			}
		}

		// A short fetch means every remaining placeholder has been attempted.
		if len(cards) < want {
			break
		}
	}

	log.Info("enrichment pass complete",
		zap.Int("scanned", stats.Scanned),
		zap.Int("resolved", stats.Resolved),
		zap.Int("cached", stats.Cached),
		zap.Int("missing", stats.Missing),
		zap.Int("failed", stats.Failed))
	return stats, nil
}

// resolve consults the cache before the network and back-fills it on a hit.
func (e *Enricher) resolve(ctx context.Context, catalogID string) (string, bool, error) {
	if e.cache != nil {
		if url, ok, err := e.cache.Get(ctx, catalogID); err != nil {
			zap.L().Warn("enrich: cache read failed", zap.Error(err))
		} else if ok {
			return url, true, nil
		}
	}

	url, err := e.lookup.LookupImage(ctx, catalogID)
	if err != nil {
		return "", false, err
	}

	if e.cache != nil {
		if err := e.cache.Put(ctx, catalogID, url); err != nil {
			zap.L().Warn("enrich: cache write failed", zap.Error(err))
		}
	}
	return url, false, nil
}
