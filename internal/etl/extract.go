package etl

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/fetcher"
	"github.com/deckhaven/cardsync/internal/model"
)

// snapshotLine is one price-extractor output record: a uuid plus its
// latest-date-only price snapshot.
type snapshotLine struct {
	UUID   string             `json:"uuid"`
	Prices model.PriceHistory `json:"prices"`
}

// Extract streams the price feed restricted to the uuids the filter kept,
// reducing each entry's ~90 days of history to the single most recent point
// per (vendor, transaction-type, finish). History still accumulates in
// storage, so per-run output stays bounded no matter how deep the feed runs.
type Extract struct{}

func (s *Extract) Name() string { return "extract" }

func (s *Extract) Run(ctx context.Context, env *Env) (*StageResult, error) {
	log := zap.L().With(zap.String("stage", s.Name()))

	admissible, err := loadAdmissible(env.path(artifactCards))
	if err != nil {
		return nil, err
	}
	log.Info("admissible set loaded", zap.Int("uuids", len(admissible)))

	feed, err := os.Open(env.path(artifactPricesFeed))
	if err != nil {
		return nil, eris.Wrap(err, "extract: open prices feed")
	}
	defer feed.Close() //nolint:errcheck

	out, err := NewLineWriter(env.path(artifactSnapshots))
	if err != nil {
		return nil, err
	}

	vendors := model.VendorSet()
	finishes := model.FinishSet()
	var processed, malformed int64

	entries, errCh := fetcher.DecodeJSONMap[json.RawMessage](ctx, feed)
	for entry := range entries {
		processed++

		if !admissible[entry.Key] {
			continue
		}

		history, err := model.ParsePriceHistory(entry.Value)
		if err != nil {
			// Quarantine the entry rather than join half-validated prices.
			malformed++
			log.Warn("rejecting malformed price entry",
				zap.String("uuid", entry.Key),
				zap.Error(err),
			)
			continue
		}

		snapshot := history.Latest(vendors, finishes)
		if len(snapshot) == 0 {
			continue
		}
		if err := out.Write(snapshotLine{UUID: entry.Key, Prices: snapshot}); err != nil {
			_ = out.Close()
			return nil, err
		}
	}
	if err := <-errCh; err != nil {
		_ = out.Close()
		return nil, eris.Wrap(err, "extract: prices feed")
	}

	if err := out.Close(); err != nil {
		return nil, err
	}

	log.Info("extract complete",
		zap.Int64("processed", processed),
		zap.Int64("kept", out.Count()),
		zap.Int64("malformed", malformed),
	)
	return &StageResult{
		Rows:     out.Count(),
		Skipped:  malformed,
		Metadata: map[string]any{"processed": processed},
	}, nil
}

// loadAdmissible reads the filter artifact into a uuid membership set. Bounded
// by the filtered card count, far smaller than the raw price feed.
func loadAdmissible(path string) (map[string]bool, error) {
	r, err := NewLineReader(path)
	if err != nil {
		return nil, eris.Wrap(err, "extract: open filter output")
	}
	defer r.Close() //nolint:errcheck

	admissible := make(map[string]bool)
	for {
		line, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		uuid, err := lineKey(line)
		if err != nil {
			return nil, eris.Wrap(err, "extract: filter output corrupt")
		}
		admissible[uuid] = true
	}
	return admissible, nil
}
