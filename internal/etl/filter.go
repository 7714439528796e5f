package etl

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/fetcher"
	"github.com/deckhaven/cardsync/internal/model"
)

// rawIdentifier is the slice of a feed entry the filter cares about. The feed
// carries dozens more fields per printing; they never leave this stage.
type rawIdentifier struct {
	Name        string `json:"name"`
	SetCode     string `json:"setCode"`
	Language    string `json:"language"`
	Identifiers struct {
		ScryfallID string `json:"scryfallId"`
	} `json:"identifiers"`
	PurchaseURLs map[string]string `json:"purchaseUrls"`
}

// Filter streams the identifiers feed and writes one minimal card line per
// entry that matches the canonical language and carries every required field.
// A malformed feed document is fatal; there is no per-entry recovery because
// entries come out of a structured decode.
type Filter struct{}

func (s *Filter) Name() string { return "filter" }

func (s *Filter) Run(ctx context.Context, env *Env) (*StageResult, error) {
	log := zap.L().With(zap.String("stage", s.Name()))

	feed, err := os.Open(env.path(artifactIdentifiersFeed))
	if err != nil {
		return nil, eris.Wrap(err, "filter: open identifiers feed")
	}
	defer feed.Close() //nolint:errcheck

	out, err := NewLineWriter(env.path(artifactCards))
	if err != nil {
		return nil, err
	}

	language := env.Cfg.Pipeline.Language
	var seen int64

	entries, errCh := fetcher.DecodeJSONMap[rawIdentifier](ctx, feed)
	for entry := range entries {
		seen++

		if entry.Value.Language != language {
			continue
		}
		card := model.Card{
			UUID:         entry.Key,
			Name:         entry.Value.Name,
			SetCode:      entry.Value.SetCode,
			Language:     entry.Value.Language,
			ScryfallID:   entry.Value.Identifiers.ScryfallID,
			PurchaseURLs: entry.Value.PurchaseURLs,
		}
		if !card.Valid() {
			continue
		}
		if err := out.Write(card); err != nil {
			_ = out.Close()
			return nil, err
		}
	}
	if err := <-errCh; err != nil {
		_ = out.Close()
		return nil, eris.Wrap(err, "filter: identifiers feed")
	}

	if err := out.Close(); err != nil {
		return nil, err
	}

	log.Info("filter complete",
		zap.Int64("seen", seen),
		zap.Int64("kept", out.Count()),
	)
	return &StageResult{
		Rows:    out.Count(),
		Skipped: seen - out.Count(),
	}, nil
}
