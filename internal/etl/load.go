package etl

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/model"
)

// Load consumes the merged artifact and upserts each card with its price
// history deep-merged into whatever is already stored. Identity fields are
// written only on first insert; the price tree is rewritten whole, so
// re-running with the same input converges to the same state.
//
// Failure policy: a single record's lookup or merge failure is logged with
// its uuid and skipped; the stage keeps going. A batch flush failure is fatal
// because it signals the database, not the data.
type Load struct{}

func (s *Load) Name() string { return "load" }

func (s *Load) Run(ctx context.Context, env *Env) (*StageResult, error) {
	log := zap.L().With(zap.String("stage", s.Name()))

	batchSize := env.Cfg.Pipeline.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	progressEvery := int64(env.Cfg.Pipeline.ProgressInterval)
	if progressEvery <= 0 {
		progressEvery = 5000
	}

	in, err := NewLineReader(env.path(artifactMerged))
	if err != nil {
		return nil, err
	}
	defer in.Close() //nolint:errcheck

	var processed, upserted, failed int64
	batch := make([]model.MergedCard, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := env.Store.UpsertCards(ctx, batch)
		if err != nil {
			return eris.Wrap(err, "load: flush batch")
		}
		upserted += n
		batch = batch[:0]
		return nil
	}

	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "load: cancelled")
		}

		line, err := in.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		processed++

		var merged model.MergedCard
		if err := json.Unmarshal(line, &merged); err != nil {
			failed++
			log.Warn("skipping undecodable merged record", zap.Error(err))
			continue
		}

		existing, err := env.Store.FindPrices(ctx, merged.UUID)
		if err != nil {
			failed++
			log.Warn("skipping record, price lookup failed",
				zap.String("uuid", merged.UUID),
				zap.Error(err),
			)
			continue
		}
		// No prior record: merge against the empty tree.
		merged.Prices = model.MergeHistory(existing, merged.Prices)

		batch = append(batch, merged)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}

		if processed%progressEvery == 0 {
			log.Info("load progress",
				zap.Int64("processed", processed),
				zap.Int64("upserted", upserted),
				zap.Int64("failed", failed),
			)
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	log.Info("load complete",
		zap.Int64("processed", processed),
		zap.Int64("upserted", upserted),
		zap.Int64("failed", failed),
	)
	return &StageResult{Rows: upserted, Skipped: failed}, nil
}
