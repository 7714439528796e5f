package etl

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/model"
)

// Merge lockstep-joins the two uuid-sorted artifacts, emitting a merged record
// for exactly the uuids present on both sides. One pending record per side is
// the only state, so memory stays O(1) regardless of input size. Join equality
// is exact byte equality on the uuid; nothing is normalized.
//
// Correctness depends on both inputs being genuinely sorted by the same
// comparator. An unsorted input would silently drop matches, so each cursor
// asserts monotonicity and fails the stage on the first out-of-order line.
type Merge struct{}

func (s *Merge) Name() string { return "merge" }

// joinCursor walks one sorted artifact, exposing the current key and raw line.
type joinCursor struct {
	r    *LineReader
	side string
	key  string
	line []byte
	done bool
}

func newJoinCursor(path, side string) (*joinCursor, error) {
	r, err := NewLineReader(path)
	if err != nil {
		return nil, err
	}
	c := &joinCursor{r: r, side: side}
	if err := c.advance(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return c, nil
}

func (c *joinCursor) advance() error {
	line, err := c.r.Next()
	if err == io.EOF {
		c.done = true
		c.line = nil
		return nil
	}
	if err != nil {
		return err
	}
	key, err := lineKey(line)
	if err != nil {
		return eris.Wrapf(err, "merge: %s side", c.side)
	}
	if c.key != "" && key < c.key {
		return eris.Errorf("merge: %s side out of order: %q after %q", c.side, key, c.key)
	}
	copied := make([]byte, len(line))
	copy(copied, line)
	c.key = key
	c.line = copied
	return nil
}

func (c *joinCursor) close() { _ = c.r.Close() }

func (s *Merge) Run(ctx context.Context, env *Env) (*StageResult, error) {
	log := zap.L().With(zap.String("stage", s.Name()))

	cards, err := newJoinCursor(env.path(artifactCardsSorted), "card")
	if err != nil {
		return nil, err
	}
	defer cards.close()

	prices, err := newJoinCursor(env.path(artifactSnapshotsSorted), "price")
	if err != nil {
		return nil, err
	}
	defer prices.close()

	out, err := NewLineWriter(env.path(artifactMerged))
	if err != nil {
		return nil, err
	}

	var compared int64
	for !cards.done && !prices.done {
		if ctx.Err() != nil {
			_ = out.Close()
			return nil, eris.Wrap(ctx.Err(), "merge: cancelled")
		}
		compared++

		switch {
		case cards.key < prices.key:
			if err := cards.advance(); err != nil {
				_ = out.Close()
				return nil, err
			}
		case cards.key > prices.key:
			if err := prices.advance(); err != nil {
				_ = out.Close()
				return nil, err
			}
		default:
			merged, err := mergeLines(cards.line, prices.line)
			if err != nil {
				_ = out.Close()
				return nil, err
			}
			if err := out.Write(merged); err != nil {
				_ = out.Close()
				return nil, err
			}
			if err := cards.advance(); err != nil {
				_ = out.Close()
				return nil, err
			}
			if err := prices.advance(); err != nil {
				_ = out.Close()
				return nil, err
			}
		}
	}

	if err := out.Close(); err != nil {
		return nil, err
	}

	log.Info("merge complete",
		zap.Int64("joined", out.Count()),
		zap.Int64("comparisons", compared),
	)
	return &StageResult{Rows: out.Count()}, nil
}

// mergeLines combines a card line and a price line for the same uuid. The
// price side's tree wins into the card record's prices field.
func mergeLines(cardLine, priceLine []byte) (*model.MergedCard, error) {
	var card model.Card
	if err := json.Unmarshal(cardLine, &card); err != nil {
		return nil, eris.Wrap(err, "merge: decode card line")
	}
	var snap snapshotLine
	if err := json.Unmarshal(priceLine, &snap); err != nil {
		return nil, eris.Wrap(err, "merge: decode price line")
	}
	return &model.MergedCard{Card: card, Prices: snap.Prices}, nil
}
