package etl

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Download fetches both feed files into the work dir. The two feeds are
// independent, so they download concurrently; either failure aborts the stage
// and the fetcher has already removed its partial file.
type Download struct{}

func (s *Download) Name() string { return "download" }

func (s *Download) Run(ctx context.Context, env *Env) (*StageResult, error) {
	log := zap.L().With(zap.String("stage", s.Name()))

	if err := os.MkdirAll(env.WorkDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "download: create work dir %s", env.WorkDir)
	}

	feeds := []struct {
		url  string
		path string
	}{
		{env.Cfg.Feeds.IdentifiersURL, env.path(artifactIdentifiersFeed)},
		{env.Cfg.Feeds.PricesURL, env.path(artifactPricesFeed)},
	}

	var total, fetched, unchanged int64
	g, gctx := errgroup.WithContext(ctx)
	sizes := make([]int64, len(feeds))
	fresh := make([]bool, len(feeds))
	for i, feed := range feeds {
		g.Go(func() error {
			n, downloaded, err := s.fetch(gctx, env, feed.url, feed.path)
			if err != nil {
				return eris.Wrapf(err, "download: fetch %s", feed.url)
			}
			sizes[i] = n
			fresh[i] = downloaded
			if downloaded {
				log.Info("feed downloaded", zap.String("url", feed.url), zap.Int64("bytes", n))
			} else {
				log.Info("feed unchanged, reusing previous download", zap.String("url", feed.url))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, n := range sizes {
		total += n
		if fresh[i] {
			fetched++
		} else {
			unchanged++
		}
	}

	return &StageResult{
		Rows:     fetched,
		Skipped:  unchanged,
		Metadata: map[string]any{"bytes": total},
	}, nil
}

func (s *Download) fetch(ctx context.Context, env *Env, url, path string) (int64, bool, error) {
	if env.Force {
		n, err := env.Fetcher.DownloadToFile(ctx, url, path)
		return n, true, err
	}
	return env.Fetcher.DownloadIfChanged(ctx, url, path, path+".etag")
}
