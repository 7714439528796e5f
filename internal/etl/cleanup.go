package etl

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cleanup removes the run's intermediate artifacts from the work dir,
// preserving exactly the sentinel file so the directory itself stays under
// version control. Skipped entirely when the run asked to keep artifacts.
type Cleanup struct{}

func (s *Cleanup) Name() string { return "cleanup" }

func (s *Cleanup) Run(ctx context.Context, env *Env) (*StageResult, error) {
	log := zap.L().With(zap.String("stage", s.Name()))

	if env.Cfg.Pipeline.KeepArtifacts {
		log.Info("keeping artifacts, nothing removed")
		return &StageResult{}, nil
	}

	entries, err := os.ReadDir(env.WorkDir)
	if err != nil {
		return nil, eris.Wrapf(err, "cleanup: read work dir %s", env.WorkDir)
	}

	var removed int64
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "cleanup: cancelled")
		}
		if entry.IsDir() || entry.Name() == SentinelFile {
			continue
		}
		path := filepath.Join(env.WorkDir, entry.Name())
		if err := os.Remove(path); err != nil {
			return nil, eris.Wrapf(err, "cleanup: remove %s", path)
		}
		removed++
	}

	log.Info("cleanup complete", zap.Int64("removed", removed))
	return &StageResult{Rows: removed}, nil
}
