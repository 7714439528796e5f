package etl

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/config"
	"github.com/deckhaven/cardsync/internal/fetcher"
	"github.com/deckhaven/cardsync/internal/model"
)

// Artifact file names inside the work dir. Everything except the sentinel is
// private to adjacent stages and removed by cleanup.
const (
	artifactIdentifiersFeed = "AllIdentifiers.json"
	artifactPricesFeed      = "AllPrices.json"
	artifactCards           = "cards.ndjson"
	artifactSnapshots       = "prices.ndjson"
	artifactCardsSorted     = "cards.sorted.ndjson"
	artifactSnapshotsSorted = "prices.sorted.ndjson"
	artifactMerged          = "merged.ndjson"

	// SentinelFile is the one file cleanup preserves so the otherwise-empty
	// work dir stays trackable.
	SentinelFile = ".gitkeep"
)

// CardStore is the persistence surface the load stage needs.
type CardStore interface {
	// FindPrices returns the stored price-history subtree for a uuid, or nil
	// when the card has never been stored.
	FindPrices(ctx context.Context, uuid string) (model.PriceHistory, error)

	// UpsertCards bulk-upserts a batch keyed by uuid. Identity fields are set
	// only on first insert; the price tree is rewritten unconditionally.
	UpsertCards(ctx context.Context, cards []model.MergedCard) (int64, error)
}

// Env carries the per-run collaborators every stage may use.
type Env struct {
	Cfg     *config.Config
	Fetcher fetcher.Fetcher
	Store   CardStore
	WorkDir string
	// Force makes Download refetch both feeds even when the remote ETags
	// match the previous run's.
	Force bool
}

func (e *Env) path(name string) string {
	return filepath.Join(e.WorkDir, name)
}

// StageResult holds the outcome of one stage.
type StageResult struct {
	Rows     int64          `json:"rows"`
	Skipped  int64          `json:"skipped"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stage is one restartable batch step of the pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, env *Env) (*StageResult, error)
}

// Stages returns the full pipeline in execution order.
func Stages() []Stage {
	return []Stage{
		&Download{},
		&Filter{},
		&Extract{},
		&SortCards{},
		&SortSnapshots{},
		&Merge{},
		&Load{},
		&Cleanup{},
	}
}

// SelectStages filters the full pipeline down to the named stages, preserving
// pipeline order. An unknown name is an error.
func SelectStages(names []string) ([]Stage, error) {
	all := Stages()
	if len(names) == 0 {
		return all, nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []Stage
	for _, s := range all {
		if wanted[s.Name()] {
			out = append(out, s)
			delete(wanted, s.Name())
		}
	}
	for n := range wanted {
		return nil, eris.Errorf("etl: unknown stage %q", n)
	}
	return out, nil
}

// StageOutcome is one stage's entry in a run summary.
type StageOutcome struct {
	Name    string        `json:"name"`
	Status  string        `json:"status"`
	Rows    int64         `json:"rows"`
	Skipped int64         `json:"skipped"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// RunSummary is the outcome of a full engine run, fed to notification.
type RunSummary struct {
	RunID     string         `json:"run_id"`
	Status    string         `json:"status"`
	StartedAt time.Time      `json:"started_at"`
	Elapsed   time.Duration  `json:"elapsed"`
	Stages    []StageOutcome `json:"stages"`
}

// Engine runs pipeline stages in strict sequence, recording each in the run
// log. A stage failure aborts the run: stages feed each other's artifacts, so
// continuing past a failed one would join stale data.
type Engine struct {
	env    *Env
	runLog *RunLog
	stages []Stage
}

// NewEngine creates an engine over the given stages. runLog may be nil for
// runs without a database (e.g. dry runs of the file-only stages).
func NewEngine(env *Env, runLog *RunLog, stages []Stage) *Engine {
	return &Engine{env: env, runLog: runLog, stages: stages}
}

// Run executes the stages in order. The returned summary is always populated,
// also on failure.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	log := zap.L().With(zap.String("component", "etl.engine"))

	// Run-log writes use a context that survives cancellation so an
	// interrupted stage still gets its failure row.
	logCtx := context.WithoutCancel(ctx)

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		Status:    "complete",
		StartedAt: time.Now().UTC(),
	}
	log.Info("starting pipeline run",
		zap.String("run_id", summary.RunID),
		zap.Int("stages", len(e.stages)),
	)

	var runErr error
	for _, stage := range e.stages {
		select {
		case <-ctx.Done():
			summary.Status = "aborted"
			summary.Elapsed = time.Since(summary.StartedAt)
			return summary, eris.Wrap(ctx.Err(), "etl: run cancelled")
		default:
		}

		stageLog := log.With(zap.String("stage", stage.Name()))
		stageLog.Info("starting stage")

		var entryID int64
		if e.runLog != nil {
			var err error
			entryID, err = e.runLog.Start(logCtx, summary.RunID, stage.Name())
			if err != nil {
				return summary, eris.Wrapf(err, "etl: record stage start for %s", stage.Name())
			}
		}

		start := time.Now()
		result, err := stage.Run(ctx, e.env)
		elapsed := time.Since(start)

		outcome := StageOutcome{Name: stage.Name(), Elapsed: elapsed}
		if err != nil {
			outcome.Status = "failed"
			outcome.Error = err.Error()
			summary.Stages = append(summary.Stages, outcome)
			summary.Status = "failed"

			stageLog.Error("stage failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			if e.runLog != nil {
				if logErr := e.runLog.Fail(logCtx, entryID, err.Error()); logErr != nil {
					stageLog.Error("failed to record stage failure", zap.Error(logErr))
				}
			}
			runErr = eris.Wrapf(err, "etl: stage %s", stage.Name())
			break
		}

		outcome.Status = "complete"
		outcome.Rows = result.Rows
		outcome.Skipped = result.Skipped
		summary.Stages = append(summary.Stages, outcome)

		if e.runLog != nil {
			if logErr := e.runLog.Complete(logCtx, entryID, result); logErr != nil {
				stageLog.Error("failed to record stage completion", zap.Error(logErr))
			}
		}

		stageLog.Info("stage complete",
			zap.Int64("rows", result.Rows),
			zap.Int64("skipped", result.Skipped),
			zap.Duration("elapsed", elapsed),
		)
	}

	summary.Elapsed = time.Since(summary.StartedAt)
	log.Info("pipeline run finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", summary.Status),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, runErr
}
