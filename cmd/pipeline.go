package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/etl"
	"github.com/deckhaven/cardsync/internal/fetcher"
	"github.com/deckhaven/cardsync/internal/notify"
	"github.com/deckhaven/cardsync/internal/store"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Price ETL pipeline",
	Long:  "Runs and inspects the daily feed download, join, and load pipeline.",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline",
	Long: `Run the daily price pipeline: download both feeds, filter identifiers,
extract latest prices, sort, merge-join, and load into Postgres.

Use --stages to run a subset (comma-separated), e.g. resuming after a failure:
  cardsync pipeline run --stages merge,load,cleanup
Stage artifacts from the prior run must still be present for a resumed stage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "pipeline.run"))

		stagesStr, _ := cmd.Flags().GetString("stages")
		keep, _ := cmd.Flags().GetBool("keep-artifacts")
		force, _ := cmd.Flags().GetBool("force")
		skipDownload, _ := cmd.Flags().GetBool("skip-download")
		if keep {
			cfg.Pipeline.KeepArtifacts = true
		}

		var names []string
		if stagesStr != "" {
			names = strings.Split(stagesStr, ",")
			for i := range names {
				names[i] = strings.TrimSpace(names[i])
			}
		}
		stages, err := etl.SelectStages(names)
		if err != nil {
			return err
		}
		if skipDownload {
			stages = slices.DeleteFunc(stages, func(s etl.Stage) bool {
				return s.Name() == "download"
			})
		}

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := store.Migrate(ctx, pool); err != nil {
			return eris.Wrap(err, "pipeline run: migrate")
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Feeds.UserAgent,
			Timeout:    time.Duration(cfg.Feeds.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Feeds.MaxRetries,
		})

		env := &etl.Env{
			Cfg:     cfg,
			Fetcher: f,
			Store:   store.New(pool),
			WorkDir: cfg.Pipeline.WorkDir,
			Force:   force,
		}
		engine := etl.NewEngine(env, etl.NewRunLog(pool), stages)

		log.Info("starting pipeline", zap.Int("stages", len(stages)))
		summary, runErr := engine.Run(ctx)

		// Delivered even when the run was interrupted.
		notify.New(cfg.Notify.WebhookURL).Send(context.WithoutCancel(ctx), *summary)

		if runErr != nil {
			return runErr
		}
		fmt.Println("Pipeline complete")
		return nil
	},
}

var pipelineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent pipeline runs",
	Long:  "Displays the most recent run log entries, newest first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		limit, _ := cmd.Flags().GetInt("limit")

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		entries, err := etl.NewRunLog(pool).Recent(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "pipeline status")
		}
		if len(entries) == 0 {
			zap.L().Info("no runs recorded, run 'pipeline run' first")
			return nil
		}

		formatRunEntries(os.Stdout, entries)
		return nil
	},
}

func init() {
	pipelineRunCmd.Flags().String("stages", "", "comma-separated stage names (e.g. merge,load)")
	pipelineRunCmd.Flags().Bool("keep-artifacts", false, "keep intermediate work files after the run")
	pipelineRunCmd.Flags().Bool("force", false, "download feeds even when their ETags have not changed")
	pipelineRunCmd.Flags().Bool("skip-download", false, "reuse feed files already in the work dir")
	pipelineStatusCmd.Flags().Int("limit", 20, "number of entries to show")

	pipelineCmd.AddCommand(pipelineRunCmd)
	pipelineCmd.AddCommand(pipelineStatusCmd)
	rootCmd.AddCommand(pipelineCmd)
}

// formatRunEntries writes a tabular representation of run log entries to w.
func formatRunEntries(out io.Writer, entries []etl.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN\tSTAGE\tSTATUS\tSTARTED\tDURATION\tROWS\tSKIPPED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t---\t-----\t------\t-------\t--------\t----\t-------\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			e.ID,
			shortRunID(e.RunID),
			e.Stage,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.Rows,
			e.Skipped,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
