package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deckhaven/cardsync/internal/enrich"
	"github.com/deckhaven/cardsync/internal/store"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Resolve card image URLs",
	Long: `Walks cards still carrying the placeholder image and resolves real
image URLs from the card catalog. Lookups are rate limited and locally cached;
cards the catalog doesn't know keep the placeholder.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		cache, err := enrich.OpenCache(cfg.Enrich.CachePath, cfg.Enrich.CacheTTLDay)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		client := enrich.NewClient(enrich.ClientOptions{
			BaseURL:     cfg.Enrich.BaseURL,
			UserAgent:   cfg.Feeds.UserAgent,
			RatePerSec:  cfg.Enrich.RatePerSec,
			MaxAttempts: cfg.Enrich.MaxAttempts,
		})

		enricher := enrich.New(store.New(pool), client, cache, cfg.Enrich.BatchLimit)
		stats, err := enricher.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "enrich")
		}

		zap.L().Info("enrichment finished",
			zap.Int("scanned", stats.Scanned),
			zap.Int("resolved", stats.Resolved),
			zap.Int("missing", stats.Missing),
			zap.Int("failed", stats.Failed))
		fmt.Printf("Resolved %d of %d card images (%d not in catalog, %d failed)\n",
			stats.Resolved, stats.Scanned, stats.Missing, stats.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}
