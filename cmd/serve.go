package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deckhaven/cardsync/internal/api"
	"github.com/deckhaven/cardsync/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read API",
	Long:  "Serves card search, detail, and random endpoints until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		return api.NewServer(store.New(pool)).Serve(ctx, addr, cfg.Server.AllowedOrigins)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
