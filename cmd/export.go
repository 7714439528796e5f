package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/deckhaven/cardsync/internal/export"
	"github.com/deckhaven/cardsync/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a price report",
	Long:  "Writes an XLSX report of the latest retail and buylist prices per card, vendor, and finish.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		query, _ := cmd.Flags().GetString("query")

		pool, err := storePool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		rows, err := export.WriteReport(ctx, store.New(pool), out, query)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		fmt.Printf("Wrote %d rows to %s\n", rows, out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "prices.xlsx", "output file path")
	exportCmd.Flags().String("query", "", "restrict to cards whose name matches")
	rootCmd.AddCommand(exportCmd)
}
