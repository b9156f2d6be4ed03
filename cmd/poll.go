package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one listing cycle and one transaction import, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireAuth(); err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		o := newOrchestrator(cfg, store, nil)

		run, err := o.RunCycle(ctx, cfg.Scanner.InitialScanPages)
		if err != nil {
			return err
		}
		slog.Info("poll cycle finished", "status", run.Status, "listings", run.ListingsSeen,
			"new", run.NewListings, "price_changes", run.PriceChanges, "removed", run.Removed, "sold", run.Sold)

		run, err = o.ImportTransactions(ctx)
		if err != nil {
			return err
		}
		slog.Info("transaction import finished", "status", run.Status, "new", run.Transactions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
