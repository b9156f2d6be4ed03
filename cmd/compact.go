package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Roll up and purge raw data older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := newCompactionWorker(cfg, store, nil).RunOnce(ctx)
		if res != nil {
			slog.Info("compaction finished", "days", len(res.Days), "rollups", res.RollupsWritten,
				"events_purged", res.EventsPurged, "prices_purged", res.PricesPurged)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(compactCmd)
}
