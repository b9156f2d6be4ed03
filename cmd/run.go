package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ah_scanner/api"
	"ah_scanner/observability"
	"ah_scanner/scheduler"
	"ah_scanner/services"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scanner daemon: polling, compaction and the HTTP API",
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

		metrics := observability.NewMetrics()
		orchestrator := newOrchestrator(cfg, store, metrics)
		compaction := newCompactionWorker(cfg, store, metrics)
		sched := scheduler.New(cfg, orchestrator, store, compaction)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return sched.Run(ctx) })

		if cfg.API.Enabled {
			staleAfter := 3*cfg.Scanner.Interval + cfg.Scanner.CycleDeadline
			health := services.NewHealthcheckService(store, staleAfter)
			router := api.NewRouter(newEngine(cfg, store), health, metrics)
			srv := api.NewServer(cfg.API.Addr, router)
			g.Go(func() error { return srv.Run(ctx) })
		}

		slog.Info("daemon running", "driver", cfg.Database.Driver, "api", cfg.API.Enabled)
		err = g.Wait()
		slog.Info("daemon stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
