// Package cmd holds the ah-scanner command line.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ah_scanner/config"
	"ah_scanner/logging"
)

var (
	configPath string
	cfg        *config.Config
	logWriter  *logging.RotatingWriter
)

var rootCmd = &cobra.Command{
	Use:           "ah-scanner",
	Short:         "DonutSMP auction house scanner",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logWriter, err = logging.Setup(cfg.LogPath, cfg.LogLevel)
		if err != nil {
			slog.Warn("could not set up file logging", "path", cfg.LogPath, "error", err)
		}
		slog.Debug("config loaded", "config", cfg.String())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logWriter != nil {
			logWriter.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML config file")
}

// Execute runs the command line until it finishes or SIGINT/SIGTERM arrives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("ah-scanner failed", "error", err)
		stop()
		os.Exit(1)
	}
}
