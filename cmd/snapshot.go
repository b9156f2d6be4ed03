package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ah_scanner/report"
	"ah_scanner/storage"
)

var (
	snapshotXLSX   bool
	snapshotUpload bool
	snapshotOut    string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write a point-in-time market report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		opts := report.Options{Dir: snapshotOut, XLSX: snapshotXLSX}
		if snapshotUpload {
			if !cfg.S3.Enabled() {
				return errors.New("--upload needs S3_BUCKET, S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY")
			}
			uploader, err := storage.NewS3Uploader(ctx, cfg.S3)
			if err != nil {
				return err
			}
			opts.Uploader = uploader
		}

		snap, err := report.Generate(ctx, newEngine(cfg, store), time.Now())
		if err != nil {
			return err
		}
		out, err := report.Write(ctx, snap, opts)
		if err != nil {
			return err
		}

		for _, f := range out.Files {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
		for _, u := range out.URLs {
			fmt.Fprintln(cmd.OutOrStdout(), u)
		}
		return nil
	},
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotXLSX, "xlsx", false, "also write an .xlsx workbook")
	snapshotCmd.Flags().BoolVar(&snapshotUpload, "upload", false, "upload the report to S3")
	snapshotCmd.Flags().StringVar(&snapshotOut, "out", ".", "output directory")
	rootCmd.AddCommand(snapshotCmd)
}
