package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Download sources and build reference tables",
	Long: `Fetches the MOVS state list, derives state and county code tables, ingests the
national and PUMA geometry layers, records every remaining source in the manifest
and downloads it. Already-downloaded files are reused; failed downloads are
reported and retried on the next pull.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, metrics := newPipeline()
		zap.L().Info("starting pull", zap.String("run_id", p.RunID()), zap.String("data_root", cfg.Data.Root))

		return finishRun(ctx, p, metrics, p.Pull(ctx))
	},
}

func init() {
	rootCmd.AddCommand(pullCmd)
}
