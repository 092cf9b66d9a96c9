package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/db"
	"github.com/sells-group/commute-cli/internal/pipeline"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Copy geometry and statistics into PostGIS",
	Long: `Creates the sink schema and copies the state, county and PUMA layers (and
optionally block centroids) plus the acs, lodes and roads tables into PostGIS.
Statistic tables are upserted, so loading twice is safe.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		blocks, _ := cmd.Flags().GetBool("blocks")

		pool, err := db.Connect(ctx, cfg.Sink.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		p, metrics := newPipeline()
		zap.L().Info("starting load",
			zap.String("run_id", p.RunID()),
			zap.String("schema", cfg.Sink.Schema),
			zap.Bool("blocks", blocks),
		)

		sink := db.NewSink(pool, cfg.Sink.Schema)
		return finishRun(ctx, p, metrics, p.Load(ctx, sink, pipeline.LoadOptions{Blocks: blocks}))
	},
}

func init() {
	loadCmd.Flags().Bool("blocks", false, "also load block centroids")
	rootCmd.AddCommand(loadCmd)
}
