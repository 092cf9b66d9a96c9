package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Compute commute statistics from pulled sources",
	Long: `Runs the acs, lodes, roads and graph stages. Each stage persists finished units
and skips them on the next run, so an interrupted process resumes where it stopped.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stagesStr, _ := cmd.Flags().GetString("stages")
		stages, err := pipeline.ParseStages(splitAndTrim(stagesStr))
		if err != nil {
			return err
		}

		p, metrics := newPipeline()
		zap.L().Info("starting process", zap.String("run_id", p.RunID()), zap.Strings("stages", stages))

		return finishRun(ctx, p, metrics, p.Process(ctx, stages))
	},
}

func init() {
	processCmd.Flags().String("stages", "all", "comma-separated stages: acs, lodes, roads, graph")
	rootCmd.AddCommand(processCmd)
}
