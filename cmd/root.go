package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "commute-cli",
	Short: "Commute statistics pipeline over Census sources",
	Long: `Downloads Census reference tables, TIGER/Line geometry, ACS PUMS microdata and
LODES origin-destination flows, then computes commute-time aggregates, job-weighted
commute distances and road lengths per PUMA, and serves them joined to geometry.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		switch cmd.Name() {
		case "pull", "process", "graph", "load":
			return cfg.ValidateFor(cmd.Name())
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
