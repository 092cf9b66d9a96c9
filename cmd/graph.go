package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/graph"
	"github.com/sells-group/commute-cli/internal/model"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export a filtered statistic joined to geometry as GeoJSON",
	Long: `Reads the assembled view of one statistic (acs, lodes or roads), applies the
year/state/sex/race filters and writes the matching features as a GeoJSON
FeatureCollection.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stat, _ := cmd.Flags().GetString("stat")
		year, _ := cmd.Flags().GetInt("year")
		state, _ := cmd.Flags().GetString("state")
		sexStr, _ := cmd.Flags().GetString("sex")
		raceStr, _ := cmd.Flags().GetString("race")
		granStr, _ := cmd.Flags().GetString("granularity")
		out, _ := cmd.Flags().GetString("out")

		filter := graph.Filter{Year: year, State: state}
		if sexStr != "" {
			sex, err := model.ParseSex(sexStr)
			if err != nil {
				return err
			}
			filter.Sex = sex
		}
		if raceStr != "" {
			race, err := model.ParseRace(raceStr)
			if err != nil {
				return err
			}
			filter.Race = race
		}
		var gran graph.Granularity
		if granStr != "" {
			g, err := graph.ParseGranularity(granStr)
			if err != nil {
				return err
			}
			gran = g
		}

		p, _ := newPipeline()
		view, err := p.Graph(ctx, stat, gran)
		if err != nil {
			return err
		}
		view = view.Filter(filter)
		zap.L().Info("graph view ready", zap.String("stat", stat), zap.Stringer("view", view))

		data, err := view.GeoJSON()
		if err != nil {
			return err
		}
		if out == "" || out == "-" {
			_, err = os.Stdout.Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return eris.Wrapf(err, "graph: write %s", out)
		}
		printf("wrote %d features to %s\n", len(view.Features), out)
		return nil
	},
}

func init() {
	graphCmd.Flags().String("stat", graph.StatACS, "statistic: acs, lodes or roads")
	graphCmd.Flags().Int("year", 0, "filter by year (default: all)")
	graphCmd.Flags().String("state", "", "filter by state abbreviation or FIPS code")
	graphCmd.Flags().String("sex", "", "filter by sex: male, female or all")
	graphCmd.Flags().String("race", "", "filter by race category")
	graphCmd.Flags().String("granularity", "", "state or puma (default: the statistic's own)")
	graphCmd.Flags().String("out", "-", "output file, - for stdout")
	rootCmd.AddCommand(graphCmd)
}
