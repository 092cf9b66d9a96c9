package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/acs"
	"github.com/sells-group/commute-cli/internal/graph"
	"github.com/sells-group/commute-cli/internal/lodes"
	"github.com/sells-group/commute-cli/internal/manifest"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/roads"
	"github.com/sells-group/commute-cli/internal/store"
	"github.com/sells-group/commute-cli/internal/tiger"
)

// GraphStats lists the statistics a graph view can be built from.
var GraphStats = []string{graph.StatACS, graph.StatLODES, graph.StatRoads}

func graphPathName(stat string) string {
	return "graph_" + stat
}

// processGraph builds and saves the default view of every statistic that
// has rows.
func (p *Pipeline) processGraph(ctx context.Context, m *manifest.Manifest, codes []model.ReferenceCode, res *results) error {
	for _, stat := range GraphStats {
		rows, err := p.statRows(ctx, stat, codes, res)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			zap.L().Info("pipeline: no rows for graph", zap.String("stat", stat))
			continue
		}

		g := graph.DefaultGranularity(stat)
		geoms, err := p.graphGeometry(ctx, m, g)
		if err != nil {
			p.summary.Skip(StageGraph, stat, err)
			continue
		}
		view, err := graph.Build(rows, geoms, g)
		if err != nil {
			return err
		}
		if err := view.Save(ctx, p.processedPath(graphPathName(stat))); err != nil {
			return err
		}
		zap.L().Info("pipeline: saved graph view", zap.String("stat", stat), zap.Stringer("view", view))
		p.summary.Complete(StageGraph, 1)
	}
	return nil
}

// Graph returns the view of stat at granularity g, reading the saved view
// when it matches and rebuilding it from the stage tables otherwise. An
// empty g selects the statistic's default granularity.
func (p *Pipeline) Graph(ctx context.Context, stat string, g graph.Granularity) (*graph.View, error) {
	if g == "" {
		g = graph.DefaultGranularity(stat)
	}

	path := p.processedPath(graphPathName(stat))
	if store.Exists(path) {
		view, err := graph.Load(ctx, path)
		if err == nil && view.Granularity == g {
			return view, nil
		}
		if err != nil {
			zap.L().Warn("pipeline: saved graph unreadable, rebuilding", zap.String("stat", stat), zap.Error(err))
		}
	}

	m, err := p.requireManifest()
	if err != nil {
		return nil, err
	}
	codes, err := p.stateCodes(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := p.statRows(ctx, stat, codes, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("pipeline: no %s rows, run process first", stat)
	}
	geoms, err := p.graphGeometry(ctx, m, g)
	if err != nil {
		return nil, err
	}
	return graph.Build(rows, geoms, g)
}

// statRows adapts a statistic's rows, preferring outputs of this run.
func (p *Pipeline) statRows(ctx context.Context, stat string, codes []model.ReferenceCode, res *results) ([]graph.StatRow, error) {
	ran := func(stage string) bool { return res != nil && res.ran[stage] }

	switch stat {
	case graph.StatACS:
		stats := []model.AggregateStat(nil)
		if ran(acs.Stage) {
			stats = res.acs
		} else {
			var err error
			if stats, err = readLedger(ctx, p.processedPath(acs.Stage), acs.StatCodec); err != nil {
				return nil, err
			}
		}
		return graph.FromAggregates(stats, codes), nil
	case graph.StatLODES:
		stats := []model.ODDistanceStat(nil)
		if ran(lodes.Stage) {
			stats = res.lodes
		} else {
			var err error
			if stats, err = readLedger(ctx, p.processedPath(lodes.Stage), lodes.StatCodec); err != nil {
				return nil, err
			}
		}
		return graph.FromDistances(stats), nil
	case graph.StatRoads:
		stats := []model.RoadLengthStat(nil)
		if ran(roads.Stage) {
			stats = res.roads
		} else {
			var err error
			if stats, err = readLedger(ctx, p.processedPath(roads.Stage), roads.StatCodec); err != nil {
				return nil, err
			}
		}
		return graph.FromRoadLengths(stats, codes), nil
	}
	return nil, eris.Errorf("pipeline: unknown statistic %q", stat)
}

func (p *Pipeline) graphGeometry(ctx context.Context, m *manifest.Manifest, g graph.Granularity) ([]model.GeometryRecord, error) {
	kind := model.KindPUMA
	if g == graph.ByState {
		kind = model.KindState
	}
	return p.ingestor(m).Ingest(ctx, kind, tiger.SourceSpec{})
}
