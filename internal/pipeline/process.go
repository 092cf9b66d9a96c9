package pipeline

import (
	"context"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/acs"
	"github.com/sells-group/commute-cli/internal/lodes"
	"github.com/sells-group/commute-cli/internal/manifest"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/roads"
	"github.com/sells-group/commute-cli/internal/store"
	"github.com/sells-group/commute-cli/internal/tiger"
)

// StageGraph assembles and saves the graph views.
const StageGraph = "graph"

// Stages lists the process stages in run order.
var Stages = []string{acs.Stage, lodes.Stage, roads.Stage, StageGraph}

// ParseStages validates stage names and returns them in run order. An empty
// list or "all" selects every stage.
func ParseStages(names []string) ([]string, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if n == "all" {
			return Stages, nil
		}
		if !slices.Contains(Stages, n) {
			return nil, eris.Errorf("pipeline: unknown stage %q", n)
		}
		want[n] = true
	}
	if len(want) == 0 {
		return Stages, nil
	}
	var out []string
	for _, s := range Stages {
		if want[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

// results carries stage outputs forward to the graph stage.
type results struct {
	acs   []model.AggregateStat
	lodes []model.ODDistanceStat
	roads []model.RoadLengthStat
	ran   map[string]bool
}

// Process runs the named stages against the artifacts of a previous pull.
// Every stage resumes from its ledger; units that fail are recorded in the
// summary and the remaining work continues.
func (p *Pipeline) Process(ctx context.Context, stages []string) error {
	m, err := p.requireManifest()
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Save(p.cfg.Data.ManifestPath()); err != nil {
			zap.L().Error("pipeline: save manifest", zap.Error(err))
		}
	}()

	codes, err := p.stateCodes(ctx)
	if err != nil {
		return err
	}

	res := &results{ran: make(map[string]bool)}
	for _, stage := range stages {
		var fn func() error
		switch stage {
		case acs.Stage:
			fn = func() error { return p.processACS(ctx, m, codes, res) }
		case lodes.Stage:
			fn = func() error { return p.processLODES(ctx, m, codes, res) }
		case roads.Stage:
			fn = func() error { return p.processRoads(ctx, m, codes, res) }
		case StageGraph:
			fn = func() error { return p.processGraph(ctx, m, codes, res) }
		default:
			return eris.Errorf("pipeline: unknown stage %q", stage)
		}
		if err := p.track(stage, fn); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) processACS(ctx context.Context, m *manifest.Manifest, codes []model.ReferenceCode, res *results) error {
	ledger, err := store.OpenLedger(ctx, p.processedPath(acs.Stage), acs.StatCodec)
	if err != nil {
		return err
	}
	defer ledger.Close() //nolint:errcheck

	deflator, err := acs.NewCPI(p.cfg.ACS.IncomeBaseYear)
	if err != nil {
		return err
	}

	agg := acs.NewAggregator(p.retriever, m, ledger, deflator, p.cfg.Census.APIKey, p.summary)
	stats, err := agg.AggregateAll(ctx, p.cfg.ACS.Years, codes)
	if err != nil {
		return err
	}
	res.acs, res.ran[acs.Stage] = stats, true
	return p.completeFromLedger(ctx, acs.Stage, ledger)
}

func (p *Pipeline) processLODES(ctx context.Context, m *manifest.Manifest, codes []model.ReferenceCode, res *results) error {
	ledger, err := store.OpenLedger(ctx, p.processedPath(lodes.Stage), lodes.StatCodec)
	if err != nil {
		return err
	}
	defer ledger.Close() //nolint:errcheck

	in := p.ingestor(m)
	centroids := func(ctx context.Context, stateFIPS int) (map[string]model.Point, error) {
		blocks, err := in.Ingest(ctx, model.KindBlock, tiger.SourceSpec{States: []int{stateFIPS}})
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			return nil, eris.Errorf("no block geometry for state %s", model.StateKey(stateFIPS))
		}
		out := make(map[string]model.Point, len(blocks))
		for _, b := range blocks {
			if b.Centroid != nil {
				out[b.ID] = *b.Centroid
			}
		}
		return out, nil
	}

	stats, err := lodes.NewEngine(p.retriever, m, ledger, centroids, p.summary).Run(ctx, codes, p.cfg.LODES.Years)
	if err != nil {
		return err
	}
	res.lodes, res.ran[lodes.Stage] = stats, true
	return p.completeFromLedger(ctx, lodes.Stage, ledger)
}

func (p *Pipeline) processRoads(ctx context.Context, m *manifest.Manifest, codes []model.ReferenceCode, res *results) error {
	ledger, err := store.OpenLedger(ctx, p.processedPath(roads.Stage), roads.StatCodec)
	if err != nil {
		return err
	}
	defer ledger.Close() //nolint:errcheck

	in := p.ingestor(m)
	pumas, err := in.Ingest(ctx, model.KindPUMA, tiger.SourceSpec{})
	if err != nil {
		return err
	}
	source := func(ctx context.Context, stateFIPS, year int) ([]model.GeometryRecord, error) {
		lines, err := in.Ingest(ctx, model.KindRoad, tiger.SourceSpec{States: []int{stateFIPS}, Year: year})
		if err != nil {
			return nil, err
		}
		if len(lines) == 0 {
			return nil, eris.Errorf("no road geometry for state %s", model.StateKey(stateFIPS))
		}
		return lines, nil
	}

	engine := roads.NewEngine(source, ledger, p.cfg.Roads.Workers, p.summary)
	stats, err := engine.Run(ctx, pumas, stateList(codes), p.cfg.Roads.Years)
	if err != nil {
		return err
	}
	res.roads, res.ran[roads.Stage] = stats, true
	return p.completeFromLedger(ctx, roads.Stage, ledger)
}

// completeFromLedger counts the units a stage has persisted.
func (p *Pipeline) completeFromLedger(ctx context.Context, stage string, ledger interface {
	Units(context.Context) ([]string, error)
}) error {
	units, err := ledger.Units(ctx)
	if err != nil {
		return err
	}
	p.summary.Complete(stage, len(units))
	return nil
}

// readLedger returns every row of a stage table, or nothing when the stage
// has never run.
func readLedger[T any](ctx context.Context, path string, codec store.Codec[T]) ([]T, error) {
	if !store.Exists(path) {
		return nil, nil
	}
	ledger, err := store.OpenLedger(ctx, path, codec)
	if err != nil {
		return nil, err
	}
	defer ledger.Close() //nolint:errcheck
	return ledger.All(ctx)
}
