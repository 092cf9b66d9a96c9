package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/acs"
	"github.com/sells-group/commute-cli/internal/db"
	"github.com/sells-group/commute-cli/internal/lodes"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/roads"
	"github.com/sells-group/commute-cli/internal/tiger"
)

// StageLoad copies local tables into the database sink.
const StageLoad = "load"

// LoadOptions selects what Load copies.
type LoadOptions struct {
	// Blocks also loads block centroids, which is the largest table by far.
	Blocks bool
}

// Load copies geometry layers and stage tables into sink.
func (p *Pipeline) Load(ctx context.Context, sink *db.Sink, opts LoadOptions) error {
	return p.track(StageLoad, func() error {
		m, err := p.requireManifest()
		if err != nil {
			return err
		}
		if err := sink.EnsureSchema(ctx); err != nil {
			return err
		}

		kinds := []model.GeometryKind{model.KindState, model.KindCounty, model.KindPUMA}
		if opts.Blocks {
			kinds = append(kinds, model.KindBlock)
		}
		in := p.ingestor(m)
		for _, kind := range kinds {
			records, err := in.Ingest(ctx, kind, tiger.SourceSpec{})
			if err != nil {
				p.summary.Skip(StageLoad, string(kind), err)
				continue
			}
			n, err := sink.LoadGeometries(ctx, string(kind), records)
			if err != nil {
				return err
			}
			p.loaded(string(kind), n)
		}

		aggs, err := readLedger(ctx, p.processedPath(acs.Stage), acs.StatCodec)
		if err != nil {
			return err
		}
		if len(aggs) > 0 {
			n, err := sink.LoadAggregates(ctx, aggs)
			if err != nil {
				return err
			}
			p.loaded(acs.Stage, n)
		}

		dists, err := readLedger(ctx, p.processedPath(lodes.Stage), lodes.StatCodec)
		if err != nil {
			return err
		}
		if len(dists) > 0 {
			n, err := sink.LoadDistances(ctx, dists)
			if err != nil {
				return err
			}
			p.loaded(lodes.Stage, n)
		}

		lengths, err := readLedger(ctx, p.processedPath(roads.Stage), roads.StatCodec)
		if err != nil {
			return err
		}
		if len(lengths) > 0 {
			n, err := sink.LoadRoadLengths(ctx, lengths)
			if err != nil {
				return err
			}
			p.loaded(roads.Stage, n)
		}
		return nil
	})
}

func (p *Pipeline) loaded(table string, rows int64) {
	zap.L().Info("pipeline: loaded table", zap.String("table", table), zap.Int64("rows", rows))
	p.summary.Complete(StageLoad, 1)
}
