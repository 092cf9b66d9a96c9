package pipeline

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/commute-cli/internal/acs"
	"github.com/sells-group/commute-cli/internal/lodes"
	"github.com/sells-group/commute-cli/internal/manifest"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/reference"
	"github.com/sells-group/commute-cli/internal/store"
	"github.com/sells-group/commute-cli/internal/tiger"
)

// Stage names used in the summary for retrieval.
const (
	StageReference = "reference"
	StageGeometry  = "geometry"
	StageDownload  = "download"
)

const downloadWorkers = 4

// Pull builds the reference tables and the manifest, then downloads every
// source the process stages need. The manifest is saved even when a stage
// fails so the next pull resumes from it.
func (p *Pipeline) Pull(ctx context.Context) error {
	m, err := p.loadManifest()
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Save(p.cfg.Data.ManifestPath()); err != nil {
			zap.L().Error("pipeline: save manifest", zap.Error(err))
		}
	}()

	var codes []model.ReferenceCode
	if err := p.track(StageReference, func() error {
		var err error
		codes, err = p.pullStateCodes(ctx, m)
		return err
	}); err != nil {
		return err
	}
	states := stateList(codes)

	m.Add(tiger.ManifestEntries(p.cfg.Census.FilesURL, p.cfg.Data.ShapeFiles(), states, nil, nil)...)

	var counties []model.CountyCode
	if err := p.track(StageGeometry, func() error {
		var err error
		counties, err = p.pullGeometry(ctx, m, codes)
		return err
	}); err != nil {
		return err
	}

	for _, e := range tiger.ManifestEntries(p.cfg.Census.FilesURL, p.cfg.Data.ShapeFiles(), nil, counties, p.cfg.Roads.Years) {
		if e.Kind == manifest.KindRoad {
			m.Add(e)
		}
	}
	m.Add(acs.ManifestEntries(p.cfg.Census.APIBaseURL, p.cfg.Data.Raw(), states, p.cfg.ACS.Years)...)
	m.Add(lodes.ManifestEntries(p.lodesSource(), p.cfg.Data.Raw(), codes, p.cfg.LODES.Years)...)
	zap.L().Info("pipeline: manifest ready", zap.Int("entries", m.Len()))

	return p.track(StageDownload, func() error {
		return p.download(ctx, m)
	})
}

// pullStateCodes fetches MOVS and derives the state table. A cached table
// lets the run continue when MOVS is unreachable.
func (p *Pipeline) pullStateCodes(ctx context.Context, m *manifest.Manifest) ([]model.ReferenceCode, error) {
	movs := manifest.Entry{Kind: manifest.KindMOVS, URL: p.cfg.Census.MOVSURL, Path: p.movsPath()}
	m.Add(movs)

	err := p.retriever.Fetch(ctx, movs.URL, movs.Path)
	m.Mark(movs.Key(), err)
	if err != nil {
		if !store.Exists(p.stateCodesPath()) {
			return nil, err
		}
		p.summary.Skip(StageReference, string(manifest.KindMOVS), err)
	}

	codes, err := p.stateCodes(ctx)
	if err != nil {
		return nil, err
	}
	p.summary.Complete(StageReference, 1)
	zap.L().Info("pipeline: state codes ready", zap.Int("states", len(codes)))
	return codes, nil
}

// pullGeometry ingests the national layers and PUMAs and derives county codes.
func (p *Pipeline) pullGeometry(ctx context.Context, m *manifest.Manifest, codes []model.ReferenceCode) ([]model.CountyCode, error) {
	in := p.ingestor(m)
	states := stateList(codes)

	if _, err := in.Ingest(ctx, model.KindState, tiger.SourceSpec{States: states}); err != nil {
		p.summary.Skip(StageGeometry, string(model.KindState), err)
	} else {
		p.summary.Complete(StageGeometry, 1)
	}

	countyGeoms, err := in.Ingest(ctx, model.KindCounty, tiger.SourceSpec{States: states})
	if err != nil {
		return nil, err
	}
	p.summary.Complete(StageGeometry, 1)

	counties, err := reference.LoadOrBuildCountyCodes(ctx, p.countyCodesPath(), countyGeoms, codes)
	if err != nil {
		return nil, err
	}

	pumas, err := in.Ingest(ctx, model.KindPUMA, tiger.SourceSpec{})
	if err != nil {
		return nil, err
	}
	p.summary.Complete(StageGeometry, len(distinctStates(pumas)))

	zap.L().Info("pipeline: geometry ready",
		zap.Int("counties", len(counties)),
		zap.Int("pumas", len(pumas)),
	)
	return counties, nil
}

// download fetches every manifest entry in a bounded worker pool. Failures
// are recorded on the entry and in the summary.
func (p *Pipeline) download(ctx context.Context, m *manifest.Manifest) error {
	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadWorkers)

	for _, e := range m.Entries() {
		if e.Kind == manifest.KindMOVS {
			continue
		}
		g.Go(func() error {
			url := e.URL
			if e.Kind == manifest.KindACS {
				url = acs.WithKey(url, p.cfg.Census.APIKey)
			}
			err := p.retriever.Fetch(gctx, url, e.Path)
			m.Mark(e.Key(), err)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.summary.Skip(StageDownload, e.Key(), err)
				return nil
			}
			done.Add(1)
			return nil
		})
	}

	err := g.Wait()
	p.summary.Complete(StageDownload, int(done.Load()))
	return err
}

func (p *Pipeline) lodesSource() lodes.Source {
	return lodes.Source{
		BaseURL: p.cfg.LODES.BaseURL,
		Version: p.cfg.LODES.Version,
		JobType: p.cfg.LODES.JobType,
	}
}

func distinctStates(records []model.GeometryRecord) map[int]struct{} {
	out := make(map[int]struct{})
	for _, r := range records {
		out[r.StateFIPS] = struct{}{}
	}
	return out
}
