package tiger

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/fetcher"
	"github.com/sells-group/commute-cli/internal/manifest"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/store"
)

// Reporter is told about every unit that was skipped so the run can continue.
type Reporter interface {
	Skip(stage, unit string, err error)
}

// SourceSpec selects which units of a product to ingest. An empty States list
// means every state listed in the manifest. Year applies to roads only.
type SourceSpec struct {
	States []int
	Year   int
}

// Ingestor fetches, parses and caches geometry layers.
type Ingestor struct {
	retriever  fetcher.FileRetriever
	manifest   *manifest.Manifest
	interimDir string
	reporter   Reporter
}

// NewIngestor creates an Ingestor. reporter may be nil.
func NewIngestor(r fetcher.FileRetriever, m *manifest.Manifest, interimDir string, reporter Reporter) *Ingestor {
	return &Ingestor{retriever: r, manifest: m, interimDir: interimDir, reporter: reporter}
}

// Ingest returns the normalized records for kind. Each unit (national file,
// state, or state-year for roads) is cached in its own table once it
// completes. A unit that fails is reported and left out of the result.
func (in *Ingestor) Ingest(ctx context.Context, kind model.GeometryKind, spec SourceSpec) ([]model.GeometryRecord, error) {
	product, ok := ProductFor(kind)
	if !ok {
		return nil, eris.Errorf("tiger: unknown product %q", kind)
	}

	switch product.Scope {
	case National:
		return in.ingestNational(ctx, product, spec)
	case PerState:
		return in.ingestPerState(ctx, product, spec)
	default:
		if spec.Year == 0 {
			return nil, eris.Errorf("tiger: %s ingest requires a year", kind)
		}
		return in.ingestRoads(ctx, product, spec)
	}
}

func (in *Ingestor) ingestNational(ctx context.Context, product Product, spec SourceSpec) ([]model.GeometryRecord, error) {
	entries := in.manifest.Lookup(manifest.Kind(product.Kind), 0, 0)
	if len(entries) == 0 {
		return nil, eris.Errorf("tiger: no manifest entry for %s", product.Kind)
	}

	path := filepath.Join(in.interimDir, string(product.Kind)+".db")
	records, err := store.Cached(ctx, path, RecordCodec, SnapshotMeta(product.Kind),
		func(ctx context.Context) ([]model.GeometryRecord, error) {
			return in.load(ctx, product, entries[0])
		})
	if err != nil {
		return nil, err
	}
	return filterStates(records, spec.States), nil
}

func (in *Ingestor) ingestPerState(ctx context.Context, product Product, spec SourceSpec) ([]model.GeometryRecord, error) {
	log := zap.L().With(zap.String("component", "tiger.ingest"), zap.String("kind", string(product.Kind)))

	combined := filepath.Join(in.interimDir, string(product.Kind)+".db")
	if len(spec.States) == 0 && store.Exists(combined) {
		records, _, err := store.ReadSnapshot(ctx, combined, RecordCodec)
		if err == nil {
			return records, nil
		}
		log.Warn("combined table unreadable, rebuilding", zap.Error(err))
	}

	states := spec.States
	if len(states) == 0 {
		states = in.manifest.States(manifest.Kind(product.Kind))
	}

	var all []model.GeometryRecord
	failed := false
	for _, st := range states {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		unit := model.StateKey(st)
		path := filepath.Join(in.interimDir, string(product.Kind), unit+".db")
		records, err := store.Cached(ctx, path, RecordCodec, SnapshotMeta(product.Kind),
			func(ctx context.Context) ([]model.GeometryRecord, error) {
				entries := in.manifest.Lookup(manifest.Kind(product.Kind), st, 0)
				if len(entries) == 0 {
					return nil, eris.Errorf("tiger: no manifest entry for %s state %s", product.Kind, unit)
				}
				return in.load(ctx, product, entries[0])
			})
		if err != nil {
			failed = true
			in.skip(string(product.Kind), unit, err)
			continue
		}
		all = append(all, records...)
	}

	if len(spec.States) == 0 && !failed {
		if err := store.WriteSnapshot(ctx, combined, RecordCodec, all, SnapshotMeta(product.Kind)); err != nil {
			return nil, err
		}
	}
	log.Info("ingested layer", zap.Int("states", len(states)), zap.Int("records", len(all)))
	return all, nil
}

// ingestRoads builds one table per state-year from the county files. A state
// with any failed county is returned but not cached, so the next run retries it.
func (in *Ingestor) ingestRoads(ctx context.Context, product Product, spec SourceSpec) ([]model.GeometryRecord, error) {
	log := zap.L().With(zap.String("component", "tiger.ingest"), zap.String("kind", string(product.Kind)), zap.Int("year", spec.Year))

	states := spec.States
	if len(states) == 0 {
		states = in.manifest.States(manifest.KindRoad)
	}

	var all []model.GeometryRecord
	for _, st := range states {
		unit := model.StateKey(st)
		path := RoadsPath(in.interimDir, spec.Year, st)

		if store.Exists(path) {
			records, _, err := store.ReadSnapshot(ctx, path, RecordCodec)
			if err == nil {
				all = append(all, records...)
				continue
			}
			log.Warn("cached roads unreadable, rebuilding", zap.String("state", unit), zap.Error(err))
		}

		entries := in.manifest.Lookup(manifest.KindRoad, st, spec.Year)
		if len(entries) == 0 {
			in.skip(string(product.Kind), fmt.Sprintf("%d_%s", spec.Year, unit), eris.New("no county files in manifest"))
			continue
		}

		var records []model.GeometryRecord
		complete := true
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			recs, err := in.load(ctx, product, e)
			if err != nil {
				complete = false
				in.skip(string(product.Kind), fmt.Sprintf("%d_%s", spec.Year, e.CountyID), err)
				continue
			}
			for i := range recs {
				recs[i].StateFIPS = st
				recs[i].Year = spec.Year
			}
			records = append(records, recs...)
		}

		if complete {
			if err := store.WriteSnapshot(ctx, path, RecordCodec, records, SnapshotMeta(product.Kind)); err != nil {
				return nil, err
			}
		}
		log.Debug("ingested roads", zap.String("state", unit), zap.Int("counties", len(entries)), zap.Int("records", len(records)))
		all = append(all, records...)
	}
	return all, nil
}

// RoadsPath is the cache table for one state-year of roads.
func RoadsPath(interimDir string, year, stateFIPS int) string {
	return filepath.Join(interimDir, string(model.KindRoad), fmt.Sprint(year), model.StateKey(stateFIPS)+".db")
}

// load fetches one archive, unpacks it and parses its shapefile.
func (in *Ingestor) load(ctx context.Context, product Product, e manifest.Entry) ([]model.GeometryRecord, error) {
	err := in.retriever.Fetch(ctx, e.URL, e.Path)
	in.manifest.Mark(e.Key(), err)
	if err != nil {
		return nil, err
	}

	dir := strings.TrimSuffix(e.Path, filepath.Ext(e.Path))
	if _, err := fetcher.ExtractZIP(e.Path, dir); err != nil {
		return nil, eris.Wrapf(err, "tiger: extract %s", e.Path)
	}
	shpPath, err := fetcher.FindFileByExt(dir, ".shp")
	if err != nil {
		return nil, err
	}
	return ParseShapefile(shpPath, product)
}

func (in *Ingestor) skip(stage, unit string, err error) {
	zap.L().Warn("tiger: skipping unit",
		zap.String("stage", stage),
		zap.String("unit", unit),
		zap.Error(err),
	)
	if in.reporter != nil {
		in.reporter.Skip(stage, unit, err)
	}
}

func filterStates(records []model.GeometryRecord, states []int) []model.GeometryRecord {
	if len(states) == 0 {
		return records
	}
	want := make(map[int]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	out := records[:0:0]
	for _, r := range records {
		if want[r.StateFIPS] {
			out = append(out, r)
		}
	}
	return out
}

// ManifestEntries lists the TIGER archives needed for the given states,
// counties and road years. Archives are placed under shapeDir/{kind}/.
func ManifestEntries(filesURL, shapeDir string, states []int, counties []model.CountyCode, roadYears []int) []manifest.Entry {
	entry := func(kind model.GeometryKind, state int, county string, year int) manifest.Entry {
		url := DownloadURL(filesURL, kind, state, county, year)
		dir := filepath.Join(shapeDir, string(kind))
		if kind == model.KindRoad {
			dir = filepath.Join(dir, fmt.Sprint(year))
		}
		return manifest.Entry{
			Kind:      manifest.Kind(kind),
			StateFIPS: state,
			CountyID:  county,
			Year:      year,
			URL:       url,
			Path:      filepath.Join(dir, ArchiveName(url)),
		}
	}

	entries := []manifest.Entry{
		entry(model.KindState, 0, "", 0),
		entry(model.KindCounty, 0, "", 0),
	}
	for _, st := range states {
		entries = append(entries, entry(model.KindPUMA, st, "", 0), entry(model.KindBlock, st, "", 0))
	}
	for _, year := range roadYears {
		for _, c := range counties {
			entries = append(entries, entry(model.KindRoad, c.StateFIPS, c.CountyID, year))
		}
	}
	return entries
}
