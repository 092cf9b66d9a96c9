package lodes

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/fetcher"
	"github.com/sells-group/commute-cli/internal/manifest"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/store"
)

// Stage is the name reported for LODES units.
const Stage = "lodes"

// Reporter is told about state-years that were skipped.
type Reporter interface {
	Skip(stage, unit string, err error)
}

// CentroidSource returns block centroids keyed by GEOID for one state.
type CentroidSource func(ctx context.Context, stateFIPS int) (map[string]model.Point, error)

// Source locates the flow files.
type Source struct {
	BaseURL string
	Version string
	JobType string
}

// Engine computes ODDistanceStat rows for every state-year and persists one
// ledger unit per state-year.
type Engine struct {
	retriever fetcher.FileRetriever
	manifest  *manifest.Manifest
	ledger    *store.Ledger[model.ODDistanceStat]
	centroids CentroidSource
	reporter  Reporter
}

// NewEngine creates an Engine. reporter may be nil.
func NewEngine(r fetcher.FileRetriever, m *manifest.Manifest, ledger *store.Ledger[model.ODDistanceStat], centroids CentroidSource, reporter Reporter) *Engine {
	return &Engine{retriever: r, manifest: m, ledger: ledger, centroids: centroids, reporter: reporter}
}

// Unit names one state-year.
func Unit(year, stateFIPS int) string {
	return fmt.Sprintf("%d_%s", year, model.StateKey(stateFIPS))
}

// Run processes every state-year not yet in the ledger and returns all
// persisted rows ordered by state and year.
func (e *Engine) Run(ctx context.Context, codes []model.ReferenceCode, years []int) ([]model.ODDistanceStat, error) {
	log := zap.L().With(zap.String("component", "lodes.engine"))

	for _, c := range codes {
		var centroids map[string]model.Point
		var centroidErr error
		for _, year := range years {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			unit := Unit(year, c.StateFIPS)
			done, err := e.ledger.Done(ctx, unit)
			if err != nil {
				return nil, err
			}
			if done {
				continue
			}

			if centroidErr != nil {
				e.skip(unit, centroidErr)
				continue
			}
			if centroids == nil {
				centroids, err = e.centroids(ctx, c.StateFIPS)
				if err != nil {
					centroidErr = eris.Wrap(err, "load block centroids")
					e.skip(unit, centroidErr)
					continue
				}
			}

			stat, err := e.stateYear(ctx, c, year, centroids)
			if err != nil {
				e.skip(unit, err)
				continue
			}
			if err := e.ledger.Append(ctx, unit, []model.ODDistanceStat{stat}); err != nil {
				return nil, err
			}
			log.Info("computed state-year distance",
				zap.String("unit", unit),
				zap.Float64("avg_km", stat.AvgDistanceKm),
				zap.Int("pairs", stat.Pairs),
				zap.Int("unmatched", stat.Unmatched),
			)
		}
	}

	out, err := e.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StateFIPS != out[j].StateFIPS {
			return out[i].StateFIPS < out[j].StateFIPS
		}
		return out[i].Year < out[j].Year
	})
	return out, nil
}

func (e *Engine) stateYear(ctx context.Context, c model.ReferenceCode, year int, centroids map[string]model.Point) (model.ODDistanceStat, error) {
	entries := e.manifest.Lookup(manifest.KindLODES, c.StateFIPS, year)
	if len(entries) == 0 {
		return model.ODDistanceStat{}, eris.New("no manifest entry")
	}
	entry := entries[0]

	err := e.retriever.Fetch(ctx, entry.URL, entry.Path)
	e.manifest.Mark(entry.Key(), err)
	if err != nil {
		return model.ODDistanceStat{}, err
	}

	f, err := fetcher.OpenFile(entry.Path)
	if err != nil {
		return model.ODDistanceStat{}, err
	}
	defer f.Close() //nolint:errcheck

	res, err := ComputeStateYearDistance(ctx, f, centroids)
	if err != nil {
		return model.ODDistanceStat{}, err
	}
	return model.ODDistanceStat{
		StateFIPS:     c.StateFIPS,
		StateAbbr:     c.StateAbbr,
		Year:          year,
		AvgDistanceKm: res.AvgDistanceKm,
		Jobs:          res.Jobs,
		Pairs:         res.Pairs,
		Unmatched:     res.Unmatched,
	}, nil
}

func (e *Engine) skip(unit string, err error) {
	zap.L().Warn("lodes: skipping unit", zap.String("unit", unit), zap.Error(err))
	if e.reporter != nil {
		e.reporter.Skip(Stage, unit, err)
	}
}

// RawPath is where one flow file is cached.
func RawPath(rawDir string, src Source, stateAbbr string, year int) string {
	return filepath.Join(rawDir, "lodes", fmt.Sprint(year), filepath.Base(FlowURL(src.BaseURL, src.Version, stateAbbr, src.JobType, year)))
}

// ManifestEntries lists the flow files for every state and year.
func ManifestEntries(src Source, rawDir string, codes []model.ReferenceCode, years []int) []manifest.Entry {
	entries := make([]manifest.Entry, 0, len(codes)*len(years))
	for _, year := range years {
		for _, c := range codes {
			entries = append(entries, manifest.Entry{
				Kind:      manifest.KindLODES,
				StateFIPS: c.StateFIPS,
				Year:      year,
				URL:       FlowURL(src.BaseURL, src.Version, c.StateAbbr, src.JobType, year),
				Path:      RawPath(rawDir, src, c.StateAbbr, year),
			})
		}
	}
	return entries
}

// StatCodec persists ODDistanceStat rows.
var StatCodec = store.Codec[model.ODDistanceStat]{
	Table: store.Table{Name: "lodes", Columns: []store.Column{
		{Name: "state_fips", Type: "INTEGER"},
		{Name: "state_abbr", Type: "TEXT"},
		{Name: "year", Type: "INTEGER"},
		{Name: "avg_distance_km", Type: "REAL"},
		{Name: "jobs", Type: "REAL"},
		{Name: "pairs", Type: "INTEGER"},
		{Name: "unmatched", Type: "INTEGER"},
	}},
	Encode: func(s model.ODDistanceStat) ([]any, error) {
		return []any{s.StateFIPS, s.StateAbbr, s.Year, s.AvgDistanceKm, s.Jobs, s.Pairs, s.Unmatched}, nil
	},
	Decode: func(sc store.Scanner) (model.ODDistanceStat, error) {
		var s model.ODDistanceStat
		err := sc.Scan(&s.StateFIPS, &s.StateAbbr, &s.Year, &s.AvgDistanceKm, &s.Jobs, &s.Pairs, &s.Unmatched)
		return s, err
	},
}
