package roads

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/store"
)

// Stage is the name reported for road units.
const Stage = "roads"

// Reporter is told about state-years that were skipped.
type Reporter interface {
	Skip(stage, unit string, err error)
}

// RoadSource returns the road lines of one state-year.
type RoadSource func(ctx context.Context, stateFIPS, year int) ([]model.GeometryRecord, error)

// Engine runs ComputeStateYearPumaLengths for every state-year and persists
// one ledger unit per state-year.
type Engine struct {
	roads    RoadSource
	ledger   *store.Ledger[model.RoadLengthStat]
	workers  int
	reporter Reporter
}

// NewEngine creates an Engine. reporter may be nil.
func NewEngine(roads RoadSource, ledger *store.Ledger[model.RoadLengthStat], workers int, reporter Reporter) *Engine {
	return &Engine{roads: roads, ledger: ledger, workers: workers, reporter: reporter}
}

// Unit names one state-year.
func Unit(year, stateFIPS int) string {
	return fmt.Sprintf("%d_%s", year, model.StateKey(stateFIPS))
}

// Run processes every state-year not yet in the ledger and returns all
// persisted rows ordered by year, state and PUMA.
func (e *Engine) Run(ctx context.Context, pumas []model.GeometryRecord, states, years []int) ([]model.RoadLengthStat, error) {
	log := zap.L().With(zap.String("component", "roads.engine"))

	for _, year := range years {
		for _, st := range states {
			unit := Unit(year, st)
			done, err := e.ledger.Done(ctx, unit)
			if err != nil {
				return nil, err
			}
			if done {
				continue
			}

			roads, err := e.roads(ctx, st, year)
			if err != nil {
				e.skip(unit, err)
				continue
			}
			if len(roads) == 0 {
				e.skip(unit, eris.New("no road lines"))
				continue
			}

			stats, err := ComputeStateYearPumaLengths(ctx, roads, pumas, st, year, e.workers)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				e.skip(unit, err)
				continue
			}
			if err := e.ledger.Append(ctx, unit, stats); err != nil {
				return nil, err
			}
			log.Info("computed road lengths", zap.String("unit", unit), zap.Int("pumas", len(stats)), zap.Int("roads", len(roads)))
		}
	}

	out, err := e.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.StateFIPS != b.StateFIPS {
			return a.StateFIPS < b.StateFIPS
		}
		return a.PUMAID < b.PUMAID
	})
	return out, nil
}

func (e *Engine) skip(unit string, err error) {
	zap.L().Warn("roads: skipping unit", zap.String("unit", unit), zap.Error(err))
	if e.reporter != nil {
		e.reporter.Skip(Stage, unit, err)
	}
}

// StatCodec persists RoadLengthStat rows.
var StatCodec = store.Codec[model.RoadLengthStat]{
	Table: store.Table{Name: "roads", Columns: []store.Column{
		{Name: "year", Type: "INTEGER"},
		{Name: "state_fips", Type: "INTEGER"},
		{Name: "puma_id", Type: "TEXT"},
		{Name: "total_length_km", Type: "REAL"},
	}},
	Encode: func(s model.RoadLengthStat) ([]any, error) {
		return []any{s.Year, s.StateFIPS, s.PUMAID, s.TotalLengthKm}, nil
	},
	Decode: func(sc store.Scanner) (model.RoadLengthStat, error) {
		var s model.RoadLengthStat
		err := sc.Scan(&s.Year, &s.StateFIPS, &s.PUMAID, &s.TotalLengthKm)
		return s, err
	},
}
