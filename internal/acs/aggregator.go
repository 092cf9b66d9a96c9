package acs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/fetcher"
	"github.com/sells-group/commute-cli/internal/manifest"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/store"
)

// Reporter receives unit outcomes that do not stop the run.
type Reporter interface {
	Skip(stage, unit string, err error)
	Fail(stage, unit string, err error)
}

// Stage is the name reported for ACS units.
const Stage = "acs"

// Aggregator runs AggregateYear over every year and slice and persists one
// ledger unit per year.
type Aggregator struct {
	retriever fetcher.FileRetriever
	manifest  *manifest.Manifest
	ledger    *store.Ledger[model.AggregateStat]
	deflator  Deflator
	apiKey    string
	reporter  Reporter
}

// NewAggregator creates an Aggregator. The API key is only attached to
// requests, never to the manifest.
func NewAggregator(r fetcher.FileRetriever, m *manifest.Manifest, ledger *store.Ledger[model.AggregateStat], deflator Deflator, apiKey string, reporter Reporter) *Aggregator {
	return &Aggregator{retriever: r, manifest: m, ledger: ledger, deflator: deflator, apiKey: apiKey, reporter: reporter}
}

// AggregateAll returns aggregates for every year. Completed years are read
// from the ledger. A year with a schema mismatch is recorded as failed and
// left out; a year missing some states is returned but not persisted.
func (a *Aggregator) AggregateAll(ctx context.Context, years []int, codes []model.ReferenceCode) ([]model.AggregateStat, error) {
	log := zap.L().With(zap.String("component", "acs.aggregator"))

	var fresh []model.AggregateStat
	for _, year := range years {
		unit := fmt.Sprint(year)
		done, err := a.ledger.Done(ctx, unit)
		if err != nil {
			return nil, err
		}
		if done {
			log.Debug("year already aggregated", zap.Int("year", year))
			continue
		}

		records, complete, err := a.loadYear(ctx, year, codes)
		if err != nil {
			var sm *SchemaMismatchError
			if errors.As(err, &sm) {
				a.fail(unit, err)
				continue
			}
			return nil, err
		}

		var stats []model.AggregateStat
		for _, sex := range model.Sexes {
			for _, race := range model.Races {
				stats = append(stats, AggregateYear(records, sex, race, a.deflator)...)
			}
		}

		if complete {
			if err := a.ledger.Append(ctx, unit, stats); err != nil {
				return nil, err
			}
		} else {
			fresh = append(fresh, stats...)
		}
		log.Info("aggregated year",
			zap.Int("year", year),
			zap.Int("respondents", len(records)),
			zap.Int("rows", len(stats)),
			zap.Bool("complete", complete),
		)
	}

	persisted, err := a.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	return append(persisted, fresh...), nil
}

// loadYear fetches and parses every state's response for year. complete is
// false when any state was skipped.
func (a *Aggregator) loadYear(ctx context.Context, year int, codes []model.ReferenceCode) ([]model.MicrodataRecord, bool, error) {
	var records []model.MicrodataRecord
	complete := true
	for _, c := range codes {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		unit := fmt.Sprintf("%d_%s", year, model.StateKey(c.StateFIPS))
		entries := a.manifest.Lookup(manifest.KindACS, c.StateFIPS, year)
		if len(entries) == 0 {
			complete = false
			a.skip(unit, eris.New("no manifest entry"))
			continue
		}
		e := entries[0]

		err := a.retriever.Fetch(ctx, WithKey(e.URL, a.apiKey), e.Path)
		a.manifest.Mark(e.Key(), err)
		if err != nil {
			complete = false
			a.skip(unit, err)
			continue
		}

		recs, err := ReadFile(ctx, e.Path, year)
		if err != nil {
			var sm *SchemaMismatchError
			if errors.As(err, &sm) {
				return nil, false, err
			}
			complete = false
			a.skip(unit, err)
			continue
		}
		records = append(records, recs...)
	}
	return records, complete, nil
}

func (a *Aggregator) skip(unit string, err error) {
	zap.L().Warn("acs: skipping unit", zap.String("unit", unit), zap.Error(err))
	if a.reporter != nil {
		a.reporter.Skip(Stage, unit, err)
	}
}

func (a *Aggregator) fail(unit string, err error) {
	zap.L().Error("acs: year failed", zap.String("unit", unit), zap.Error(err))
	if a.reporter != nil {
		a.reporter.Fail(Stage, unit, err)
	}
}

// StatCodec persists AggregateStat rows with one column per mode.
var StatCodec = store.Codec[model.AggregateStat]{
	Table: store.Table{Name: "acs", Columns: statColumns()},
	Encode: func(s model.AggregateStat) ([]any, error) {
		vals := []any{s.Year, s.StateFIPS, s.PUMA, s.Sex.String(), string(s.Race), s.PersonWeight, s.TotalWeightedMinutes, nullable(s.AvgCommuteMinutes)}
		for _, m := range model.Modes {
			vals = append(vals, s.ModeCounts[m])
		}
		return append(vals, nullable(s.MedianIncome)), nil
	},
	Decode: func(sc store.Scanner) (model.AggregateStat, error) {
		var (
			s           model.AggregateStat
			sex, race   string
			avg, median sql.NullFloat64
		)
		modes := make([]float64, len(model.Modes))
		dest := []any{&s.Year, &s.StateFIPS, &s.PUMA, &sex, &race, &s.PersonWeight, &s.TotalWeightedMinutes, &avg}
		for i := range modes {
			dest = append(dest, &modes[i])
		}
		dest = append(dest, &median)
		if err := sc.Scan(dest...); err != nil {
			return s, err
		}

		var err error
		if s.Sex, err = model.ParseSex(sex); err != nil {
			return s, err
		}
		if s.Race, err = model.ParseRace(race); err != nil {
			return s, err
		}
		s.ModeCounts = make(map[model.Mode]float64, len(model.Modes))
		for i, m := range model.Modes {
			s.ModeCounts[m] = modes[i]
		}
		s.AvgCommuteMinutes = fromNull(avg)
		s.MedianIncome = fromNull(median)
		return s, nil
	},
}

func statColumns() []store.Column {
	cols := []store.Column{
		{Name: "year", Type: "INTEGER"},
		{Name: "state_fips", Type: "INTEGER"},
		{Name: "puma", Type: "INTEGER"},
		{Name: "sex", Type: "TEXT"},
		{Name: "race", Type: "TEXT"},
		{Name: "person_weight", Type: "REAL"},
		{Name: "total_weighted_minutes", Type: "REAL"},
		{Name: "avg_commute_minutes", Type: "REAL"},
	}
	for _, m := range model.Modes {
		cols = append(cols, store.Column{Name: "mode_" + m.String(), Type: "REAL"})
	}
	return append(cols, store.Column{Name: "median_income", Type: "REAL"})
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
