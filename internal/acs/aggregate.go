package acs

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/commute-cli/internal/model"
)

type groupKey struct {
	year, state, puma int
}

type group struct {
	weight   float64
	minutes  float64
	modes    map[model.Mode]float64
	incomes  []float64
	incomeWt []float64
}

// AggregateYear computes one sex/race slice of a year's records. Groups
// without a qualifying respondent do not appear in the result.
func AggregateYear(records []model.MicrodataRecord, sex model.Sex, race model.Race, deflator Deflator) []model.AggregateStat {
	if deflator == nil {
		deflator = Nominal
	}

	groups := make(map[groupKey]*group)
	for _, r := range records {
		if sex != model.SexAll && r.Sex != sex {
			continue
		}
		if !r.Races.Has(race) {
			continue
		}
		if r.CommuteMinutes <= 0 {
			continue
		}

		k := groupKey{year: r.Year, state: r.StateFIPS, puma: r.PUMA}
		g, ok := groups[k]
		if !ok {
			g = &group{modes: make(map[model.Mode]float64, len(model.Modes))}
			groups[k] = g
		}
		g.weight += r.Weight
		g.minutes += r.Weight * r.CommuteMinutes
		if r.Mode.Valid() {
			g.modes[r.Mode] += r.Weight
		}
		if r.HouseholdIncome != nil {
			g.incomes = append(g.incomes, deflator.Inflate(*r.HouseholdIncome, r.Year))
			g.incomeWt = append(g.incomeWt, r.Weight)
		}
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.year != b.year {
			return a.year < b.year
		}
		if a.state != b.state {
			return a.state < b.state
		}
		return a.puma < b.puma
	})

	out := make([]model.AggregateStat, 0, len(keys))
	for _, k := range keys {
		g := groups[k]
		s := model.AggregateStat{
			Year:                 k.year,
			StateFIPS:            k.state,
			PUMA:                 k.puma,
			Sex:                  sex,
			Race:                 race,
			PersonWeight:         g.weight,
			TotalWeightedMinutes: g.minutes,
			ModeCounts:           make(map[model.Mode]float64, len(model.Modes)),
		}
		for _, m := range model.Modes {
			s.ModeCounts[m] = g.modes[m]
		}
		if g.weight > 0 {
			avg := g.minutes / g.weight
			s.AvgCommuteMinutes = &avg
		}
		s.MedianIncome = weightedMedian(g.incomes, g.incomeWt)
		out = append(out, s)
	}
	return out
}

// weightedMedian sorts values (with their weights) and returns the lowest
// value covering half the total weight. Returns nil when there is no weight.
func weightedMedian(values, weights []float64) *float64 {
	if len(values) == 0 || floats.Sum(weights) <= 0 {
		return nil
	}
	x := append([]float64(nil), values...)
	idx := make([]int, len(x))
	floats.Argsort(x, idx)
	w := make([]float64, len(x))
	for i, j := range idx {
		w[i] = weights[j]
	}
	m := stat.Quantile(0.5, stat.Empirical, x, w)
	return &m
}
