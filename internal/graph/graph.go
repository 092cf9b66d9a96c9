// Package graph joins computed statistics to their geometries and serves
// filtered views of the result.
package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/commute-cli/internal/model"
)

// Granularity is the geography a view is keyed on.
type Granularity string

// Granularities.
const (
	ByState Granularity = "state"
	ByPUMA  Granularity = "puma"
)

// ParseGranularity validates a granularity name.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(s)) {
	case ByState:
		return ByState, nil
	case ByPUMA:
		return ByPUMA, nil
	}
	return "", eris.Errorf("graph: unknown granularity %q", s)
}

// StatRow is one statistic row in a shape the assembler can join. PUMA is
// zero for state-level rows; Sex and Race are zero when the statistic has
// no such dimension.
type StatRow struct {
	Year      int
	StateFIPS int
	StateAbbr string
	PUMA      int
	Sex       model.Sex
	Race      model.Race
	Values    map[string]float64
}

// Feature is a joined row.
type Feature struct {
	Row      StatRow
	Name     string
	Geometry geom.T
}

// View is an assembled set of features.
type View struct {
	Granularity Granularity
	Features    []Feature
	// Unmatched counts rows without a geometry.
	Unmatched int
}

var upper = cases.Upper(language.Und)

// StateKey normalizes a state abbreviation for joining.
func StateKey(abbr string) string {
	return upper.String(strings.TrimSpace(abbr))
}

// PUMAKey is the 7-digit state+PUMA GEOID.
func PUMAKey(stateFIPS, puma int) string {
	return model.FormatFIPS(stateFIPS, 2) + model.FormatFIPS(puma, 5)
}

func rowKey(r StatRow, g Granularity) string {
	if g == ByState {
		return StateKey(r.StateAbbr)
	}
	return PUMAKey(r.StateFIPS, r.PUMA)
}

func geomKey(rec model.GeometryRecord, g Granularity) string {
	if g == ByState {
		return StateKey(rec.ID)
	}
	id := strings.TrimSpace(rec.ID)
	if n, err := strconv.Atoi(id); err == nil && len(id) < 7 {
		return model.FormatFIPS(n, 7)
	}
	return id
}

// Build joins stats to geoms on the normalized key of granularity. Rows
// without a matching geometry are dropped and counted. PUMA rows joined by
// state are rolled up first; state rows cannot be joined to PUMAs.
func Build(stats []StatRow, geoms []model.GeometryRecord, g Granularity) (*View, error) {
	switch g {
	case ByState:
		if hasPUMA(stats) {
			stats = Rollup(stats)
		}
	case ByPUMA:
		for _, r := range stats {
			if r.PUMA == 0 {
				return nil, eris.Errorf("graph: %d %s row has no PUMA", r.Year, StateKey(r.StateAbbr))
			}
		}
	default:
		return nil, eris.Errorf("graph: unknown granularity %q", g)
	}

	index := make(map[string]model.GeometryRecord, len(geoms))
	for _, rec := range geoms {
		if rec.Geom == nil {
			continue
		}
		index[geomKey(rec, g)] = rec
	}

	v := &View{Granularity: g}
	for _, r := range stats {
		rec, ok := index[rowKey(r, g)]
		if !ok {
			v.Unmatched++
			continue
		}
		if r.StateFIPS == 0 {
			r.StateFIPS = rec.StateFIPS
		}
		v.Features = append(v.Features, Feature{Row: r, Name: rec.Name, Geometry: rec.Geom})
	}
	if v.Unmatched > 0 {
		zap.L().Debug("graph: rows without geometry",
			zap.String("granularity", string(g)),
			zap.Int("unmatched", v.Unmatched),
		)
	}
	return v, nil
}

func hasPUMA(rows []StatRow) bool {
	for _, r := range rows {
		if r.PUMA != 0 {
			return true
		}
	}
	return false
}

type rollupKey struct {
	year  int
	state int
	sex   model.Sex
	race  model.Race
}

// Rollup combines rows into one row per year, state, sex and race. Weights,
// counts and lengths are summed. The commute average is re-weighted by
// person weight and the distance average by jobs. Medians do not combine
// and are dropped.
func Rollup(rows []StatRow) []StatRow {
	index := make(map[rollupKey]int)
	var out []StatRow
	for _, r := range rows {
		k := rollupKey{year: r.Year, state: r.StateFIPS, sex: r.Sex, race: r.Race}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, StatRow{
				Year: r.Year, StateFIPS: r.StateFIPS, StateAbbr: r.StateAbbr,
				Sex: r.Sex, Race: r.Race, Values: map[string]float64{},
			})
		}
		acc := out[i].Values
		for name, v := range r.Values {
			switch name {
			case ValueMedianIncome:
			case ValueAvgCommute:
				acc[name] += v * r.Values[ValuePersonWeight]
			case ValueAvgDistance:
				acc[name] += v * r.Values[ValueJobs]
			default:
				acc[name] += v
			}
		}
	}

	for i := range out {
		v := out[i].Values
		reweigh(v, ValueAvgCommute, v[ValuePersonWeight])
		reweigh(v, ValueAvgDistance, v[ValueJobs])
	}
	return out
}

func reweigh(values map[string]float64, name string, weight float64) {
	sum, ok := values[name]
	if !ok {
		return
	}
	if weight <= 0 {
		delete(values, name)
		return
	}
	values[name] = sum / weight
}

// Filter selects features. Zero fields match everything. State accepts an
// abbreviation in any case or a FIPS code.
type Filter struct {
	Year  int
	State string
	Sex   model.Sex
	Race  model.Race
}

func (f Filter) matches(r StatRow) bool {
	if f.Year != 0 && r.Year != f.Year {
		return false
	}
	if f.State != "" {
		if n, err := strconv.Atoi(f.State); err == nil {
			if r.StateFIPS != n {
				return false
			}
		} else if StateKey(f.State) != StateKey(r.StateAbbr) {
			return false
		}
	}
	if f.Sex != 0 && r.Sex != f.Sex {
		return false
	}
	if f.Race != "" && r.Race != f.Race {
		return false
	}
	return true
}

// Filter returns a new view holding the matching features.
func (v *View) Filter(f Filter) *View {
	out := &View{Granularity: v.Granularity}
	for _, ft := range v.Features {
		if f.matches(ft.Row) {
			out.Features = append(out.Features, ft)
		}
	}
	return out
}

// String summarizes the view for logs.
func (v *View) String() string {
	return fmt.Sprintf("%s view: %d features, %d unmatched", v.Granularity, len(v.Features), v.Unmatched)
}
