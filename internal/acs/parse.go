package acs

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commute-cli/internal/fetcher"
	"github.com/sells-group/commute-cli/internal/model"
)

// incomeNotApplicable is the HINCP value for group quarters and vacant units.
const incomeNotApplicable = -60000

// ReadFile parses one cached PUMS response.
func ReadFile(ctx context.Context, path string, year int) ([]model.MicrodataRecord, error) {
	f, err := fetcher.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck

	table, err := fetcher.ReadCensusTable(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "acs: read %s", path)
	}
	return ParseTable(table, year)
}

// ParseTable normalizes a PUMS response. Sentinel and missing codes become
// absent values here so aggregation never sees them.
func ParseTable(t *fetcher.CensusTable, year int) ([]model.MicrodataRecord, error) {
	fm := FieldsFor(year)
	idx := make(map[string]int, len(t.Header))
	for _, name := range fm.Required() {
		i := t.Index(name)
		if i < 0 {
			return nil, &SchemaMismatchError{Year: year, Field: name}
		}
		idx[name] = i
	}

	records := make([]model.MicrodataRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		if len(row) < len(t.Header) {
			continue
		}
		get := func(name string) string { return strings.TrimSpace(row[idx[name]]) }

		state, ok := parseInt(get(FieldState))
		if !ok {
			continue
		}
		puma, ok := parseInt(get(FieldPUMA))
		if !ok {
			continue
		}
		weight, _ := parseFloat(get(FieldWeight))
		minutes, _ := parseFloat(get(FieldMinutes))

		rec := model.MicrodataRecord{
			Year:           year,
			StateFIPS:      state,
			PUMA:           puma,
			CommuteMinutes: minutes,
			Weight:         weight,
		}
		if s, ok := parseInt(get(FieldSex)); ok && (s == int(model.SexMale) || s == int(model.SexFemale)) {
			rec.Sex = model.Sex(s)
		}
		if m, ok := parseInt(get(fm.Mode)); ok {
			rec.Mode = fm.MapMode(m)
		}
		rec.HouseholdIncome = income(get(FieldIncome), get(FieldAdjInc))

		rec.Races = model.RaceFlags{
			AIAN:      get(FieldAIAN) == "1",
			Asian:     get(FieldAsian) == "1",
			Black:     get(FieldBlack) == "1",
			Hawaiian:  get(FieldHawaiian) == "1",
			White:     get(FieldWhite) == "1",
			SomeOther: get(FieldOther) == "1",
		}
		if h, ok := parseInt(get(FieldHispanic)); ok && h > 1 {
			rec.Races.Hispanic = true
		}

		records = append(records, rec)
	}
	return records, nil
}

// income applies the ADJINC factor to HINCP. ADJINC is published with six
// implied decimals (1010145 means 1.010145).
func income(hincp, adjinc string) *float64 {
	v, ok := parseFloat(hincp)
	if !ok || v == incomeNotApplicable {
		return nil
	}
	if adj, ok := parseFloat(adjinc); ok && adj > 0 {
		if adj > 100 {
			adj /= 1e6
		}
		v *= adj
	}
	return &v
}

func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
