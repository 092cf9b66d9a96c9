// Package reference builds the state and county code tables every other
// stage keys on.
package reference

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/fetcher"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/store"
)

// MOVSRow holds the MOVS columns used for state codes. Other columns are ignored.
type MOVSRow struct {
	StateAbbr string `csv:"state_abbr"`
	FIPS      string `csv:"fips"`
	StateName string `csv:"state_name"`
}

// ReadMOVS decodes the MOVS state table.
func ReadMOVS(r io.Reader) ([]MOVSRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, eris.Wrap(err, "reference: read MOVS header")
	}

	var rows []MOVSRow
	for {
		var row MOVSRow
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, eris.Wrapf(err, "reference: decode MOVS line %d", len(rows)+2)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// BuildStateCodes returns one code per distinct state, ordered by FIPS. The
// national "us" rows and rows with an unparseable FIPS code are dropped.
func BuildStateCodes(rows []MOVSRow) []model.ReferenceCode {
	seen := make(map[model.ReferenceCode]bool)
	var codes []model.ReferenceCode
	for _, r := range rows {
		abbr := strings.ToLower(strings.TrimSpace(r.StateAbbr))
		if abbr == "" || abbr == "us" {
			continue
		}
		fips, err := model.ParseFIPS(r.FIPS)
		if err != nil || fips <= 0 {
			continue
		}
		c := model.ReferenceCode{StateFIPS: fips, StateAbbr: abbr, StateName: strings.TrimSpace(r.StateName)}
		if seen[c] {
			continue
		}
		seen[c] = true
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool {
		if codes[i].StateFIPS != codes[j].StateFIPS {
			return codes[i].StateFIPS < codes[j].StateFIPS
		}
		return codes[i].StateAbbr < codes[j].StateAbbr
	})
	return codes
}

// BuildCountyCodes keeps the counties whose state is in codes. counties are
// county geometry records keyed by their 5-digit GEOID.
func BuildCountyCodes(counties []model.GeometryRecord, codes []model.ReferenceCode) []model.CountyCode {
	states := model.StateFIPSSet(codes)
	var out []model.CountyCode
	for _, c := range counties {
		if len(c.ID) != 5 {
			continue
		}
		state, err := model.ParseFIPS(c.ID[:2])
		if err != nil {
			continue
		}
		if _, ok := states[state]; !ok {
			continue
		}
		county, err := model.ParseFIPS(c.ID[2:])
		if err != nil {
			continue
		}
		out = append(out, model.CountyCode{
			StateFIPS:  state,
			CountyFIPS: county,
			CountyID:   model.CountyID(state, county),
			CountyName: c.Name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CountyID < out[j].CountyID })
	return out
}

// LoadOrBuildStateCodes returns the cached state code table at path, deriving
// it from the MOVS file at movsPath on first use.
func LoadOrBuildStateCodes(ctx context.Context, path, movsPath string) ([]model.ReferenceCode, error) {
	return store.Cached(ctx, path, StateCodeCodec, nil, func(context.Context) ([]model.ReferenceCode, error) {
		f, err := fetcher.OpenFile(movsPath)
		if err != nil {
			return nil, eris.Wrap(err, "reference: open MOVS")
		}
		defer f.Close() //nolint:errcheck

		rows, err := ReadMOVS(f)
		if err != nil {
			return nil, err
		}
		codes := BuildStateCodes(rows)
		if len(codes) == 0 {
			return nil, eris.Errorf("reference: no state codes in %s", movsPath)
		}
		zap.L().Info("reference: built state codes", zap.Int("states", len(codes)))
		return codes, nil
	})
}

// LoadOrBuildCountyCodes returns the cached county code table at path,
// deriving it from the county layer on first use.
func LoadOrBuildCountyCodes(ctx context.Context, path string, counties []model.GeometryRecord, codes []model.ReferenceCode) ([]model.CountyCode, error) {
	return store.Cached(ctx, path, CountyCodeCodec, nil, func(context.Context) ([]model.CountyCode, error) {
		out := BuildCountyCodes(counties, codes)
		zap.L().Info("reference: built county codes", zap.Int("counties", len(out)))
		return out, nil
	})
}

// StateCodeCodec persists ReferenceCode rows.
var StateCodeCodec = store.Codec[model.ReferenceCode]{
	Table: store.Table{Name: "state_codes", Columns: []store.Column{
		{Name: "state_abbr", Type: "TEXT"},
		{Name: "fips", Type: "INTEGER"},
		{Name: "state_name", Type: "TEXT"},
	}},
	Encode: func(c model.ReferenceCode) ([]any, error) {
		return []any{c.StateAbbr, c.StateFIPS, c.StateName}, nil
	},
	Decode: func(s store.Scanner) (model.ReferenceCode, error) {
		var c model.ReferenceCode
		err := s.Scan(&c.StateAbbr, &c.StateFIPS, &c.StateName)
		return c, err
	},
}

// CountyCodeCodec persists CountyCode rows.
var CountyCodeCodec = store.Codec[model.CountyCode]{
	Table: store.Table{Name: "county_codes", Columns: []store.Column{
		{Name: "state_fips", Type: "INTEGER"},
		{Name: "county_fips", Type: "INTEGER"},
		{Name: "county_id", Type: "TEXT"},
		{Name: "county_name", Type: "TEXT"},
	}},
	Encode: func(c model.CountyCode) ([]any, error) {
		return []any{c.StateFIPS, c.CountyFIPS, c.CountyID, c.CountyName}, nil
	},
	Decode: func(s store.Scanner) (model.CountyCode, error) {
		var c model.CountyCode
		err := s.Scan(&c.StateFIPS, &c.CountyFIPS, &c.CountyID, &c.CountyName)
		return c, err
	},
}
