package graph

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/store"
	"github.com/sells-group/commute-cli/internal/tiger"
)

// GeoJSON renders the view as a FeatureCollection.
func (v *View) GeoJSON() ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(v.Features))}
	for _, ft := range v.Features {
		props := map[string]interface{}{
			"year":       ft.Row.Year,
			"state_fips": model.StateKey(ft.Row.StateFIPS),
			"state_abbr": StateKey(ft.Row.StateAbbr),
			"name":       ft.Name,
		}
		id := StateKey(ft.Row.StateAbbr)
		if v.Granularity == ByPUMA {
			id = PUMAKey(ft.Row.StateFIPS, ft.Row.PUMA)
			props["puma"] = id
		}
		if ft.Row.Sex != 0 {
			props["sex"] = ft.Row.Sex.String()
		}
		if ft.Row.Race != "" {
			props["race"] = string(ft.Row.Race)
		}
		for k, val := range ft.Row.Values {
			props[k] = val
		}
		fc.Features = append(fc.Features, &geojson.Feature{ID: id, Geometry: ft.Geometry, Properties: props})
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, eris.Wrap(err, "graph: encode geojson")
	}
	return data, nil
}

// FeatureCodec persists view features with EWKB geometry.
var FeatureCodec = store.Codec[Feature]{
	Table: store.Table{Name: "graph", Columns: []store.Column{
		{Name: "year", Type: "INTEGER"},
		{Name: "state_fips", Type: "INTEGER"},
		{Name: "state_abbr", Type: "TEXT"},
		{Name: "puma", Type: "INTEGER"},
		{Name: "sex", Type: "INTEGER"},
		{Name: "race", Type: "TEXT"},
		{Name: "name", Type: "TEXT"},
		{Name: "vals", Type: "TEXT"},
		{Name: "geom", Type: "BLOB"},
	}},
	Encode: func(f Feature) ([]any, error) {
		vals, err := json.Marshal(f.Row.Values)
		if err != nil {
			return nil, eris.Wrap(err, "graph: encode values")
		}
		wkb, err := tiger.EncodeEWKB(f.Geometry)
		if err != nil {
			return nil, err
		}
		r := f.Row
		return []any{r.Year, r.StateFIPS, r.StateAbbr, r.PUMA, int(r.Sex), string(r.Race), f.Name, string(vals), wkb}, nil
	},
	Decode: func(s store.Scanner) (Feature, error) {
		var (
			f    Feature
			sex  int
			race string
			vals string
			wkb  []byte
		)
		r := &f.Row
		if err := s.Scan(&r.Year, &r.StateFIPS, &r.StateAbbr, &r.PUMA, &sex, &race, &f.Name, &vals, &wkb); err != nil {
			return f, err
		}
		r.Sex = model.Sex(sex)
		r.Race = model.Race(race)
		if err := json.Unmarshal([]byte(vals), &r.Values); err != nil {
			return f, eris.Wrap(err, "graph: decode values")
		}
		g, err := tiger.DecodeEWKB(wkb)
		if err != nil {
			return f, err
		}
		f.Geometry = g
		return f, nil
	},
}

// Save persists the view as a snapshot table.
func (v *View) Save(ctx context.Context, path string) error {
	return store.WriteSnapshot(ctx, path, FeatureCodec, v.Features, store.Meta{
		store.MetaCRS: model.CRS,
		"granularity": string(v.Granularity),
	})
}

// Load reads a view saved with Save.
func Load(ctx context.Context, path string) (*View, error) {
	features, meta, err := store.ReadSnapshot(ctx, path, FeatureCodec)
	if err != nil {
		return nil, err
	}
	g, err := ParseGranularity(meta["granularity"])
	if err != nil {
		return nil, err
	}
	return &View{Granularity: g, Features: features}, nil
}
