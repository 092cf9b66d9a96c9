package tiger

import (
	"database/sql"

	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/store"
)

// RecordCodec persists geometry records with EWKB-encoded shapes.
var RecordCodec = store.Codec[model.GeometryRecord]{
	Table: store.Table{
		Name: "geometry",
		Columns: []store.Column{
			{Name: "kind", Type: "TEXT"},
			{Name: "id", Type: "TEXT"},
			{Name: "name", Type: "TEXT"},
			{Name: "state_fips", Type: "INTEGER"},
			{Name: "year", Type: "INTEGER"},
			{Name: "geom", Type: "BLOB"},
			{Name: "centroid_lon", Type: "REAL"},
			{Name: "centroid_lat", Type: "REAL"},
		},
	},
	Encode: func(r model.GeometryRecord) ([]any, error) {
		wkb, err := EncodeEWKB(r.Geom)
		if err != nil {
			return nil, err
		}
		var lon, lat sql.NullFloat64
		if r.Centroid != nil {
			lon = sql.NullFloat64{Float64: r.Centroid.Lon, Valid: true}
			lat = sql.NullFloat64{Float64: r.Centroid.Lat, Valid: true}
		}
		return []any{string(r.Kind), r.ID, r.Name, r.StateFIPS, r.Year, wkb, lon, lat}, nil
	},
	Decode: func(s store.Scanner) (model.GeometryRecord, error) {
		var (
			r        model.GeometryRecord
			kind     string
			wkb      []byte
			lon, lat sql.NullFloat64
		)
		if err := s.Scan(&kind, &r.ID, &r.Name, &r.StateFIPS, &r.Year, &wkb, &lon, &lat); err != nil {
			return r, err
		}
		r.Kind = model.GeometryKind(kind)
		g, err := DecodeEWKB(wkb)
		if err != nil {
			return r, err
		}
		r.Geom = g
		if lon.Valid && lat.Valid {
			r.Centroid = &model.Point{Lon: lon.Float64, Lat: lat.Float64}
		}
		return r, nil
	},
}

// SnapshotMeta is the metadata written alongside a geometry table.
func SnapshotMeta(kind model.GeometryKind) store.Meta {
	return store.Meta{store.MetaCRS: model.CRS, "kind": string(kind)}
}
