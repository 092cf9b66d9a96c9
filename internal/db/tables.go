package db

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/tiger"
)

// GeometryColumns are the columns of every geometry table.
var GeometryColumns = []string{"kind", "id", "name", "state_fips", "year", "geom", "centroid"}

// EnsureGeometryTable creates a PostGIS table for geometry records with a
// GIST index on its shape.
func (s *Sink) EnsureGeometryTable(ctx context.Context, table string) error {
	t := s.ident(table).Sanitize()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	kind TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT,
	state_fips INTEGER,
	year INTEGER,
	geom geometry(Geometry, %d),
	centroid geometry(Point, %d)
)`, t, model.SRID, model.SRID),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)",
			pgx.Identifier{table + "_geom_idx"}.Sanitize(), t),
	}
	for _, sql := range stmts {
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return eris.Wrapf(err, "db: create geometry table %s", table)
		}
	}
	return nil
}

// GeometryRows encodes records for COPY. Shapes are sent as hex EWKB, which
// PostGIS parses into geometry values carrying SRID 3857.
func GeometryRows(records []model.GeometryRecord) ([][]any, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		shape, err := hexEWKB(r.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "db: encode %s %s", r.Kind, r.ID)
		}
		var centroid any
		if r.Centroid != nil {
			pt := geom.NewPointFlat(geom.XY, []float64{r.Centroid.Lon, r.Centroid.Lat}).SetSRID(model.SRID)
			if centroid, err = hexEWKB(pt); err != nil {
				return nil, eris.Wrapf(err, "db: encode centroid %s", r.ID)
			}
		}
		rows = append(rows, []any{string(r.Kind), r.ID, r.Name, r.StateFIPS, r.Year, shape, centroid})
	}
	return rows, nil
}

func hexEWKB(g geom.T) (any, error) {
	if g == nil {
		return nil, nil
	}
	data, err := tiger.EncodeEWKB(g)
	if err != nil {
		return nil, err
	}
	return hex.EncodeToString(data), nil
}

// LoadGeometries creates table if needed and copies records into it.
func (s *Sink) LoadGeometries(ctx context.Context, table string, records []model.GeometryRecord) (int64, error) {
	if err := s.EnsureGeometryTable(ctx, table); err != nil {
		return 0, err
	}
	rows, err := GeometryRows(records)
	if err != nil {
		return 0, err
	}
	return s.BulkInsert(ctx, table, GeometryColumns, rows)
}

// AggregateColumns are the columns of the ACS aggregate table.
func AggregateColumns() []string {
	cols := []string{"year", "state_fips", "puma", "sex", "race", "person_weight", "total_weighted_minutes", "avg_commute_minutes"}
	for _, m := range model.Modes {
		cols = append(cols, "mode_"+m.String())
	}
	return append(cols, "median_income")
}

// AggregateRows encodes ACS aggregates for COPY.
func AggregateRows(stats []model.AggregateStat) [][]any {
	rows := make([][]any, 0, len(stats))
	for _, s := range stats {
		row := []any{s.Year, s.StateFIPS, s.PUMA, s.Sex.String(), string(s.Race), s.PersonWeight, s.TotalWeightedMinutes, s.AvgCommuteMinutes}
		for _, m := range model.Modes {
			row = append(row, s.ModeCounts[m])
		}
		rows = append(rows, append(row, s.MedianIncome))
	}
	return rows
}

// LoadAggregates upserts ACS aggregates keyed by their slice.
func (s *Sink) LoadAggregates(ctx context.Context, stats []model.AggregateStat) (int64, error) {
	modeCols := ""
	for _, m := range model.Modes {
		modeCols += fmt.Sprintf("\tmode_%s DOUBLE PRECISION,\n", m.String())
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	year INTEGER NOT NULL,
	state_fips INTEGER NOT NULL,
	puma INTEGER NOT NULL,
	sex TEXT NOT NULL,
	race TEXT NOT NULL,
	person_weight DOUBLE PRECISION,
	total_weighted_minutes DOUBLE PRECISION,
	avg_commute_minutes DOUBLE PRECISION,
%s	median_income DOUBLE PRECISION,
	PRIMARY KEY (year, state_fips, puma, sex, race)
)`, s.ident("acs").Sanitize(), modeCols)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return 0, eris.Wrap(err, "db: create acs table")
	}
	return s.BulkUpsert(ctx, UpsertConfig{
		Table:        "acs",
		Columns:      AggregateColumns(),
		ConflictKeys: []string{"year", "state_fips", "puma", "sex", "race"},
	}, AggregateRows(stats))
}

// DistanceColumns are the columns of the LODES distance table.
var DistanceColumns = []string{"state_fips", "state_abbr", "year", "avg_distance_km", "jobs", "pairs", "unmatched"}

// LoadDistances upserts LODES state-year distances.
func (s *Sink) LoadDistances(ctx context.Context, stats []model.ODDistanceStat) (int64, error) {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	state_fips INTEGER NOT NULL,
	state_abbr TEXT,
	year INTEGER NOT NULL,
	avg_distance_km DOUBLE PRECISION,
	jobs DOUBLE PRECISION,
	pairs INTEGER,
	unmatched INTEGER,
	PRIMARY KEY (state_fips, year)
)`, s.ident("lodes").Sanitize())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return 0, eris.Wrap(err, "db: create lodes table")
	}
	rows := make([][]any, 0, len(stats))
	for _, d := range stats {
		rows = append(rows, []any{d.StateFIPS, d.StateAbbr, d.Year, d.AvgDistanceKm, d.Jobs, d.Pairs, d.Unmatched})
	}
	return s.BulkUpsert(ctx, UpsertConfig{Table: "lodes", Columns: DistanceColumns, ConflictKeys: []string{"state_fips", "year"}}, rows)
}

// RoadColumns are the columns of the road length table.
var RoadColumns = []string{"year", "state_fips", "puma_id", "total_length_km"}

// LoadRoadLengths upserts per-PUMA road lengths.
func (s *Sink) LoadRoadLengths(ctx context.Context, stats []model.RoadLengthStat) (int64, error) {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	year INTEGER NOT NULL,
	state_fips INTEGER NOT NULL,
	puma_id TEXT NOT NULL,
	total_length_km DOUBLE PRECISION,
	PRIMARY KEY (year, puma_id)
)`, s.ident("roads").Sanitize())
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return 0, eris.Wrap(err, "db: create roads table")
	}
	rows := make([][]any, 0, len(stats))
	for _, r := range stats {
		rows = append(rows, []any{r.Year, r.StateFIPS, r.PUMAID, r.TotalLengthKm})
	}
	return s.BulkUpsert(ctx, UpsertConfig{Table: "roads", Columns: RoadColumns, ConflictKeys: []string{"year", "puma_id"}}, rows)
}
