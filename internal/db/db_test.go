package db

import (
	"context"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/tiger"
)

func ptr(v float64) *float64 { return &v }

func TestBulkInsert_EmptyRows(t *testing.T) {
	s := NewSink(nil, "commute")
	n, err := s.BulkInsert(context.TODO(), "t", []string{"a"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkInsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"commute", "t"}, []string{"a", "b"}).WillReturnResult(2)

	n, err := NewSink(mock, "commute").BulkInsert(context.Background(), "t", []string{"a", "b"}, [][]any{{1, "x"}, {2, "y"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsert_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"commute", "t"}, []string{"a"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = NewSink(mock, "commute").BulkInsert(context.Background(), "t", []string{"a"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO commute.t")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "commute"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, NewSink(mock, "commute").EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_Validation(t *testing.T) {
	s := NewSink(nil, "commute")

	n, err := s.BulkUpsert(context.TODO(), UpsertConfig{Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"}}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = s.BulkUpsert(context.TODO(), UpsertConfig{Table: "t", ConflictKeys: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = s.BulkUpsert(context.TODO(), UpsertConfig{Table: "t", Columns: []string{"id"}}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_t"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_t"}, []string{"id", "name"}).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("id"\) DO UPDATE SET "name" = EXCLUDED."name"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := NewSink(mock, "commute").BulkUpsert(context.Background(), UpsertConfig{
		Table:        "t",
		Columns:      []string{"id", "name"},
		ConflictKeys: []string{"id"},
	}, [][]any{{1, "a"}, {2, "b"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_AllKeysDoNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_t"}, []string{"id"}).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("id"\) DO NOTHING`).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := NewSink(mock, "commute").BulkUpsert(context.Background(), UpsertConfig{
		Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"},
	}, [][]any{{1}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_t"}, []string{"id"}).WillReturnError(fmt.Errorf("boom"))
	mock.ExpectRollback()

	_, err = NewSink(mock, "commute").BulkUpsert(context.Background(), UpsertConfig{
		Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"},
	}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into temp table for t")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}

func TestGeometryRows(t *testing.T) {
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}, []int{10}).SetSRID(model.SRID)
	records := []model.GeometryRecord{
		{Kind: model.KindPUMA, ID: "0100100", Name: "A", StateFIPS: 1, Geom: poly, Centroid: &model.Point{Lon: 0.5, Lat: 0.5}},
		{Kind: model.KindBlock, ID: "010010201001000", StateFIPS: 1, Centroid: &model.Point{Lon: -86.5, Lat: 32.4}},
	}

	rows, err := GeometryRows(records)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, rows[0], len(GeometryColumns))

	assert.Equal(t, "puma", rows[0][0])
	assert.Equal(t, "0100100", rows[0][1])

	data, err := hex.DecodeString(rows[0][5].(string))
	require.NoError(t, err)
	g, err := tiger.DecodeEWKB(data)
	require.NoError(t, err)
	assert.Equal(t, model.SRID, g.SRID())
	assert.Equal(t, poly.FlatCoords(), g.FlatCoords())

	assert.Nil(t, rows[1][5])
	data, err = hex.DecodeString(rows[1][6].(string))
	require.NoError(t, err)
	pt, err := tiger.DecodeEWKB(data)
	require.NoError(t, err)
	assert.Equal(t, []float64{-86.5, 32.4}, pt.FlatCoords())
}

func TestLoadGeometries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "commute"."puma"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`USING GIST \(geom\)`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"commute", "puma"}, GeometryColumns).WillReturnResult(1)

	recs := []model.GeometryRecord{{Kind: model.KindPUMA, ID: "0100100", StateFIPS: 1}}
	n, err := NewSink(mock, "commute").LoadGeometries(context.Background(), "puma", recs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAggregateRows(t *testing.T) {
	stats := []model.AggregateStat{{
		Year: 2019, StateFIPS: 6, PUMA: 101, Sex: model.SexAll, Race: model.RaceAll,
		PersonWeight: 30, TotalWeightedMinutes: 630, AvgCommuteMinutes: ptr(21),
		ModeCounts:   map[model.Mode]float64{model.ModeCar: 30},
		MedianIncome: ptr(52000),
	}}

	rows := AggregateRows(stats)
	require.Len(t, rows, 1)
	cols := AggregateColumns()
	require.Len(t, rows[0], len(cols))
	assert.Equal(t, "mode_"+model.ModeCar.String(), cols[8])
	assert.Equal(t, 30.0, rows[0][8])
	assert.Equal(t, model.SexAll.String(), rows[0][3])
	assert.Equal(t, "median_income", cols[len(cols)-1])
}

func TestLoadAggregates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "commute"."acs"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_acs"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_acs"}, AggregateColumns()).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("year", "state_fips", "puma", "sex", "race"\)`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := NewSink(mock, "commute").LoadAggregates(context.Background(), []model.AggregateStat{{Year: 2019, StateFIPS: 6, PUMA: 101, Sex: model.SexAll, Race: model.RaceAll}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadDistancesAndRoads(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "commute"."lodes"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_lodes"}, DistanceColumns).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("state_fips", "year"\)`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "commute"."roads"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_roads"}, RoadColumns).WillReturnResult(2)
	mock.ExpectExec(`ON CONFLICT \("year", "puma_id"\)`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	s := NewSink(mock, "commute")
	n, err := s.LoadDistances(context.Background(), []model.ODDistanceStat{{StateFIPS: 1, StateAbbr: "al", Year: 2019, AvgDistanceKm: 12.5, Jobs: 10, Pairs: 3}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.LoadRoadLengths(context.Background(), []model.RoadLengthStat{
		{Year: 2019, StateFIPS: 1, PUMAID: "0100100", TotalLengthKm: 3.2},
		{Year: 2019, StateFIPS: 1, PUMAID: "0100200", TotalLengthKm: 1.1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
