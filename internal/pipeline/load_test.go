package pipeline

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commute-cli/internal/db"
)

func expectUpsert(mock pgxmock.PgxPoolIface, table string, cols []string, n int64) {
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "commute"."` + table + `"`)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_" + table}, cols).WillReturnResult(n)
	mock.ExpectExec(`ON CONFLICT`).WillReturnResult(pgxmock.NewResult("INSERT", n))
	mock.ExpectCommit()
}

func TestLoad(t *testing.T) {
	cfg := testConfig(t.TempDir())
	r := newFileRetriever()
	serveDC(t, r)

	ctx := context.Background()
	require.NoError(t, New(cfg, r).Pull(ctx))
	require.NoError(t, New(cfg, r).Process(ctx, Stages))

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "commute"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	for _, table := range []string{"state", "county", "puma"} {
		mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "commute"."` + table + `"`)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec(`USING GIST`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectCopyFrom(pgx.Identifier{"commute", table}, db.GeometryColumns).WillReturnResult(1)
	}
	expectUpsert(mock, "acs", db.AggregateColumns(), 4)
	expectUpsert(mock, "lodes", db.DistanceColumns, 1)
	expectUpsert(mock, "roads", db.RoadColumns, 1)

	p := New(cfg, r)
	require.NoError(t, p.Load(ctx, db.NewSink(mock, "commute"), LoadOptions{}))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 6, p.Summary().Snapshot(0).Completed)
}

func TestLoad_RequiresPull(t *testing.T) {
	cfg := testConfig(t.TempDir())
	err := New(cfg, newFileRetriever()).Load(context.Background(), db.NewSink(nil, "commute"), LoadOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run pull first")
}
