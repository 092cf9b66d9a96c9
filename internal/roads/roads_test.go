package roads

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/commute-cli/internal/geo"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/store"
)

func pumaRecord(id string, state int, minX, minY, maxX, maxY float64) model.GeometryRecord {
	mp := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{minX, minY}, {minX, maxY}, {maxX, maxY}, {maxX, minY}, {minX, minY},
	}}})
	return model.GeometryRecord{Kind: model.KindPUMA, ID: id, StateFIPS: state, Geom: mp}
}

func roadRecord(coords ...geom.Coord) model.GeometryRecord {
	ls := geom.NewMultiLineString(geom.XY).MustSetCoords([][]geom.Coord{coords})
	return model.GeometryRecord{Kind: model.KindRoad, Geom: ls}
}

// grid returns a row of n adjacent 0.1 degree PUMAs and roads crossing them.
func grid(n int) ([]model.GeometryRecord, []model.GeometryRecord) {
	var pumas, roads []model.GeometryRecord
	for i := 0; i < n; i++ {
		x := -77 + float64(i)*0.1
		pumas = append(pumas, pumaRecord(fmt.Sprintf("11%05d", n-i), 11, x, 38.8, x+0.1, 38.9))
	}
	for j := 0; j < 7; j++ {
		y := 38.805 + float64(j)*0.013
		roads = append(roads, roadRecord(geom.Coord{-77.05, y}, geom.Coord{-77 + float64(n)*0.1 + 0.05, y + 0.01}))
	}
	roads = append(roads, roadRecord(geom.Coord{-76.95, 38.7}, geom.Coord{-76.95, 39.0}))
	return pumas, roads
}

func TestComputeStateYearPumaLengths_Deterministic(t *testing.T) {
	pumas, roads := grid(9)
	ctx := context.Background()

	one, err := ComputeStateYearPumaLengths(ctx, roads, pumas, 11, 2019, 1)
	require.NoError(t, err)
	many, err := ComputeStateYearPumaLengths(ctx, roads, pumas, 11, 2019, 8)
	require.NoError(t, err)
	auto, err := ComputeStateYearPumaLengths(ctx, roads, pumas, 11, 2019, 0)
	require.NoError(t, err)

	require.Len(t, one, 9)
	assert.Equal(t, one, many)
	assert.Equal(t, one, auto)
	for i := 1; i < len(one); i++ {
		assert.Less(t, one[i-1].PUMAID, one[i].PUMAID)
	}
	for _, s := range one {
		assert.Greater(t, s.TotalLengthKm, 0.0)
		assert.Equal(t, 2019, s.Year)
	}
}

func TestComputeStateYearPumaLengths_ClipsToPuma(t *testing.T) {
	pumas := []model.GeometryRecord{pumaRecord("1100101", 11, -77.0, 38.8, -76.9, 38.9)}
	road := roadRecord(geom.Coord{-77.1, 38.85}, geom.Coord{-76.8, 38.85})

	stats, err := ComputeStateYearPumaLengths(context.Background(), []model.GeometryRecord{road}, pumas, 11, 2019, 2)
	require.NoError(t, err)
	require.Len(t, stats, 1)

	want := geo.GreatCircleKm(model.Point{Lon: -77.0, Lat: 38.85}, model.Point{Lon: -76.9, Lat: 38.85})
	assert.InDelta(t, want, stats[0].TotalLengthKm, 1e-6)
}

func TestComputeStateYearPumaLengths_OtherStatesIgnored(t *testing.T) {
	pumas := []model.GeometryRecord{
		pumaRecord("1100101", 11, 0, 0, 1, 1),
		pumaRecord("2400101", 24, 0, 0, 1, 1),
	}
	stats, err := ComputeStateYearPumaLengths(context.Background(), nil, pumas, 24, 2019, 1)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "2400101", stats[0].PUMAID)
	assert.Zero(t, stats[0].TotalLengthKm)
}

func TestComputeStateYearPumaLengths_BadGeometry(t *testing.T) {
	pumas := []model.GeometryRecord{{ID: "1100101", StateFIPS: 11}}
	_, err := ComputeStateYearPumaLengths(context.Background(), nil, pumas, 11, 2019, 1)
	assert.ErrorContains(t, err, "1100101")
}

type skips []string

func (s *skips) Skip(_, unit string, _ error) { *s = append(*s, unit) }

func TestEngineRun(t *testing.T) {
	ctx := context.Background()
	ledger, err := store.OpenLedger(ctx, filepath.Join(t.TempDir(), "roads.db"), StatCodec)
	require.NoError(t, err)
	defer ledger.Close() //nolint:errcheck

	pumas, roads := grid(3)
	calls := 0
	source := func(_ context.Context, state, year int) ([]model.GeometryRecord, error) {
		calls++
		if year == 2018 {
			return nil, eris.New("county archive missing")
		}
		return roads, nil
	}
	var skipped skips
	e := NewEngine(source, ledger, 2, &skipped)

	stats, err := e.Run(ctx, pumas, []int{11}, []int{2018, 2019})
	require.NoError(t, err)
	assert.Len(t, stats, 3)
	assert.Equal(t, []string{"2018_11"}, []string(skipped))

	again, err := e.Run(ctx, pumas, []int{11}, []int{2019})
	require.NoError(t, err)
	assert.Equal(t, stats, again)
	assert.Equal(t, 2, calls, "completed state-years are not recomputed")
}
