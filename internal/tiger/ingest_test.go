package tiger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commute-cli/internal/manifest"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/store"
)

type skipRecorder struct {
	units []string
}

func (s *skipRecorder) Skip(stage, unit string, _ error) {
	s.units = append(s.units, stage+":"+unit)
}

type ingestFixture struct {
	root      string
	retriever *copyRetriever
	manifest  *manifest.Manifest
	reporter  *skipRecorder
	ingestor  *Ingestor
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	root := t.TempDir()
	f := &ingestFixture{
		root:      root,
		retriever: newCopyRetriever(),
		manifest:  manifest.New(),
		reporter:  &skipRecorder{},
	}
	f.ingestor = NewIngestor(f.retriever, f.manifest, filepath.Join(root, "interim"), f.reporter)
	return f
}

// serve registers a zipped shapefile for url and adds its manifest entry.
func (f *ingestFixture) serve(t *testing.T, e manifest.Entry, shapeType shp.ShapeType, fields []string, rows []fixtureRow) {
	t.Helper()
	src := t.TempDir()
	shpPath := writeShapefile(t, src, "layer", shapeType, fields, rows)
	archive := filepath.Join(src, "layer.zip")
	zipShapefile(t, shpPath, archive)
	f.retriever.files[e.URL] = archive
	f.addEntry(e)
}

func (f *ingestFixture) addEntry(e manifest.Entry) {
	e.Path = filepath.Join(f.root, "shape_files", filepath.Base(e.URL))
	f.manifest.Add(e)
}

func pumaRows(state string, ids ...string) []fixtureRow {
	rows := make([]fixtureRow, len(ids))
	for i, id := range ids {
		rows[i] = fixtureRow{
			attrs: []string{state, id, "PUMA " + id},
			shape: polygonShape(square(float64(i*10), 0, 2)),
		}
	}
	return rows
}

var pumaFields = []string{"STATEFP10", "GEOID10", "NAMELSAD10"}

func TestIngest_PerStateCachesUnits(t *testing.T) {
	f := newIngestFixture(t)
	f.serve(t, manifest.Entry{Kind: manifest.KindPUMA, StateFIPS: 6, URL: "http://x/puma06.zip"}, shp.POLYGON, pumaFields, pumaRows("06", "0600101", "0600102"))
	f.serve(t, manifest.Entry{Kind: manifest.KindPUMA, StateFIPS: 11, URL: "http://x/puma11.zip"}, shp.POLYGON, pumaFields, pumaRows("11", "1100101"))

	ctx := context.Background()
	records, err := f.ingestor.Ingest(ctx, model.KindPUMA, SourceSpec{})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Empty(t, f.reporter.units)

	assert.True(t, store.Exists(filepath.Join(f.root, "interim", "puma", "06.db")))
	assert.True(t, store.Exists(filepath.Join(f.root, "interim", "puma", "11.db")))
	assert.True(t, store.Exists(filepath.Join(f.root, "interim", "puma.db")))

	again, err := f.ingestor.Ingest(ctx, model.KindPUMA, SourceSpec{})
	require.NoError(t, err)
	assert.Len(t, again, 3)
	assert.Equal(t, 1, f.retriever.calls["http://x/puma06.zip"])

	subset, err := f.ingestor.Ingest(ctx, model.KindPUMA, SourceSpec{States: []int{11}})
	require.NoError(t, err)
	require.Len(t, subset, 1)
	assert.Equal(t, "1100101", subset[0].ID)
}

func TestIngest_FailedStateIsSkipped(t *testing.T) {
	f := newIngestFixture(t)
	f.serve(t, manifest.Entry{Kind: manifest.KindPUMA, StateFIPS: 6, URL: "http://x/puma06.zip"}, shp.POLYGON, pumaFields, pumaRows("06", "0600101"))
	f.addEntry(manifest.Entry{Kind: manifest.KindPUMA, StateFIPS: 11, URL: "http://x/missing.zip"})

	records, err := f.ingestor.Ingest(context.Background(), model.KindPUMA, SourceSpec{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, []string{"puma:11"}, f.reporter.units)
	assert.False(t, store.Exists(filepath.Join(f.root, "interim", "puma.db")), "combined table needs every state")

	e := f.manifest.Lookup(manifest.KindPUMA, 11, 0)
	require.Len(t, e, 1)
	assert.Equal(t, manifest.StatusFailed, e[0].Status)
}

func TestIngest_NationalFiltersStates(t *testing.T) {
	f := newIngestFixture(t)
	f.serve(t, manifest.Entry{Kind: manifest.KindState, URL: "http://x/states.zip"}, shp.POLYGON,
		[]string{"STATEFP", "STUSPS", "NAME"},
		[]fixtureRow{
			{attrs: []string{"06", "CA", "California"}, shape: polygonShape(square(0, 0, 2))},
			{attrs: []string{"11", "DC", "District of Columbia"}, shape: polygonShape(square(5, 5, 2))},
		})

	records, err := f.ingestor.Ingest(context.Background(), model.KindState, SourceSpec{States: []int{11}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "DC", records[0].ID)

	_, meta, err := store.ReadSnapshot(context.Background(), filepath.Join(f.root, "interim", "state.db"), RecordCodec)
	require.NoError(t, err)
	assert.Equal(t, "2", meta["rows"])
}

func TestIngest_RoadsPartialStateNotCached(t *testing.T) {
	f := newIngestFixture(t)
	roadFields := []string{"LINEARID", "FULLNAME"}
	f.serve(t, manifest.Entry{Kind: manifest.KindRoad, StateFIPS: 11, CountyID: "11001", Year: 2019, URL: "http://x/roads_11001.zip"},
		shp.POLYLINE, roadFields,
		[]fixtureRow{{attrs: []string{"r1", "Main St"}, shape: lineShape([]shp.Point{{X: 0, Y: 0}, {X: 0, Y: 1}})}})
	f.addEntry(manifest.Entry{Kind: manifest.KindRoad, StateFIPS: 11, CountyID: "11002", Year: 2019, URL: "http://x/roads_11002.zip"})

	ctx := context.Background()
	records, err := f.ingestor.Ingest(ctx, model.KindRoad, SourceSpec{Year: 2019})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 11, records[0].StateFIPS)
	assert.Equal(t, 2019, records[0].Year)
	assert.Equal(t, []string{"road:2019_11002"}, f.reporter.units)
	assert.False(t, store.Exists(RoadsPath(filepath.Join(f.root, "interim"), 2019, 11)))

	_, err = f.ingestor.Ingest(ctx, model.KindRoad, SourceSpec{})
	assert.ErrorContains(t, err, "requires a year")
}

func TestIngest_UnknownKind(t *testing.T) {
	f := newIngestFixture(t)
	_, err := f.ingestor.Ingest(context.Background(), "lakes", SourceSpec{})
	assert.Error(t, err)
}

func TestSnapshotRoundTripKeepsCRSAndCentroids(t *testing.T) {
	dir := t.TempDir()
	path := writeShapefile(t, dir, "puma", shp.POLYGON, pumaFields, pumaRows("06", "0600101", "0600102", "0600103"))
	records, err := ParseShapefile(path, Products[model.KindPUMA])
	require.NoError(t, err)

	ctx := context.Background()
	out := filepath.Join(dir, "puma.db")
	require.NoError(t, store.WriteSnapshot(ctx, out, RecordCodec, records, SnapshotMeta(model.KindPUMA)))

	back, meta, err := store.ReadSnapshot(ctx, out, RecordCodec)
	require.NoError(t, err)
	assert.Equal(t, model.CRS, meta[store.MetaCRS])
	require.Len(t, back, len(records))
	for i := range records {
		assert.Equal(t, records[i].ID, back[i].ID)
		assert.InDelta(t, records[i].Centroid.Lon, back[i].Centroid.Lon, 1e-6)
		assert.InDelta(t, records[i].Centroid.Lat, back[i].Centroid.Lat, 1e-6)
		assert.Equal(t, model.SRID, back[i].Geom.SRID())
	}
}
