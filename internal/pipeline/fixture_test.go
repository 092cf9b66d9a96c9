package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commute-cli/internal/acs"
	"github.com/sells-group/commute-cli/internal/config"
	"github.com/sells-group/commute-cli/internal/lodes"
	"github.com/sells-group/commute-cli/internal/model"
	"github.com/sells-group/commute-cli/internal/tiger"
)

const (
	filesURL = "https://www2.census.gov"
	apiURL   = "https://api.census.gov/data"
	movsURL  = "https://www2.census.gov/ces/movs/movs_st_main2005.csv"
	lodesURL = "https://lehd.ces.census.gov/data/lodes"

	dc     = 11
	blockA = "110010001001000"
	blockB = "110010002002000"
)

// fileRetriever serves canned bodies keyed by URL.
type fileRetriever struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  map[string]int
}

func newFileRetriever() *fileRetriever {
	return &fileRetriever{bodies: map[string][]byte{}, calls: map[string]int{}}
}

func (f *fileRetriever) Fetch(_ context.Context, url, destPath string) error {
	f.mu.Lock()
	f.calls[url]++
	body, ok := f.bodies[url]
	f.mu.Unlock()
	if !ok {
		return eris.Errorf("fetch %s: http 404", url)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, body, 0o644)
}

func (f *fileRetriever) drop(url string) {
	f.mu.Lock()
	delete(f.bodies, url)
	f.mu.Unlock()
}

func testConfig(root string) *config.Config {
	years := []int{2019}
	return &config.Config{
		Data:   config.DataConfig{Root: root},
		Census: config.CensusConfig{APIBaseURL: apiURL, FilesURL: filesURL, MOVSURL: movsURL},
		ACS:    config.ACSConfig{Years: years, IncomeBaseYear: 2019},
		LODES:  config.LODESConfig{BaseURL: lodesURL, Version: "LODES8", JobType: "JT00", Years: years},
		Roads:  config.RoadsConfig{Years: years, Workers: 2},
		Sink:   config.SinkConfig{Schema: "commute"},
	}
}

func square(x, y, size float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x, Y: y + size}, {X: x + size, Y: y + size}, {X: x + size, Y: y}, {X: x, Y: y}}
}

func polygon(ring []shp.Point) shp.Shape {
	p := shp.Polygon(*shp.NewPolyLine([][]shp.Point{ring}))
	return &p
}

type shapeRow struct {
	attrs []string
	shape shp.Shape
}

// shapeZip writes a one-layer shapefile and returns it zipped.
func shapeZip(t *testing.T, shapeType shp.ShapeType, fields []string, rows []shapeRow) []byte {
	t.Helper()
	base := filepath.Join(t.TempDir(), "layer")
	w, err := shp.Create(base+".shp", shapeType)
	require.NoError(t, err)
	shpFields := make([]shp.Field, len(fields))
	for i, f := range fields {
		shpFields[i] = shp.StringField(f, 40)
	}
	require.NoError(t, w.SetFields(shpFields))
	for _, r := range rows {
		n := w.Write(r.shape)
		for i, v := range r.attrs {
			require.NoError(t, w.WriteAttribute(int(n), i, v))
		}
	}
	w.Close()
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		f, err := os.Open(base + ext)
		require.NoError(t, err)
		zf, err := zw.Create("layer" + ext)
		require.NoError(t, err)
		_, err = io.Copy(zf, f)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// pumsBody builds a PUMS response for DC: white men in PUMA 101 with the
// given minutes and weights.
func pumsBody(year int, minutes, weights []string) []byte {
	header := append(acs.FieldsFor(year).Requested(), "state")
	var b strings.Builder
	b.WriteString(`[["` + strings.Join(header, `","`) + `"]`)
	for i := range minutes {
		vals := map[string]string{
			acs.FieldMinutes: minutes[i], acs.FieldSex: "1", acs.FieldState: "11",
			acs.FieldWeight: weights[i], acs.FieldPUMA: "101", acs.FieldWhite: "1",
			acs.FieldHispanic: "1", acs.FieldIncome: "", acs.FieldsFor(year).Mode: "1",
		}
		cells := make([]string, 0, len(header))
		for _, h := range header[:len(header)-1] {
			v, ok := vals[h]
			if !ok {
				v = "0"
			}
			cells = append(cells, v)
		}
		cells = append(cells, "11")
		b.WriteString(`,["` + strings.Join(cells, `","`) + `"]`)
	}
	b.WriteString("]")
	return []byte(b.String())
}

func gzipBody(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// serveDC registers every source for a one-state, one-year run.
func serveDC(t *testing.T, r *fileRetriever) {
	t.Helper()
	r.bodies[movsURL] = []byte("year,state_abbr,fips,state_name\n2005,US,0,United States\n2005,DC,11,District of Columbia\n")

	r.bodies[tiger.DownloadURL(filesURL, model.KindState, 0, "", 0)] = shapeZip(t, shp.POLYGON,
		[]string{"STUSPS", "NAME", "STATEFP"},
		[]shapeRow{{[]string{"DC", "District of Columbia", "11"}, polygon(square(-77.12, 38.79, 0.25))}})

	r.bodies[tiger.DownloadURL(filesURL, model.KindCounty, 0, "", 0)] = shapeZip(t, shp.POLYGON,
		[]string{"GEOID", "NAME", "STATEFP"},
		[]shapeRow{{[]string{"11001", "District of Columbia", "11"}, polygon(square(-77.12, 38.79, 0.25))}})

	r.bodies[tiger.DownloadURL(filesURL, model.KindPUMA, dc, "", 0)] = shapeZip(t, shp.POLYGON,
		[]string{"GEOID10", "NAMELSAD10", "STATEFP10"},
		[]shapeRow{{[]string{"1100101", "District of Columbia PUMA 101", "11"}, polygon(square(-77.1, 38.8, 0.2))}})

	r.bodies[tiger.DownloadURL(filesURL, model.KindBlock, dc, "", 0)] = shapeZip(t, shp.POLYGON,
		[]string{"GEOID20", "STATEFP20"},
		[]shapeRow{
			{[]string{blockA, "11"}, polygon(square(-77.06, 38.84, 0.02))},
			{[]string{blockB, "11"}, polygon(square(-77.01, 38.89, 0.02))},
		})

	r.bodies[tiger.DownloadURL(filesURL, model.KindRoad, dc, "11001", 2019)] = shapeZip(t, shp.POLYLINE,
		[]string{"LINEARID", "FULLNAME"},
		[]shapeRow{{[]string{"110001", "Main St"}, shp.NewPolyLine([][]shp.Point{{{X: -77.05, Y: 38.85}, {X: -77.0, Y: 38.85}}})}})

	r.bodies[acs.RequestURL(apiURL, 2019, dc)] = pumsBody(2019, []string{"10", "20", "30"}, []string{"2", "3", "5"})

	r.bodies[lodes.FlowURL(lodesURL, "LODES8", "dc", "JT00", 2019)] = gzipBody(t,
		"w_geocode,h_geocode,S000,createdate\n"+blockB+","+blockA+",3,20230101\n")
}
