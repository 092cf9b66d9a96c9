package tiger

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/require"
)

type fixtureRow struct {
	attrs []string
	shape shp.Shape
}

// square returns a clockwise ring with its lower-left corner at (x, y).
func square(x, y, size float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x, Y: y + size}, {X: x + size, Y: y + size}, {X: x + size, Y: y}, {X: x, Y: y}}
}

func reversed(ring []shp.Point) []shp.Point {
	out := make([]shp.Point, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

func polygonShape(rings ...[]shp.Point) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine(rings))
	return &p
}

func lineShape(lines ...[]shp.Point) *shp.PolyLine {
	return shp.NewPolyLine(lines)
}

// writeShapefile writes a shapefile at dir/name.shp with string fields.
func writeShapefile(t *testing.T, dir, name string, shapeType shp.ShapeType, fields []string, rows []fixtureRow) string {
	t.Helper()
	base := filepath.Join(dir, name)
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

	// The writer names its attribute table without the dot separator.
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
	return base + ".shp"
}

// zipShapefile packs the .shp/.shx/.dbf triple into dest.
func zipShapefile(t *testing.T, shpPath, dest string) {
	t.Helper()
	out, err := os.Create(dest)
	require.NoError(t, err)
	zw := zip.NewWriter(out)

	base := strings.TrimSuffix(shpPath, ".shp")
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		f, err := os.Open(base + ext)
		require.NoError(t, err)
		w, err := zw.Create(filepath.Base(base + ext))
		require.NoError(t, err)
		_, err = io.Copy(w, f)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

// copyRetriever serves archives from local files keyed by URL.
type copyRetriever struct {
	files map[string]string
	calls map[string]int
}

func newCopyRetriever() *copyRetriever {
	return &copyRetriever{files: map[string]string{}, calls: map[string]int{}}
}

func (c *copyRetriever) Fetch(_ context.Context, url, destPath string) error {
	c.calls[url]++
	src, ok := c.files[url]
	if !ok {
		return eris.Errorf("fetch %s: http 404", url)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}
