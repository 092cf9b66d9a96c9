package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/commute-cli/internal/model"
)

// Centroid returns the planar centroid of g in its own coordinates. Zero-area
// shapes fall back to the center of their bounding box.
func Centroid(g geom.T) (model.Point, error) {
	if g == nil || g.Empty() {
		return model.Point{}, eris.New("geo: centroid of empty geometry")
	}
	c, err := xy.Centroid(g)
	if err != nil {
		return model.Point{}, eris.Wrap(err, "geo: centroid")
	}
	if len(c) < 2 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		b := g.Bounds()
		return model.Point{Lon: (b.Min(0) + b.Max(0)) / 2, Lat: (b.Min(1) + b.Max(1)) / 2}, nil
	}
	return model.Point{Lon: c[0], Lat: c[1]}, nil
}
