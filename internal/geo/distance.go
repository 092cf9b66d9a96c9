// Package geo holds the planar and spherical geometry used by the pipeline:
// centroids, great-circle distance and line-in-polygon clipping.
package geo

import (
	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/commute-cli/internal/model"
)

// EarthRadiusKm is the mean Earth radius used for every distance.
const EarthRadiusKm = 6371.01

// GreatCircleKm returns the great-circle distance between two lon/lat points.
func GreatCircleKm(a, b model.Point) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lon)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return p1.Distance(p2).Radians() * EarthRadiusKm
}

func coordKm(a, b geom.Coord) float64 {
	return GreatCircleKm(model.Point{Lon: a[0], Lat: a[1]}, model.Point{Lon: b[0], Lat: b[1]})
}

// LineLengthKm sums the great-circle length of every segment of a line or
// multi-line geometry. Other geometry types have zero length.
func LineLengthKm(g geom.T) float64 {
	var total float64
	eachSegment(g, func(a, b geom.Coord) {
		total += coordKm(a, b)
	})
	return total
}

func eachSegment(g geom.T, fn func(a, b geom.Coord)) {
	switch t := g.(type) {
	case *geom.LineString:
		walkFlat(t.FlatCoords(), t.Stride(), fn)
	case *geom.MultiLineString:
		for i := 0; i < t.NumLineStrings(); i++ {
			ls := t.LineString(i)
			walkFlat(ls.FlatCoords(), ls.Stride(), fn)
		}
	}
}

func walkFlat(flat []float64, stride int, fn func(a, b geom.Coord)) {
	for i := stride; i+1 < len(flat); i += stride {
		fn(geom.Coord{flat[i-stride], flat[i-stride+1]}, geom.Coord{flat[i], flat[i+1]})
	}
}
