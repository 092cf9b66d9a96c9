package geo

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

const parallelEps = 1e-15

// Area clips lines against a fixed multipolygon.
type Area struct {
	poly   *geom.MultiPolygon
	bounds *geom.Bounds
}

// NewArea prepares mp for repeated containment and clipping queries.
func NewArea(mp *geom.MultiPolygon) *Area {
	return &Area{poly: mp, bounds: mp.Bounds()}
}

// Contains reports whether c lies inside a shell of the area and outside its holes.
func (a *Area) Contains(c geom.Coord) bool {
	if !a.bounds.OverlapsPoint(geom.XY, c) {
		return false
	}
	for i := 0; i < a.poly.NumPolygons(); i++ {
		if polygonContains(a.poly.Polygon(i), c) {
			return true
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(geom.XY, c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.IsPointInRing(geom.XY, c, p.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}

// ClipLengthKm returns the great-circle length of the parts of g that fall
// inside the area. g must be a LineString or MultiLineString.
func (a *Area) ClipLengthKm(g geom.T) float64 {
	if g == nil || !a.bounds.Overlaps(geom.XY, g.Bounds()) {
		return 0
	}
	var total float64
	eachSegment(g, func(p, q geom.Coord) {
		total += a.clipSegmentKm(p, q)
	})
	return total
}

func (a *Area) clipSegmentKm(p, q geom.Coord) float64 {
	seg := geom.NewBounds(geom.XY).Set(
		math.Min(p[0], q[0]), math.Min(p[1], q[1]),
		math.Max(p[0], q[0]), math.Max(p[1], q[1]),
	)
	if !a.bounds.Overlaps(geom.XY, seg) {
		return 0
	}

	ts := []float64{0, 1}
	for i := 0; i < a.poly.NumPolygons(); i++ {
		poly := a.poly.Polygon(i)
		for r := 0; r < poly.NumLinearRings(); r++ {
			ts = appendCrossings(ts, p, q, poly.LinearRing(r).FlatCoords())
		}
	}
	sort.Float64s(ts)

	var total float64
	for i := 1; i < len(ts); i++ {
		t0, t1 := ts[i-1], ts[i]
		if t1-t0 <= 0 {
			continue
		}
		mid := lerp(p, q, (t0+t1)/2)
		if a.Contains(mid) {
			total += coordKm(lerp(p, q, t0), lerp(p, q, t1))
		}
	}
	return total
}

// appendCrossings adds the parameters along p->q where it crosses an edge of ring.
func appendCrossings(ts []float64, p, q geom.Coord, ring []float64) []float64 {
	rx, ry := q[0]-p[0], q[1]-p[1]
	for i := 2; i+1 < len(ring); i += 2 {
		ax, ay := ring[i-2], ring[i-1]
		sx, sy := ring[i]-ax, ring[i+1]-ay

		denom := rx*sy - ry*sx
		if math.Abs(denom) < parallelEps {
			continue
		}
		qpx, qpy := ax-p[0], ay-p[1]
		t := (qpx*sy - qpy*sx) / denom
		u := (qpx*ry - qpy*rx) / denom
		if t > 0 && t < 1 && u >= 0 && u <= 1 {
			ts = append(ts, t)
		}
	}
	return ts
}

func lerp(p, q geom.Coord, t float64) geom.Coord {
	return geom.Coord{p[0] + (q[0]-p[0])*t, p[1] + (q[1]-p[1])*t}
}
