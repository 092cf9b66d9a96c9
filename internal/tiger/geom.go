package tiger

import (
	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/model"
)

// ToGeom converts a go-shp shape to a go-geom geometry labelled model.SRID.
// The coordinates are not transformed. Returns nil for unsupported or empty shapes.
func ToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(model.SRID)
	case *shp.PolyLine:
		return polyLineToMultiLineString(s)
	case *shp.Polygon:
		return polygonToMultiPolygon(s)
	}
	return nil
}

func parts(numParts int32, partIdx []int32, points []shp.Point) [][]float64 {
	out := make([][]float64, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := partIdx[i]
		end := int32(len(points))
		if i+1 < numParts {
			end = partIdx[i+1]
		}
		if start < 0 || end > int32(len(points)) || start >= end {
			continue
		}
		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, points[j].X, points[j].Y)
		}
		out = append(out, flat)
	}
	return out
}

func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(model.SRID)
	for i, flat := range parts(pl.NumParts, pl.Parts, pl.Points) {
		if len(flat) < 4 {
			continue
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("tiger: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}

	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToMultiPolygon assembles shapefile rings into polygons. Shapefile
// outer rings run clockwise; counter-clockwise rings are holes of the
// preceding outer ring.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(model.SRID)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("tiger: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i, flat := range parts(p.NumParts, p.Parts, p.Points) {
		if len(flat) < 8 {
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		hole := xy.IsRingCounterClockwise(geom.XY, flat)
		if !hole || current == nil {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("tiger: skipping malformed ring", zap.Int("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// EncodeEWKB marshals g as little-endian EWKB carrying its SRID.
func EncodeEWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: encode EWKB")
	}
	return data, nil
}

// DecodeEWKB is the inverse of EncodeEWKB. Empty input yields nil.
func DecodeEWKB(data []byte) (geom.T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "tiger: decode EWKB")
	}
	return g, nil
}
