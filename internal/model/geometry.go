package model

import "github.com/twpayne/go-geom"

// SRID is the coordinate reference label attached to every stored geometry.
const SRID = 3857

// CRS is the textual form of SRID written into table metadata.
const CRS = "EPSG:3857"

// GeometryKind names a TIGER/Line layer.
type GeometryKind string

// Geometry kinds.
const (
	KindState  GeometryKind = "state"
	KindCounty GeometryKind = "county"
	KindPUMA   GeometryKind = "puma"
	KindBlock  GeometryKind = "block"
	KindRoad   GeometryKind = "road"
)

// GeometryKinds lists every kind in ingestion order.
var GeometryKinds = []GeometryKind{KindState, KindCounty, KindPUMA, KindBlock, KindRoad}

// Point is a lon/lat pair.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// GeometryRecord is one normalized shape. Geom is nil for centroid-only layers.
type GeometryRecord struct {
	Kind      GeometryKind
	ID        string
	Name      string
	StateFIPS int // 0 when the layer has no state attribute
	Year      int // roads only
	Geom      geom.T
	Centroid  *Point
}
