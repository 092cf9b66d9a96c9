// Package tiger turns Census TIGER/Line and cartographic boundary shapefiles
// into normalized geometry records.
package tiger

import (
	"fmt"
	"path"
	"strings"

	"github.com/sells-group/commute-cli/internal/model"
)

// Scope is the partitioning of a product's published files.
type Scope int

// Product scopes.
const (
	National Scope = iota
	PerState
	PerCounty
)

// Product describes one TIGER/Line source layer and how its attributes map
// onto model.GeometryRecord.
type Product struct {
	Kind       model.GeometryKind
	Scope      Scope
	IDField    string
	NameField  string // empty when the layer has no name
	StateField string // empty when the state comes from the file partition
	// CentroidOnly drops the polygon after the centroid is computed.
	CentroidOnly bool
}

// Products lists every layer the pipeline ingests.
var Products = map[model.GeometryKind]Product{
	model.KindState:  {Kind: model.KindState, Scope: National, IDField: "STUSPS", NameField: "NAME", StateField: "STATEFP"},
	model.KindCounty: {Kind: model.KindCounty, Scope: National, IDField: "GEOID", NameField: "NAME", StateField: "STATEFP"},
	model.KindPUMA:   {Kind: model.KindPUMA, Scope: PerState, IDField: "GEOID10", NameField: "NAMELSAD10", StateField: "STATEFP10"},
	model.KindBlock:  {Kind: model.KindBlock, Scope: PerState, IDField: "GEOID20", StateField: "STATEFP20", CentroidOnly: true},
	model.KindRoad:   {Kind: model.KindRoad, Scope: PerCounty, IDField: "LINEARID", NameField: "FULLNAME"},
}

// ProductFor returns the product for kind.
func ProductFor(kind model.GeometryKind) (Product, bool) {
	p, ok := Products[kind]
	return p, ok
}

// DownloadURL builds the download URL for one file of a product. base is the
// Census file server root, e.g. https://www2.census.gov.
func DownloadURL(base string, kind model.GeometryKind, stateFIPS int, countyID string, year int) string {
	base = strings.TrimRight(base, "/")
	switch kind {
	case model.KindState:
		return base + "/geo/tiger/GENZ2019/shp/cb_2019_us_state_500k.zip"
	case model.KindCounty:
		return base + "/geo/tiger/TIGER2017/COUNTY/tl_2017_us_county.zip"
	case model.KindPUMA:
		return fmt.Sprintf("%s/geo/tiger/TIGER2019/PUMA/tl_2019_%02d_puma10.zip", base, stateFIPS)
	case model.KindBlock:
		return fmt.Sprintf("%s/geo/tiger/TIGER2023/TABBLOCK20/tl_2023_%02d_tabblock20.zip", base, stateFIPS)
	case model.KindRoad:
		return fmt.Sprintf("%s/geo/tiger/TIGER%d/ROADS/tl_%d_%s_roads.zip", base, year, year, countyID)
	}
	return ""
}

// ArchiveName returns the file name part of a download URL.
func ArchiveName(url string) string {
	return path.Base(url)
}
