package tiger

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commute-cli/internal/geo"
	"github.com/sells-group/commute-cli/internal/model"
)

// ParseShapefile reads a shapefile and normalizes every record into the
// product's schema. Polygon layers carry a centroid; centroid-only layers drop
// the polygon afterwards. Records without usable geometry are skipped.
func ParseShapefile(shpPath string, product Product) ([]model.GeometryRecord, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	if _, ok := fieldIdx[strings.ToLower(product.IDField)]; !ok {
		return nil, eris.Errorf("tiger: %s has no %s field", shpPath, product.IDField)
	}

	attr := func(name string) string {
		if name == "" {
			return ""
		}
		idx, ok := fieldIdx[strings.ToLower(name)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var records []model.GeometryRecord
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()
		g := ToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		rec := model.GeometryRecord{
			Kind: product.Kind,
			ID:   attr(product.IDField),
			Name: attr(product.NameField),
			Geom: g,
		}
		if rec.ID == "" {
			skipped++
			continue
		}
		if sf := attr(product.StateField); sf != "" {
			if rec.StateFIPS, err = model.ParseFIPS(sf); err != nil {
				skipped++
				continue
			}
		}

		if product.Kind != model.KindRoad {
			c, cErr := geo.Centroid(g)
			if cErr != nil {
				skipped++
				continue
			}
			rec.Centroid = &c
		}
		if product.CentroidOnly {
			rec.Geom = nil
		}

		records = append(records, rec)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "tiger: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("tiger: skipped shapefile records",
			zap.String("kind", string(product.Kind)),
			zap.Int("skipped", skipped),
		)
	}

	return records, nil
}
