// Package roads measures road length inside each PUMA.
package roads

import (
	"context"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/commute-cli/internal/geo"
	"github.com/sells-group/commute-cli/internal/model"
)

// ComputeStateYearPumaLengths clips every road to every PUMA of state and
// sums the clipped great-circle lengths. PUMAs are processed in parallel by
// up to workers goroutines (runtime.NumCPU() when workers <= 0); each
// goroutine writes only its own result slot, so the output does not depend
// on the worker count. Results are sorted by PUMA id.
func ComputeStateYearPumaLengths(ctx context.Context, roads, pumas []model.GeometryRecord, state, year, workers int) ([]model.RoadLengthStat, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var areas []*geo.Area
	var ids []string
	for _, p := range pumas {
		if p.StateFIPS != state {
			continue
		}
		mp, err := asMultiPolygon(p.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "roads: puma %s", p.ID)
		}
		areas = append(areas, geo.NewArea(mp))
		ids = append(ids, p.ID)
	}

	lines := make([]geom.T, 0, len(roads))
	for _, r := range roads {
		if r.Geom != nil {
			lines = append(lines, r.Geom)
		}
	}

	results := make([]model.RoadLengthStat, len(areas))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range areas {
		g.Go(func() error {
			var total float64
			for _, line := range lines {
				if err := gCtx.Err(); err != nil {
					return err
				}
				total += areas[i].ClipLengthKm(line)
			}
			results[i] = model.RoadLengthStat{Year: year, StateFIPS: state, PUMAID: ids[i], TotalLengthKm: total}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].PUMAID < results[j].PUMAID })
	return results, nil
}

func asMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return t, nil
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil, err
		}
		return mp, nil
	case nil:
		return nil, eris.New("no geometry")
	}
	return nil, eris.Errorf("unsupported geometry %T", g)
}
