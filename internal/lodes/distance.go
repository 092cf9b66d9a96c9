// Package lodes computes job-weighted commute distances from LODES
// origin-destination flows.
package lodes

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commute-cli/internal/fetcher"
	"github.com/sells-group/commute-cli/internal/geo"
	"github.com/sells-group/commute-cli/internal/model"
)

// Flow file columns.
const (
	ColWork = "w_geocode"
	ColHome = "h_geocode"
	ColJobs = "S000"
)

// geocodeLen is the width of a 2020 census block GEOID.
const geocodeLen = 15

// Result is the outcome of one state-year flow file.
type Result struct {
	AvgDistanceKm float64
	Jobs          float64
	Pairs         int
	Unmatched     int
}

// ComputeStateYearDistance streams a flow file and returns
// sum(distance*jobs)/sum(jobs) over the pairs whose home and work blocks both
// have a centroid. Pairs missing either endpoint are counted as unmatched
// and contribute to neither sum.
func ComputeStateYearDistance(ctx context.Context, r io.Reader, centroids map[string]model.Point) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	headerCh := make(chan []string, 1)
	rows, errs := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{HasHeader: true, HeaderCh: headerCh, TrimSpace: true})

	var (
		res        Result
		weightedKm float64
		iw, ih, ij = -1, -1, -1
	)
	for row := range rows {
		if iw < 0 {
			header := <-headerCh
			for i, h := range header {
				switch h {
				case ColWork:
					iw = i
				case ColHome:
					ih = i
				case ColJobs:
					ij = i
				}
			}
			if iw < 0 || ih < 0 || ij < 0 {
				return Result{}, eris.Errorf("lodes: flow header missing %s/%s/%s", ColWork, ColHome, ColJobs)
			}
		}
		if len(row) <= iw || len(row) <= ih || len(row) <= ij {
			continue
		}
		jobs, err := strconv.ParseFloat(row[ij], 64)
		if err != nil || jobs <= 0 {
			continue
		}

		res.Pairs++
		home, okHome := centroids[NormalizeGeocode(row[ih])]
		work, okWork := centroids[NormalizeGeocode(row[iw])]
		if !okHome || !okWork {
			res.Unmatched++
			continue
		}
		weightedKm += geo.GreatCircleKm(home, work) * jobs
		res.Jobs += jobs
	}
	if err := <-errs; err != nil {
		return Result{}, eris.Wrap(err, "lodes: read flows")
	}
	if res.Jobs == 0 {
		return res, eris.Errorf("lodes: no matched jobs in %d pairs", res.Pairs)
	}
	res.AvgDistanceKm = weightedKm / res.Jobs
	return res, nil
}

// NormalizeGeocode restores leading zeros dropped by numeric exports.
func NormalizeGeocode(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= geocodeLen {
		return s
	}
	return strings.Repeat("0", geocodeLen-len(s)) + s
}

// FlowURL is the OD main file for one state-year.
func FlowURL(base, version, stateAbbr, jobType string, year int) string {
	st := strings.ToLower(stateAbbr)
	return fmt.Sprintf("%s/%s/%s/od/%s_od_main_%s_%d.csv.gz", strings.TrimRight(base, "/"), version, st, st, jobType, year)
}
