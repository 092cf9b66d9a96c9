package graph

import (
	"strconv"

	"github.com/sells-group/commute-cli/internal/model"
)

// Statistic names accepted by the graph command.
const (
	StatACS   = "acs"
	StatLODES = "lodes"
	StatRoads = "roads"
)

// Value keys.
const (
	ValueAvgCommute   = "avg_commute_minutes"
	ValuePersonWeight = "person_weight"
	ValueMedianIncome = "median_income"
	ValueAvgDistance  = "avg_distance_km"
	ValueJobs         = "jobs"
	ValueRoadLength   = "total_length_km"
)

// DefaultGranularity is the geography each statistic is published at.
func DefaultGranularity(stat string) Granularity {
	if stat == StatLODES {
		return ByState
	}
	return ByPUMA
}

func abbrLookup(codes []model.ReferenceCode) map[int]string {
	m := make(map[int]string, len(codes))
	for _, c := range codes {
		m[c.StateFIPS] = c.StateAbbr
	}
	return m
}

// FromAggregates adapts ACS aggregates. Slices without a defined average are
// skipped.
func FromAggregates(stats []model.AggregateStat, codes []model.ReferenceCode) []StatRow {
	abbr := abbrLookup(codes)
	rows := make([]StatRow, 0, len(stats))
	for _, s := range stats {
		if s.AvgCommuteMinutes == nil {
			continue
		}
		values := map[string]float64{
			ValueAvgCommute:   *s.AvgCommuteMinutes,
			ValuePersonWeight: s.PersonWeight,
		}
		if s.MedianIncome != nil {
			values[ValueMedianIncome] = *s.MedianIncome
		}
		for m, c := range s.ModeCounts {
			values["mode_"+m.String()] = c
		}
		rows = append(rows, StatRow{
			Year: s.Year, StateFIPS: s.StateFIPS, StateAbbr: abbr[s.StateFIPS], PUMA: s.PUMA,
			Sex: s.Sex, Race: s.Race, Values: values,
		})
	}
	return rows
}

// FromDistances adapts LODES state-year distances.
func FromDistances(stats []model.ODDistanceStat) []StatRow {
	rows := make([]StatRow, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, StatRow{
			Year: s.Year, StateFIPS: s.StateFIPS, StateAbbr: s.StateAbbr,
			Values: map[string]float64{ValueAvgDistance: s.AvgDistanceKm, ValueJobs: s.Jobs},
		})
	}
	return rows
}

// FromRoadLengths adapts per-PUMA road lengths. The PUMA number is the last
// five digits of the GEOID.
func FromRoadLengths(stats []model.RoadLengthStat, codes []model.ReferenceCode) []StatRow {
	abbr := abbrLookup(codes)
	rows := make([]StatRow, 0, len(stats))
	for _, s := range stats {
		var puma int
		if len(s.PUMAID) >= 5 {
			puma, _ = strconv.Atoi(s.PUMAID[len(s.PUMAID)-5:])
		}
		rows = append(rows, StatRow{
			Year: s.Year, StateFIPS: s.StateFIPS, StateAbbr: abbr[s.StateFIPS], PUMA: puma,
			Values: map[string]float64{ValueRoadLength: s.TotalLengthKm},
		})
	}
	return rows
}
