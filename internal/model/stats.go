package model

import "fmt"

// AggregateStat is one (year, state, puma, sex, race) slice of ACS commute data.
type AggregateStat struct {
	Year                 int
	StateFIPS            int
	PUMA                 int
	Sex                  Sex
	Race                 Race
	PersonWeight         float64
	TotalWeightedMinutes float64
	AvgCommuteMinutes    *float64 // nil when PersonWeight is zero
	ModeCounts           map[Mode]float64
	MedianIncome         *float64
}

// Key identifies the slice.
func (s AggregateStat) Key() string {
	return fmt.Sprintf("%d/%02d/%05d/%s/%s", s.Year, s.StateFIPS, s.PUMA, s.Sex, s.Race)
}

// ODDistanceStat is the job-weighted mean commute distance for one state-year.
type ODDistanceStat struct {
	StateFIPS     int
	StateAbbr     string
	Year          int
	AvgDistanceKm float64
	Jobs          float64
	Pairs         int
	Unmatched     int
}

// RoadLengthStat is the total road length clipped to one PUMA in one year.
type RoadLengthStat struct {
	Year          int
	StateFIPS     int
	PUMAID        string // 7-char state+puma GEOID
	TotalLengthKm float64
}
