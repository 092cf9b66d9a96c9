package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Sex is the respondent sex dimension. The zero value means absent.
type Sex int

// Sex values follow the ACS coding; SexAll selects both.
const (
	SexMale   Sex = 1
	SexFemale Sex = 2
	SexAll    Sex = 3
)

// Sexes lists the aggregation slices.
var Sexes = []Sex{SexMale, SexFemale, SexAll}

func (s Sex) String() string {
	switch s {
	case SexMale:
		return "male"
	case SexFemale:
		return "female"
	case SexAll:
		return "all"
	default:
		return ""
	}
}

// ParseSex accepts a name or the numeric ACS code.
func ParseSex(v string) (Sex, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "male", "1":
		return SexMale, nil
	case "female", "2":
		return SexFemale, nil
	case "all", "3":
		return SexAll, nil
	}
	return 0, eris.Errorf("model: unknown sex %q", v)
}

// Race is a race/ethnicity slice.
type Race string

// Race slices.
const (
	RaceAIAN      Race = "aian"
	RaceAsian     Race = "asian"
	RaceBlack     Race = "black"
	RaceHawaiian  Race = "hawaiian"
	RaceWhite     Race = "white"
	RaceSomeOther Race = "some_other"
	RaceHispanic  Race = "hispanic"
	RaceAll       Race = "all"
)

// Races lists the aggregation slices.
var Races = []Race{RaceAIAN, RaceAsian, RaceBlack, RaceHawaiian, RaceWhite, RaceSomeOther, RaceHispanic, RaceAll}

// ParseRace validates a race slice name.
func ParseRace(v string) (Race, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, r := range Races {
		if string(r) == v {
			return r, nil
		}
	}
	return "", eris.Errorf("model: unknown race %q", v)
}

// RaceFlags holds the per-respondent race indicators.
type RaceFlags struct {
	AIAN      bool
	Asian     bool
	Black     bool
	Hawaiian  bool
	White     bool
	SomeOther bool
	Hispanic  bool
}

// Has reports whether the respondent belongs to slice r.
func (f RaceFlags) Has(r Race) bool {
	switch r {
	case RaceAIAN:
		return f.AIAN
	case RaceAsian:
		return f.Asian
	case RaceBlack:
		return f.Black
	case RaceHawaiian:
		return f.Hawaiian
	case RaceWhite:
		return f.White
	case RaceSomeOther:
		return f.SomeOther
	case RaceHispanic:
		return f.Hispanic
	case RaceAll:
		return true
	}
	return false
}

// Mode is the means of transportation to work. The zero value means absent.
type Mode int

// Modes 1-12.
const (
	ModeCar Mode = iota + 1
	ModeBus
	ModeStreetcar
	ModeSubway
	ModeRailroad
	ModeFerry
	ModeTaxi
	ModeMotorcycle
	ModeBicycle
	ModeWalking
	ModeHome
	ModeOther
)

var modeNames = [...]string{
	"", "car", "bus", "streetcar", "subway", "railroad", "ferry",
	"taxi", "motorcycle", "bicycle", "walking", "home", "other",
}

// Modes lists every valid mode.
var Modes = []Mode{
	ModeCar, ModeBus, ModeStreetcar, ModeSubway, ModeRailroad, ModeFerry,
	ModeTaxi, ModeMotorcycle, ModeBicycle, ModeWalking, ModeHome, ModeOther,
}

// Valid reports whether m is in 1..12.
func (m Mode) Valid() bool { return m >= ModeCar && m <= ModeOther }

func (m Mode) String() string {
	if !m.Valid() {
		return ""
	}
	return modeNames[m]
}

// MicrodataRecord is one normalized ACS PUMS respondent.
type MicrodataRecord struct {
	Year            int
	StateFIPS       int
	PUMA            int
	CommuteMinutes  float64
	Sex             Sex
	Mode            Mode
	HouseholdIncome *float64 // nominal dollars after ADJINC, nil when absent
	Races           RaceFlags
	Weight          float64
}
