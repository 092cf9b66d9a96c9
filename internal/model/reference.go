package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ReferenceCode identifies a state as published in the MOVS tables.
type ReferenceCode struct {
	StateFIPS int    `json:"state_fips" yaml:"state_fips"`
	StateAbbr string `json:"state_abbr" yaml:"state_abbr"` // lowercase
	StateName string `json:"state_name" yaml:"state_name"`
}

// CountyCode identifies a county within a reference state.
type CountyCode struct {
	StateFIPS  int    `json:"state_fips" yaml:"state_fips"`
	CountyFIPS int    `json:"county_fips" yaml:"county_fips"`
	CountyID   string `json:"county_id" yaml:"county_id"`
	CountyName string `json:"county_name" yaml:"county_name"`
}

// FormatFIPS zero-pads a numeric FIPS code to the given width.
func FormatFIPS(code, digits int) string {
	return fmt.Sprintf("%0*d", digits, code)
}

// StateKey returns the 2-digit state FIPS string.
func StateKey(stateFIPS int) string {
	return FormatFIPS(stateFIPS, 2)
}

// CountyID concatenates the 2-digit state and 3-digit county FIPS codes.
func CountyID(stateFIPS, countyFIPS int) string {
	return FormatFIPS(stateFIPS, 2) + FormatFIPS(countyFIPS, 3)
}

// ParseFIPS parses a FIPS string that may carry leading zeros or padding.
func ParseFIPS(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.New("model: empty FIPS code")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, eris.Wrapf(err, "model: parse FIPS %q", s)
	}
	return n, nil
}

// StateFIPSSet returns the set of state FIPS codes in codes.
func StateFIPSSet(codes []ReferenceCode) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c.StateFIPS] = struct{}{}
	}
	return set
}
