// Package acs turns ACS 1-year PUMS responses into commute aggregates.
package acs

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/sells-group/commute-cli/internal/manifest"
	"github.com/sells-group/commute-cli/internal/model"
)

// Source variables requested from the PUMS API.
const (
	FieldMinutes  = "JWMNP"
	FieldSex      = "SEX"
	FieldState    = "ST"
	FieldAdjHsg   = "ADJHSG"
	FieldAdjInc   = "ADJINC"
	FieldAge      = "AGEP"
	FieldCitizen  = "CIT"
	FieldMode     = "JWTR"
	FieldModeNS   = "JWTRNS"
	FieldRiders   = "JWRIP"
	FieldOwnChild = "OC"
	FieldIncome   = "HINCP"
	FieldAIAN     = "RACAIAN"
	FieldAsian    = "RACASN"
	FieldBlack    = "RACBLK"
	FieldHawaiian = "RACNH"
	FieldWhite    = "RACWHT"
	FieldOther    = "RACSOR"
	FieldHispanic = "HISP"
	FieldWeight   = "PWGTP"
	FieldWorker   = "COW"
	FieldPUMA     = "PUMA"
)

// FieldMap names the source variables of one survey year.
type FieldMap struct {
	Year int
	Mode string
	// ModeCodes translates source mode codes into the JWTR code space.
	// Codes not listed map to themselves.
	ModeCodes map[int]model.Mode
}

// jwtrnsCodes maps the 2019 JWTRNS codes onto JWTR: JWTRNS splits rail into
// subway (3), commuter rail (4) and light rail/streetcar (5).
var jwtrnsCodes = map[int]model.Mode{
	3: model.ModeSubway,
	4: model.ModeRailroad,
	5: model.ModeStreetcar,
}

// FieldsFor returns the field map for year.
func FieldsFor(year int) FieldMap {
	if year >= 2019 {
		return FieldMap{Year: year, Mode: FieldModeNS, ModeCodes: jwtrnsCodes}
	}
	return FieldMap{Year: year, Mode: FieldMode}
}

// Requested lists every variable in request order.
func (f FieldMap) Requested() []string {
	return []string{
		FieldMinutes, FieldSex, FieldState, FieldAdjHsg, FieldAdjInc, FieldAge, FieldCitizen,
		f.Mode, FieldRiders, FieldOwnChild, FieldIncome,
		FieldAIAN, FieldAsian, FieldBlack, FieldHawaiian, FieldWhite, FieldOther, FieldHispanic,
		FieldWeight, FieldWorker, FieldPUMA,
	}
}

// Required lists the variables parsing cannot proceed without.
func (f FieldMap) Required() []string {
	return []string{
		FieldMinutes, FieldSex, FieldState, FieldAdjInc, f.Mode, FieldIncome,
		FieldAIAN, FieldAsian, FieldBlack, FieldHawaiian, FieldWhite, FieldOther, FieldHispanic,
		FieldWeight, FieldPUMA,
	}
}

// MapMode converts a source mode code. Returns 0 for codes outside 1-12.
func (f FieldMap) MapMode(code int) model.Mode {
	if m, ok := f.ModeCodes[code]; ok {
		return m
	}
	m := model.Mode(code)
	if !m.Valid() {
		return 0
	}
	return m
}

// RequestURL is the PUMS query for one state-year, without the API key.
func RequestURL(apiBase string, year, stateFIPS int) string {
	q := url.Values{}
	q.Set("get", strings.Join(FieldsFor(year).Requested(), ","))
	q.Set("for", "state:"+model.StateKey(stateFIPS))
	return fmt.Sprintf("%s/%d/acs/acs1/pums?%s", strings.TrimRight(apiBase, "/"), year, q.Encode())
}

// WithKey appends the Census API key to a request URL.
func WithKey(rawURL, key string) string {
	if key == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String()
}

// RawPath is where one state-year response is cached.
func RawPath(rawDir string, year, stateFIPS int) string {
	return filepath.Join(rawDir, "acs", fmt.Sprint(year), fmt.Sprintf("acs_%d_%s.json", year, model.StateKey(stateFIPS)))
}

// ManifestEntries lists the PUMS requests for every state and year.
func ManifestEntries(apiBase, rawDir string, states, years []int) []manifest.Entry {
	entries := make([]manifest.Entry, 0, len(states)*len(years))
	for _, year := range years {
		for _, st := range states {
			entries = append(entries, manifest.Entry{
				Kind:      manifest.KindACS,
				StateFIPS: st,
				Year:      year,
				URL:       RequestURL(apiBase, year, st),
				Path:      RawPath(rawDir, year, st),
			})
		}
	}
	return entries
}

// SchemaMismatchError reports a year whose response lacks a required variable.
type SchemaMismatchError struct {
	Year  int
	Field string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("acs: %d response has no %s column", e.Year, e.Field)
}
