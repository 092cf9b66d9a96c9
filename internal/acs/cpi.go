package acs

import "github.com/rotisserie/eris"

// cpiU holds CPI-U annual averages (1982-84=100, BLS series CUUR0000SA0).
var cpiU = map[int]float64{
	2010: 218.056,
	2011: 224.939,
	2012: 229.594,
	2013: 232.957,
	2014: 236.736,
	2015: 237.017,
	2016: 240.007,
	2017: 245.120,
	2018: 251.107,
	2019: 255.657,
	2020: 258.811,
	2021: 270.970,
	2022: 292.655,
	2023: 304.702,
}

// Deflator restates a dollar amount from one year in another year's dollars.
type Deflator interface {
	Inflate(amount float64, fromYear int) float64
}

// CPI inflates amounts to BaseYear dollars with the CPI-U annual average.
type CPI struct {
	BaseYear int
	base     float64
}

// NewCPI returns a CPI deflator targeting baseYear.
func NewCPI(baseYear int) (*CPI, error) {
	base, ok := cpiU[baseYear]
	if !ok {
		return nil, eris.Errorf("acs: no CPI-U index for %d", baseYear)
	}
	return &CPI{BaseYear: baseYear, base: base}, nil
}

// Inflate returns amount in BaseYear dollars. Amounts from years without an
// index are returned unchanged.
func (c *CPI) Inflate(amount float64, fromYear int) float64 {
	from, ok := cpiU[fromYear]
	if !ok {
		return amount
	}
	return amount * c.base / from
}

type nominal struct{}

func (nominal) Inflate(amount float64, _ int) float64 { return amount }

// Nominal leaves amounts in survey-year dollars.
var Nominal Deflator = nominal{}
