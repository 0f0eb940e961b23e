package chart

import "github.com/couchcryptid/sb-lapse-etl/internal/domain"

// UnitSystem carries everything that differs between the metric and imperial
// charts. Geometry is shared.
type UnitSystem struct {
	Name        string
	TempUnit    string
	AltUnit     string
	LapseRate   float64 // per 1000 altitude units
	LapseLabel  string
	AltTickStep float64

	temp func(c float64) float64
	alt  func(m float64) float64
}

var (
	Metric = UnitSystem{
		Name:        "metric",
		TempUnit:    "C",
		AltUnit:     "m",
		LapseRate:   9.8,
		LapseLabel:  "DALR (9.8 C/km)",
		AltTickStep: 200,
		temp:        func(c float64) float64 { return c },
		alt:         func(m float64) float64 { return m },
	}
	Imperial = UnitSystem{
		Name:        "imperial",
		TempUnit:    "F",
		AltUnit:     "ft",
		LapseRate:   5.4,
		LapseLabel:  "DALR (5.4 F/1000 ft)",
		AltTickStep: 500,
		temp:        domain.CToF,
		alt:         domain.MToFt,
	}
)

// Temp converts a Celsius value into this system.
func (u UnitSystem) Temp(c float64) float64 { return u.temp(c) }

// Alt converts a height in metres into this system.
func (u UnitSystem) Alt(m float64) float64 { return u.alt(m) }
