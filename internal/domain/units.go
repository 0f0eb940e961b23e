package domain

import "math"

// Unit conversion factors.
const (
	MPSToMPH  = 2.23694
	FeetPerM  = 3.28084
	KnotsPerM = 1.94384 // knots per m/s
	KelvinOff = 273.15
)

// Magnus coefficients for the dewpoint approximation.
const (
	magnusA = 17.625
	magnusB = 243.04
)

// CToF converts Celsius to Fahrenheit.
func CToF(c float64) float64 { return c*9.0/5.0 + 32.0 }

// FToC converts Fahrenheit to Celsius.
func FToC(f float64) float64 { return (f - 32.0) * (5.0 / 9.0) }

// KToC converts Kelvin to Celsius.
func KToC(k float64) float64 { return k - KelvinOff }

// MToFt converts metres to feet.
func MToFt(m float64) float64 { return m * FeetPerM }

// MPSToKnots converts m/s to knots.
func MPSToKnots(v float64) float64 { return v * KnotsPerM }

// MPHToMPS converts mph to m/s.
func MPHToMPS(v float64) float64 { return v / MPSToMPH }

// DewpointFromRH derives a dewpoint (°C) from temperature (°C) and relative
// humidity (%) with the Magnus approximation. ok is false when rh is outside (0, 100].
func DewpointFromRH(tempC, rhPct float64) (dew float64, ok bool) {
	if rhPct <= 0 || rhPct > 100 {
		return 0, false
	}
	gamma := math.Log(rhPct/100.0) + (magnusA*tempC)/(magnusB+tempC)
	return (magnusB * gamma) / (magnusA - gamma), true
}
