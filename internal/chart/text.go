package chart

import (
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

// cloudBaseFactor is metres of cloud base per degree of dewpoint depression.
const cloudBaseFactor = 125.0

// WindText formats a row's wind for titles and legends, always in mph.
func WindText(row domain.StationObservation) string {
	if row.WindSpeedMPS == nil {
		return "winds missing"
	}
	direction := "---"
	if row.WindDirDeg != nil {
		direction = fmt.Sprintf("%03d", int(math.RoundToEven(*row.WindDirDeg)))
	}
	speed := int(math.RoundToEven(*row.WindSpeedMPS * domain.MPSToMPH))
	if row.WindGustMPS == nil {
		return fmt.Sprintf("winds %s, %dmph", direction, speed)
	}
	gust := int(math.RoundToEven(*row.WindGustMPS * domain.MPSToMPH))
	return fmt.Sprintf("winds %s, %dg%dmph", direction, speed, gust)
}

// CloudBaseM estimates the lifted condensation level in metres above sea level.
func CloudBaseM(row domain.StationObservation) (float64, bool) {
	if row.ElevationM == nil || row.TempC == nil || row.DewpointC == nil {
		return 0, false
	}
	return *row.ElevationM + cloudBaseFactor*(*row.TempC-*row.DewpointC), true
}

// LCLTitle builds the chart heading from the title station's metric row.
// row may be nil when the station produced nothing.
func LCLTitle(name string, row *domain.StationObservation, u UnitSystem, zone *time.Location) string {
	wind := "winds missing"
	if row != nil {
		wind = WindText(*row)
	}
	if row == nil {
		return fmt.Sprintf("Estimated LCL @ %s: missing - %s", name, wind)
	}
	base, ok := CloudBaseM(*row)
	if !ok {
		return fmt.Sprintf("Estimated LCL @ %s: missing - %s", name, wind)
	}

	value := int(math.RoundToEven(u.Alt(base)))
	if clock := domain.ClockLabel(row.TempObTime, zone); clock != "" {
		return fmt.Sprintf("Estimated LCL @ %s: %d %s - %s (%s %s)", name, value, u.AltUnit, wind, clock, zoneAbbrev(*row.TempObTime, zone))
	}
	return fmt.Sprintf("Estimated LCL @ %s: %d %s - %s", name, value, u.AltUnit, wind)
}

// LegendRow formats one station line of the chart legend. row is metric;
// the temperature is shown in u.
func LegendRow(row domain.StationObservation, u UnitSystem, zone *time.Location) string {
	temp := "temp missing"
	if row.TempC != nil {
		temp = fmt.Sprintf("%.1f%s", u.Temp(*row.TempC), u.TempUnit)
	}

	obTime := row.WindObTime
	if obTime == nil {
		obTime = row.TempObTime
	}
	clock := domain.ClockLabel(obTime, zone)
	if clock == "" {
		return fmt.Sprintf("%s @ missing - %s, winds missing", row.Name, temp)
	}
	return fmt.Sprintf("%s @ %s - %s, %s", row.Name, clock, temp, WindText(row))
}

func zoneAbbrev(t time.Time, zone *time.Location) string {
	if zone == nil {
		return "UTC"
	}
	return t.In(zone).Format("MST")
}
