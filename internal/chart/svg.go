// Package chart renders the lapse-rate chart: the RASS profile, the dry
// adiabat anchored at its lowest point, recent ground stations with wind
// barbs, and a per-station legend. Rendering is a pure function of its input.
package chart

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

const styleBlock = `<style>
  .axis { stroke: #202020; stroke-width: 1; }
  .grid { stroke: #dddddd; stroke-width: 1; }
  .title { font-family: Helvetica, Arial, sans-serif; font-size: 16px; font-weight: 600; fill: #111111; }
  .label { font-family: Helvetica, Arial, sans-serif; font-size: 12px; fill: #222222; }
  .legend-h { font-family: Helvetica, Arial, sans-serif; font-size: 12px; font-weight: 600; fill: #222222; }
  .legend-row { font-family: Helvetica, Arial, sans-serif; font-size: 11px; fill: #333333; }
  .rass { fill: none; stroke: #0077b6; stroke-width: 2; }
  .dalr { fill: none; stroke: #d1495b; stroke-width: 1.5; stroke-dasharray: 6 4; stroke-opacity: 0.45; }
  .rass-point { fill: #0077b6; }
  .station { fill: #f4a261; stroke: #8b4c12; stroke-width: 1; }
  .barb-shaft { stroke: #1f2937; stroke-width: 1.3; }
  .barb-feather { stroke: #1f2937; stroke-width: 1.2; }
  .barb-flag { fill: #1f2937; stroke: #1f2937; stroke-width: 1; }
  .station-label { font-family: Helvetica, Arial, sans-serif; font-size: 11px; fill: #444444; }
</style>`

// Input is everything one chart needs. Values are metric; Render converts.
type Input struct {
	// Profile is the resampled profile, ascending by altitude, at least one point.
	Profile []domain.ProfilePoint
	// Stations are all rows in roster order with recency already classified.
	Stations []domain.StationObservation
	Title    string
	// ProfileClock is the HH:MM label of the profile time, or "missing".
	ProfileClock string
	Zone         *time.Location
}

// Render draws the chart in unit system u and returns the SVG document.
func Render(in Input, u UnitSystem) string {
	profile := make([]point, len(in.Profile))
	for i, p := range in.Profile {
		profile[i] = point{Alt: u.Alt(p.AltitudeM), Temp: u.Temp(p.TempC)}
	}

	var plotted []domain.StationObservation
	var markers []point
	for _, row := range in.Stations {
		if !row.Plottable() {
			continue
		}
		plotted = append(plotted, row)
		markers = append(markers, point{Alt: u.Alt(*row.ElevationM), Temp: u.Temp(*row.TempC)})
	}

	f := newFrame(profile, markers, u.LapseRate)

	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, Width, Height, Width, Height)
	line("%s", styleBlock)
	line(`<rect x="0" y="0" width="%d" height="%d" fill="#ffffff" />`, Width, Height)
	line(`<text class="title" x="%d" y="%d">%s</text>`, MarginLeft, MarginTop-22, escape(in.Title))

	for _, alt := range Ticks(f.Alt, u.AltTickStep) {
		y := f.Y(alt)
		line(`<line class="grid" x1="%d" y1="%.2f" x2="%d" y2="%.2f" />`, MarginLeft, y, Width-MarginRight, y)
		line(`<text class="label" x="%d" y="%.2f" text-anchor="end">%d</text>`, MarginLeft-8, y+4, int(alt))
	}
	for _, temp := range Ticks(f.Temp, TempTickStep(f.Temp.Span())) {
		x := f.X(temp)
		line(`<line class="grid" x1="%.2f" y1="%d" x2="%.2f" y2="%d" />`, x, MarginTop, x, Height-MarginBottom)
		line(`<text class="label" x="%.2f" y="%d" text-anchor="middle">%.1f</text>`, x, Height-MarginBottom+18, temp)
	}

	line(`<line class="axis" x1="%d" y1="%d" x2="%d" y2="%d" />`, MarginLeft, MarginTop, MarginLeft, Height-MarginBottom)
	line(`<line class="axis" x1="%d" y1="%d" x2="%d" y2="%d" />`, MarginLeft, Height-MarginBottom, Width-MarginRight, Height-MarginBottom)
	line(`<text class="label" x="%.2f" y="%d" text-anchor="middle">Temperature (%s)</text>`,
		MarginLeft+plotW/2.0, Height-MarginBottom+36, u.TempUnit)
	midY := MarginTop + plotH/2.0
	line(`<text class="label" x="26" y="%.2f" text-anchor="middle" transform="rotate(-90 26 %.2f)">Altitude (%s)</text>`,
		midY, midY, u.AltUnit)

	path := make([]string, len(profile))
	for i, p := range profile {
		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		path[i] = fmt.Sprintf("%s%.2f,%.2f", cmd, f.X(p.Temp), f.Y(p.Alt))
	}
	line(`<path class="rass" d="%s" />`, strings.Join(path, " "))
	line(`<path class="dalr" d="M%.2f,%.2f L%.2f,%.2f" />`,
		f.X(f.Adiabat(f.Alt.Min)), f.Y(f.Alt.Min), f.X(f.Adiabat(f.Alt.Max)), f.Y(f.Alt.Max))
	for _, p := range profile {
		line(`<circle class="rass-point" cx="%.2f" cy="%.2f" r="2" />`, f.X(p.Temp), f.Y(p.Alt))
	}

	markerYs := make([]float64, len(markers))
	for i, m := range markers {
		markerYs[i] = f.Y(m.Alt)
	}
	labelYs := PlaceLabels(markerYs)
	for i, row := range plotted {
		x, y := f.X(markers[i].Temp), markerYs[i]
		line(`<rect class="station" x="%.2f" y="%.2f" width="6" height="6" />`, x-3, y-3)
		for _, glyph := range barb(x, y, row.WindDirDeg, row.WindSpeedMPS) {
			line("%s", glyph)
		}
		name := escape(row.Name)
		if labelFitsRight(x, len(row.Name)) {
			line(`<text class="station-label" x="%.2f" y="%.2f" text-anchor="start">%s</text>`, x+6, labelYs[i]+4, name)
		} else {
			line(`<text class="station-label" x="%.2f" y="%.2f" text-anchor="end">%s</text>`, x-6, labelYs[i]+4, name)
		}
	}

	legendX := MarginLeft
	legendY := Height - MarginBottom + 52
	adiabatX := legendX + 220
	line(`<line class="rass" x1="%d" y1="%d" x2="%d" y2="%d" />`, legendX, legendY, legendX+24, legendY)
	line(`<text class="label" x="%d" y="%d">RASS @ %s</text>`, legendX+30, legendY+4, escape(in.ProfileClock))
	line(`<line class="dalr" x1="%d" y1="%d" x2="%d" y2="%d" />`, adiabatX, legendY, adiabatX+24, legendY)
	line(`<text class="label" x="%d" y="%d">%s</text>`, adiabatX+30, legendY+4, escape(u.LapseLabel))

	listY := legendY + 34
	line(`<text class="legend-h" x="%d" y="%d">Stations</text>`, legendX, listY)
	rowY := listY + 16
	for _, row := range in.Stations {
		line(`<text class="legend-row" x="%d" y="%d">%s</text>`, legendX, rowY, escape(LegendRow(row, u, in.Zone)))
		rowY += 14
	}

	b.WriteString("</svg>")
	return b.String()
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
