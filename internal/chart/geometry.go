package chart

import "math"

// Canvas geometry in pixels.
const (
	Width        = 1180
	Height       = 760
	MarginLeft   = 90
	MarginRight  = 70
	MarginTop    = 50
	MarginBottom = 250

	plotW = Width - MarginLeft - MarginRight
	plotH = Height - MarginTop - MarginBottom
)

const (
	labelSpacing  = 12.0
	labelAttempts = 30
	charWidth     = 6
)

// point is an (altitude, temperature) pair already in chart units.
type point struct {
	Alt, Temp float64
}

// Axis is a closed value range.
type Axis struct {
	Min, Max float64
}

// Span returns Max - Min.
func (a Axis) Span() float64 { return a.Max - a.Min }

// Frame holds both axis domains plus the dry adiabat anchor.
type Frame struct {
	Temp   Axis
	Alt    Axis
	anchor point
	rate   float64
}

// Adiabat returns the dry adiabatic reference temperature at alt.
func (f Frame) Adiabat(alt float64) float64 {
	return f.anchor.Temp - f.rate*(alt-f.anchor.Alt)/1000.0
}

// X maps a temperature to a horizontal pixel.
func (f Frame) X(temp float64) float64 {
	return MarginLeft + (temp-f.Temp.Min)/f.Temp.Span()*plotW
}

// Y maps an altitude to a vertical pixel.
func (f Frame) Y(alt float64) float64 {
	return MarginTop + (f.Alt.Max-alt)/f.Alt.Span()*plotH
}

// newFrame computes the axis domains. profile must be sorted by altitude and
// hold at least one point; stations are the plottable markers.
func newFrame(profile, stations []point, lapseRate float64) Frame {
	lo, hi := profile[0], profile[len(profile)-1]

	alt := Axis{Min: lo.Alt, Max: hi.Alt}
	if len(stations) > 0 {
		minAlt := math.Min(0, lo.Alt)
		maxAlt := hi.Alt
		for _, s := range stations {
			minAlt = math.Min(minAlt, s.Alt)
			maxAlt = math.Max(maxAlt, s.Alt)
		}
		alt = Axis{Min: math.Floor(minAlt/100) * 100, Max: math.Ceil(maxAlt/100) * 100}
	}
	if alt.Max-alt.Min < 100 {
		alt.Max = alt.Min + 100
	}

	f := Frame{Alt: alt, anchor: lo, rate: lapseRate}

	minT := math.Min(f.Adiabat(alt.Min), f.Adiabat(alt.Max))
	maxT := math.Max(f.Adiabat(alt.Min), f.Adiabat(alt.Max))
	for _, p := range profile {
		minT, maxT = math.Min(minT, p.Temp), math.Max(maxT, p.Temp)
	}
	for _, s := range stations {
		minT, maxT = math.Min(minT, s.Temp), math.Max(maxT, s.Temp)
	}
	f.Temp = Axis{Min: minT - 0.5, Max: maxT + 0.5}
	if f.Temp.Span() < 1.0 {
		f.Temp.Min -= 0.5
		f.Temp.Max += 0.5
	}
	return f
}

// TempTickStep picks 1, 2 or 5 units from the domain span.
func TempTickStep(span float64) float64 {
	switch {
	case span <= 5:
		return 1
	case span <= 10:
		return 2
	default:
		return 5
	}
}

// Ticks returns every multiple of step inside a, ascending.
func Ticks(a Axis, step float64) []float64 {
	var out []float64
	start := math.Ceil(a.Min/step) * step
	for i := 0; ; i++ {
		v := start + float64(i)*step
		if v > a.Max+1e-9 {
			break
		}
		out = append(out, v)
	}
	return out
}

// PlaceLabels assigns label rows greedily in plotting order: each label
// starts at its marker and moves down until it is at least 12px from every
// earlier label, giving up after 30 tries, then is clamped to the plot area.
func PlaceLabels(markerYs []float64) []float64 {
	placed := make([]float64, 0, len(markerYs))
	for _, y := range markerYs {
		labelY := y
		for range labelAttempts {
			if clearOf(labelY, placed) {
				break
			}
			labelY += labelSpacing
		}
		labelY = math.Max(MarginTop+10, math.Min(Height-MarginBottom-4, labelY))
		placed = append(placed, labelY)
	}
	return placed
}

func clearOf(y float64, placed []float64) bool {
	for _, prev := range placed {
		if math.Abs(y-prev) < labelSpacing {
			return false
		}
	}
	return true
}

// labelFitsRight reports whether a label of n characters drawn right of x
// stays inside the right margin.
func labelFitsRight(x float64, n int) bool {
	return x+float64(charWidth*n)+8 <= Width-MarginRight
}
