package chart

import (
	"fmt"
	"math"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

const (
	shaftLen   = 18.0
	flagStep   = 7.0
	featherGap = 4.0
)

// BarbCounts is a rounded wind speed broken into glyph parts.
type BarbCounts struct {
	Flags    int // 50 kt each
	Feathers int // 10 kt each
	Half     int // 0 or 1, 5 kt
}

// Knots recombines the glyph parts.
func (b BarbCounts) Knots() int { return 50*b.Flags + 10*b.Feathers + 5*b.Half }

// RoundKnots converts m/s to knots rounded to the nearest 5.
func RoundKnots(mps float64) int {
	kt := math.Max(0, domain.MPSToKnots(mps))
	return int(5 * math.RoundToEven(kt/5))
}

// Decompose splits a rounded knot speed into flags, feathers and a half feather.
func Decompose(knots int) BarbCounts {
	var b BarbCounts
	for knots >= 50 {
		b.Flags++
		knots -= 50
	}
	for knots >= 10 {
		b.Feathers++
		knots -= 10
	}
	if knots >= 5 {
		b.Half = 1
	}
	return b
}

// barb draws a wind barb rooted at (x, y). dir is where the wind blows from,
// in degrees from north. Missing inputs draw nothing; calm draws a circle.
func barb(x, y float64, dir, speedMPS *float64) []string {
	if dir == nil || speedMPS == nil {
		return nil
	}
	knots := RoundKnots(*speedMPS)
	if knots <= 0 {
		return []string{fmt.Sprintf(`<circle class="barb-shaft" cx="%.2f" cy="%.2f" r="2.5" fill="none" />`, x, y)}
	}

	rad := math.Mod(*dir, 360) * math.Pi / 180
	ux, uy := math.Sin(rad), -math.Cos(rad)
	nx, ny := -uy, ux

	tipX, tipY := x+shaftLen*ux, y+shaftLen*uy
	out := []string{fmt.Sprintf(`<line class="barb-shaft" x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" />`, x, y, tipX, tipY)}

	counts := Decompose(knots)
	offset := 0.0
	for range counts.Flags {
		p0x, p0y := tipX-ux*offset, tipY-uy*offset
		p1x, p1y := tipX-ux*(offset+4), tipY-uy*(offset+4)
		p2x, p2y := p1x+nx*7-ux*2, p1y+ny*7-uy*2
		out = append(out, fmt.Sprintf(`<polygon class="barb-flag" points="%.2f,%.2f %.2f,%.2f %.2f,%.2f" />`,
			p0x, p0y, p1x, p1y, p2x, p2y))
		offset += flagStep
	}
	for range counts.Feathers {
		bx, by := tipX-ux*offset, tipY-uy*offset
		out = append(out, fmt.Sprintf(`<line class="barb-feather" x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" />`,
			bx, by, bx+nx*7-ux*2, by+ny*7-uy*2))
		offset += featherGap
	}
	if counts.Half == 1 {
		bx, by := tipX-ux*offset, tipY-uy*offset
		out = append(out, fmt.Sprintf(`<line class="barb-feather" x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" />`,
			bx, by, bx+nx*4-ux*1.2, by+ny*4-uy*1.2))
	}
	return out
}
