package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// GridStep is the altitude spacing of a resampled profile, in metres.
const GridStep = 100.0

// missingTemp is the sounding sentinel for an absent temperature.
const missingTemp = 999999.0

// headerScanLines bounds the search for the observation timestamp.
const headerScanLines = 12

var (
	// ErrTableHeaderMissing means no line starting with "HT" was found.
	ErrTableHeaderMissing = errors.New("sounding table header not found")
	// ErrInsufficientPoints means fewer than two valid samples remained.
	ErrInsufficientPoints = errors.New("not enough valid sounding points")
)

// ProfilePoint is one (altitude, temperature) sample.
type ProfilePoint struct {
	AltitudeM float64
	TempC     float64
}

// MarshalJSON encodes the point as [altitude, temperature] with the altitude
// rounded to whole metres and the temperature to three decimals.
func (p ProfilePoint) MarshalJSON() ([]byte, error) {
	alt := math.Round(p.AltitudeM)
	temp := math.Round(p.TempC*1000) / 1000
	return json.Marshal([2]float64{alt, temp})
}

// UnmarshalJSON decodes a [altitude, temperature] pair.
func (p *ProfilePoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode profile point: %w", err)
	}
	if len(pair) < 2 {
		return fmt.Errorf("decode profile point: want 2 values, got %d", len(pair))
	}
	p.AltitudeM = math.Round(pair[0])
	p.TempC = pair[1]
	return nil
}

// RassProfile is a parsed sounding: the valid raw samples ordered by altitude,
// their uniform-grid resampling, and the observation time when the header had one.
type RassProfile struct {
	Raw       []ProfilePoint
	Resampled []ProfilePoint
	ObTime    *time.Time
}

// Lowest returns the lowest resampled point.
func (p RassProfile) Lowest() ProfilePoint { return p.Resampled[0] }

// Highest returns the highest resampled point.
func (p RassProfile) Highest() ProfilePoint { return p.Resampled[len(p.Resampled)-1] }

// ParseSounding parses a RASS text report into a profile.
func ParseSounding(raw string) (RassProfile, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	obTime := parseSoundingTime(lines)

	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "HT") {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return RassProfile{}, ErrTableHeaderMissing
	}

	var points []ProfilePoint
	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "$") {
			break
		}
		fields := strings.Fields(trimmed)
		if len(fields) < 2 {
			continue
		}
		altKm, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			continue
		}
		temp, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			continue
		}
		if temp >= missingTemp {
			continue
		}
		points = append(points, ProfilePoint{AltitudeM: altKm * 1000.0, TempC: temp})
	}

	resampled, err := Resample(points)
	if err != nil {
		return RassProfile{}, err
	}
	sortByAltitude(points)
	return RassProfile{Raw: points, Resampled: resampled, ObTime: obTime}, nil
}

// parseSoundingTime finds the first header line whose first six tokens are
// numeric "yy mm dd hh mm ss" with a two-digit year.
func parseSoundingTime(lines []string) *time.Time {
	if len(lines) > headerScanLines {
		lines = lines[:headerScanLines]
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 6 || !allNumeric(fields[:6]) {
			continue
		}
		if len(fields[0]) > 2 {
			continue
		}
		var v [6]int
		integral := true
		for i := range v {
			n, err := strconv.Atoi(fields[i])
			if err != nil {
				integral = false
				break
			}
			v[i] = n
		}
		if !integral {
			continue
		}
		if v[1] < 1 || v[1] > 12 || v[2] < 1 || v[2] > 31 || v[3] > 23 || v[4] > 59 || v[5] > 59 {
			return nil
		}
		t := time.Date(2000+v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], 0, time.UTC)
		if t.Day() != v[2] {
			return nil
		}
		return &t
	}
	return nil
}

// allNumeric reports whether every token is digits with at most one dot.
func allNumeric(tokens []string) bool {
	for _, tok := range tokens {
		digits := strings.Replace(tok, ".", "", 1)
		if digits == "" {
			return false
		}
		for _, r := range digits {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// Resample interpolates points onto every multiple of GridStep between the
// lowest and highest sample. A single segment pointer only moves forward, so
// the walk is linear in the number of samples. Grid altitudes that coincide
// with a sample return that sample's temperature exactly.
func Resample(points []ProfilePoint) ([]ProfilePoint, error) {
	if len(points) < 2 {
		return nil, ErrInsufficientPoints
	}
	pts := make([]ProfilePoint, len(points))
	copy(pts, points)
	sortByAltitude(pts)

	lo := math.Ceil(pts[0].AltitudeM/GridStep) * GridStep
	hi := math.Floor(pts[len(pts)-1].AltitudeM/GridStep) * GridStep

	var out []ProfilePoint
	j := 0
	for step := 0; ; step++ {
		alt := lo + float64(step)*GridStep
		if alt > hi {
			break
		}
		for j < len(pts)-2 && pts[j+1].AltitudeM < alt {
			j++
		}
		out = append(out, ProfilePoint{AltitudeM: alt, TempC: interpolate(pts[j], pts[j+1], alt)})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: samples span no %.0f m grid level", ErrInsufficientPoints, GridStep)
	}
	return out, nil
}

func interpolate(p0, p1 ProfilePoint, alt float64) float64 {
	switch {
	case p1.AltitudeM == p0.AltitudeM, alt == p0.AltitudeM:
		return p0.TempC
	case alt == p1.AltitudeM:
		return p1.TempC
	}
	return p0.TempC + (p1.TempC-p0.TempC)*(alt-p0.AltitudeM)/(p1.AltitudeM-p0.AltitudeM)
}

func sortByAltitude(pts []ProfilePoint) {
	sort.SliceStable(pts, func(i, k int) bool { return pts[i].AltitudeM < pts[k].AltitudeM })
}
