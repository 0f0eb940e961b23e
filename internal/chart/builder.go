package chart

import (
	"errors"
	"time"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

// ErrNoProfile is returned when there are no profile points to draw.
var ErrNoProfile = errors.New("no profile points to plot")

// Pair is the metric and imperial rendering of one run.
type Pair struct {
	Metric        string
	Imperial      string
	TitleMetric   string
	TitleImperial string
}

// Builder renders both unit systems with a shared title station and zone.
type Builder struct {
	Roster       domain.Roster
	TitleStation string
	Zone         *time.Location
	RecentWindow time.Duration
}

// Build renders a run. rows must already be classified.
func (b Builder) Build(profile []domain.ProfilePoint, profileTime *time.Time, rows []domain.StationObservation) (Pair, error) {
	if len(profile) == 0 {
		return Pair{}, ErrNoProfile
	}

	name := b.Roster.Name(b.TitleStation)
	var titleRow *domain.StationObservation
	for i := range rows {
		if rows[i].ID == b.TitleStation {
			titleRow = &rows[i]
			break
		}
	}

	clock := domain.ClockLabel(profileTime, b.Zone)
	if clock == "" {
		clock = "missing"
	}

	pair := Pair{
		TitleMetric:   LCLTitle(name, titleRow, Metric, b.Zone),
		TitleImperial: LCLTitle(name, titleRow, Imperial, b.Zone),
	}
	in := Input{Profile: profile, Stations: rows, ProfileClock: clock, Zone: b.Zone}

	in.Title = pair.TitleMetric
	pair.Metric = Render(in, Metric)
	in.Title = pair.TitleImperial
	pair.Imperial = Render(in, Imperial)
	return pair, nil
}

// BuildSnapshot re-renders a persisted snapshot. Stored points are put back
// on the grid and recency is evaluated at the snapshot's own run time.
func (b Builder) BuildSnapshot(s domain.Snapshot) (Pair, error) {
	points, err := domain.Resample(s.Profile.Points)
	if err != nil {
		return Pair{}, err
	}

	window := b.RecentWindow
	if window <= 0 {
		window = domain.DefaultRecentWindow
	}
	rows := make([]domain.StationObservation, 0, len(b.Roster))
	for _, station := range b.Roster {
		row, ok := s.Station(station.ID)
		if !ok {
			row = domain.BlankObservation(station)
		} else {
			row = row.Clone()
		}
		row.Classify(s.RunAt, window)
		rows = append(rows, row)
	}
	return b.Build(points, s.Profile.ObTime, rows)
}
