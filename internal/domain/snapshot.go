package domain

import "time"

// ProfileSource labels where a run's profile came from.
type ProfileSource string

const (
	SourceLive   ProfileSource = "live"
	SourceCached ProfileSource = "cached"
)

// ChartRefs are the output-relative paths of a snapshot's rendered charts.
type ChartRefs struct {
	MetricSVG   string
	ImperialSVG string
}

// SnapshotProfile is the profile as recorded in a snapshot: the resampled
// points plus provenance.
type SnapshotProfile struct {
	File   string
	ObTime *time.Time
	Points []ProfilePoint
	Source ProfileSource
}

// Snapshot is one run's output. Stations are kept in roster order.
type Snapshot struct {
	RunAt    time.Time
	Charts   ChartRefs
	Profile  SnapshotProfile
	Stations []StationObservation
}

// Station returns the snapshot row for id, if present.
func (s Snapshot) Station(id string) (StationObservation, bool) {
	for _, row := range s.Stations {
		if row.ID == id {
			return row, true
		}
	}
	return StationObservation{}, false
}
