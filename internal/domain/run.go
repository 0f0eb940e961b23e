package domain

import "time"

// RunRecord is the summary of a completed run handed to downstream sinks.
type RunRecord struct {
	ID            string
	At            time.Time
	ProfileFile   string
	ProfileSource ProfileSource
	Rows          []StationObservation
}

// PlottableCount returns how many rows are drawn on the chart.
func (r RunRecord) PlottableCount() int {
	n := 0
	for _, row := range r.Rows {
		if row.Plottable() {
			n++
		}
	}
	return n
}
