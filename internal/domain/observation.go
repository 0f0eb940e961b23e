package domain

import "time"

// DefaultRecentWindow is the maximum temperature age for a row to count as recent.
const DefaultRecentWindow = 60 * time.Minute

// StationObservation is the best-available reading for one station during a run.
// Nil pointers mean the value is absent. Recent and AgeMinutes are derived by
// [StationObservation.Classify] and are never persisted.
type StationObservation struct {
	ID   string
	Name string

	ElevationM *float64
	TempC      *float64
	DewpointC  *float64
	TempObTime *time.Time
	Provider   string

	WindDirDeg   *float64
	WindSpeedMPS *float64
	WindGustMPS  *float64
	WindObTime   *time.Time

	Recent     bool
	AgeMinutes *float64
}

// BlankObservation returns a row carrying only identity.
func BlankObservation(s Station) StationObservation {
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return StationObservation{ID: s.ID, Name: name}
}

// Classify recomputes AgeMinutes and Recent relative to now. A row without a
// temperature observation time is never recent.
func (o *StationObservation) Classify(now time.Time, window time.Duration) {
	o.Recent = false
	o.AgeMinutes = nil
	if o.TempObTime == nil {
		return
	}
	age := now.Sub(*o.TempObTime).Minutes()
	o.AgeMinutes = &age
	o.Recent = age <= window.Minutes()
}

// HasRecentTemp reports whether the row carries a temperature that is recent.
func (o StationObservation) HasRecentTemp() bool {
	return o.TempC != nil && o.Recent
}

// Plottable reports whether the row can be drawn on the chart: recent with
// both temperature and elevation.
func (o StationObservation) Plottable() bool {
	return o.Recent && o.TempC != nil && o.ElevationM != nil
}

// Clone returns a deep copy so merge steps never alias another row's values.
func (o StationObservation) Clone() StationObservation {
	c := o
	c.ElevationM = cloneFloat(o.ElevationM)
	c.TempC = cloneFloat(o.TempC)
	c.DewpointC = cloneFloat(o.DewpointC)
	c.TempObTime = cloneTime(o.TempObTime)
	c.WindDirDeg = cloneFloat(o.WindDirDeg)
	c.WindSpeedMPS = cloneFloat(o.WindSpeedMPS)
	c.WindGustMPS = cloneFloat(o.WindGustMPS)
	c.WindObTime = cloneTime(o.WindObTime)
	c.AgeMinutes = cloneFloat(o.AgeMinutes)
	return c
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Time returns a pointer to t normalised to UTC.
func Time(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
