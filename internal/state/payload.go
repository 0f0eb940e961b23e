package state

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

// stationPayload is the persisted form of a row. Derived recency is not
// stored. Fields are declared in key order so documents diff cleanly.
type stationPayload struct {
	DewC        *float64 `json:"dew_c"`
	ElevM       *float64 `json:"elev_m"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Provider    *string  `json:"provider"`
	TempC       *float64 `json:"temp_c"`
	TempObTime  *string  `json:"temp_ob_time"`
	WindDir     *float64 `json:"wind_dir"`
	WindGustMPS *float64 `json:"wind_gust_mps"`
	WindObTime  *string  `json:"wind_ob_time"`
	WindSpdMPS  *float64 `json:"wind_spd_mps"`
}

type stateDocument struct {
	GeneratedAt string                    `json:"generated_at"`
	Stations    map[string]stationPayload `json:"stations"`
}

type chartsPayload struct {
	ImperialSVG string `json:"imperial_svg"`
	MetricSVG   string `json:"metric_svg"`
}

type profilePayload struct {
	File      string                `json:"file"`
	ObTimeUTC *string               `json:"ob_time_utc"`
	Points    []domain.ProfilePoint `json:"points_100m_c"`
	Source    string                `json:"source"`
}

type snapshotPayload struct {
	Charts   chartsPayload             `json:"charts"`
	Rass     profilePayload            `json:"rass"`
	RunAt    string                    `json:"run_at"`
	Stations map[string]stationPayload `json:"stations"`
}

type historyDocument struct {
	GeneratedAt    string            `json:"generated_at"`
	RetentionHours int               `json:"retention_hours"`
	SnapshotCount  int               `json:"snapshot_count"`
	Snapshots      []snapshotPayload `json:"snapshots"`
}

func toPayload(row domain.StationObservation) stationPayload {
	p := stationPayload{
		ID:          row.ID,
		Name:        row.Name,
		ElevM:       row.ElevationM,
		TempC:       row.TempC,
		DewC:        row.DewpointC,
		TempObTime:  timeString(row.TempObTime),
		WindDir:     row.WindDirDeg,
		WindSpdMPS:  row.WindSpeedMPS,
		WindGustMPS: row.WindGustMPS,
		WindObTime:  timeString(row.WindObTime),
	}
	if row.Provider != "" {
		provider := row.Provider
		p.Provider = &provider
	}
	return p
}

func stationsPayload(rows []domain.StationObservation) map[string]stationPayload {
	out := make(map[string]stationPayload, len(rows))
	for _, row := range rows {
		out[row.ID] = toPayload(row)
	}
	return out
}

func toSnapshotPayload(s domain.Snapshot) snapshotPayload {
	points := s.Profile.Points
	if points == nil {
		points = []domain.ProfilePoint{}
	}
	return snapshotPayload{
		Charts: chartsPayload{MetricSVG: s.Charts.MetricSVG, ImperialSVG: s.Charts.ImperialSVG},
		Rass: profilePayload{
			File:      s.Profile.File,
			ObTimeUTC: timeString(s.Profile.ObTime),
			Points:    points,
			Source:    string(s.Profile.Source),
		},
		RunAt:    domain.FormatUTC(s.RunAt),
		Stations: stationsPayload(s.Stations),
	}
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := domain.FormatUTC(*t)
	return &s
}

// Reading is lenient: documents come from earlier releases and from the
// network, so bad fields are dropped instead of failing the whole document.

type looseStation struct {
	ID          looseString `json:"id"`
	Name        looseString `json:"name"`
	Provider    looseString `json:"provider"`
	ElevM       looseFloat  `json:"elev_m"`
	TempC       looseFloat  `json:"temp_c"`
	DewC        looseFloat  `json:"dew_c"`
	TempObTime  looseString `json:"temp_ob_time"`
	WindDir     looseFloat  `json:"wind_dir"`
	WindSpdMPS  looseFloat  `json:"wind_spd_mps"`
	WindGustMPS looseFloat  `json:"wind_gust_mps"`
	WindObTime  looseString `json:"wind_ob_time"`
}

// looseFloat accepts a JSON number or a numeric string. Anything else is absent.
type looseFloat struct{ v *float64 }

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	f.v = nil
	text := strings.TrimSpace(string(data))
	if text == "null" {
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		text = strings.TrimSpace(s)
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		f.v = &v
	}
	return nil
}

// looseString accepts a JSON string or a bare scalar rendered as text.
type looseString struct{ s string }

func (l *looseString) UnmarshalJSON(data []byte) error {
	l.s = ""
	text := strings.TrimSpace(string(data))
	switch {
	case text == "null" || text == "false":
	case strings.HasPrefix(text, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			l.s = strings.TrimSpace(s)
		}
	case strings.HasPrefix(text, "{") || strings.HasPrefix(text, "["):
	default:
		l.s = text
	}
	return nil
}

func (l looseStation) row(station domain.Station) domain.StationObservation {
	row := domain.BlankObservation(station)
	if l.Name.s != "" {
		row.Name = l.Name.s
	}
	row.Provider = l.Provider.s
	row.ElevationM = l.ElevM.v
	row.TempC = l.TempC.v
	row.DewpointC = l.DewC.v
	row.TempObTime = domain.ParseUTCPtr(l.TempObTime.s)
	row.WindDirDeg = l.WindDir.v
	row.WindSpeedMPS = l.WindSpdMPS.v
	row.WindGustMPS = l.WindGustMPS.v
	row.WindObTime = domain.ParseUTCPtr(l.WindObTime.s)
	return row
}

// parseStations decodes a "stations" value: either an object keyed by id or
// a list of objects carrying "id". Ids off the roster are ignored.
func parseStations(raw json.RawMessage, roster domain.Roster) map[string]domain.StationObservation {
	out := make(map[string]domain.StationObservation)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return out
	}

	add := func(id string, item json.RawMessage) {
		i := roster.Index(id)
		if i < 0 {
			return
		}
		var ls looseStation
		if err := json.Unmarshal(item, &ls); err != nil {
			return
		}
		out[id] = ls.row(roster[i])
	}

	switch raw[0] {
	case '{':
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byID); err != nil {
			return out
		}
		for id, item := range byID {
			add(id, item)
		}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return out
		}
		for _, item := range items {
			var probe struct {
				ID looseString `json:"id"`
			}
			if err := json.Unmarshal(item, &probe); err != nil {
				continue
			}
			add(probe.ID.s, item)
		}
	}
	return out
}

// ParseState decodes a state document into last-good rows keyed by id.
// Malformed documents yield an empty map.
func ParseState(text string, roster domain.Roster) map[string]domain.StationObservation {
	var doc struct {
		Stations json.RawMessage `json:"stations"`
	}
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return map[string]domain.StationObservation{}
	}
	return parseStations(doc.Stations, roster)
}

type looseSnapshot struct {
	RunAt       looseString     `json:"run_at"`
	GeneratedAt looseString     `json:"generated_at"`
	Charts      json.RawMessage `json:"charts"`
	Rass        json.RawMessage `json:"rass"`
	Stations    json.RawMessage `json:"stations"`
}

// ParseHistory decodes a history document: a bare list of snapshots or an
// object with "snapshots". Entries without a valid run time are dropped.
// Stations are returned in roster order, blank where missing.
func ParseHistory(text string, roster domain.Roster) []domain.Snapshot {
	data := bytes.TrimSpace([]byte(text))
	if len(data) == 0 {
		return nil
	}

	var items []json.RawMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil
		}
	} else {
		var doc struct {
			Snapshots []json.RawMessage `json:"snapshots"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil
		}
		items = doc.Snapshots
	}

	var out []domain.Snapshot
	for _, item := range items {
		var ls looseSnapshot
		if err := json.Unmarshal(item, &ls); err != nil {
			continue
		}
		runAtRaw := ls.RunAt.s
		if runAtRaw == "" {
			runAtRaw = ls.GeneratedAt.s
		}
		runAt, ok := domain.ParseUTC(runAtRaw)
		if !ok {
			continue
		}

		snap := domain.Snapshot{
			RunAt:   runAt.Truncate(time.Second),
			Charts:  parseCharts(ls.Charts),
			Profile: parseProfile(ls.Rass),
		}
		byID := parseStations(ls.Stations, roster)
		if len(byID) > 0 {
			snap.Stations = make([]domain.StationObservation, 0, len(roster))
			for _, station := range roster {
				row, ok := byID[station.ID]
				if !ok {
					row = domain.BlankObservation(station)
				}
				snap.Stations = append(snap.Stations, row)
			}
		}
		out = append(out, snap)
	}
	return out
}

func parseCharts(raw json.RawMessage) domain.ChartRefs {
	var c struct {
		MetricSVG   looseString `json:"metric_svg"`
		ImperialSVG looseString `json:"imperial_svg"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &c) != nil {
		return domain.ChartRefs{}
	}
	return domain.ChartRefs{MetricSVG: c.MetricSVG.s, ImperialSVG: c.ImperialSVG.s}
}

func parseProfile(raw json.RawMessage) domain.SnapshotProfile {
	var p struct {
		File      looseString       `json:"file"`
		ObTimeUTC looseString       `json:"ob_time_utc"`
		Points    []json.RawMessage `json:"points_100m_c"`
		Source    looseString       `json:"source"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		return domain.SnapshotProfile{}
	}
	profile := domain.SnapshotProfile{
		File:   p.File.s,
		ObTime: domain.ParseUTCPtr(p.ObTimeUTC.s),
		Source: domain.ProfileSource(p.Source.s),
	}
	for _, item := range p.Points {
		var pt domain.ProfilePoint
		if err := json.Unmarshal(item, &pt); err != nil {
			continue
		}
		profile.Points = append(profile.Points, pt)
	}
	return profile
}

// encode renders a document with two-space indentation and a trailing newline.
func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
