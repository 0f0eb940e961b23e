// Package cwop reads the secondary crowd-sourced station feed (findU XML).
package cwop

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

// Provider labels rows built from this feed.
const Provider = "CWOP-findU"

const receivedLayout = "20060102150405"

// Fetcher performs a single GET and returns the body text.
type Fetcher interface {
	Get(ctx context.Context, url string) (string, error)
}

// Client queries the latest weather reports for one call sign.
type Client struct {
	http       Fetcher
	baseURL    string
	elevations map[string]float64
	logger     *slog.Logger
}

// NewClient creates a CWOP feed client. elevations pre-fills rows for call
// signs whose height the feed does not report.
func NewClient(f Fetcher, baseURL string, elevations map[string]float64, logger *slog.Logger) *Client {
	return &Client{http: f, baseURL: baseURL, elevations: elevations, logger: logger}
}

// Fetch returns the station's most recent report. A response without any
// station data is a blank row, not an error.
func (c *Client) Fetch(ctx context.Context, station domain.Station) (domain.StationObservation, error) {
	params := url.Values{"call": {station.ID}, "last": {"2"}}
	raw, err := c.http.Get(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return c.blank(station), fmt.Errorf("fetch cwop %s: %w", station.ID, err)
	}
	row, err := Parse(c.blank(station), raw)
	if err != nil {
		return c.blank(station), fmt.Errorf("parse cwop %s: %w", station.ID, err)
	}
	return row, nil
}

func (c *Client) blank(station domain.Station) domain.StationObservation {
	row := domain.BlankObservation(station)
	if elev, ok := c.elevations[station.ID]; ok {
		row.ElevationM = domain.Float(elev)
	}
	return row
}

type document struct {
	Reports []report `xml:"weatherReport"`
}

type report struct {
	TimeReceived  string `xml:"timeReceived"`
	Temperature   string `xml:"temperature"`
	Humidity      string `xml:"humidity"`
	WindDirection string `xml:"windDirection"`
	WindSpeed     string `xml:"windSpeed"`
	WindGust      string `xml:"windGust"`
}

// Parse fills base from the newest report in raw. Temperature is reported in
// Fahrenheit and wind in mph; dewpoint is derived from relative humidity.
func Parse(base domain.StationObservation, raw string) (domain.StationObservation, error) {
	row := base.Clone()
	if !strings.Contains(raw, "<station") {
		return row, nil
	}

	var doc document
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return row, fmt.Errorf("decode xml: %w", err)
	}

	var (
		latest   *report
		latestAt time.Time
	)
	for i := range doc.Reports {
		ts := strings.TrimSpace(doc.Reports[i].TimeReceived)
		if ts == "" {
			continue
		}
		at, err := time.ParseInLocation(receivedLayout, ts, time.UTC)
		if err != nil {
			continue
		}
		if latest == nil || at.After(latestAt) {
			latest, latestAt = &doc.Reports[i], at
		}
	}
	if latest == nil {
		return row, nil
	}

	obTime := latestAt.Truncate(time.Minute)

	if tempF, ok := parseFloat(latest.Temperature); ok {
		row.TempC = domain.Float(domain.FToC(tempF))
		row.TempObTime = domain.Time(obTime)
	}
	if rh, ok := parseFloat(latest.Humidity); ok && row.TempC != nil {
		if dew, ok := domain.DewpointFromRH(*row.TempC, rh); ok {
			row.DewpointC = domain.Float(dew)
		}
	}
	if dir, ok := parseFloat(latest.WindDirection); ok {
		row.WindDirDeg = domain.Float(dir)
	}
	if spd, ok := parseFloat(latest.WindSpeed); ok {
		row.WindSpeedMPS = domain.Float(domain.MPHToMPS(spd))
		row.WindObTime = domain.Time(obTime)
	}
	if gust, ok := parseFloat(latest.WindGust); ok {
		row.WindGustMPS = domain.Float(domain.MPHToMPS(gust))
		row.WindObTime = domain.Time(obTime)
	}
	if row.TempObTime != nil {
		row.Provider = Provider
	}
	return row, nil
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
