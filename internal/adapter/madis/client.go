// Package madis reads the primary station feed: the MADIS public XML
// directory service, one station per request.
package madis

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

// Variable codes requested from the feed.
const (
	varTemp     = "V-T"
	varDewpoint = "V-TD"
	varWindDir  = "V-DD"
	varWindSpd  = "V-FF"
	varWindGust = "V-FFGUST"
)

// Fetcher performs a single GET and returns the body text.
type Fetcher interface {
	Get(ctx context.Context, url string) (string, error)
}

// Client queries the last hour of readings for one station.
type Client struct {
	http    Fetcher
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a MADIS feed client.
func NewClient(f Fetcher, baseURL string, logger *slog.Logger) *Client {
	return &Client{http: f, baseURL: baseURL, logger: logger}
}

// Fetch returns the station's latest readings. On a network or parse error
// the error is returned and the caller degrades to a blank row.
func (c *Client) Fetch(ctx context.Context, station domain.Station) (domain.StationObservation, error) {
	raw, err := c.http.Get(ctx, c.stationURL(station.ID))
	if err != nil {
		return domain.BlankObservation(station), fmt.Errorf("fetch madis %s: %w", station.ID, err)
	}
	row, err := Parse(station, raw)
	if err != nil {
		return domain.BlankObservation(station), fmt.Errorf("parse madis %s: %w", station.ID, err)
	}
	c.logger.Debug("madis station fetched", "station", station.ID, "has_temp", row.TempC != nil)
	return row, nil
}

func (c *Client) stationURL(id string) string {
	params := url.Values{
		"time":       {"0"},
		"minbck":     {"-59"},
		"minfwd":     {"0"},
		"recwin":     {"3"},
		"timefilter": {"0"},
		"dfltrsel":   {"3"},
		"stasel":     {"1"},
		"stanam":     {id},
		"pvdrsel":    {"0"},
		"varsel":     {"2"},
		"qctype":     {"0"},
		"qcsel":      {"1"},
		"xml":        {"1"},
		"csvmiss":    {"0"},
	}
	return c.baseURL + "?" + params.Encode()
}

type document struct {
	Records []record `xml:"record"`
}

type record struct {
	Var      string `xml:"var,attr"`
	ObTime   string `xml:"ObTime,attr"`
	Value    string `xml:"data_value,attr"`
	Provider string `xml:"provider,attr"`
	Elev     string `xml:"elev,attr"`
}

type reading struct {
	at       time.Time
	value    float64
	provider string
}

// Parse builds a row from a feed response. For each variable the reading with
// the latest observation time wins, so variables may carry different times.
// Temperatures arrive in Kelvin and wind speeds in m/s.
func Parse(station domain.Station, raw string) (domain.StationObservation, error) {
	var doc document
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return domain.StationObservation{}, fmt.Errorf("decode xml: %w", err)
	}

	row := domain.BlankObservation(station)
	latest := make(map[string]reading)

	for _, rec := range doc.Records {
		switch rec.Var {
		case varTemp, varDewpoint, varWindDir, varWindSpd, varWindGust:
		default:
			continue
		}

		if row.ElevationM == nil && rec.Elev != "" {
			if elev, err := strconv.ParseFloat(strings.TrimSpace(rec.Elev), 64); err == nil {
				row.ElevationM = domain.Float(elev)
			}
		}

		if rec.ObTime == "" || rec.Value == "" {
			continue
		}
		at, ok := domain.ParseUTC(rec.ObTime)
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(rec.Value), 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		if prev, seen := latest[rec.Var]; !seen || at.After(prev.at) {
			latest[rec.Var] = reading{at: at, value: value, provider: rec.Provider}
		}
	}

	if r, ok := latest[varTemp]; ok {
		row.TempC = domain.Float(domain.KToC(r.value))
		row.TempObTime = domain.Time(r.at)
		row.Provider = r.provider
	}
	if r, ok := latest[varDewpoint]; ok {
		row.DewpointC = domain.Float(domain.KToC(r.value))
	}
	for _, code := range []string{varWindDir, varWindSpd, varWindGust} {
		r, ok := latest[code]
		if !ok {
			continue
		}
		switch code {
		case varWindDir:
			row.WindDirDeg = domain.Float(r.value)
		case varWindSpd:
			row.WindSpeedMPS = domain.Float(r.value)
		case varWindGust:
			row.WindGustMPS = domain.Float(r.value)
		}
		if row.WindObTime == nil || r.at.After(*row.WindObTime) {
			row.WindObTime = domain.Time(r.at)
		}
	}
	return row, nil
}
