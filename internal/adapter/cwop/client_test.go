package cwop

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sb-lapse-etl/internal/adapter/httpfetch"
	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

var laCumbre = domain.Station{ID: "KC6OYN", Name: "La Cumbre"}

const sampleReports = `<?xml version="1.0"?>
<station call="KC6OYN">
  <weatherReport>
    <timeReceived>20250214181012</timeReceived>
    <temperature>50</temperature>
    <humidity>80</humidity>
    <windDirection>90</windDirection>
    <windSpeed>3</windSpeed>
  </weatherReport>
  <weatherReport>
    <timeReceived>20250214183547</timeReceived>
    <temperature>59</temperature>
    <humidity>50</humidity>
    <windDirection>300</windDirection>
    <windSpeed>10</windSpeed>
    <windGust>20</windGust>
  </weatherReport>
  <weatherReport>
    <timeReceived>garbage</timeReceived>
    <temperature>99</temperature>
  </weatherReport>
</station>`

func newTestClient(baseURL string, f Fetcher) *Client {
	return NewClient(f, baseURL, map[string]float64{"KC6OYN": 1201}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParse_NewestReport(t *testing.T) {
	row, err := Parse(domain.BlankObservation(laCumbre), sampleReports)
	require.NoError(t, err)

	require.NotNil(t, row.TempC)
	assert.InDelta(t, 15.0, *row.TempC, 1e-9)
	assert.Equal(t, time.Date(2025, 2, 14, 18, 35, 0, 0, time.UTC), *row.TempObTime, "report time is kept to the minute")

	require.NotNil(t, row.DewpointC)
	want, ok := domain.DewpointFromRH(15.0, 50)
	require.True(t, ok)
	assert.InDelta(t, want, *row.DewpointC, 1e-9)

	assert.InDelta(t, 300.0, *row.WindDirDeg, 1e-9)
	assert.InDelta(t, 10/domain.MPSToMPH, *row.WindSpeedMPS, 1e-9)
	assert.InDelta(t, 20/domain.MPSToMPH, *row.WindGustMPS, 1e-9)
	assert.Equal(t, *row.TempObTime, *row.WindObTime)
	assert.Equal(t, Provider, row.Provider)
}

func TestParse_NoStationData(t *testing.T) {
	base := domain.BlankObservation(laCumbre)
	row, err := Parse(base, "No weather data found for this call")
	require.NoError(t, err)
	assert.Equal(t, base, row)
}

func TestParse_ReportWithoutTemperature(t *testing.T) {
	raw := `<station><weatherReport><timeReceived>20250214183500</timeReceived><windSpeed>5</windSpeed></weatherReport></station>`
	row, err := Parse(domain.BlankObservation(laCumbre), raw)
	require.NoError(t, err)
	assert.Nil(t, row.TempC)
	assert.Empty(t, row.Provider, "a row without temperature time carries no provider")
	require.NotNil(t, row.WindSpeedMPS)
}

func TestParse_HumidityOutOfRange(t *testing.T) {
	raw := `<station><weatherReport><timeReceived>20250214183500</timeReceived><temperature>60</temperature><humidity>0</humidity></weatherReport></station>`
	row, err := Parse(domain.BlankObservation(laCumbre), raw)
	require.NoError(t, err)
	require.NotNil(t, row.TempC)
	assert.Nil(t, row.DewpointC)
}

func TestParse_NonFiniteValuesIgnored(t *testing.T) {
	raw := `<station><weatherReport><timeReceived>20250214183500</timeReceived><temperature>NaN</temperature><humidity>Inf</humidity><windSpeed>-Inf</windSpeed><windDirection>90</windDirection></weatherReport></station>`
	row, err := Parse(domain.BlankObservation(laCumbre), raw)
	require.NoError(t, err)
	assert.Nil(t, row.TempC)
	assert.Nil(t, row.DewpointC)
	assert.Nil(t, row.WindSpeedMPS)
	require.NotNil(t, row.WindDirDeg)
	assert.InDelta(t, 90.0, *row.WindDirDeg, 1e-9)
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "KC6OYN", r.URL.Query().Get("call"))
		assert.Equal(t, "2", r.URL.Query().Get("last"))
		_, _ = w.Write([]byte(sampleReports))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, httpfetch.New(httpfetch.Config{Name: "cwop", Timeout: 5 * time.Second}))
	row, err := c.Fetch(context.Background(), laCumbre)
	require.NoError(t, err)
	require.NotNil(t, row.ElevationM)
	assert.InDelta(t, 1201.0, *row.ElevationM, 1e-9, "configured elevation is pre-filled")
	assert.Equal(t, Provider, row.Provider)
}

func TestClient_FetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, httpfetch.New(httpfetch.Config{Name: "cwop", Timeout: 5 * time.Second}))
	row, err := c.Fetch(context.Background(), laCumbre)
	require.ErrorIs(t, err, httpfetch.ErrStatus)
	assert.Nil(t, row.TempC)
	require.NotNil(t, row.ElevationM)
}
