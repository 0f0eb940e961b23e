package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sb-lapse-etl/internal/adapter/httpfetch"
	"github.com/couchcryptid/sb-lapse-etl/internal/adapter/madis"
	"github.com/couchcryptid/sb-lapse-etl/internal/config"
	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
	"github.com/couchcryptid/sb-lapse-etl/internal/observability"
)

var testRoster = domain.Roster{
	{ID: "KC6OYN", Name: "La Cumbre"},
	{ID: "SE068", Name: "VOR"},
	{ID: "SE234", Name: "AntFarm"},
	{ID: "MTIC1", Name: "Montecito"},
	{ID: "MPWC1", Name: "SM Pass"},
	{ID: "421SE", Name: "Parma"},
	{ID: "SE053", Name: "Romero Cyn"},
	{ID: "KSBA", Name: "Airport"},
}

// fakeFeed serves canned rows with random latency and tracks concurrency.
type fakeFeed struct {
	rows   map[string]domain.StationObservation
	errs   map[string]error
	mu     sync.Mutex
	called []string
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeFeed) Fetch(_ context.Context, s domain.Station) (domain.StationObservation, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)

	f.mu.Lock()
	f.called = append(f.called, s.ID)
	f.mu.Unlock()

	if err := f.errs[s.ID]; err != nil {
		return domain.BlankObservation(s), err
	}
	if row, ok := f.rows[s.ID]; ok {
		return row.Clone(), nil
	}
	return domain.BlankObservation(s), nil
}

func newTestEngine(primary, secondary StationFetcher) *Engine {
	return NewEngine(primary, secondary, testRoster, Options{
		Workers:       4,
		RecentWindow:  time.Hour,
		LastGoodGrace: 90 * time.Minute,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetrics())
}

func TestEngine_CanonicalOrderAndBoundedPool(t *testing.T) {
	primary := &fakeFeed{rows: map[string]domain.StationObservation{}}
	for _, s := range testRoster {
		row := fullRow(s.ID, 10)
		row.Name = s.Name
		primary.rows[s.ID] = row
	}

	e := newTestEngine(primary, &fakeFeed{})
	for range 5 {
		rows := e.Run(context.Background(), refNow, nil)
		require.Len(t, rows, len(testRoster))
		for i, row := range rows {
			assert.Equal(t, testRoster[i].ID, row.ID)
			assert.True(t, row.Recent)
		}
	}
	assert.LessOrEqual(t, primary.peak.Load(), int32(4))
}

func TestEngine_FetchFailureDegradesToBlankRow(t *testing.T) {
	primary := &fakeFeed{
		rows: map[string]domain.StationObservation{"KSBA": fullRow("KSBA", 10)},
		errs: map[string]error{"SE068": errors.New("timeout")},
	}
	e := newTestEngine(primary, nil)
	rows := e.Run(context.Background(), refNow, nil)

	require.Len(t, rows, len(testRoster))
	vor := rows[testRoster.Index("SE068")]
	assert.Equal(t, "VOR", vor.Name)
	assert.Nil(t, vor.TempC)
	assert.False(t, vor.Recent)
	assert.Nil(t, vor.AgeMinutes)
	assert.True(t, rows[testRoster.Index("KSBA")].Recent)
}

func TestEngine_FeedBreakerQueriesEveryStation(t *testing.T) {
	var (
		mu   sync.Mutex
		hits = map[string]int{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("stanam")
		mu.Lock()
		hits[id]++
		mu.Unlock()
		if id != "KSBA" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`<mesonet><record var="V-T" ObTime="2025-02-14T18:35" data_value="286.15" provider="NWS"/></mesonet>`))
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	feeds := httpfetch.NewFeedClients(&config.Config{
		BreakerFailures: 5,
		Stations:        testRoster,
		MadisTimeout:    5 * time.Second,
	})
	e := NewEngine(madis.NewClient(feeds.Madis, srv.URL, logger), nil, testRoster, Options{
		Workers:       1,
		RecentWindow:  time.Hour,
		LastGoodGrace: 90 * time.Minute,
	}, logger, observability.NewMetrics())

	rows := e.Run(context.Background(), refNow, nil)
	require.Len(t, rows, len(testRoster))

	mu.Lock()
	defer mu.Unlock()
	for _, s := range testRoster {
		assert.Equal(t, 1, hits[s.ID], s.ID)
	}
	ksba := rows[testRoster.Index("KSBA")]
	require.NotNil(t, ksba.TempC, "last station is fetched after every other station failed")
	assert.InDelta(t, 13.0, *ksba.TempC, 1e-9)
}

func TestEngine_SecondaryOnlyForQualifyingRows(t *testing.T) {
	primary := &fakeFeed{rows: map[string]domain.StationObservation{
		"KSBA":   fullRow("KSBA", 10),
		"SE068":  fullRow("SE068", 120),
		"KC6OYN": fullRow("KC6OYN", 10),
	}}
	secondary := &fakeFeed{rows: map[string]domain.StationObservation{
		"SE068":  secondaryRow("SE068"),
		"KC6OYN": secondaryRow("KC6OYN"),
	}}

	e := newTestEngine(primary, secondary)
	rows := e.Run(context.Background(), refNow, nil)

	assert.NotContains(t, secondary.called, "KSBA")
	assert.NotContains(t, secondary.called, "KC6OYN", "recent primary rows never hit the secondary feed")
	assert.Contains(t, secondary.called, "SE068")
	assert.Len(t, secondary.called, len(testRoster)-2)

	vor := rows[testRoster.Index("SE068")]
	assert.Equal(t, "CWOP-findU", vor.Provider)
	assert.Equal(t, 9.0, *vor.TempC)
	assert.True(t, vor.Recent, "recency is recomputed after the merge")
	assert.InDelta(t, 5.0, *vor.AgeMinutes, 1e-9)
}

func TestEngine_LastGoodFillsGaps(t *testing.T) {
	cached := secondaryRow("MTIC1")
	cached.Provider = "SBCAPCD"
	cached.TempObTime = minutesAgo(80)
	cached.WindObTime = minutesAgo(80)

	e := newTestEngine(&fakeFeed{}, &fakeFeed{})
	rows := e.Run(context.Background(), refNow, map[string]domain.StationObservation{"MTIC1": cached})

	row := rows[testRoster.Index("MTIC1")]
	require.NotNil(t, row.TempC)
	assert.Equal(t, "SBCAPCD (last-good)", row.Provider)
	require.NotNil(t, row.AgeMinutes)
	assert.InDelta(t, 80.0, *row.AgeMinutes, 1e-9)
	assert.False(t, row.Recent, "an 80 minute old cached reading is filled but not recent")
}
