package state

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

var (
	refNow = time.Date(2025, 2, 14, 19, 0, 0, 0, time.UTC)
	roster = domain.Roster{{ID: "SE068", Name: "VOR"}, {ID: "KSBA", Name: "Airport"}}
)

// mapFetcher serves bodies keyed by URL; unknown URLs fail.
type mapFetcher map[string]string

func (m mapFetcher) Get(_ context.Context, url string) (string, error) {
	if body, ok := m[url]; ok {
		return body, nil
	}
	return "", errors.New("not found")
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestStore(t *testing.T, f Fetcher) *Store {
	t.Helper()
	return NewStore(f, roster, Options{
		Dir:        t.TempDir(),
		StateURL:   "http://pages/state.json",
		HistoryURL: "http://pages/history.json",
		Retention:  48 * time.Hour,
	}, discard())
}

func vor(temp float64) domain.StationObservation {
	return domain.StationObservation{
		ID:         "SE068",
		Name:       "VOR",
		ElevationM: domain.Float(600),
		TempC:      domain.Float(temp),
		TempObTime: domain.Time(refNow.Add(-10 * time.Minute)),
		Provider:   "SBCAPCD",
	}
}

func snapshotAt(runAt time.Time, temp float64) domain.Snapshot {
	return domain.Snapshot{
		RunAt: runAt,
		Profile: domain.SnapshotProfile{
			File:   "sba25045.18t",
			Points: []domain.ProfilePoint{{AltitudeM: 0, TempC: 15}, {AltitudeM: 100, TempC: 14.02}},
			Source: domain.SourceLive,
		},
		Stations: []domain.StationObservation{vor(temp), domain.BlankObservation(roster[1])},
	}
}

func TestParseState_ObjectAndList(t *testing.T) {
	object := `{"generated_at":"2025-02-14T18:00:00Z","stations":{
		"SE068":{"id":"SE068","name":"VOR","temp_c":"12.5","elev_m":600,"temp_ob_time":"2025-02-14T18:35","provider":"SBCAPCD","wind_dir":null},
		"NOPE":{"temp_c":1}}}`
	rows := ParseState(object, roster)
	require.Len(t, rows, 1)
	row := rows["SE068"]
	assert.Equal(t, 12.5, *row.TempC, "numeric strings are accepted")
	assert.Equal(t, 600.0, *row.ElevationM)
	assert.Equal(t, time.Date(2025, 2, 14, 18, 35, 0, 0, time.UTC), *row.TempObTime)
	assert.Equal(t, "SBCAPCD", row.Provider)
	assert.Nil(t, row.WindDirDeg)

	list := `{"stations":[{"id":"KSBA","temp_c":10,"temp_ob_time":"garbage","dew_c":"n/a"},"junk"]}`
	rows = ParseState(list, roster)
	require.Len(t, rows, 1)
	assert.Equal(t, "Airport", rows["KSBA"].Name, "missing name falls back to the roster")
	assert.Nil(t, rows["KSBA"].TempObTime, "invalid timestamps are dropped")
	assert.Nil(t, rows["KSBA"].DewpointC)

	assert.Empty(t, ParseState("not json", roster))
	assert.Empty(t, ParseState(`{"stations":"nope"}`, roster))
}

func TestParseHistory(t *testing.T) {
	text := `[
		{"generated_at":"2025-02-14T17:00:00+00:00","rass":{"points_100m_c":[[0,15.0],[100,"x"],[200,13.0]],"source":"live"},
		 "stations":{"SE068":{"temp_c":11}}},
		{"run_at":"bogus"},
		{"run_at":"2025-02-14T16:00:00Z","charts":{"metric_svg":"snapshots/a.svg","imperial_svg":"snapshots/b.svg"}}
	]`
	snaps := ParseHistory(text, roster)
	require.Len(t, snaps, 2)

	assert.Equal(t, time.Date(2025, 2, 14, 17, 0, 0, 0, time.UTC), snaps[0].RunAt)
	assert.Len(t, snaps[0].Profile.Points, 2, "unparseable points are skipped")
	require.Len(t, snaps[0].Stations, 2)
	assert.Equal(t, 11.0, *snaps[0].Stations[0].TempC)
	assert.Equal(t, domain.BlankObservation(roster[1]), snaps[0].Stations[1])

	assert.Equal(t, domain.ChartRefs{MetricSVG: "snapshots/a.svg", ImperialSVG: "snapshots/b.svg"}, snaps[1].Charts)

	wrapped := ParseHistory(`{"retention_hours":48,"snapshots":[{"run_at":"2025-02-14T16:00:00Z"}]}`, roster)
	assert.Len(t, wrapped, 1)
	assert.Nil(t, ParseHistory(`{"snapshots":{}}`, roster))
}

func TestAppend_DedupByRunTime(t *testing.T) {
	first := snapshotAt(refNow, 10)
	second := snapshotAt(refNow.Add(300*time.Millisecond), 20)

	out := Append([]domain.Snapshot{first}, second, refNow, 48*time.Hour)
	require.Len(t, out, 1)
	assert.Equal(t, 20.0, *out[0].Stations[0].TempC, "the later write wins")
	assert.Equal(t, refNow, out[0].RunAt)
}

func TestAppend_PrunesAndSorts(t *testing.T) {
	history := []domain.Snapshot{
		snapshotAt(refNow.Add(-time.Hour), 1),
		snapshotAt(refNow.Add(-48*time.Hour), 2),
		snapshotAt(refNow.Add(-48*time.Hour-time.Second), 3),
		snapshotAt(refNow.Add(-2*time.Hour), 4),
	}
	out := Append(history, snapshotAt(refNow, 5), refNow, 48*time.Hour)
	require.Len(t, out, 4)
	for i := 1; i < len(out); i++ {
		assert.True(t, out[i-1].RunAt.Before(out[i].RunAt))
	}
	assert.Equal(t, refNow.Add(-48*time.Hour), out[0].RunAt, "an entry exactly at the cutoff is kept")
}

func TestLoadLastGood_PrefersPublishedState(t *testing.T) {
	s := newTestStore(t, mapFetcher{"http://pages/state.json": `{"stations":{"SE068":{"temp_c":9}}}`})
	require.NoError(t, os.WriteFile(filepath.Join(s.opts.Dir, StateFile), []byte(`{"stations":{"SE068":{"temp_c":1}}}`), 0o644))

	rows := s.LoadLastGood(context.Background())
	assert.Equal(t, 9.0, *rows["SE068"].TempC)
}

func TestLoadLastGood_FallsBackToLocalThenHistory(t *testing.T) {
	s := newTestStore(t, mapFetcher{})
	require.NoError(t, os.WriteFile(filepath.Join(s.opts.Dir, StateFile), []byte(`{"stations":{"SE068":{"temp_c":1}}}`), 0o644))
	assert.Equal(t, 1.0, *s.LoadLastGood(context.Background())["SE068"].TempC)

	h := newTestStore(t, mapFetcher{"http://pages/history.json": `[
		{"run_at":"2025-02-14T18:00:00Z","stations":{"SE068":{"temp_c":7}}},
		{"run_at":"2025-02-14T17:00:00Z","stations":{"SE068":{"temp_c":3}}}]`})
	rows := h.LoadLastGood(context.Background())
	assert.Equal(t, 7.0, *rows["SE068"].TempC, "the newest snapshot is used")

	empty := newTestStore(t, nil)
	assert.Empty(t, empty.LoadLastGood(context.Background()))
}

func TestWriteState_Format(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.WriteState([]domain.StationObservation{vor(12), domain.BlankObservation(roster[1])}, refNow))

	data, err := os.ReadFile(filepath.Join(s.opts.Dir, StateFile))
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasSuffix(text, "}\n"))
	assert.Contains(t, text, "\n  \"generated_at\": \"2025-02-14T19:00:00Z\"")
	assert.Contains(t, text, `"temp_ob_time": "2025-02-14T18:50:00Z"`)
	assert.Contains(t, text, `"provider": null`)
	assert.NotContains(t, text, "recent")

	rows := ParseState(text, roster)
	assert.Equal(t, 12.0, *rows["SE068"].TempC)
	assert.Nil(t, rows["KSBA"].TempC)
}

func TestPublish_RebuildsMissingAndCleansUp(t *testing.T) {
	s := newTestStore(t, mapFetcher{})
	dir := s.opts.Dir

	old := snapshotAt(refNow.Add(-time.Hour), 8)
	old.Charts = domain.ChartRefs{MetricSVG: "snapshots/20250214T1800Z_metric.svg", ImperialSVG: "snapshots/20250214T1800Z_imperial.svg"}
	require.NoError(t, s.WriteHistory([]domain.Snapshot{old, snapshotAt(refNow.Add(-72*time.Hour), 1)}, refNow.Add(-time.Hour)))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, SnapshotDir), 0o755))
	stray := filepath.Join(dir, SnapshotDir, "20250210T0000Z_metric.svg")
	require.NoError(t, os.WriteFile(stray, []byte("<svg/>"), 0o644))

	var rendered []time.Time
	render := func(snap domain.Snapshot) (string, string, error) {
		rendered = append(rendered, snap.RunAt)
		return "<svg>m</svg>", "<svg>i</svg>", nil
	}

	history, err := s.Publish(context.Background(), snapshotAt(refNow, 12), "<svg>now-m</svg>", "<svg>now-i</svg>", refNow, render)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []time.Time{refNow.Add(-time.Hour)}, rendered, "only the snapshot with missing charts is rebuilt")

	current := history[1]
	assert.Equal(t, "snapshots/20250214T1900Z_metric.svg", current.Charts.MetricSVG)
	data, err := os.ReadFile(filepath.Join(dir, current.Charts.MetricSVG))
	require.NoError(t, err)
	assert.Equal(t, "<svg>now-m</svg>", string(data))

	_, err = os.Stat(filepath.Join(dir, history[0].Charts.ImperialSVG))
	require.NoError(t, err)
	_, err = os.Stat(stray)
	assert.True(t, os.IsNotExist(err), "unreferenced charts are deleted")

	var doc historyDocument
	raw, err := os.ReadFile(filepath.Join(dir, HistoryFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 48, doc.RetentionHours)
	assert.Equal(t, 2, doc.SnapshotCount)
	assert.Equal(t, "2025-02-14T19:00:00Z", doc.Snapshots[1].RunAt)
	assert.Equal(t, "live", doc.Snapshots[1].Rass.Source)
}

func TestRebuildMissing_RenderFailureKeepsReferences(t *testing.T) {
	s := newTestStore(t, nil)
	snap := snapshotAt(refNow, 1)
	snap.Charts = domain.ChartRefs{MetricSVG: "snapshots/x_metric.svg", ImperialSVG: "snapshots/x_imperial.svg"}

	out := s.RebuildMissing([]domain.Snapshot{snap}, func(domain.Snapshot) (string, string, error) {
		return "", "", errors.New("too few points")
	})
	assert.Equal(t, snap.Charts, out[0].Charts)
}
