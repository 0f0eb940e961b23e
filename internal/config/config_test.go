package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GITHUB_REPOSITORY", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ".", cfg.OutputDir)
	require.Len(t, cfg.Stations, 8)
	assert.Equal(t, domain.Station{ID: "KC6OYN", Name: "La Cumbre"}, cfg.Stations[0])
	assert.Equal(t, domain.Station{ID: "KSBA", Name: "Airport"}, cfg.Stations[7])
	assert.Equal(t, "SE068", cfg.TitleStation)
	assert.Equal(t, map[string]float64{"KC6OYN": 1201}, cfg.CwopElevations)

	assert.Equal(t, defaultRassBaseURL, cfg.RassBaseURL)
	assert.Equal(t, defaultMadisBaseURL, cfg.MadisBaseURL)
	assert.Equal(t, defaultCwopBaseURL, cfg.CwopBaseURL)
	assert.Equal(t, defaultStateURL, cfg.DeployedStateURL)
	assert.Equal(t, defaultHistoryURL, cfg.DeployedHistoryURL)
	assert.Equal(t, defaultUserAgent, cfg.UserAgent)

	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 60*time.Minute, cfg.RecentWindow)
	assert.Equal(t, 90*time.Minute, cfg.LastGoodGrace)
	assert.Equal(t, 48*time.Hour, cfg.HistoryRetention)
	assert.Equal(t, 3, cfg.RassListRetries)
	assert.Equal(t, 2, cfg.RassFileRetries)
	assert.Equal(t, 5, cfg.RassCandidates)
	assert.Equal(t, 1500*time.Millisecond, cfg.RetryDelay)
	assert.Equal(t, 25*time.Second, cfg.RassTimeout)
	assert.Equal(t, 22*time.Second, cfg.MadisTimeout)
	assert.Equal(t, 18*time.Second, cfg.CwopTimeout)
	assert.Equal(t, 15*time.Second, cfg.StateTimeout)
	assert.Equal(t, uint32(5), cfg.BreakerFailures)
	assert.Equal(t, "PST", cfg.ZoneName())

	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "station-observations", cfg.KafkaTopic)
	assert.Empty(t, cfg.ArchivePath)
	assert.Empty(t, cfg.MetricsTextfile)
	assert.Empty(t, cfg.PushgatewayURL)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("OUTPUT_DIR", "/tmp/out")
	t.Setenv("STATIONS", "AAA:Alpha, BBB")
	t.Setenv("TITLE_STATION", "BBB")
	t.Setenv("CWOP_ELEVATIONS", "AAA:100.5,BBB:20")
	t.Setenv("RASS_BASE_URL", "http://rass.local/sba")
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("RECENT_WINDOW", "30m")
	t.Setenv("RETRY_DELAY", "10ms")
	t.Setenv("BREAKER_FAILURES", "0")
	t.Setenv("DISPLAY_TZ_NAME", "PDT")
	t.Setenv("DISPLAY_TZ_OFFSET", "-7h")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "obs")
	t.Setenv("ARCHIVE_PATH", "/tmp/archive.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/tmp/out", cfg.OutputDir)
	assert.Equal(t, domain.Roster{{ID: "AAA", Name: "Alpha"}, {ID: "BBB", Name: "BBB"}}, cfg.Stations)
	assert.Equal(t, "BBB", cfg.TitleStation)
	assert.Equal(t, map[string]float64{"AAA": 100.5, "BBB": 20}, cfg.CwopElevations)
	assert.Equal(t, "http://rass.local/sba/", cfg.RassBaseURL)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, 30*time.Minute, cfg.RecentWindow)
	assert.Equal(t, 10*time.Millisecond, cfg.RetryDelay)
	assert.Zero(t, cfg.BreakerFailures)
	assert.Equal(t, "PDT", cfg.ZoneName())
	_, offset := time.Date(2025, 2, 14, 0, 0, 0, 0, cfg.DisplayZone).Zone()
	assert.Equal(t, -7*3600, offset)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "obs", cfg.KafkaTopic)
	assert.Equal(t, "/tmp/archive.db", cfg.ArchivePath)
}

func TestLoad_DeployedURLs(t *testing.T) {
	t.Run("derived from repository", func(t *testing.T) {
		t.Setenv("GITHUB_REPOSITORY", "someone/lapse")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "https://someone.github.io/lapse/station_state.json", cfg.DeployedStateURL)
		assert.Equal(t, "https://someone.github.io/lapse/station_history.json", cfg.DeployedHistoryURL)
	})

	t.Run("explicit override wins", func(t *testing.T) {
		t.Setenv("GITHUB_REPOSITORY", "someone/lapse")
		t.Setenv("SB_DEPLOYED_STATE_URL", "http://state.local/s.json")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "http://state.local/s.json", cfg.DeployedStateURL)
		assert.Equal(t, "https://someone.github.io/lapse/station_history.json", cfg.DeployedHistoryURL)
	})

	t.Run("malformed repository falls back", func(t *testing.T) {
		t.Setenv("GITHUB_REPOSITORY", "no-slash")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, defaultStateURL, cfg.DeployedStateURL)
	})
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"WORKER_COUNT", "0"},
		{"WORKER_COUNT", "four"},
		{"RASS_CANDIDATES", "-1"},
		{"BREAKER_FAILURES", "-2"},
		{"RECENT_WINDOW", "soon"},
		{"RETRY_DELAY", "-1s"},
		{"MADIS_TIMEOUT", "0s"},
		{"DISPLAY_TZ_OFFSET", "eight"},
		{"STATIONS", "AAA,AAA"},
		{"CWOP_ELEVATIONS", "KC6OYN"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_TitleStationMustBeOnRoster(t *testing.T) {
	t.Setenv("TITLE_STATION", "NOPE")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TITLE_STATION")
}

func TestParseRoster(t *testing.T) {
	roster, err := ParseRoster(" KSBA:Airport , ,SE068:VOR")
	require.NoError(t, err)
	assert.Equal(t, []string{"KSBA", "SE068"}, roster.IDs())

	_, err = ParseRoster(" , ")
	require.Error(t, err)

	_, err = ParseRoster(":Nameless")
	require.Error(t, err)
}

func TestFeedBreakerFailures(t *testing.T) {
	roster := make(domain.Roster, 8)
	tests := []struct {
		name     string
		failures uint32
		want     uint32
	}{
		{name: "disabled", failures: 0, want: 0},
		{name: "raised to roster size", failures: 5, want: 8},
		{name: "threshold above roster", failures: 12, want: 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{BreakerFailures: tt.failures, Stations: roster}
			assert.Equal(t, tt.want, cfg.FeedBreakerFailures())
		})
	}
}
