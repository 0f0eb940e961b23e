package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

const (
	defaultStations = "KC6OYN:La Cumbre,SE068:VOR,SE234:AntFarm,MTIC1:Montecito," +
		"MPWC1:SM Pass,421SE:Parma,SE053:Romero Cyn,KSBA:Airport"

	defaultRassBaseURL  = "https://downloads.psl.noaa.gov/psd2/data/realtime/Radar449/WwTemp/sba/"
	defaultMadisBaseURL = "https://madis-data.ncep.noaa.gov/madisPublic/cgi-bin/madisXmlPublicDir"
	defaultCwopBaseURL  = "http://www.findu.com/cgi-bin/wxxml.cgi"

	defaultStateURL   = "https://jimmysaurusrex.github.io/sb-live-lapse/station_state.json"
	defaultHistoryURL = "https://jimmysaurusrex.github.io/sb-live-lapse/station_history.json"

	defaultUserAgent = "Mozilla/5.0 (compatible; sb-live-lapse/1.0)"
)

// Config holds all job settings, populated from environment variables.
// It is built once per run and never mutated afterwards.
type Config struct {
	LogLevel  string
	LogFormat string
	OutputDir string

	Stations       domain.Roster
	TitleStation   string
	CwopElevations map[string]float64

	RassBaseURL        string
	MadisBaseURL       string
	CwopBaseURL        string
	DeployedStateURL   string
	DeployedHistoryURL string
	UserAgent          string

	WorkerCount      int
	RecentWindow     time.Duration
	LastGoodGrace    time.Duration
	HistoryRetention time.Duration

	RassListRetries int
	RassFileRetries int
	RassCandidates  int
	RetryDelay      time.Duration

	RassTimeout  time.Duration
	MadisTimeout time.Duration
	CwopTimeout  time.Duration
	StateTimeout time.Duration

	BreakerFailures uint32

	DisplayZone *time.Location

	KafkaBrokers []string
	KafkaTopic   string

	ArchivePath     string
	MetricsTextfile string
	PushgatewayURL  string
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	roster, err := ParseRoster(sharedcfg.EnvOrDefault("STATIONS", defaultStations))
	if err != nil {
		return nil, fmt.Errorf("invalid STATIONS: %w", err)
	}
	elevations, err := ParseElevations(sharedcfg.EnvOrDefault("CWOP_ELEVATIONS", "KC6OYN:1201"))
	if err != nil {
		return nil, fmt.Errorf("invalid CWOP_ELEVATIONS: %w", err)
	}

	cfg := &Config{
		LogLevel:       sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:      sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		OutputDir:      sharedcfg.EnvOrDefault("OUTPUT_DIR", "."),
		Stations:       roster,
		TitleStation:   sharedcfg.EnvOrDefault("TITLE_STATION", "SE068"),
		CwopElevations: elevations,

		RassBaseURL:        ensureTrailingSlash(sharedcfg.EnvOrDefault("RASS_BASE_URL", defaultRassBaseURL)),
		MadisBaseURL:       sharedcfg.EnvOrDefault("MADIS_BASE_URL", defaultMadisBaseURL),
		CwopBaseURL:        sharedcfg.EnvOrDefault("CWOP_BASE_URL", defaultCwopBaseURL),
		DeployedStateURL:   deployedURL("SB_DEPLOYED_STATE_URL", "station_state.json", defaultStateURL),
		DeployedHistoryURL: deployedURL("SB_DEPLOYED_HISTORY_URL", "station_history.json", defaultHistoryURL),
		UserAgent:          sharedcfg.EnvOrDefault("HTTP_USER_AGENT", defaultUserAgent),

		KafkaBrokers: parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "station-observations"),

		ArchivePath:     os.Getenv("ARCHIVE_PATH"),
		MetricsTextfile: os.Getenv("METRICS_TEXTFILE"),
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
	}

	ints := []struct {
		key  string
		def  int
		min  int
		dest *int
	}{
		{"WORKER_COUNT", 4, 1, &cfg.WorkerCount},
		{"RASS_LIST_RETRIES", 3, 1, &cfg.RassListRetries},
		{"RASS_FILE_RETRIES", 2, 1, &cfg.RassFileRetries},
		{"RASS_CANDIDATES", 5, 1, &cfg.RassCandidates},
	}
	for _, f := range ints {
		if *f.dest, err = parseInt(f.key, f.def, f.min); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"RECENT_WINDOW", "60m", &cfg.RecentWindow},
		{"LAST_GOOD_GRACE", "90m", &cfg.LastGoodGrace},
		{"HISTORY_RETENTION", "48h", &cfg.HistoryRetention},
		{"RETRY_DELAY", "1.5s", &cfg.RetryDelay},
		{"RASS_TIMEOUT", "25s", &cfg.RassTimeout},
		{"MADIS_TIMEOUT", "22s", &cfg.MadisTimeout},
		{"CWOP_TIMEOUT", "18s", &cfg.CwopTimeout},
		{"STATE_TIMEOUT", "15s", &cfg.StateTimeout},
	}
	for _, f := range durations {
		if *f.dest, err = parseDuration(f.key, f.def); err != nil {
			return nil, err
		}
	}

	failures, err := parseInt("BREAKER_FAILURES", 5, 0)
	if err != nil {
		return nil, err
	}
	cfg.BreakerFailures = uint32(failures)

	zone, err := parseZone(sharedcfg.EnvOrDefault("DISPLAY_TZ_NAME", "PST"), sharedcfg.EnvOrDefault("DISPLAY_TZ_OFFSET", "-8h"))
	if err != nil {
		return nil, err
	}
	cfg.DisplayZone = zone

	if !roster.Contains(cfg.TitleStation) {
		return nil, fmt.Errorf("TITLE_STATION %q is not in STATIONS", cfg.TitleStation)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// FeedBreakerFailures is the breaker threshold for the per-station feeds.
// It is never below the roster size, so every station is queried even when
// the rest of the roster failed. Zero keeps the breaker disabled.
func (c *Config) FeedBreakerFailures() uint32 {
	if c.BreakerFailures == 0 {
		return 0
	}
	if n := uint32(len(c.Stations)); n > c.BreakerFailures {
		return n
	}
	return c.BreakerFailures
}

// ZoneName returns the display zone abbreviation used in chart labels.
func (c *Config) ZoneName() string {
	if c.DisplayZone == nil {
		return "UTC"
	}
	return c.DisplayZone.String()
}

// ParseRoster parses "ID:Name,ID:Name" into an ordered roster. A bare ID uses
// itself as the display name. Duplicate ids are rejected.
func ParseRoster(raw string) (domain.Roster, error) {
	var roster domain.Roster
	seen := make(map[string]bool)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, name, _ := strings.Cut(entry, ":")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id == "" {
			return nil, fmt.Errorf("empty station id in %q", entry)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate station id %q", id)
		}
		seen[id] = true
		if name == "" {
			name = id
		}
		roster = append(roster, domain.Station{ID: id, Name: name})
	}
	if len(roster) == 0 {
		return nil, errors.New("no stations configured")
	}
	return roster, nil
}

// ParseElevations parses "ID:meters,ID:meters".
func ParseElevations(raw string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, value, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("entry %q is not ID:meters", entry)
		}
		elev, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", entry, err)
		}
		out[strings.TrimSpace(id)] = elev
	}
	return out, nil
}

// deployedURL resolves a self-published document URL: an explicit override,
// else the GitHub Pages URL of GITHUB_REPOSITORY, else the built-in default.
func deployedURL(overrideKey, file, fallback string) string {
	if direct := os.Getenv(overrideKey); direct != "" {
		return direct
	}
	if owner, name, ok := strings.Cut(os.Getenv("GITHUB_REPOSITORY"), "/"); ok && owner != "" && name != "" {
		return fmt.Sprintf("https://%s.github.io/%s/%s", owner, name, file)
	}
	return fallback
}

func parseInt(key string, def, minimum int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < minimum {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parseZone(name, offset string) (*time.Location, error) {
	d, err := time.ParseDuration(offset)
	if err != nil {
		return nil, fmt.Errorf("invalid DISPLAY_TZ_OFFSET: %q", offset)
	}
	return time.FixedZone(name, int(d.Seconds())), nil
}

// parseBrokers treats an unset KAFKA_BROKERS as "publishing disabled".
func parseBrokers(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var brokers []string
	for _, b := range sharedcfg.ParseBrokers(raw) {
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func ensureTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
