// Package rass locates, retrieves and parses the newest RASS virtual
// temperature report, falling back to the last locally cached report.
package rass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

var (
	// ErrProfileUnavailable means every live and cached source failed.
	ErrProfileUnavailable = errors.New("unable to load RASS data")
	// ErrNoListing means a directory listing had no matching entries.
	ErrNoListing = errors.New("no matching listing entries")
)

// CacheFile is the default name of the last good raw report.
const CacheFile = "sba_latest.01t"

const (
	listingLabel = "directory-listing"
	maxCauses    = 4
)

var (
	yearPattern = regexp.MustCompile(`href="(20\d{2})/"`)
	dayPattern  = regexp.MustCompile(`href="(\d{3})/"`)
	filePattern = regexp.MustCompile(`href="(sba\d{5}\.\d{2}t)"`)
)

// Fetcher performs a GET with bounded fixed-delay retries.
type Fetcher interface {
	GetWithRetry(ctx context.Context, url string, attempts int, delay time.Duration) (string, error)
}

// Options configures discovery and retrieval.
type Options struct {
	BaseURL     string
	ListRetries int
	FileRetries int
	Candidates  int
	RetryDelay  time.Duration
	// CachePath is where the last good raw report is kept.
	CachePath string
}

// Listing is the result of directory discovery.
type Listing struct {
	Year  string
	Day   string
	Files []string
}

// Result is the profile a run will use and how it was obtained.
type Result struct {
	File     string
	Source   domain.ProfileSource
	Profile  domain.RassProfile
	Failures []AttemptResult
}

// Loader discovers and loads the newest profile.
type Loader struct {
	http   Fetcher
	opts   Options
	logger *slog.Logger
}

// NewLoader creates a profile loader.
func NewLoader(f Fetcher, opts Options, logger *slog.Logger) *Loader {
	if !strings.HasSuffix(opts.BaseURL, "/") {
		opts.BaseURL += "/"
	}
	return &Loader{http: f, opts: opts, logger: logger}
}

// Load walks the retrieval chain: each discovered candidate newest first,
// then the cached raw report.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	var (
		chain    Chain
		failures []AttemptResult
	)

	listing, err := l.Discover(ctx)
	if err != nil {
		outcome := OutcomeNetworkError
		if errors.Is(err, ErrNoListing) {
			outcome = OutcomeParseError
		}
		failures = append(failures, AttemptResult{Label: listingLabel, Outcome: outcome, Err: err})
		l.logger.Warn("rass discovery failed", "error", err)
	} else {
		for _, name := range listing.Files {
			chain = append(chain, l.liveAttempt(listing, name))
		}
	}

	if _, statErr := os.Stat(l.opts.CachePath); statErr == nil {
		chain = append(chain, l.cachedAttempt())
	}

	res, chainFailures, ok := chain.Run(ctx)
	failures = append(failures, chainFailures...)
	if !ok {
		return Result{Failures: failures}, aggregate(failures)
	}

	l.logger.Info("rass profile loaded", "file", res.Label, "source", res.Source, "points", len(res.Profile.Resampled))
	return Result{File: res.Label, Source: res.Source, Profile: res.Profile, Failures: failures}, nil
}

// Discover finds the newest year, the newest day within it, and up to
// Candidates report filenames in that day, newest first.
func (l *Loader) Discover(ctx context.Context) (Listing, error) {
	root, err := l.list(ctx, l.opts.BaseURL)
	if err != nil {
		return Listing{}, err
	}
	year, ok := maxNumber(yearPattern, root)
	if !ok {
		return Listing{}, fmt.Errorf("year directories: %w", ErrNoListing)
	}

	yearURL := fmt.Sprintf("%s%d/", l.opts.BaseURL, year)
	yearHTML, err := l.list(ctx, yearURL)
	if err != nil {
		return Listing{}, err
	}
	day, ok := maxNumber(dayPattern, yearHTML)
	if !ok {
		return Listing{}, fmt.Errorf("day directories: %w", ErrNoListing)
	}

	dayURL := fmt.Sprintf("%s%03d/", yearURL, day)
	dayHTML, err := l.list(ctx, dayURL)
	if err != nil {
		return Listing{}, err
	}
	files := newestFiles(dayHTML, l.opts.Candidates)
	if len(files) == 0 {
		return Listing{}, fmt.Errorf("report files: %w", ErrNoListing)
	}

	return Listing{Year: strconv.Itoa(year), Day: fmt.Sprintf("%03d", day), Files: files}, nil
}

func (l *Loader) list(ctx context.Context, url string) (string, error) {
	body, err := l.http.GetWithRetry(ctx, url, l.opts.ListRetries, l.opts.RetryDelay)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", url, err)
	}
	return body, nil
}

func (l *Loader) liveAttempt(listing Listing, name string) Attempt {
	url := fmt.Sprintf("%s%s/%s/%s", l.opts.BaseURL, listing.Year, listing.Day, name)
	return func(ctx context.Context) AttemptResult {
		raw, err := l.http.GetWithRetry(ctx, url, l.opts.FileRetries, l.opts.RetryDelay)
		if err != nil {
			l.logger.Warn("rass fetch failed", "file", name, "error", err)
			return AttemptResult{Label: name, Outcome: OutcomeNetworkError, Err: err}
		}
		profile, err := domain.ParseSounding(raw)
		if err != nil {
			l.logger.Warn("rass parse failed", "file", name, "error", err)
			return AttemptResult{Label: name, Outcome: OutcomeParseError, Err: err}
		}
		if err := l.writeCache(raw); err != nil {
			l.logger.Warn("rass cache write failed", "path", l.opts.CachePath, "error", err)
		}
		return AttemptResult{Label: name, Outcome: OutcomeOK, Source: domain.SourceLive, Profile: profile}
	}
}

func (l *Loader) cachedAttempt() Attempt {
	label := filepath.Base(l.opts.CachePath)
	return func(context.Context) AttemptResult {
		data, err := os.ReadFile(l.opts.CachePath)
		if err != nil {
			return AttemptResult{Label: label, Outcome: OutcomeNetworkError, Err: err}
		}
		profile, err := domain.ParseSounding(string(data))
		if err != nil {
			l.logger.Warn("cached rass parse failed", "path", l.opts.CachePath, "error", err)
			return AttemptResult{Label: label, Outcome: OutcomeParseError, Err: err}
		}
		return AttemptResult{Label: label, Outcome: OutcomeOK, Source: domain.SourceCached, Profile: profile}
	}
}

func (l *Loader) writeCache(raw string) error {
	if dir := filepath.Dir(l.opts.CachePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(l.opts.CachePath, []byte(raw), 0o644)
}

// aggregate builds the run-fatal error from the last few failure causes.
func aggregate(failures []AttemptResult) error {
	if len(failures) == 0 {
		return fmt.Errorf("%w (unknown)", ErrProfileUnavailable)
	}
	if len(failures) > maxCauses {
		failures = failures[len(failures)-maxCauses:]
	}
	causes := make([]string, len(failures))
	for i, f := range failures {
		causes[i] = fmt.Sprintf("%s: %v", f.Label, f.Err)
	}
	return fmt.Errorf("%w (%s)", ErrProfileUnavailable, strings.Join(causes, " | "))
}

func maxNumber(re *regexp.Regexp, html string) (int, bool) {
	best, found := 0, false
	for _, m := range re.FindAllStringSubmatch(html, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if !found || n > best {
			best, found = n, true
		}
	}
	return best, found
}

func newestFiles(html string, limit int) []string {
	seen := make(map[string]bool)
	var files []string
	for _, m := range filePattern.FindAllStringSubmatch(html, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			files = append(files, m[1])
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	return files
}
