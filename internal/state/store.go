// Package state owns every persisted document: the last-good station state,
// the rolling snapshot history and the per-snapshot chart files. It is the
// sole writer of those files.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

// Output file names, relative to the output directory.
const (
	StateFile   = "station_state.json"
	HistoryFile = "station_history.json"
	SnapshotDir = "snapshots"

	snapshotStampLayout = "20060102T1504Z"
)

// Fetcher performs a single GET and returns the body text.
type Fetcher interface {
	Get(ctx context.Context, url string) (string, error)
}

// SnapshotRenderer re-renders a snapshot's two charts.
type SnapshotRenderer func(s domain.Snapshot) (metricSVG, imperialSVG string, err error)

// Options configures a Store.
type Options struct {
	Dir        string
	StateURL   string
	HistoryURL string
	Retention  time.Duration
}

// Store reads previously published state and writes this run's documents.
type Store struct {
	http   Fetcher
	roster domain.Roster
	opts   Options
	logger *slog.Logger
}

// NewStore creates a state store. A nil fetcher reads local files only.
func NewStore(f Fetcher, roster domain.Roster, opts Options, logger *slog.Logger) *Store {
	return &Store{http: f, roster: roster, opts: opts, logger: logger}
}

// LoadLastGood returns the per-station fallback rows: the state document
// (published URL first, then the local file), else the stations of the newest
// retained snapshot.
func (s *Store) LoadLastGood(ctx context.Context) map[string]domain.StationObservation {
	for _, text := range s.sources(ctx, s.opts.StateURL, StateFile) {
		if rows := ParseState(text, s.roster); len(rows) > 0 {
			return rows
		}
	}

	history := s.LoadHistory(ctx)
	for i := len(history) - 1; i >= 0; i-- {
		if len(history[i].Stations) == 0 {
			continue
		}
		out := make(map[string]domain.StationObservation, len(history[i].Stations))
		for _, row := range history[i].Stations {
			out[row.ID] = row
		}
		s.logger.Info("last-good state taken from history", "run_at", domain.FormatUTC(history[i].RunAt))
		return out
	}
	return map[string]domain.StationObservation{}
}

// LoadHistory returns the retained snapshots, published URL first, then the
// local file. Snapshots come back sorted by run time.
func (s *Store) LoadHistory(ctx context.Context) []domain.Snapshot {
	for _, text := range s.sources(ctx, s.opts.HistoryURL, HistoryFile) {
		if snaps := ParseHistory(text, s.roster); len(snaps) > 0 {
			sortSnapshots(snaps)
			return snaps
		}
	}
	return nil
}

// LoadLocalHistory reads only the on-disk history document.
func (s *Store) LoadLocalHistory() ([]domain.Snapshot, error) {
	data, err := os.ReadFile(s.path(HistoryFile))
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	snaps := ParseHistory(string(data), s.roster)
	sortSnapshots(snaps)
	return snaps, nil
}

// sources returns the remote body then the local file, skipping any that
// cannot be read.
func (s *Store) sources(ctx context.Context, url, file string) []string {
	var out []string
	if url != "" && s.http != nil {
		body, err := s.http.Get(ctx, url)
		if err != nil {
			s.logger.Warn("published document unavailable", "url", url, "error", err)
		} else {
			out = append(out, body)
		}
	}
	if data, err := os.ReadFile(s.path(file)); err == nil {
		out = append(out, string(data))
	}
	return out
}

// WriteState writes the state document for the next run.
func (s *Store) WriteState(rows []domain.StationObservation, now time.Time) error {
	doc := stateDocument{GeneratedAt: domain.FormatUTC(now), Stations: stationsPayload(rows)}
	return s.writeJSON(StateFile, doc)
}

// WriteCharts stores a run's two charts under the snapshot directory and
// returns their output-relative paths.
func (s *Store) WriteCharts(runAt time.Time, metricSVG, imperialSVG string) (domain.ChartRefs, error) {
	stamp := runAt.UTC().Format(snapshotStampLayout)
	refs := domain.ChartRefs{
		MetricSVG:   path.Join(SnapshotDir, stamp+"_metric.svg"),
		ImperialSVG: path.Join(SnapshotDir, stamp+"_imperial.svg"),
	}
	if err := os.MkdirAll(s.path(SnapshotDir), 0o755); err != nil {
		return domain.ChartRefs{}, fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(s.path(refs.MetricSVG), []byte(metricSVG), 0o644); err != nil {
		return domain.ChartRefs{}, fmt.Errorf("write metric chart: %w", err)
	}
	if err := os.WriteFile(s.path(refs.ImperialSVG), []byte(imperialSVG), 0o644); err != nil {
		return domain.ChartRefs{}, fmt.Errorf("write imperial chart: %w", err)
	}
	return refs, nil
}

// Append adds snap to history, keeps one entry per run time (the later
// write wins), drops entries older than retention before now, and returns
// the result sorted by run time.
func Append(history []domain.Snapshot, snap domain.Snapshot, now time.Time, retention time.Duration) []domain.Snapshot {
	cutoff := now.Add(-retention)
	byRun := make(map[string]domain.Snapshot, len(history)+1)
	for _, h := range append(append([]domain.Snapshot(nil), history...), snap) {
		h.RunAt = h.RunAt.UTC().Truncate(time.Second)
		if h.RunAt.Before(cutoff) {
			continue
		}
		byRun[domain.FormatUTC(h.RunAt)] = h
	}

	out := make([]domain.Snapshot, 0, len(byRun))
	for _, h := range byRun {
		out = append(out, h)
	}
	sortSnapshots(out)
	return out
}

// RebuildMissing re-renders any snapshot whose chart files are not on disk.
// Snapshots that cannot be rendered keep their references unchanged.
func (s *Store) RebuildMissing(history []domain.Snapshot, render SnapshotRenderer) []domain.Snapshot {
	for i, snap := range history {
		if s.exists(snap.Charts.MetricSVG) && s.exists(snap.Charts.ImperialSVG) {
			continue
		}
		if err := s.Rebuild(&history[i], render); err != nil {
			s.logger.Warn("snapshot chart rebuild skipped", "run_at", domain.FormatUTC(snap.RunAt), "error", err)
		}
	}
	return history
}

// Rebuild re-renders one snapshot's charts and updates its references.
func (s *Store) Rebuild(snap *domain.Snapshot, render SnapshotRenderer) error {
	metric, imperial, err := render(*snap)
	if err != nil {
		return err
	}
	refs, err := s.WriteCharts(snap.RunAt, metric, imperial)
	if err != nil {
		return err
	}
	snap.Charts = refs
	return nil
}

// WriteHistory writes the history document.
func (s *Store) WriteHistory(history []domain.Snapshot, now time.Time) error {
	doc := historyDocument{
		GeneratedAt:    domain.FormatUTC(now),
		RetentionHours: int(s.opts.Retention.Hours()),
		SnapshotCount:  len(history),
		Snapshots:      make([]snapshotPayload, 0, len(history)),
	}
	for _, snap := range history {
		doc.Snapshots = append(doc.Snapshots, toSnapshotPayload(snap))
	}
	return s.writeJSON(HistoryFile, doc)
}

// Cleanup deletes snapshot charts no retained snapshot references.
func (s *Store) Cleanup(history []domain.Snapshot) error {
	keep := make(map[string]bool)
	for _, snap := range history {
		for _, ref := range []string{snap.Charts.MetricSVG, snap.Charts.ImperialSVG} {
			if strings.HasPrefix(ref, SnapshotDir+"/") {
				keep[ref] = true
			}
		}
	}

	matches, err := filepath.Glob(filepath.Join(s.path(SnapshotDir), "*.svg"))
	if err != nil {
		return fmt.Errorf("list snapshot charts: %w", err)
	}
	var errs []error
	for _, file := range matches {
		rel := path.Join(SnapshotDir, filepath.Base(file))
		if keep[rel] {
			continue
		}
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publish records one run: its charts, the appended and pruned history with
// any missing charts rebuilt, and the cleanup of unreferenced charts.
func (s *Store) Publish(ctx context.Context, snap domain.Snapshot, metricSVG, imperialSVG string, now time.Time, render SnapshotRenderer) ([]domain.Snapshot, error) {
	refs, err := s.WriteCharts(snap.RunAt, metricSVG, imperialSVG)
	if err != nil {
		return nil, err
	}
	snap.Charts = refs

	history := Append(s.LoadHistory(ctx), snap, now, s.opts.Retention)
	history = s.RebuildMissing(history, render)

	if err := s.WriteHistory(history, now); err != nil {
		return nil, err
	}
	if err := s.Cleanup(history); err != nil {
		s.logger.Warn("snapshot cleanup incomplete", "error", err)
	}
	return history, nil
}

func (s *Store) writeJSON(name string, v any) error {
	data, err := encode(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := os.MkdirAll(s.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(s.path(name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *Store) path(rel string) string {
	return filepath.Join(s.opts.Dir, filepath.FromSlash(rel))
}

func (s *Store) exists(rel string) bool {
	if rel == "" {
		return false
	}
	_, err := os.Stat(s.path(rel))
	return err == nil
}

func sortSnapshots(snaps []domain.Snapshot) {
	sort.SliceStable(snaps, func(i, j int) bool { return snaps[i].RunAt.Before(snaps[j].RunAt) })
}
