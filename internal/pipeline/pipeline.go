// Package pipeline runs one batch: profile retrieval, station reconciliation,
// chart rendering, and every output and sink.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/sb-lapse-etl/internal/adapter/rass"
	"github.com/couchcryptid/sb-lapse-etl/internal/chart"
	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
	"github.com/couchcryptid/sb-lapse-etl/internal/observability"
	"github.com/couchcryptid/sb-lapse-etl/internal/state"
)

// Output file names, relative to the output directory.
const (
	ChartMetricFile   = "sba_wwtemp_chart_metric.svg"
	ChartImperialFile = "sba_wwtemp_chart_imperial.svg"
	ChartLegacyFile   = "sba_wwtemp_chart.svg"
	StationsCSVFile   = "madis_recent60_stations.csv"
)

// ProfileLoader produces the run's vertical profile.
type ProfileLoader interface {
	Load(ctx context.Context) (rass.Result, error)
}

// Reconciler produces one best-available row per roster station.
type Reconciler interface {
	Run(ctx context.Context, now time.Time, lastGood map[string]domain.StationObservation) []domain.StationObservation
}

// StateStore reads the previous run's state and records this one.
type StateStore interface {
	LoadLastGood(ctx context.Context) map[string]domain.StationObservation
	WriteState(rows []domain.StationObservation, now time.Time) error
	Publish(ctx context.Context, snap domain.Snapshot, metricSVG, imperialSVG string, now time.Time, render state.SnapshotRenderer) ([]domain.Snapshot, error)
}

// RunSink receives every completed run. Sink failures never fail the run.
type RunSink interface {
	WriteRun(ctx context.Context, run domain.RunRecord) error
}

// Report is what a completed run produced.
type Report struct {
	Run      domain.RunRecord
	Profile  rass.Result
	Charts   chart.Pair
	History  int
	Duration time.Duration
}

type namedSink struct {
	name string
	sink RunSink
}

// Job wires the stages of a single run.
type Job struct {
	profiles ProfileLoader
	stations Reconciler
	store    StateStore
	charts   chart.Builder
	outDir   string
	sinks    []namedSink
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Job writing its primary outputs under outDir.
func New(profiles ProfileLoader, stations Reconciler, store StateStore, charts chart.Builder, outDir string, logger *slog.Logger, metrics *observability.Metrics) *Job {
	return &Job{
		profiles: profiles,
		stations: stations,
		store:    store,
		charts:   charts,
		outDir:   outDir,
		logger:   logger,
		metrics:  metrics,
	}
}

// AddSink registers an optional run sink under name.
func (j *Job) AddSink(name string, s RunSink) {
	j.sinks = append(j.sinks, namedSink{name: name, sink: s})
}

// Run executes one batch. Only profile exhaustion and unwritable primary
// outputs are errors; every other failure degrades the run and is logged.
func (j *Job) Run(ctx context.Context, runID string) (Report, error) {
	now := domain.Now()
	j.logger.Info("run started", "run_at", domain.FormatUTC(now))

	profile, err := j.loadProfile(ctx)
	if err != nil {
		return Report{}, err
	}

	lastGood := j.store.LoadLastGood(ctx)
	rows := j.stations.Run(ctx, now, lastGood)

	pair, err := j.charts.Build(profile.Profile.Resampled, profile.Profile.ObTime, rows)
	if err != nil {
		return Report{}, fmt.Errorf("build charts: %w", err)
	}
	if err := j.writePrimary(pair, rows); err != nil {
		return Report{}, err
	}

	report := Report{
		Run: domain.RunRecord{
			ID:            runID,
			At:            now,
			ProfileFile:   profile.File,
			ProfileSource: profile.Source,
			Rows:          rows,
		},
		Profile: profile,
		Charts:  pair,
	}
	report.History = j.publishState(ctx, report)
	j.deliver(ctx, report.Run)

	report.Duration = domain.Now().Sub(now)
	j.metrics.StationsRecent.Set(float64(report.Run.PlottableCount()))
	j.metrics.RunDuration.Set(report.Duration.Seconds())
	j.metrics.LastSuccess.Set(float64(now.Unix()))
	j.logger.Info("run complete",
		"rass_file", profile.File,
		"rass_source", profile.Source,
		"recent_stations", report.Run.PlottableCount(),
		"snapshots", report.History,
	)
	return report, nil
}

func (j *Job) loadProfile(ctx context.Context) (rass.Result, error) {
	res, err := j.profiles.Load(ctx)
	for _, f := range res.Failures {
		j.metrics.ProfileAttempts.WithLabelValues(f.Outcome.String()).Inc()
	}
	if err != nil {
		return rass.Result{}, fmt.Errorf("load profile: %w", err)
	}
	j.metrics.ProfileAttempts.WithLabelValues(rass.OutcomeOK.String()).Inc()
	j.metrics.ProfileSource.WithLabelValues(string(res.Source)).Set(1)
	return res, nil
}

// writePrimary writes the chart files and the station table.
func (j *Job) writePrimary(pair chart.Pair, rows []domain.StationObservation) error {
	if err := os.MkdirAll(j.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	files := []struct {
		name string
		body string
	}{
		{ChartMetricFile, pair.Metric},
		{ChartImperialFile, pair.Imperial},
		{ChartLegacyFile, pair.Metric},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(j.outDir, f.name), []byte(f.body), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	out, err := os.Create(filepath.Join(j.outDir, StationsCSVFile))
	if err != nil {
		return fmt.Errorf("create %s: %w", StationsCSVFile, err)
	}
	if err := WriteCSV(out, rows); err != nil {
		_ = out.Close()
		return fmt.Errorf("write %s: %w", StationsCSVFile, err)
	}
	return out.Close()
}

// publishState writes the state document and appends the run to history.
// It returns the number of retained snapshots.
func (j *Job) publishState(ctx context.Context, r Report) int {
	if err := j.store.WriteState(r.Run.Rows, r.Run.At); err != nil {
		j.logger.Error("write station state failed", "error", err)
		j.metrics.SinkErrors.WithLabelValues("state").Inc()
	}

	snap := domain.Snapshot{
		RunAt: r.Run.At,
		Profile: domain.SnapshotProfile{
			File:   r.Profile.File,
			ObTime: r.Profile.Profile.ObTime,
			Points: r.Profile.Profile.Resampled,
			Source: r.Profile.Source,
		},
		Stations: r.Run.Rows,
	}
	history, err := j.store.Publish(ctx, snap, r.Charts.Metric, r.Charts.Imperial, r.Run.At, j.renderSnapshot)
	if err != nil {
		j.logger.Error("write station history failed", "error", err)
		j.metrics.SinkErrors.WithLabelValues("history").Inc()
		return 0
	}
	return len(history)
}

func (j *Job) renderSnapshot(s domain.Snapshot) (string, string, error) {
	pair, err := j.charts.BuildSnapshot(s)
	if err != nil {
		return "", "", err
	}
	return pair.Metric, pair.Imperial, nil
}

func (j *Job) deliver(ctx context.Context, run domain.RunRecord) {
	for _, s := range j.sinks {
		if err := s.sink.WriteRun(ctx, run); err != nil {
			j.logger.Warn("run sink failed", "sink", s.name, "error", err)
			j.metrics.SinkErrors.WithLabelValues(s.name).Inc()
			continue
		}
		j.logger.Debug("run delivered", "sink", s.name)
	}
}
