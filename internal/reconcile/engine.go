// Package reconcile merges the primary feed, the secondary feed and the
// last-good cache into one best-available row per station.
package reconcile

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
	"github.com/couchcryptid/sb-lapse-etl/internal/observability"
)

// StationFetcher fetches one station's readings from a feed. On error the
// returned row is still usable as a blank placeholder.
type StationFetcher interface {
	Fetch(ctx context.Context, station domain.Station) (domain.StationObservation, error)
}

// Options tunes one reconciliation run.
type Options struct {
	Workers       int
	RecentWindow  time.Duration
	LastGoodGrace time.Duration
}

// Engine owns the station table for the duration of a run.
type Engine struct {
	primary   StationFetcher
	secondary StationFetcher
	roster    domain.Roster
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewEngine creates a reconciliation engine. secondary may be nil to skip
// the secondary stage.
func NewEngine(primary, secondary StationFetcher, roster domain.Roster, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = domain.DefaultRecentWindow
	}
	return &Engine{
		primary:   primary,
		secondary: secondary,
		roster:    roster,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run builds the station table: primary fetch, secondary fallback for rows
// without a recent temperature, then the last-good cache. Rows come back in
// roster order with recency computed against now.
func (e *Engine) Run(ctx context.Context, now time.Time, lastGood map[string]domain.StationObservation) []domain.StationObservation {
	rows := e.fetchAll(ctx, e.primary, "madis", e.roster)
	e.classify(rows, now)

	if e.secondary != nil {
		var targets []domain.Station
		for _, row := range rows {
			if NeedsSecondary(row) {
				targets = append(targets, domain.Station{ID: row.ID, Name: row.Name})
			}
		}
		if len(targets) > 0 {
			secondary := make(map[string]domain.StationObservation, len(targets))
			for _, row := range e.fetchAll(ctx, e.secondary, "cwop", targets) {
				secondary[row.ID] = row
			}
			for i, row := range rows {
				sec, ok := secondary[row.ID]
				if !ok {
					continue
				}
				if merged, changed := MergeSecondary(row, sec); changed {
					rows[i] = merged
					e.metrics.FallbackApplied.WithLabelValues("secondary").Inc()
					e.logger.Info("secondary feed adopted", "station", row.ID, "provider", merged.Provider)
				}
			}
			e.classify(rows, now)
		}
	}

	for i, row := range rows {
		cached, ok := lastGood[row.ID]
		if !ok {
			continue
		}
		merged, used := ApplyLastGood(row, cached, now, e.opts.LastGoodGrace)
		rows[i] = merged
		if used {
			e.metrics.FallbackApplied.WithLabelValues("last_good").Inc()
			e.logger.Info("last-good values adopted", "station", row.ID, "provider", merged.Provider)
		}
	}
	e.classify(rows, now)

	return rows
}

func (e *Engine) classify(rows []domain.StationObservation, now time.Time) {
	for i := range rows {
		rows[i].Classify(now, e.opts.RecentWindow)
	}
}

// fetchAll runs one fetch per station on a bounded pool and returns the rows
// in roster order regardless of completion order.
func (e *Engine) fetchAll(ctx context.Context, f StationFetcher, feed string, stations []domain.Station) []domain.StationObservation {
	results := make(chan domain.StationObservation, len(stations))

	g := new(errgroup.Group)
	g.SetLimit(e.opts.Workers)
	for _, station := range stations {
		g.Go(func() error {
			row, err := f.Fetch(ctx, station)
			switch {
			case err != nil:
				e.logger.Warn("station fetch failed", "feed", feed, "station", station.ID, "error", err)
				e.metrics.StationFetches.WithLabelValues(feed, "error").Inc()
			case row.TempC == nil:
				e.metrics.StationFetches.WithLabelValues(feed, "empty").Inc()
			default:
				e.metrics.StationFetches.WithLabelValues(feed, "ok").Inc()
			}
			if row.ID != station.ID {
				row = domain.BlankObservation(station)
			}
			results <- row
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	rows := make([]domain.StationObservation, 0, len(stations))
	for row := range results {
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return e.roster.Index(rows[i].ID) < e.roster.Index(rows[j].ID)
	})
	return rows
}
