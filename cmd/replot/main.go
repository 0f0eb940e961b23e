// Command replot re-renders the charts of every snapshot retained in the
// local history document and rewrites the document.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/couchcryptid/sb-lapse-etl/internal/chart"
	"github.com/couchcryptid/sb-lapse-etl/internal/config"
	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
	"github.com/couchcryptid/sb-lapse-etl/internal/observability"
	"github.com/couchcryptid/sb-lapse-etl/internal/state"
)

func main() {
	force := flag.Bool("force", false, "re-render charts that already exist")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(os.Stderr, cfg, "replot")

	store := state.NewStore(nil, cfg.Stations, state.Options{Dir: cfg.OutputDir, Retention: cfg.HistoryRetention}, logger)
	builder := chart.Builder{
		Roster:       cfg.Stations,
		TitleStation: cfg.TitleStation,
		Zone:         cfg.DisplayZone,
		RecentWindow: cfg.RecentWindow,
	}
	render := func(s domain.Snapshot) (string, string, error) {
		pair, err := builder.BuildSnapshot(s)
		if err != nil {
			return "", "", err
		}
		return pair.Metric, pair.Imperial, nil
	}

	history, err := store.LoadLocalHistory()
	if err != nil {
		logger.Error("failed to read history", "error", err)
		os.Exit(1)
	}

	if *force {
		for i := range history {
			if err := store.Rebuild(&history[i], render); err != nil {
				logger.Warn("snapshot chart rebuild skipped", "run_at", domain.FormatUTC(history[i].RunAt), "error", err)
			}
		}
	} else {
		history = store.RebuildMissing(history, render)
	}

	if err := store.WriteHistory(history, domain.Now()); err != nil {
		logger.Error("failed to write history", "error", err)
		os.Exit(1)
	}
	if err := store.Cleanup(history); err != nil {
		logger.Warn("snapshot cleanup incomplete", "error", err)
	}
	logger.Info("replot complete", "snapshots", len(history), "force", *force)
}
