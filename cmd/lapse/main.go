package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/sb-lapse-etl/internal/adapter/cwop"
	"github.com/couchcryptid/sb-lapse-etl/internal/adapter/httpfetch"
	kafkaadapter "github.com/couchcryptid/sb-lapse-etl/internal/adapter/kafka"
	"github.com/couchcryptid/sb-lapse-etl/internal/adapter/madis"
	"github.com/couchcryptid/sb-lapse-etl/internal/adapter/rass"
	"github.com/couchcryptid/sb-lapse-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/sb-lapse-etl/internal/chart"
	"github.com/couchcryptid/sb-lapse-etl/internal/config"
	"github.com/couchcryptid/sb-lapse-etl/internal/observability"
	"github.com/couchcryptid/sb-lapse-etl/internal/pipeline"
	"github.com/couchcryptid/sb-lapse-etl/internal/reconcile"
	"github.com/couchcryptid/sb-lapse-etl/internal/state"
)

const metricsJob = "sb_lapse"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	runID := uuid.NewString()
	logger := observability.NewLogger(os.Stderr, cfg, runID)
	metrics := observability.NewMetrics()
	logger.Info("job configured", "stations", len(cfg.Stations), "zone", cfg.ZoneName(), "output_dir", cfg.OutputDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feeds := httpfetch.NewFeedClients(cfg)

	profiles := rass.NewLoader(feeds.Rass, rass.Options{
		BaseURL:     cfg.RassBaseURL,
		ListRetries: cfg.RassListRetries,
		FileRetries: cfg.RassFileRetries,
		Candidates:  cfg.RassCandidates,
		RetryDelay:  cfg.RetryDelay,
		CachePath:   filepath.Join(cfg.OutputDir, rass.CacheFile),
	}, logger)

	engine := reconcile.NewEngine(
		madis.NewClient(feeds.Madis, cfg.MadisBaseURL, logger),
		cwop.NewClient(feeds.Cwop, cfg.CwopBaseURL, cfg.CwopElevations, logger),
		cfg.Stations,
		reconcile.Options{Workers: cfg.WorkerCount, RecentWindow: cfg.RecentWindow, LastGoodGrace: cfg.LastGoodGrace},
		logger,
		metrics,
	)

	store := state.NewStore(feeds.State, cfg.Stations, state.Options{
		Dir:        cfg.OutputDir,
		StateURL:   cfg.DeployedStateURL,
		HistoryURL: cfg.DeployedHistoryURL,
		Retention:  cfg.HistoryRetention,
	}, logger)

	builder := chart.Builder{
		Roster:       cfg.Stations,
		TitleStation: cfg.TitleStation,
		Zone:         cfg.DisplayZone,
		RecentWindow: cfg.RecentWindow,
	}

	job := pipeline.New(profiles, engine, store, builder, cfg.OutputDir, logger, metrics)

	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkaadapter.NewWriter(cfg, logger)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		job.AddSink("kafka", writer)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	}
	if cfg.ArchivePath != "" {
		archive, err := sqlite.Open(cfg.ArchivePath)
		if err != nil {
			logger.Warn("run archive disabled", "path", cfg.ArchivePath, "error", err)
			metrics.SinkErrors.WithLabelValues("sqlite").Inc()
		} else {
			defer archive.Close()
			job.AddSink("sqlite", archive)
		}
	}

	report, runErr := job.Run(ctx, runID)
	if runErr == nil {
		if err := pipeline.WriteStatus(os.Stdout, report); err != nil {
			logger.Error("write status failed", "error", err)
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Flush(flushCtx, cfg.MetricsTextfile, cfg.PushgatewayURL, metricsJob); err != nil {
		logger.Warn("metrics flush failed", "error", err)
	}

	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		return 1
	}
	return 0
}
