package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "sb_lapse"

// Metrics holds the Prometheus collectors for one batch run. Collectors live
// on a dedicated registry that is exported once at the end of the run.
type Metrics struct {
	Registry *prometheus.Registry

	StationFetches  *prometheus.CounterVec // labels: feed={madis,cwop}, outcome={ok,empty,error}
	FallbackApplied *prometheus.CounterVec // labels: stage={secondary,last_good}
	ProfileAttempts *prometheus.CounterVec // labels: outcome={ok,network_error,parse_error}
	ProfileSource   *prometheus.GaugeVec   // labels: source={live,cached}
	StationsRecent  prometheus.Gauge
	RunDuration     prometheus.Gauge
	LastSuccess     prometheus.Gauge
	SinkErrors      *prometheus.CounterVec // labels: sink={kafka,sqlite,state,history}
}

// NewMetrics creates all job metrics registered on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		StationFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_fetch_total",
			Help:      "Station feed requests by feed and outcome.",
		}, []string{"feed", "outcome"}),
		FallbackApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_applied_total",
			Help:      "Station rows changed by a fallback stage.",
		}, []string{"stage"}),
		ProfileAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_attempts_total",
			Help:      "Profile retrieval attempts by outcome.",
		}, []string{"outcome"}),
		ProfileSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profile_source",
			Help:      "1 for the source the run's profile came from.",
		}, []string{"source"}),
		StationsRecent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stations_recent",
			Help:      "Stations plotted as recent in the last run.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Non-fatal output sink failures.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.StationFetches,
		m.FallbackApplied,
		m.ProfileAttempts,
		m.ProfileSource,
		m.StationsRecent,
		m.RunDuration,
		m.LastSuccess,
		m.SinkErrors,
	)
	return m
}

// Flush exports the registry: a node_exporter textfile when textfile is set,
// and a Pushgateway push when pushURL is set. Both are attempted.
func (m *Metrics) Flush(ctx context.Context, textfile, pushURL, job string) error {
	var errs []error
	if textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, m.Registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	if pushURL != "" {
		if err := push.New(pushURL, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("push metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}
