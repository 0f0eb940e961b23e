package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/sb-lapse-etl/internal/config"
	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes reconciled station rows to a Kafka topic, one message per
// station per run.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured observation topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// WriteRun publishes every row of one run in a single WriteMessages call.
func (w *Writer) WriteRun(ctx context.Context, run domain.RunRecord) error {
	if len(run.Rows) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(run.Rows))
	for i := range run.Rows {
		msg, err := serializeToMessage(run.ID, run.At, run.Rows[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish observations: %w", err)
	}
	w.logger.Debug("observations published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// observationMessage is the JSON value of a published row.
type observationMessage struct {
	RunID       string   `json:"run_id"`
	RunAt       string   `json:"run_at"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Provider    string   `json:"provider,omitempty"`
	Recent      bool     `json:"recent"`
	ElevM       *float64 `json:"elev_m"`
	TempC       *float64 `json:"temp_c"`
	DewC        *float64 `json:"dew_c"`
	TempObTime  *string  `json:"temp_ob_time"`
	WindDir     *float64 `json:"wind_dir"`
	WindSpdMPS  *float64 `json:"wind_spd_mps"`
	WindGustMPS *float64 `json:"wind_gust_mps"`
	WindObTime  *string  `json:"wind_ob_time"`
}

// serializeToMessage marshals a row into a Kafka message keyed by station id.
func serializeToMessage(runID string, runAt time.Time, row domain.StationObservation) (kafkago.Message, error) {
	data, err := json.Marshal(observationMessage{
		RunID:       runID,
		RunAt:       domain.FormatUTC(runAt),
		ID:          row.ID,
		Name:        row.Name,
		Provider:    row.Provider,
		Recent:      row.Recent,
		ElevM:       row.ElevationM,
		TempC:       row.TempC,
		DewC:        row.DewpointC,
		TempObTime:  timeString(row.TempObTime),
		WindDir:     row.WindDirDeg,
		WindSpdMPS:  row.WindSpeedMPS,
		WindGustMPS: row.WindGustMPS,
		WindObTime:  timeString(row.WindObTime),
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation %s: %w", row.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(row.ID),
		Value: data,
		Time:  runAt,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "provider", Value: []byte(row.Provider)},
			{Key: "recent", Value: []byte(strconv.FormatBool(row.Recent))},
		},
	}, nil
}

func timeString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := domain.FormatUTC(*t)
	return &s
}
