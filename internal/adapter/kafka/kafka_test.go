package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

var runAt = time.Date(2025, 2, 14, 19, 0, 0, 0, time.UTC)

type recordingWriter struct {
	msgs   []kafkago.Message
	calls  int
	err    error
	closed bool
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.calls++
	r.msgs = append(r.msgs, msgs...)
	return r.err
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

func testRow() domain.StationObservation {
	return domain.StationObservation{
		ID:         "SE068",
		Name:       "VOR",
		ElevationM: domain.Float(600),
		TempC:      domain.Float(12.5),
		TempObTime: domain.Time(runAt.Add(-10 * time.Minute)),
		Provider:   "SBCAPCD",
		Recent:     true,
	}
}

func TestSerializeToMessage(t *testing.T) {
	msg, err := serializeToMessage("run-1", runAt, testRow())
	require.NoError(t, err)

	assert.Equal(t, []byte("SE068"), msg.Key)
	assert.Equal(t, runAt, msg.Time)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "run_id", msg.Headers[0].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[0].Value)
	assert.Equal(t, "provider", msg.Headers[1].Key)
	assert.Equal(t, []byte("SBCAPCD"), msg.Headers[1].Value)
	assert.Equal(t, "recent", msg.Headers[2].Key)
	assert.Equal(t, []byte("true"), msg.Headers[2].Value)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "2025-02-14T19:00:00Z", body["run_at"])
	assert.Equal(t, 12.5, body["temp_c"])
	assert.Equal(t, "2025-02-14T18:50:00Z", body["temp_ob_time"])
	assert.Nil(t, body["wind_spd_mps"])
}

func TestSerializeToMessage_BlankRow(t *testing.T) {
	msg, err := serializeToMessage("run-1", runAt, domain.BlankObservation(domain.Station{ID: "KSBA", Name: "Airport"}))
	require.NoError(t, err)
	assert.Equal(t, []byte("false"), msg.Headers[2].Value)
	assert.NotContains(t, string(msg.Value), `"provider"`)
}

func TestWriteRun(t *testing.T) {
	rec := &recordingWriter{}
	w := &Writer{writer: rec, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, w.WriteRun(context.Background(), domain.RunRecord{ID: "run-1", At: runAt}))
	assert.Zero(t, rec.calls, "empty runs publish nothing")

	rows := []domain.StationObservation{testRow(), domain.BlankObservation(domain.Station{ID: "KSBA", Name: "Airport"})}
	require.NoError(t, w.WriteRun(context.Background(), domain.RunRecord{ID: "run-1", At: runAt, Rows: rows}))
	assert.Equal(t, 1, rec.calls, "one batch per run")
	require.Len(t, rec.msgs, 2)
	assert.Equal(t, []byte("KSBA"), rec.msgs[1].Key)

	rec.err = errors.New("broker down")
	err := w.WriteRun(context.Background(), domain.RunRecord{ID: "run-2", At: runAt, Rows: rows})
	require.Error(t, err)
	assert.ErrorIs(t, err, rec.err)

	require.NoError(t, w.Close())
	assert.True(t, rec.closed)
}
