package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/vetbook/libs/kafkax"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

var outboxColumns = []string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}

func TestPublishBatchDeliversAndMarks(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM outbox_events").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow(int64(7), "evt-7", "appointment", "a1", TypeAppointmentBooked, []byte(`{"id":"a1"}`), "", "", now))
	mock.ExpectExec("UPDATE outbox_events").
		WithArgs([]int64{7}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	w := &captureWriter{}
	var seen []string
	p := NewPublisher(mock, w, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{
		OnPublish: func(eventType string) { seen = append(seen, eventType) },
	})

	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, w.msgs, 1)
	require.Equal(t, TypeAppointmentBooked, w.msgs[0].Topic)
	require.Equal(t, "a1", string(w.msgs[0].Key))
	require.Equal(t, "evt-7", kafkax.HeaderValue(w.msgs[0].Headers, kafkax.HeaderEventID))
	require.Equal(t, []string{TypeAppointmentBooked}, seen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishBatchLeavesRowsOnWriteFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM outbox_events").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow(int64(1), "evt-1", "appointment", "a1", TypeAppointmentCancelled, []byte(`{}`), "", "", time.Now()))
	mock.ExpectRollback()

	boom := errors.New("broker unavailable")
	p := NewPublisher(mock, &captureWriter{err: boom}, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{BatchSize: 10})

	_, err = p.PublishBatch(context.Background())
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("appointment", "a1", TypeAppointmentRescheduled, map[string]string{"appointment_id": "a1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"appointment_id":"a1"}`, string(evt.Payload))
	require.Equal(t, TypeAppointmentRescheduled, evt.EventType)
}
