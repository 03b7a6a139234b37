package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/gildedshear/platform/libs/kafkax"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

var outboxColumns = []string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}

func newPublisher(t *testing.T) (*Publisher, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPublisher(mock, NewRepository(mock), logger, nil, PublisherConfig{Brokers: "localhost:9092", BatchSize: 10}), mock
}

func TestPublishBatchWritesAndMarks(t *testing.T) {
	p, mock := newPublisher(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_events")).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow(int64(7), "evt-7", "appointment", "appt-1", TopicAppointmentCreated, `{"appointment_id":"appt-1"}`, "", "", now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE outbox_events")).
		WithArgs([]int64{7}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	w := &fakeWriter{}
	n, err := p.PublishBatch(context.Background(), w)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 published, got %d (%v)", n, err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != TopicAppointmentCreated || string(msg.Key) != "appt-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if got := kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID); got != "evt-7" {
		t.Fatalf("expected event id header, got %q", got)
	}
}

func TestPublishBatchLeavesRecordsOnWriteFailure(t *testing.T) {
	p, mock := newPublisher(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_events")).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(outboxColumns).
			AddRow(int64(8), "evt-8", "appointment", "appt-2", TopicAppointmentCreated, `{}`, "", "", time.Now()))
	mock.ExpectRollback()

	_, err := p.PublishBatch(context.Background(), &fakeWriter{err: errors.New("broker down")})
	if err == nil {
		t.Fatal("expected write error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPublishBatchEmpty(t *testing.T) {
	p, mock := newPublisher(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM outbox_events")).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows(outboxColumns))
	mock.ExpectCommit()

	if n, err := p.PublishBatch(context.Background(), &fakeWriter{}); err != nil || n != 0 {
		t.Fatalf("expected nothing published, got %d (%v)", n, err)
	}
}
