package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/gildedshear/platform/libs/business"
	"github.com/gildedshear/platform/libs/metrics"
	"github.com/gildedshear/platform/services/booking-service/internal/model"
	"github.com/gildedshear/platform/services/booking-service/internal/outbox"
	"github.com/gildedshear/platform/services/booking-service/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var apptColumns = []string{"id", "client_name", "client_email", "client_phone", "service_id", "service_name",
	"appointment_at", "duration_minutes", "blocked_until", "status", "payment_reference",
	"amount_cents", "currency", "created_at", "updated_at"}

func newWriter(t *testing.T) (*Writer, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWriter(storage.NewAppointmentRepository(mock), outbox.NewRepository(mock), business.Default(), logger,
		metrics.NewBookingMetrics(prometheus.NewRegistry()))
	w.now = func() time.Time { return time.Date(2025, 11, 20, 15, 0, 0, 0, time.UTC) }
	return w, mock
}

func intent(service, date, clock string) PaymentIntent {
	return PaymentIntent{
		ID:          "pi_123",
		AmountCents: 2500,
		Currency:    "USD",
		Metadata: map[string]string{
			MetaService:       service,
			MetaCustomerName:  "Jordan Reyes",
			MetaCustomerEmail: "jordan@example.com",
			MetaCustomerPhone: "555-0100",
			MetaBookingDate:   date,
			MetaBookingTime:   clock,
		},
	}
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func begin(t *testing.T, mock pgxmock.PgxPoolIface) pgx.Tx {
	t.Helper()
	mock.ExpectBegin()
	tx, err := mock.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	return tx
}

func TestConfirmCreatesAppointment(t *testing.T) {
	w, mock := newWriter(t)
	tx := begin(t, mock)
	start := time.Date(2025, 11, 28, 22, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE payment_reference = $1")).
		WithArgs("pi_123").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
		WithArgs("appointments:2025-11-28").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("AND blocked_until > $1")).
		WithArgs(start, start.Add(time.Hour)).
		WillReturnRows(pgxmock.NewRows(apptColumns))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appointments")).
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events")).
		WithArgs(pgxmock.AnyArg(), "appointment", pgxmock.AnyArg(), outbox.TopicAppointmentCreated, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	res, err := w.Confirm(context.Background(), tx, intent("Classic Haircut", "2025-11-28", "4:30 PM"))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Fatalf("expected created, got %s", res.Outcome)
	}
	appt := res.Appointment
	if !appt.AppointmentAt.Equal(start) || appt.DurationMinutes != 60 || !appt.BlockedUntil.Equal(start.Add(time.Hour)) {
		t.Fatalf("unexpected schedule %+v", appt)
	}
	if appt.Status != model.StatusConfirmed || appt.ServiceID != "classic-haircut" || appt.Currency != "usd" || appt.PaymentReference != "pi_123" {
		t.Fatalf("unexpected appointment %+v", appt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConfirmReturnsExistingForReplayedPayment(t *testing.T) {
	w, mock := newWriter(t)
	tx := begin(t, mock)
	at := time.Date(2025, 11, 28, 22, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE payment_reference = $1")).
		WithArgs("pi_123").
		WillReturnRows(pgxmock.NewRows(apptColumns).AddRow("a1", "Jordan Reyes", "", "", "classic-haircut", "Classic Haircut",
			at, 60, at.Add(time.Hour), model.StatusConfirmed, "pi_123", int64(2500), "usd", at, at))

	res, err := w.Confirm(context.Background(), tx, intent("Classic Haircut", "2025-11-28", "16:30"))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Outcome != OutcomeExisting || res.Appointment.ID != "a1" {
		t.Fatalf("expected existing a1, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConfirmConflictQueuesEventWithoutInsert(t *testing.T) {
	w, mock := newWriter(t)
	tx := begin(t, mock)
	at := time.Date(2025, 11, 28, 22, 0, 0, 0, time.UTC)
	requested := time.Date(2025, 11, 28, 22, 30, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE payment_reference = $1")).
		WithArgs("pi_123").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
		WithArgs("appointments:2025-11-28").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("AND blocked_until > $1")).
		WithArgs(requested, requested.Add(30*time.Minute)).
		WillReturnRows(pgxmock.NewRows(apptColumns).AddRow("other", "Sam", "", "", "classic-haircut", "Classic Haircut",
			at, 60, at.Add(time.Hour), model.StatusConfirmed, "pi_other", int64(2500), "usd", at, at))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events")).
		WithArgs(pgxmock.AnyArg(), "payment", "pi_123", outbox.TopicAppointmentConflicted, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	res, err := w.Confirm(context.Background(), tx, intent("Beard Trim", "2025-11-28", "4:30 PM"))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Outcome != OutcomeConflict || len(res.Conflicts) != 1 || res.Conflicts[0].ID != "other" {
		t.Fatalf("expected conflict with other, got %+v", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConfirmUnknownServiceFallsBackToDefaultDuration(t *testing.T) {
	w, mock := newWriter(t)
	tx := begin(t, mock)
	start := time.Date(2025, 11, 28, 22, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE payment_reference = $1")).
		WithArgs("pi_123").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
		WithArgs("appointments:2025-11-28").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("AND blocked_until > $1")).
		WithArgs(start, start.Add(time.Hour)).
		WillReturnRows(pgxmock.NewRows(apptColumns))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO appointments")).
		WithArgs(anyArgs(15)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_events")).
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	res, err := w.Confirm(context.Background(), tx, intent("Mystery Cut", "2025-11-28", "16:00"))
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Appointment.DurationMinutes != 60 || res.Appointment.ServiceName != "Mystery Cut" || res.Appointment.ServiceID != "" {
		t.Fatalf("unexpected fallback appointment %+v", res.Appointment)
	}
}

func TestConfirmRejectsMissingOrInvalidTime(t *testing.T) {
	w, mock := newWriter(t)
	tx := begin(t, mock)

	if _, err := w.Confirm(context.Background(), tx, intent("Fade Cut", "2025-11-28", "")); !errors.Is(err, ErrMissingBookingTime) {
		t.Fatalf("expected ErrMissingBookingTime, got %v", err)
	}
	if _, err := w.Confirm(context.Background(), tx, intent("Fade Cut", "", "4:30 PM")); !errors.Is(err, ErrMissingBookingTime) {
		t.Fatalf("expected ErrMissingBookingTime, got %v", err)
	}
	if _, err := w.Confirm(context.Background(), tx, intent("Fade Cut", "2025-11-28", "half past four")); !errors.Is(err, ErrInvalidBookingTime) {
		t.Fatalf("expected ErrInvalidBookingTime, got %v", err)
	}
	if _, err := w.Confirm(context.Background(), tx, intent("Fade Cut", "28/11/2025", "4:30 PM")); !errors.Is(err, ErrInvalidBookingTime) {
		t.Fatalf("expected ErrInvalidBookingTime, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no queries expected: %v", err)
	}
}

func TestConfirmPrefersServiceID(t *testing.T) {
	w, _ := newWriter(t)
	in := intent("Classic Haircut", "2025-11-28", "16:00")
	in.Metadata[MetaServiceID] = "fade-cut"

	appt := w.buildAppointment(in, time.Date(2025, 11, 28, 22, 0, 0, 0, time.UTC))
	if appt.ServiceID != "fade-cut" || appt.ServiceName != "Fade Cut" || appt.DurationMinutes != 75 {
		t.Fatalf("expected fade cut, got %+v", appt)
	}
	if got := appt.BlockedUntil.Sub(appt.AppointmentAt); got != 90*time.Minute {
		t.Fatalf("expected 90m blocked range, got %s", got)
	}
}
