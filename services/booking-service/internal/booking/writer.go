package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gildedshear/platform/libs/business"
	"github.com/gildedshear/platform/libs/metrics"
	"github.com/gildedshear/platform/services/booking-service/internal/model"
	"github.com/gildedshear/platform/services/booking-service/internal/outbox"
	"github.com/gildedshear/platform/services/booking-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

// Metadata keys set on the PaymentIntent when it is created.
const (
	MetaServiceID     = "serviceId"
	MetaService       = "service"
	MetaServiceName   = "serviceName"
	MetaCustomerName  = "customerName"
	MetaCustomerEmail = "customerEmail"
	MetaCustomerPhone = "customerPhone"
	MetaBookingDate   = "bookingDate"
	MetaBookingTime   = "bookingTime"
)

const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"
	OutcomeConflict = "conflict"
)

// PaymentIntent is the part of a succeeded Stripe PaymentIntent the writer reads.
type PaymentIntent struct {
	ID          string
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

type Result struct {
	Appointment model.Appointment
	Outcome     string
	// Conflicts holds the appointments that blocked the slot when Outcome is OutcomeConflict.
	Conflicts []model.Appointment
}

type Writer struct {
	repo    *storage.AppointmentRepository
	outbox  *outbox.Repository
	cfg     *business.Config
	logger  *slog.Logger
	metrics *metrics.BookingMetrics
	now     func() time.Time
}

func NewWriter(repo *storage.AppointmentRepository, outboxRepo *outbox.Repository, cfg *business.Config, logger *slog.Logger, m *metrics.BookingMetrics) *Writer {
	return &Writer{
		repo:    repo,
		outbox:  outboxRepo,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Confirm turns a succeeded payment into a confirmed appointment inside tx.
// A payment reference that was already booked returns OutcomeExisting. When
// the slot is taken, nothing is inserted, a conflicted event is queued and the
// result carries OutcomeConflict. Validation failures wrap
// ErrMissingBookingTime or ErrInvalidBookingTime.
func (w *Writer) Confirm(ctx context.Context, tx pgx.Tx, intent PaymentIntent) (Result, error) {
	meta := intent.Metadata
	date := strings.TrimSpace(meta[MetaBookingDate])
	rawTime := strings.TrimSpace(meta[MetaBookingTime])
	if date == "" || rawTime == "" {
		return Result{}, fmt.Errorf("payment %s: %w", intent.ID, ErrMissingBookingTime)
	}
	time24, err := NormalizeTime(rawTime)
	if err != nil {
		return Result{}, fmt.Errorf("payment %s: %w", intent.ID, err)
	}
	start, err := ResolveInstant(date, time24, w.cfg.Location())
	if err != nil {
		return Result{}, fmt.Errorf("payment %s: %w", intent.ID, err)
	}

	if existing, err := w.repo.GetByPaymentReference(ctx, tx, intent.ID); err == nil {
		return Result{Appointment: existing, Outcome: OutcomeExisting}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Result{}, fmt.Errorf("lookup payment reference: %w", err)
	}

	appt := w.buildAppointment(intent, start)

	if err := w.repo.LockDay(ctx, tx, date); err != nil {
		return Result{}, fmt.Errorf("lock day: %w", err)
	}
	conflicts, err := w.repo.FindOverlapping(ctx, tx, appt.AppointmentAt, appt.BlockedUntil)
	if err != nil {
		return Result{}, fmt.Errorf("overlap check: %w", err)
	}
	if len(conflicts) > 0 {
		if err := w.enqueueConflict(ctx, tx, appt, conflicts); err != nil {
			return Result{}, err
		}
		return Result{Appointment: appt, Outcome: OutcomeConflict, Conflicts: conflicts}, nil
	}

	inserted, err := w.repo.Insert(ctx, tx, &appt)
	if err != nil {
		return Result{}, fmt.Errorf("insert appointment: %w", err)
	}
	if !inserted {
		existing, err := w.repo.GetByPaymentReference(ctx, tx, intent.ID)
		if err != nil {
			return Result{}, fmt.Errorf("reload appointment: %w", err)
		}
		return Result{Appointment: existing, Outcome: OutcomeExisting}, nil
	}

	payload, err := json.Marshal(CreatedEvent{
		AppointmentID:    appt.ID,
		ClientName:       appt.ClientName,
		ClientEmail:      appt.ClientEmail,
		ClientPhone:      appt.ClientPhone,
		ServiceID:        appt.ServiceID,
		ServiceName:      appt.ServiceName,
		AppointmentAt:    appt.AppointmentAt.Format(time.RFC3339),
		DurationMinutes:  appt.DurationMinutes,
		AmountCents:      appt.AmountCents,
		Currency:         appt.Currency,
		PaymentReference: appt.PaymentReference,
	})
	if err != nil {
		return Result{}, err
	}
	if err := w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.TopicAppointmentCreated,
		Payload:       payload,
	}); err != nil {
		return Result{}, fmt.Errorf("write outbox event: %w", err)
	}
	return Result{Appointment: appt, Outcome: OutcomeCreated}, nil
}

func (w *Writer) buildAppointment(intent PaymentIntent, start time.Time) model.Appointment {
	meta := intent.Metadata
	serviceName := firstNonEmpty(meta[MetaServiceName], meta[MetaService])

	svc, ok := w.cfg.LookupService(meta[MetaServiceID])
	if !ok {
		svc, ok = w.cfg.LookupService(serviceName)
	}
	duration := w.cfg.DefaultDuration()
	serviceID := ""
	if ok {
		duration = svc.Duration()
		serviceID = svc.ID
		serviceName = svc.Name
	} else {
		w.logger.Warn("unknown service on payment; using default duration",
			"payment_intent", intent.ID,
			"service_id", meta[MetaServiceID],
			"service_name", serviceName,
			"duration_minutes", int(duration/time.Minute),
		)
		w.metrics.ObserveUnknownService(serviceName)
	}

	now := w.now()
	currency := strings.ToLower(intent.Currency)
	if currency == "" {
		currency = w.cfg.Currency
	}
	return model.Appointment{
		ClientName:       strings.TrimSpace(meta[MetaCustomerName]),
		ClientEmail:      strings.TrimSpace(meta[MetaCustomerEmail]),
		ClientPhone:      strings.TrimSpace(meta[MetaCustomerPhone]),
		ServiceID:        serviceID,
		ServiceName:      serviceName,
		AppointmentAt:    start,
		DurationMinutes:  int(duration / time.Minute),
		BlockedUntil:     model.BlockedUntil(start, duration, w.cfg.Interval()),
		Status:           model.StatusConfirmed,
		PaymentReference: intent.ID,
		AmountCents:      intent.AmountCents,
		Currency:         currency,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (w *Writer) enqueueConflict(ctx context.Context, tx pgx.Tx, appt model.Appointment, conflicts []model.Appointment) error {
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.ID)
	}
	payload, err := json.Marshal(ConflictedEvent{
		PaymentReference: appt.PaymentReference,
		ClientName:       appt.ClientName,
		ClientEmail:      appt.ClientEmail,
		ClientPhone:      appt.ClientPhone,
		ServiceName:      appt.ServiceName,
		RequestedAt:      appt.AppointmentAt.Format(time.RFC3339),
		AmountCents:      appt.AmountCents,
		Currency:         appt.Currency,
		ConflictingIDs:   ids,
	})
	if err != nil {
		return err
	}
	w.logger.Warn("paid booking conflicts with an existing appointment",
		"payment_intent", appt.PaymentReference,
		"requested_at", appt.AppointmentAt.Format(time.RFC3339),
		"conflicting_ids", ids,
	)
	if err := w.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "payment",
		AggregateID:   appt.PaymentReference,
		EventType:     outbox.TopicAppointmentConflicted,
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("write conflict event: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
