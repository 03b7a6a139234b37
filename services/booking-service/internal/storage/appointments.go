package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gildedshear/platform/libs/db"
	"github.com/gildedshear/platform/services/booking-service/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrNotFound     = errors.New("appointment not found")
	ErrSlotConflict = errors.New("time slot already booked")
)

const appointmentColumns = `id::text, client_name, client_email, client_phone, service_id, service_name,
	appointment_at, duration_minutes, blocked_until, status, COALESCE(payment_reference, ''),
	amount_cents, currency, created_at, updated_at`

type AppointmentRepository struct {
	db db.Querier
}

func NewAppointmentRepository(q db.Querier) *AppointmentRepository {
	return &AppointmentRepository{db: q}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// LockDay serializes writers for one business-local calendar day until the
// transaction ends.
func (r *AppointmentRepository) LockDay(ctx context.Context, tx pgx.Tx, day string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "appointments:"+day)
	return err
}

func (r *AppointmentRepository) GetByPaymentReference(ctx context.Context, tx pgx.Tx, ref string) (model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE payment_reference = $1
	`, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	return appt, err
}

// FindOverlapping returns occupying appointments whose blocked range
// intersects [start, end).
func (r *AppointmentRepository) FindOverlapping(ctx context.Context, tx pgx.Tx, start, end time.Time) ([]model.Appointment, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status <> 'cancelled'
			AND appointment_at < $2
			AND blocked_until > $1
		ORDER BY appointment_at ASC
	`, start, end)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Insert writes appt unless an appointment with the same payment reference
// already exists. inserted is false in that case. ID and timestamps are
// assigned here when empty.
func (r *AppointmentRepository) Insert(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (bool, error) {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	if appt.UpdatedAt.IsZero() {
		appt.UpdatedAt = appt.CreatedAt
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, client_name, client_email, client_phone, service_id, service_name, appointment_at,
			 duration_minutes, blocked_until, status, payment_reference, amount_cents, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14, $15)
		ON CONFLICT (payment_reference) DO NOTHING
	`, appt.ID, appt.ClientName, appt.ClientEmail, appt.ClientPhone, appt.ServiceID, appt.ServiceName,
		appt.AppointmentAt.UTC(), appt.DurationMinutes, appt.BlockedUntil.UTC(), appt.Status,
		appt.PaymentReference, appt.AmountCents, appt.Currency, appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		if db.HasCode(err, db.CodeExclusionViolation) {
			return false, ErrSlotConflict
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListBetween returns appointments starting in [start, end), any status.
func (r *AppointmentRepository) ListBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_at >= $1 AND appointment_at < $2
		ORDER BY appointment_at ASC
	`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// ListAll is the admin snapshot, newest appointment first.
func (r *AppointmentRepository) ListAll(ctx context.Context) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY appointment_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *AppointmentRepository) ListCreatedSince(ctx context.Context, since time.Time) ([]model.Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// UpdateStatus applies a lifecycle transition and returns the updated row.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id, status string) (model.Appointment, error) {
	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	if err := model.CheckTransition(appt.Status, status); err != nil {
		return model.Appointment{}, fmt.Errorf("%s -> %s: %w", appt.Status, status, err)
	}

	var updatedAt time.Time
	if err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, id, status).Scan(&updatedAt); err != nil {
		return model.Appointment{}, err
	}
	appt.Status = status
	appt.UpdatedAt = updatedAt
	return appt, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.ClientName,
		&appt.ClientEmail,
		&appt.ClientPhone,
		&appt.ServiceID,
		&appt.ServiceName,
		&appt.AppointmentAt,
		&appt.DurationMinutes,
		&appt.BlockedUntil,
		&appt.Status,
		&appt.PaymentReference,
		&appt.AmountCents,
		&appt.Currency,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	return appt, err
}

func collectAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
