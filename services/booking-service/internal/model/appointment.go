package model

import (
	"errors"
	"time"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type Appointment struct {
	ID               string    `json:"id"`
	ClientName       string    `json:"clientName"`
	ClientEmail      string    `json:"clientEmail"`
	ClientPhone      string    `json:"clientPhone"`
	ServiceID        string    `json:"serviceId"`
	ServiceName      string    `json:"serviceName"`
	AppointmentAt    time.Time `json:"appointmentAt"`
	DurationMinutes  int       `json:"durationMinutes"`
	BlockedUntil     time.Time `json:"blockedUntil"`
	Status           string    `json:"status"`
	PaymentReference string    `json:"paymentReference,omitempty"`
	AmountCents      int64     `json:"amountCents"`
	Currency         string    `json:"currency"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (a Appointment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// Occupies reports whether the appointment takes up calendar slots.
func (a Appointment) Occupies() bool {
	return a.Status != StatusCancelled
}

// BlockedUntil rounds start+duration up to the next slot boundary so the
// stored range covers exactly the labels the appointment blocks.
func BlockedUntil(start time.Time, duration, interval time.Duration) time.Time {
	if interval <= 0 {
		return start.Add(duration)
	}
	steps := (duration + interval - 1) / interval
	if steps < 1 {
		steps = 1
	}
	return start.Add(steps * interval)
}

var transitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CheckTransition returns ErrInvalidTransition unless from -> to is allowed.
func CheckTransition(from, to string) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return ErrInvalidTransition
}
