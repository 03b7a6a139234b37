package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gildedshear/platform/services/booking-service/internal/booking"
	"github.com/gildedshear/platform/services/booking-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	eventPaymentSucceeded = "payment_intent.succeeded"
	eventPaymentFailed    = "payment_intent.payment_failed"
)

// StripeWebhook handles Stripe webhooks (no JWT auth; signature verification is the auth).
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.stripeWebhookSecret == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	started := time.Now()
	evtType := string(evt.Type)
	outcome := "ignored"
	defer func() {
		h.Metrics.ObserveWebhookEvent(evtType, outcome)
		h.Metrics.ObserveWebhookLatency(time.Since(started).Seconds())
	}()

	h.Logger.Info("payment provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", time.Unix(evt.Created, 0).UTC().Format(time.RFC3339),
	)

	ctx := r.Context()
	tx, err := h.Store.Begin(ctx)
	if err != nil {
		outcome = "error"
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Idempotency: ignore replayed Stripe events.
	if err := storage.InsertPaymentEvent(ctx, tx, storage.PaymentEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicatePaymentEvent) {
			outcome = "duplicate"
			h.Logger.Info("payment provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID, "event_type", evtType)
			_ = tx.Commit(ctx)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		outcome = "error"
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	switch evtType {
	case eventPaymentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			outcome = "invalid"
			h.Logger.Error("stripe: invalid payment intent payload", "err", err, "provider_event_id", evt.ID)
			http.Error(w, "invalid payment intent payload", http.StatusBadRequest)
			return
		}
		res, err := h.Writer.Confirm(ctx, tx, booking.PaymentIntent{
			ID:          pi.ID,
			AmountCents: pi.Amount,
			Currency:    string(pi.Currency),
			Metadata:    pi.Metadata,
		})
		if err != nil {
			if errors.Is(err, booking.ErrMissingBookingTime) || errors.Is(err, booking.ErrInvalidBookingTime) {
				outcome = "invalid"
				h.Logger.Warn("stripe: payment intent carries no usable booking time", "err", err, "payment_intent", pi.ID)
				http.Error(w, "invalid booking metadata", http.StatusBadRequest)
				return
			}
			outcome = "error"
			h.Logger.Error("booking confirmation failed", "err", err, "payment_intent", pi.ID)
			if errors.Is(err, storage.ErrSlotConflict) {
				http.Error(w, "time slot already booked", http.StatusConflict)
				return
			}
			http.Error(w, "failed to confirm booking", http.StatusInternalServerError)
			return
		}
		if err := tx.Commit(ctx); err != nil {
			outcome = "error"
			http.Error(w, "failed to commit", http.StatusInternalServerError)
			return
		}
		outcome = res.Outcome
		h.Metrics.ObserveBooking(res.Outcome)

		switch res.Outcome {
		case booking.OutcomeCreated:
			h.afterBookingChange(ctx, res.Appointment)
			h.Logger.Info("appointment booked",
				"appointment_id", res.Appointment.ID,
				"payment_intent", pi.ID,
				"appointment_at", res.Appointment.AppointmentAt.Format(time.RFC3339),
			)
		case booking.OutcomeConflict:
			ids := make([]string, 0, len(res.Conflicts))
			for _, c := range res.Conflicts {
				ids = append(ids, c.ID)
			}
			h.Logger.Warn("paid booking overlaps existing appointments; queued for follow-up",
				"payment_intent", pi.ID,
				"appointment_at", res.Appointment.AppointmentAt.Format(time.RFC3339),
				"conflicts", ids,
			)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"outcome":       res.Outcome,
			"appointmentId": res.Appointment.ID,
		})
		return

	case eventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
			h.Logger.Error("stripe: invalid payment intent payload", "err", err, "provider_event_id", evt.ID)
			break
		}
		reason := ""
		if pi.LastPaymentError != nil {
			reason = pi.LastPaymentError.Msg
		}
		outcome = "payment_failed"
		h.Logger.Warn("payment failed",
			"payment_intent", pi.ID,
			"customer_email", pi.Metadata[booking.MetaCustomerEmail],
			"booking_date", pi.Metadata[booking.MetaBookingDate],
			"reason", reason,
		)
	}

	if err := tx.Commit(ctx); err != nil {
		outcome = "error"
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
