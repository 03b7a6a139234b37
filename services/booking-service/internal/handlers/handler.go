package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gildedshear/platform/libs/auth"
	"github.com/gildedshear/platform/libs/business"
	"github.com/gildedshear/platform/libs/metrics"
	"github.com/gildedshear/platform/services/booking-service/internal/adminview"
	"github.com/gildedshear/platform/services/booking-service/internal/availability"
	"github.com/gildedshear/platform/services/booking-service/internal/booking"
	"github.com/gildedshear/platform/services/booking-service/internal/model"
	"github.com/gildedshear/platform/services/booking-service/internal/outbox"
	"github.com/gildedshear/platform/services/booking-service/internal/payments"
	"github.com/jackc/pgx/v5"
)

type Calendar interface {
	Month(ctx context.Context, year int, month time.Month) (map[string][]string, error)
	Booked(ctx context.Context, date availability.CalendarDate) ([]string, error)
	Slots(ctx context.Context, date availability.CalendarDate) ([]string, error)
	CanBook(ctx context.Context, at time.Time, duration time.Duration) (bool, error)
	Invalidate(ctx context.Context, at time.Time)
}

// AppointmentStore is the transactional side of the appointment repository.
type AppointmentStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id, status string) (model.Appointment, error)
}

type Confirmer interface {
	Confirm(ctx context.Context, tx pgx.Tx, intent booking.PaymentIntent) (booking.Result, error)
}

type EventQueue interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type AdminView interface {
	Snapshot(ctx context.Context) (adminview.Snapshot, error)
	Stats(ctx context.Context) (adminview.Stats, error)
	Watch(ctx context.Context) (<-chan adminview.Snapshot, error)
}

type PushTokens interface {
	AddPushToken(ctx context.Context, token string) (int, error)
}

type ChangePublisher interface {
	Publish(ctx context.Context, appointmentID string) error
}

type Deps struct {
	Business *business.Config
	Calendar Calendar
	Store    AppointmentStore
	Writer   Confirmer
	Outbox   EventQueue
	Intents  payments.IntentCreator
	Admin    AdminView
	Tokens   PushTokens
	Changes  ChangePublisher
	Verifier *auth.Verifier
	Logger   *slog.Logger
	Metrics  *metrics.BookingMetrics
}

type Config struct {
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
	// AdminEmails lists the accounts allowed on /api/v1/admin routes.
	AdminEmails []string
	// StreamKeepAlive is the idle interval between SSE comment frames.
	StreamKeepAlive time.Duration
}

type Handler struct {
	Deps
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
	admins                 map[string]struct{}
	keepAlive              time.Duration
}

func New(deps Deps, cfg Config) *Handler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	keepAlive := cfg.StreamKeepAlive
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	admins := make(map[string]struct{}, len(cfg.AdminEmails))
	for _, email := range cfg.AdminEmails {
		if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
			admins[email] = struct{}{}
		}
	}
	return &Handler{
		Deps:                   deps,
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
		admins:                 admins,
		keepAlive:              keepAlive,
	}
}

// Register mounts every route. public wraps the customer-facing routes (rate
// limiting); the webhook and admin routes are mounted without it.
func (h *Handler) Register(mux *http.ServeMux, public func(http.Handler) http.Handler) {
	if public == nil {
		public = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("/api/v1/public/availability", public(http.HandlerFunc(h.Availability)))
	mux.Handle("/api/v1/public/availability/month", public(http.HandlerFunc(h.MonthAvailability)))
	mux.Handle("/api/v1/public/slots", public(http.HandlerFunc(h.Slots)))
	mux.Handle("/api/v1/public/services", public(http.HandlerFunc(h.Services)))
	mux.Handle("/api/v1/public/payment-intents", public(http.HandlerFunc(h.CreatePaymentIntent)))

	mux.HandleFunc("/api/v1/webhooks/stripe", h.StripeWebhook)

	mux.Handle("/api/v1/admin/appointments", h.RequireAdmin(http.HandlerFunc(h.AdminAppointments)))
	mux.Handle("/api/v1/admin/appointments/stream", h.RequireAdmin(http.HandlerFunc(h.AdminStream)))
	mux.Handle("/api/v1/admin/appointments/status", h.RequireAdmin(http.HandlerFunc(h.UpdateStatus)))
	mux.Handle("/api/v1/admin/stats", h.RequireAdmin(http.HandlerFunc(h.AdminStats)))
	mux.Handle("/api/v1/admin/push-tokens", h.RequireAdmin(http.HandlerFunc(h.RegisterPushToken)))
}

// afterBookingChange refreshes caches and wakes admin watchers once a change
// has been committed.
func (h *Handler) afterBookingChange(ctx context.Context, appt model.Appointment) {
	h.Calendar.Invalidate(ctx, appt.AppointmentAt)
	if h.Changes == nil {
		return
	}
	if err := h.Changes.Publish(ctx, appt.ID); err != nil {
		h.Logger.Warn("change signal publish failed", "err", err, "appointment_id", appt.ID)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
