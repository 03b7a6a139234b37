package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gildedshear/platform/libs/business"
	"github.com/gildedshear/platform/services/booking-service/internal/availability"
	"github.com/gildedshear/platform/services/booking-service/internal/booking"
	"github.com/gildedshear/platform/services/booking-service/internal/payments"
)

type bookedResponse struct {
	Date   string   `json:"date"`
	Booked []string `json:"booked"`
}

type slotsResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

type servicesResponse struct {
	Business string             `json:"business"`
	Currency string             `json:"currency"`
	Services []business.Service `json:"services"`
}

type customerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type bookingDetails struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type createIntentRequest struct {
	AmountCents    int64          `json:"amountCents"`
	Currency       string         `json:"currency"`
	ServiceID      string         `json:"serviceId"`
	ServiceName    string         `json:"serviceName"`
	CustomerInfo   customerInfo   `json:"customerInfo"`
	BookingDetails bookingDetails `json:"bookingDetails"`
}

type createIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date, err := availability.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	booked, err := h.Calendar.Booked(r.Context(), date)
	if err != nil {
		h.Logger.Error("availability lookup failed", "err", err, "date", date.String())
		http.Error(w, "failed to load availability", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bookedResponse{Date: date.String(), Booked: booked})
}

func (h *Handler) MonthAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if err != nil || year < 1970 || year > 9999 {
		http.Error(w, "invalid year", http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("month")))
	if err != nil || month < 1 || month > 12 {
		http.Error(w, "month must be 1-12", http.StatusBadRequest)
		return
	}
	days, err := h.Calendar.Month(r.Context(), year, time.Month(month))
	if err != nil {
		h.Logger.Error("month availability lookup failed", "err", err, "year", year, "month", month)
		http.Error(w, "failed to load availability", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date, err := availability.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	slots, err := h.Calendar.Slots(r.Context(), date)
	if err != nil {
		h.Logger.Error("slot lookup failed", "err", err, "date", date.String())
		http.Error(w, "failed to load slots", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, slotsResponse{Date: date.String(), Slots: slots})
}

func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, servicesResponse{
		Business: h.Business.Name,
		Currency: h.Business.Currency,
		Services: h.Business.Services,
	})
}

// CreatePaymentIntent prices the chosen service from the catalog, checks the
// slot is still open and asks Stripe for a PaymentIntent carrying the booking
// in its metadata. The booking itself is written by the webhook.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	req.CustomerInfo.Name = strings.TrimSpace(req.CustomerInfo.Name)
	req.CustomerInfo.Email = strings.TrimSpace(req.CustomerInfo.Email)
	req.CustomerInfo.Phone = strings.TrimSpace(req.CustomerInfo.Phone)
	req.BookingDetails.Date = strings.TrimSpace(req.BookingDetails.Date)
	req.BookingDetails.Time = strings.TrimSpace(req.BookingDetails.Time)

	if req.CustomerInfo.Name == "" || req.CustomerInfo.Email == "" || req.BookingDetails.Date == "" || req.BookingDetails.Time == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	key := req.ServiceID
	if key == "" {
		key = req.ServiceName
	}
	svc, ok := h.Business.LookupService(key)
	if !ok {
		http.Error(w, "unknown service", http.StatusBadRequest)
		return
	}
	if req.AmountCents != svc.PriceCents {
		http.Error(w, "amount does not match service price", http.StatusBadRequest)
		return
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = h.Business.Currency
	}
	if currency != h.Business.Currency {
		http.Error(w, "unsupported currency", http.StatusBadRequest)
		return
	}

	time24, err := booking.NormalizeTime(req.BookingDetails.Time)
	if err != nil {
		http.Error(w, "invalid booking time", http.StatusBadRequest)
		return
	}
	at, err := booking.ResolveInstant(req.BookingDetails.Date, time24, h.Business.Location())
	if err != nil {
		http.Error(w, "invalid booking date or time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	free, err := h.Calendar.CanBook(ctx, at, svc.Duration())
	if err != nil {
		h.Logger.Error("availability check failed", "err", err, "date", req.BookingDetails.Date)
		http.Error(w, "failed to check availability", http.StatusInternalServerError)
		return
	}
	if !free {
		http.Error(w, "time slot no longer available", http.StatusConflict)
		return
	}

	label := h.Business.Label(at)
	intent, err := h.Intents.CreateIntent(ctx, payments.IntentRequest{
		AmountCents: svc.PriceCents,
		Currency:    currency,
		Description: svc.Name + " on " + req.BookingDetails.Date + " at " + label,
		Email:       req.CustomerInfo.Email,
		Metadata: map[string]string{
			booking.MetaServiceID:     svc.ID,
			booking.MetaServiceName:   svc.Name,
			booking.MetaCustomerName:  req.CustomerInfo.Name,
			booking.MetaCustomerEmail: req.CustomerInfo.Email,
			booking.MetaCustomerPhone: req.CustomerInfo.Phone,
			booking.MetaBookingDate:   req.BookingDetails.Date,
			booking.MetaBookingTime:   label,
		},
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		if errors.Is(err, payments.ErrNotConfigured) {
			http.Error(w, "payments not configured", http.StatusServiceUnavailable)
			return
		}
		h.Logger.Error("stripe payment intent failed", "err", err, "service_id", svc.ID)
		http.Error(w, "payment provider error", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, createIntentResponse{ClientSecret: intent.ClientSecret, PaymentIntentID: intent.ID})
}
