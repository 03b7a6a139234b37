package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gildedshear/platform/libs/auth"
	"github.com/gildedshear/platform/services/booking-service/internal/booking"
	"github.com/gildedshear/platform/services/booking-service/internal/model"
	"github.com/gildedshear/platform/services/booking-service/internal/outbox"
	"github.com/gildedshear/platform/services/booking-service/internal/storage"
)

type adminContextKey struct{}

// AdminEmailFromContext returns the email of the admin that made the request.
func AdminEmailFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(adminContextKey{}).(string); ok {
		return v
	}
	return ""
}

type updateStatusRequest struct {
	AppointmentID string `json:"appointmentId"`
	Status        string `json:"status"`
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

// RequireAdmin accepts a verified bearer token whose email claim is on the
// admin list.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		if h.Verifier == nil {
			http.Error(w, "admin auth not configured", http.StatusServiceUnavailable)
			return
		}
		claims, err := h.Verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		email := strings.ToLower(strings.TrimSpace(claims.Email))
		if _, ok := h.admins[email]; !ok || email == "" {
			h.Logger.Warn("admin access denied", "sub", claims.Sub, "email", claims.Email)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminContextKey{}, email)))
	})
}

func (h *Handler) AdminAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := h.Admin.Snapshot(r.Context())
	if err != nil {
		h.Logger.Error("admin snapshot failed", "err", err)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// AdminStream pushes a snapshot as a server-sent event on connect and after
// every committed change until the client goes away.
func (h *Handler) AdminStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	snaps, err := h.Admin.Watch(ctx)
	if err != nil {
		h.Logger.Error("admin watch failed", "err", err)
		http.Error(w, "failed to watch appointments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				h.Logger.Error("admin snapshot encode failed", "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := h.Admin.Stats(r.Context())
	if err != nil {
		h.Logger.Error("admin stats failed", "err", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if req.AppointmentID == "" || !model.ValidStatus(req.Status) {
		http.Error(w, "appointmentId and a valid status required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.Store.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.Store.UpdateStatus(ctx, tx, req.AppointmentID, req.Status)
	if err != nil {
		switch {
		case storage.IsNotFound(err):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, model.ErrInvalidTransition):
			http.Error(w, "status change not allowed", http.StatusConflict)
		default:
			h.Logger.Error("status update failed", "err", err, "appointment_id", req.AppointmentID)
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		}
		return
	}

	payload, err := json.Marshal(booking.StatusChangedEvent{
		AppointmentID: appt.ID,
		Status:        appt.Status,
		AppointmentAt: appt.AppointmentAt.UTC().Format(time.RFC3339),
		ChangedBy:     AdminEmailFromContext(ctx),
		ChangedAt:     appt.UpdatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		http.Error(w, "failed to build status event", http.StatusInternalServerError)
		return
	}
	if err := h.Outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.TopicAppointmentStatus,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	h.afterBookingChange(ctx, appt)
	writeJSON(w, http.StatusOK, appt)
}

func (h *Handler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req pushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		http.Error(w, "token required", http.StatusBadRequest)
		return
	}
	count, err := h.Tokens.AddPushToken(r.Context(), req.Token)
	if err != nil {
		h.Logger.Error("push token register failed", "err", err)
		http.Error(w, "failed to register token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tokens": count})
}
