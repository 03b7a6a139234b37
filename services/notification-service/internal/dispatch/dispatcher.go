// Package dispatch turns booking events into push notifications for the barber.
package dispatch

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
	"github.com/gildedshear/platform/services/notification-service/internal/push"
)

const (
	Title           = "New Booking! 💈"
	TypeNewBooking  = "new_booking"
	dateLayout      = "Mon Jan 2"
	fallbackClient  = "Client"
	fallbackService = "Service"
)

// AppointmentCreated mirrors the booking.appointment.created.v1 payload.
type AppointmentCreated struct {
	AppointmentID string `json:"appointment_id"`
	ClientName    string `json:"client_name"`
	ServiceName   string `json:"service_name"`
	AppointmentAt string `json:"appointment_at"`
}

type TokenStore interface {
	PushTokens(ctx context.Context) ([]string, error)
	RemoveTokens(ctx context.Context, tokens []string) error
}

type Report struct {
	Sent    int
	Failed  int
	Removed int
}

type Dispatcher struct {
	tokens  TokenStore
	sender  push.Sender
	cfg     *business.Config
	logger  *slog.Logger
	metrics *metrics.PushMetrics
	link    string
}

func New(tokens TokenStore, sender push.Sender, cfg *business.Config, logger *slog.Logger, m *metrics.PushMetrics, adminURL string) *Dispatcher {
	return &Dispatcher{
		tokens:  tokens,
		sender:  sender,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		link:    strings.TrimSpace(adminURL),
	}
}

// HandleCreated decodes a created event and notifies every device. Malformed
// payloads are logged and dropped.
func (d *Dispatcher) HandleCreated(ctx context.Context, payload []byte) error {
	var evt AppointmentCreated
	if err := json.Unmarshal(payload, &evt); err != nil {
		d.logger.Error("invalid appointment payload", "err", err)
		d.metrics.ObserveSkipped("invalid_payload")
		return nil
	}
	_, err := d.Notify(ctx, evt)
	return err
}

// Notify sends the new-booking message to each registered token. Per-token
// failures are counted, never returned; only a token lookup failure is an error.
func (d *Dispatcher) Notify(ctx context.Context, evt AppointmentCreated) (Report, error) {
	tokens, err := d.tokens.PushTokens(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load push tokens: %w", err)
	}
	if len(tokens) == 0 {
		d.logger.Info("no push tokens registered", "appointment_id", evt.AppointmentID)
		d.metrics.ObserveSkipped("no_tokens")
		return Report{}, nil
	}

	msg := BuildMessage(evt, d.cfg.Location())
	msg.Link = d.link

	var rep Report
	var stale []string
	for _, token := range tokens {
		if err := d.sender.Send(ctx, token, msg); err != nil {
			rep.Failed++
			if errors.Is(err, push.ErrUnregistered) {
				stale = append(stale, token)
			}
			d.logger.Warn("push send failed", "err", err, "provider", d.sender.ProviderID(), "appointment_id", evt.AppointmentID)
			continue
		}
		rep.Sent++
	}
	if len(stale) > 0 {
		if err := d.tokens.RemoveTokens(ctx, stale); err != nil {
			d.logger.Warn("stale token cleanup failed", "err", err, "count", len(stale))
		} else {
			rep.Removed = len(stale)
		}
	}
	d.metrics.ObserveSends(rep.Sent, rep.Failed)
	d.logger.Info("new booking notification sent",
		"appointment_id", evt.AppointmentID,
		"sent", rep.Sent,
		"failed", rep.Failed,
		"removed", rep.Removed,
	)
	return rep, nil
}

// BuildMessage renders the notification in the shop's timezone.
func BuildMessage(evt AppointmentCreated, loc *time.Location) push.Message {
	client := strings.TrimSpace(evt.ClientName)
	if client == "" {
		client = fallbackClient
	}
	service := strings.TrimSpace(evt.ServiceName)
	if service == "" {
		service = fallbackService
	}
	dateStr, timeStr := "Unknown Date", "Unknown Time"
	if at, err := time.Parse(time.RFC3339, evt.AppointmentAt); err == nil {
		local := at.In(loc)
		dateStr = local.Format(dateLayout)
		timeStr = local.Format(business.LabelLayout)
	}
	return push.Message{
		Title: Title,
		Body:  fmt.Sprintf("%s booked %s for %s at %s", client, service, dateStr, timeStr),
		Data: map[string]string{
			"type":        TypeNewBooking,
			"bookingId":   evt.AppointmentID,
			"serviceName": evt.ServiceName,
			"clientName":  evt.ClientName,
		},
	}
}
