// Package adminview builds the barber's dashboard: the full appointment list,
// headline counters and the rolling stats, plus a live feed driven by store
// change signals.
package adminview

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gildedshear/platform/libs/business"
	"github.com/gildedshear/platform/services/booking-service/internal/model"
)

// StatsWindow is the rolling period covered by Stats.
const StatsWindow = 30 * 24 * time.Hour

// revenueKeywords estimates a booking's price in whole dollars from its
// service name. Entries are checked in order and a later match replaces an
// earlier one.
var revenueKeywords = []struct {
	keyword string
	dollars int64
}{
	{"Classic", 30},
	{"Beard", 20},
	{"Fade", 35},
}

type Store interface {
	ListAll(ctx context.Context) ([]model.Appointment, error)
	ListCreatedSince(ctx context.Context, since time.Time) ([]model.Appointment, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan struct{}, error)
}

type Snapshot struct {
	Appointments []model.Appointment `json:"appointments"`
	Summary      Summary             `json:"summary"`
	TakenAt      time.Time           `json:"takenAt"`
}

type Summary struct {
	Today                  int   `json:"today"`
	Pending                int   `json:"pending"`
	MonthlyRevenueEstimate int64 `json:"monthlyRevenueEstimate"`
}

type Stats struct {
	Since        time.Time `json:"since"`
	Total        int       `json:"total"`
	Confirmed    int       `json:"confirmed"`
	Pending      int       `json:"pending"`
	RevenueCents int64     `json:"revenueCents"`
}

type View struct {
	store  Store
	signal Subscriber
	cfg    *business.Config
	logger *slog.Logger
	now    func() time.Time
}

func NewView(store Store, signal Subscriber, cfg *business.Config, logger *slog.Logger) *View {
	return &View{store: store, signal: signal, cfg: cfg, logger: logger, now: time.Now}
}

// Snapshot lists every appointment, newest instant first, with its summary.
func (v *View) Snapshot(ctx context.Context) (Snapshot, error) {
	appts, err := v.store.ListAll(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	now := v.now()
	return Snapshot{
		Appointments: appts,
		Summary:      Summarize(appts, now, v.cfg.Location()),
		TakenAt:      now.UTC(),
	}, nil
}

// Summarize counts today's appointments and pending requests and estimates
// revenue for the current month. Days and months are business-local.
func Summarize(appts []model.Appointment, now time.Time, loc *time.Location) Summary {
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var s Summary
	for _, a := range appts {
		at := a.AppointmentAt.In(loc)
		if !at.Before(dayStart) && at.Before(dayEnd) {
			s.Today++
		}
		if a.Status == model.StatusPending {
			s.Pending++
		}
		if a.Status != model.StatusCancelled && at.Year() == local.Year() && at.Month() == local.Month() {
			s.MonthlyRevenueEstimate += EstimatePrice(a.ServiceName)
		}
	}
	return s
}

// EstimatePrice maps a service name to dollars by keyword; no match is 0.
func EstimatePrice(serviceName string) int64 {
	var price int64
	for _, k := range revenueKeywords {
		if strings.Contains(serviceName, k.keyword) {
			price = k.dollars
		}
	}
	return price
}

// Stats aggregates appointments created during the last StatsWindow.
func (v *View) Stats(ctx context.Context) (Stats, error) {
	since := v.now().Add(-StatsWindow).UTC()
	appts, err := v.store.ListCreatedSince(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	out := Stats{Since: since, Total: len(appts)}
	for _, a := range appts {
		if a.Status == model.StatusConfirmed {
			out.Confirmed++
		} else {
			out.Pending++
		}
		out.RevenueCents += a.AmountCents
	}
	return out, nil
}

// Watch emits a snapshot immediately and again after every change signal. The
// channel closes once ctx is done. Snapshots that fail to load are logged and
// skipped; a slow reader only ever sees the newest pending snapshot.
func (v *View) Watch(ctx context.Context) (<-chan Snapshot, error) {
	changes, err := v.signal.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	first, err := v.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Snapshot, 1)
	out <- first
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				snap, err := v.Snapshot(ctx)
				if err != nil {
					if ctx.Err() == nil {
						v.logger.Warn("admin snapshot failed", "err", err)
					}
					continue
				}
				select {
				case <-out:
				default:
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
