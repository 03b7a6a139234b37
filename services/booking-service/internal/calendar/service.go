// Package calendar answers availability questions for the public API by
// combining the slot generator with booked appointments, fetched once per
// month and cached in Redis.
package calendar

import (
	"context"
	"log/slog"
	"time"

	"github.com/gildedshear/platform/libs/business"
	"github.com/gildedshear/platform/libs/metrics"
	"github.com/gildedshear/platform/services/booking-service/internal/availability"
	"github.com/gildedshear/platform/services/booking-service/internal/cache"
	"github.com/gildedshear/platform/services/booking-service/internal/model"
)

type AppointmentLister interface {
	ListBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
}

type Service struct {
	repo    AppointmentLister
	cache   *cache.MonthCache
	cfg     *business.Config
	gen     *availability.Generator
	reducer *availability.Reducer
	logger  *slog.Logger
	metrics *metrics.BookingMetrics
	now     func() time.Time
}

func NewService(repo AppointmentLister, monthCache *cache.MonthCache, cfg *business.Config, logger *slog.Logger, m *metrics.BookingMetrics) *Service {
	return &Service{
		repo:    repo,
		cache:   monthCache,
		cfg:     cfg,
		gen:     availability.NewGenerator(cfg),
		reducer: availability.NewReducer(cfg),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Month returns blocked labels per business-local date for one month.
func (s *Service) Month(ctx context.Context, year int, month time.Month) (map[string][]string, error) {
	days, ok, err := s.cache.Get(ctx, year, month)
	if err != nil {
		s.logger.Warn("month cache read failed", "err", err, "year", year, "month", int(month))
	}
	if ok {
		s.metrics.ObserveMonthCache(true)
		return days, nil
	}
	s.metrics.ObserveMonthCache(false)

	gen, genErr := s.cache.Generation(ctx, year, month)
	if genErr != nil {
		s.logger.Warn("month cache generation read failed", "err", genErr, "year", year, "month", int(month))
	}

	start, end := availability.MonthBounds(year, month, s.cfg.Location())
	appts, err := s.repo.ListBetween(ctx, start, end)
	if err != nil {
		return nil, err
	}
	days = s.reducer.GroupBlockedByDate(appts)
	if genErr == nil {
		if _, err := s.cache.Set(ctx, year, month, gen, days); err != nil {
			s.logger.Warn("month cache write failed", "err", err, "year", year, "month", int(month))
		}
	}
	return days, nil
}

// Booked returns the blocked labels of one date.
func (s *Service) Booked(ctx context.Context, date availability.CalendarDate) ([]string, error) {
	days, err := s.Month(ctx, date.Year, date.Month)
	if err != nil {
		return nil, err
	}
	booked := days[date.String()]
	if booked == nil {
		booked = []string{}
	}
	return booked, nil
}

// Slots returns the bookable labels of one date.
func (s *Service) Slots(ctx context.Context, date availability.CalendarDate) ([]string, error) {
	all := s.gen.GenerateSlots(date, s.now())
	if len(all) == 0 {
		return []string{}, nil
	}
	booked, err := s.Booked(ctx, date)
	if err != nil {
		return nil, err
	}
	return availability.Exclude(all, booked), nil
}

// CanBook reports whether an appointment of the given duration could start at
// at: the start must be an offered slot and none of the labels it would block
// may be taken.
func (s *Service) CanBook(ctx context.Context, at time.Time, duration time.Duration) (bool, error) {
	local := at.In(s.cfg.Location())
	date := availability.DateOf(local)
	label := s.cfg.Label(local)

	offered := false
	for _, l := range s.gen.GenerateSlots(date, s.now()) {
		if l == label {
			offered = true
			break
		}
	}
	if !offered {
		return false, nil
	}

	booked, err := s.Booked(ctx, date)
	if err != nil {
		return false, err
	}
	taken := make(map[string]bool, len(booked))
	for _, l := range booked {
		taken[l] = true
	}
	candidate := model.Appointment{
		AppointmentAt:   at,
		DurationMinutes: int(duration / time.Minute),
		Status:          model.StatusConfirmed,
	}
	for _, l := range s.reducer.Expand(candidate) {
		if taken[l] {
			return false, nil
		}
	}
	return true, nil
}

// Invalidate drops the cached month containing at.
func (s *Service) Invalidate(ctx context.Context, at time.Time) {
	local := at.In(s.cfg.Location())
	if err := s.cache.Invalidate(ctx, local.Year(), local.Month()); err != nil {
		s.logger.Warn("month cache invalidate failed", "err", err, "at", at.Format(time.RFC3339))
	}
}
