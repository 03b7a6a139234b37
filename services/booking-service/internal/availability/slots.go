package availability

import (
	"time"

	"github.com/gildedshear/platform/libs/business"
)

// Generator emits the candidate slot labels for a calendar date.
type Generator struct {
	cfg *business.Config
}

func NewGenerator(cfg *business.Config) *Generator {
	return &Generator{cfg: cfg}
}

// GenerateSlots returns slot labels for date, ordered by start time. Today's
// slots start no earlier than now plus the lead time, rounded up to the next
// interval boundary. A slot is emitted only if it starts before closing.
func (g *Generator) GenerateSlots(date CalendarDate, now time.Time) []string {
	loc := g.cfg.Location()
	nowLocal := now.In(loc)
	today := DateOf(nowLocal)

	if date.Before(today) {
		return nil
	}
	if limit := g.cfg.MaxAdvanceDays; limit > 0 && date.After(today.AddDays(limit)) {
		return nil
	}
	hours, open := g.cfg.HoursFor(date.Midnight(loc).Weekday())
	if !open {
		return nil
	}

	start := date.Clock(loc, hours.OpenMinutes())
	closeAt := date.Clock(loc, hours.CloseMinutes())

	if date == today {
		earliest, ok := g.earliestBookable(nowLocal, date)
		if !ok || !earliest.Before(closeAt) {
			return nil
		}
		if earliest.After(start) {
			start = earliest
		}
	}

	interval := g.cfg.Interval()
	var labels []string
	for t := start; t.Before(closeAt); t = t.Add(interval) {
		labels = append(labels, g.cfg.Label(t))
	}
	return labels
}

// earliestBookable is now (to the minute) plus lead time, rounded up on the
// local wall clock. ok is false when that lands on a later day.
func (g *Generator) earliestBookable(nowLocal time.Time, date CalendarDate) (time.Time, bool) {
	loc := g.cfg.Location()
	t := nowLocal.Truncate(time.Minute).Add(g.cfg.LeadTime()).In(loc)
	if DateOf(t) != date {
		return time.Time{}, false
	}
	minutes := t.Hour()*60 + t.Minute()
	if rem := minutes % g.cfg.SlotIntervalMinutes; rem != 0 {
		minutes += g.cfg.SlotIntervalMinutes - rem
	}
	return date.Clock(loc, minutes), true
}
