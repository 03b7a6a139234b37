package availability

import (
	"time"

	"github.com/gildedshear/platform/libs/business"
)

// CalendarDate is a day on the business calendar with no time component.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseDate(s string) (CalendarDate, error) {
	t, err := time.Parse(business.DateLayout, s)
	if err != nil {
		return CalendarDate{}, err
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

func (d CalendarDate) String() string {
	return d.Midnight(time.UTC).Format(business.DateLayout)
}

// Midnight is the start of the day in loc.
func (d CalendarDate) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// Clock returns the instant at the given minutes past midnight, wall clock, in loc.
func (d CalendarDate) Clock(loc *time.Location, minutes int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, minutes, 0, 0, loc)
}

func (d CalendarDate) AddDays(n int) CalendarDate {
	return DateOf(d.Midnight(time.UTC).AddDate(0, 0, n))
}

func (d CalendarDate) Before(o CalendarDate) bool {
	return d.Midnight(time.UTC).Before(o.Midnight(time.UTC))
}

func (d CalendarDate) After(o CalendarDate) bool {
	return o.Before(d)
}

// Bounds returns [start, end) of the day in loc as absolute instants.
func (d CalendarDate) Bounds(loc *time.Location) (time.Time, time.Time) {
	return d.Midnight(loc), d.AddDays(1).Midnight(loc)
}

// MonthBounds returns [start, end) of a calendar month in loc.
func MonthBounds(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
