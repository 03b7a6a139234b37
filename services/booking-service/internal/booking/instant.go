package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gildedshear/platform/libs/business"
)

var (
	ErrMissingBookingTime = errors.New("missing booking date or time")
	ErrInvalidBookingTime = errors.New("invalid booking date or time")
)

var clockLayouts = []string{"15:04", "3:04 PM", "3:04PM"}

// NormalizeTime accepts "HH:MM" (24h) or a civilian label such as "4:30 PM"
// in any case, and returns the 24h "HH:MM" form.
func NormalizeTime(raw string) (string, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	if s == "" {
		return "", ErrMissingBookingTime
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", fmt.Errorf("%w: time %q", ErrInvalidBookingTime, raw)
}

// ResolveInstant interprets date and a 24h clock as wall time in loc. Wall
// times that do not exist in loc (a DST gap) are rejected.
func ResolveInstant(date, time24 string, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" || time24 == "" {
		return time.Time{}, ErrMissingBookingTime
	}
	const layout = business.DateLayout + " 15:04"
	t, err := time.ParseInLocation(layout, date+" "+time24, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrInvalidBookingTime, date, time24)
	}
	if t.Format(layout) != date+" "+time24 {
		return time.Time{}, fmt.Errorf("%w: %s %s does not exist in %s", ErrInvalidBookingTime, date, time24, loc)
	}
	return t.UTC(), nil
}
