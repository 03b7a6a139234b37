package availability

import (
	"time"

	"github.com/gildedshear/platform/libs/business"
	"github.com/gildedshear/platform/services/booking-service/internal/model"
)

// Reducer removes labels occupied by existing appointments. It formats labels
// with the same business.Config as the Generator so both sides agree.
type Reducer struct {
	cfg *business.Config
}

func NewReducer(cfg *business.Config) *Reducer {
	return &Reducer{cfg: cfg}
}

// Expand lists the labels one appointment blocks: its start, then every
// interval step whose offset is still below the duration.
func (r *Reducer) Expand(appt model.Appointment) []string {
	if !appt.Occupies() {
		return nil
	}
	duration := appt.Duration()
	if duration <= 0 {
		duration = r.cfg.DefaultDuration()
	}
	start := appt.AppointmentAt.In(r.cfg.Location())
	interval := r.cfg.Interval()

	var labels []string
	for offset := time.Duration(0); offset < duration; offset += interval {
		labels = append(labels, r.cfg.Label(start.Add(offset)))
	}
	return labels
}

func (r *Reducer) BlockedLabels(appts []model.Appointment) map[string]struct{} {
	blocked := make(map[string]struct{})
	for _, appt := range appts {
		for _, label := range r.Expand(appt) {
			blocked[label] = struct{}{}
		}
	}
	return blocked
}

// AvailableSlots filters all down to labels no appointment blocks, keeping order.
func (r *Reducer) AvailableSlots(all []string, appts []model.Appointment) []string {
	blocked := r.BlockedLabels(appts)
	out := make([]string, 0, len(all))
	for _, label := range all {
		if _, ok := blocked[label]; !ok {
			out = append(out, label)
		}
	}
	return out
}

// GroupBlockedByDate keys blocked labels by each appointment's business-local
// date ("2006-01-02"). Labels within a day keep first-seen order.
func (r *Reducer) GroupBlockedByDate(appts []model.Appointment) map[string][]string {
	loc := r.cfg.Location()
	out := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	for _, appt := range appts {
		labels := r.Expand(appt)
		if len(labels) == 0 {
			continue
		}
		day := appt.AppointmentAt.In(loc).Format(business.DateLayout)
		if seen[day] == nil {
			seen[day] = make(map[string]bool)
		}
		for _, label := range labels {
			if seen[day][label] {
				continue
			}
			seen[day][label] = true
			out[day] = append(out[day], label)
		}
	}
	return out
}

// Exclude drops every label in blocked from all, keeping order.
func Exclude(all, blocked []string) []string {
	skip := make(map[string]struct{}, len(blocked))
	for _, label := range blocked {
		skip[label] = struct{}{}
	}
	out := make([]string, 0, len(all))
	for _, label := range all {
		if _, ok := skip[label]; !ok {
			out = append(out, label)
		}
	}
	return out
}
