// Package conflicts proposes free alternatives when a requested slot is taken.
package conflicts

import (
	"context"
	"time"

	"appointease/internal/appointments/repository"
	"appointease/internal/availability"
	"appointease/pkg/model"
)

type Resolver struct {
	repo        repository.AppointmentRepository
	calendar    *availability.Calendar
	horizonDays int
}

func NewResolver(repo repository.AppointmentRepository, calendar *availability.Calendar, horizonDays int) *Resolver {
	return &Resolver{
		repo:        repo,
		calendar:    calendar,
		horizonDays: horizonDays,
	}
}

// Suggest returns up to n free, bookable slots near slot: later times on the
// same day first, then the same time on following working days within the
// horizon. The requested slot itself is never returned.
func (r *Resolver) Suggest(ctx context.Context, slot model.Slot, n int) ([]model.Slot, error) {
	out := []model.Slot{}
	if n <= 0 {
		return out, nil
	}

	start, err := slot.Start(r.calendar.Location())
	if err != nil {
		return out, nil
	}
	lastDay := start.AddDate(0, 0, r.horizonDays)

	occupied, err := r.repo.OccupiedBetween(ctx, slot.EmployeeID, slot.Date, lastDay.Format(model.DateLayout))
	if err != nil {
		return nil, err
	}

	consider := func(t time.Time) bool {
		candidate := model.SlotAt(slot.EmployeeID, slot.ServiceID, t)
		if candidate.SameCell(slot) || occupied[candidate.OccupancyKey()] || !r.calendar.Bookable(t) {
			return false
		}
		out = append(out, candidate)
		return len(out) == n
	}

	for _, t := range r.calendar.DayStarts(start) {
		if t.After(start) && consider(t) {
			return out, nil
		}
	}

	hours := r.calendar.Hours()
	day := start
	for {
		next, ok := hours.NextWorkingDay(day)
		if !ok || next.After(lastDay) {
			return out, nil
		}
		day = next
		if consider(day) {
			return out, nil
		}
	}
}
