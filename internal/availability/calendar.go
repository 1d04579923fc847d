package availability

import (
	"errors"
	"fmt"
	"time"

	"appointease/pkg/clock"
	"appointease/pkg/config"
	"appointease/pkg/model"
	"appointease/pkg/validation"
)

// Calendar decides which slots are legal to book: on the grid, inside
// business hours, on a working day, not in the past and not too far ahead.
type Calendar struct {
	hours       model.BusinessHours
	loc         *time.Location
	advanceDays int
	pastGrace   time.Duration
	clock       clock.Clock
}

func NewCalendar(cfg *config.Config, clk clock.Clock) *Calendar {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Calendar{
		hours:       cfg.BusinessHours(),
		loc:         cfg.Location(),
		advanceDays: cfg.AdvanceBookingDays,
		pastGrace:   cfg.PastGrace,
		clock:       clk,
	}
}

func (c *Calendar) Hours() model.BusinessHours {
	return c.hours
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) Now() time.Time {
	return c.clock.Now().In(c.loc)
}

// Horizon is the latest instant a slot may start at.
func (c *Calendar) Horizon() time.Time {
	return c.Now().AddDate(0, 0, c.advanceDays)
}

// Resolve parses a client supplied date (and optional time) into a slot.
func (c *Calendar) Resolve(employeeID, serviceID int64, date, clockStr string) (model.Slot, time.Time, error) {
	start, err := model.ParseDateTime(date, clockStr, c.loc)
	if errors.Is(err, model.ErrConflictingTime) {
		return model.Slot{}, time.Time{}, validation.Field("time", "time does not match the time given in date")
	}
	if err != nil {
		return model.Slot{}, time.Time{}, validation.Field("date", "date must be YYYY-MM-DD HH:MM[:SS] or RFC 3339")
	}
	return model.SlotAt(employeeID, serviceID, start), start, nil
}

// CheckBookable returns ValidationErrors describing why start cannot be booked.
func (c *Calendar) CheckBookable(start time.Time) error {
	start = start.In(c.loc)
	now := c.Now()

	if start.Before(now.Add(-c.pastGrace)) {
		return validation.Field("date", "date cannot be in the past")
	}
	if start.After(c.Horizon()) {
		return validation.Field("date", fmt.Sprintf("date cannot be more than %d days in advance", c.advanceDays))
	}
	if !c.hours.IsWorkingDay(start.Weekday()) {
		return validation.Field("date", fmt.Sprintf("%s is not a working day", start.Weekday()))
	}
	off := model.OffsetOf(start)
	if !c.hours.Contains(off) {
		return validation.Field("time", fmt.Sprintf("time must be a %s slot between %s and %s",
			c.hours.SlotDuration, model.FormatClock(c.hours.Start), model.FormatClock(c.hours.End)))
	}
	return nil
}

// Bookable reports whether start passes CheckBookable.
func (c *Calendar) Bookable(start time.Time) bool {
	return c.CheckBookable(start) == nil
}

// DayStarts lists the slot start instants on the calendar day of day.
func (c *Calendar) DayStarts(day time.Time) []time.Time {
	day = day.In(c.loc)
	if !c.hours.IsWorkingDay(day.Weekday()) {
		return nil
	}
	y, m, d := day.Date()

	offsets := c.hours.Offsets()
	out := make([]time.Time, 0, len(offsets))
	for _, off := range offsets {
		h, rest := off/time.Hour, off%time.Hour
		out = append(out, time.Date(y, m, d, int(h), int(rest/time.Minute), 0, 0, c.loc))
	}
	return out
}
