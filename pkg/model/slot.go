package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ErrConflictingTime is returned when date carries a time of day that
// disagrees with the separately supplied clock.
var ErrConflictingTime = errors.New("date and time disagree")

// Slot is a single bookable unit on an employee's calendar.
type Slot struct {
	EmployeeID int64  `json:"employee_id" bson:"employee_id"`
	Date       string `json:"date" bson:"date"`
	Time       string `json:"time" bson:"time"`
	ServiceID  int64  `json:"service_id,omitempty" bson:"service_id,omitempty"`
}

// OccupancyKey identifies the exclusive (employee, date, time) cell the slot occupies.
func (s Slot) OccupancyKey() string {
	return fmt.Sprintf("%d:%s:%s", s.EmployeeID, s.Date, s.Time)
}

// SameCell reports whether both slots occupy the same (employee, date, time) cell.
func (s Slot) SameCell(other Slot) bool {
	return s.EmployeeID == other.EmployeeID && s.Date == other.Date && s.Time == other.Time
}

// Start returns the slot start instant in loc.
func (s Slot) Start(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout+" "+ClockLayout, s.Date+" "+s.Time, loc)
}

func (s Slot) String() string {
	return fmt.Sprintf("employee=%d %s %s", s.EmployeeID, s.Date, s.Time)
}

// SlotAt builds the slot for employee starting at t.
func SlotAt(employeeID, serviceID int64, t time.Time) Slot {
	return Slot{
		EmployeeID: employeeID,
		Date:       t.Format(DateLayout),
		Time:       t.Format(ClockLayout),
		ServiceID:  serviceID,
	}
}

// ParseDateTime accepts "YYYY-MM-DD HH:MM[:SS]", the same with a "T" separator,
// RFC 3339, or a bare date combined with clock ("HH:MM").
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	if clock != "" && len(date) == len(DateLayout) {
		date = date + " " + clock
	}

	t, err := parseDateTime(date, loc)
	if err != nil {
		return time.Time{}, err
	}
	if clock != "" && t.Format(ClockLayout) != clock {
		return time.Time{}, fmt.Errorf("%w: %q vs %q", ErrConflictingTime, date, clock)
	}
	return t, nil
}

func parseDateTime(date string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, date, loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", date)
}

// ParseDate parses a calendar day in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(date), loc)
}

// ParseClock converts "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse(ClockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// FormatClock renders an offset from midnight as "HH:MM".
func FormatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// OffsetOf returns the time of day of t as an offset from midnight.
func OffsetOf(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
