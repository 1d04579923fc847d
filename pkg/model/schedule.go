package model

import (
	"slices"
	"time"
)

// BusinessHours is the bookable calendar shared by every employee.
type BusinessHours struct {
	Start        time.Duration
	End          time.Duration
	SlotDuration time.Duration
	WorkingDays  []time.Weekday
}

func (b BusinessHours) IsWorkingDay(d time.Weekday) bool {
	return slices.Contains(b.WorkingDays, d)
}

// Offsets lists every slot start of a day. A slot must end by End.
func (b BusinessHours) Offsets() []time.Duration {
	if b.SlotDuration <= 0 {
		return nil
	}
	var out []time.Duration
	for off := b.Start; off+b.SlotDuration <= b.End; off += b.SlotDuration {
		out = append(out, off)
	}
	return out
}

// Times lists every slot start of a day as "HH:MM".
func (b BusinessHours) Times() []string {
	offsets := b.Offsets()
	out := make([]string, 0, len(offsets))
	for _, off := range offsets {
		out = append(out, FormatClock(off))
	}
	return out
}

// Contains reports whether off is a slot start on the grid.
func (b BusinessHours) Contains(off time.Duration) bool {
	if b.SlotDuration <= 0 || off < b.Start || off+b.SlotDuration > b.End {
		return false
	}
	return (off-b.Start)%b.SlotDuration == 0
}

// NextWorkingDay returns the first working day strictly after day.
// ok is false when no working day is configured.
func (b BusinessHours) NextWorkingDay(day time.Time) (next time.Time, ok bool) {
	if len(b.WorkingDays) == 0 {
		return time.Time{}, false
	}
	next = day
	for range 7 {
		next = next.AddDate(0, 0, 1)
		if b.IsWorkingDay(next.Weekday()) {
			return next, true
		}
	}
	return time.Time{}, false
}
