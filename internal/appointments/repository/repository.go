package repository

import (
	"context"
	"time"

	"appointease/pkg/model"
)

// AppointmentRepository stores appointments and enforces at most one
// confirmed appointment per (employee, date, time).
type AppointmentRepository interface {
	// Reserve assigns the strong id and stores appt as confirmed, or fails
	// with ErrSlotTaken. It is atomic per occupancy key.
	Reserve(ctx context.Context, appt *model.Appointment) error
	FindByID(ctx context.Context, id string) (*model.Appointment, error)
	FindByStrongID(ctx context.Context, strongID string) (*model.Appointment, error)
	FindByEmail(ctx context.Context, email string) ([]*model.Appointment, error)
	// Cancel moves a confirmed appointment to cancelled. The bool reports
	// whether it was already cancelled.
	Cancel(ctx context.Context, id string, at time.Time) (*model.Appointment, bool, error)
	// Move re-slots a confirmed appointment. The new cell is taken before
	// the old one is freed; ErrSlotTaken leaves the appointment unchanged.
	Move(ctx context.Context, id string, slot model.Slot, startsAt, at time.Time) (*model.Appointment, error)
	IsOccupied(ctx context.Context, slot model.Slot) (bool, error)
	// OccupiedTimes returns the sorted HH:MM times of confirmed appointments.
	OccupiedTimes(ctx context.Context, employeeID int64, date string) ([]string, error)
	// OccupiedBetween returns confirmed cells of employee on dates in
	// [fromDate, toDate], keyed by model.Slot.OccupancyKey.
	OccupiedBetween(ctx context.Context, employeeID int64, fromDate, toDate string) (map[string]bool, error)
}
