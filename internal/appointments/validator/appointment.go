package validator

import (
	"errors"
	"time"

	"appointease/internal/availability"
	"appointease/pkg/logger"
	"appointease/pkg/model"
	"appointease/pkg/validation"
)

type AppointmentValidator struct {
	validate *validation.Validator
	calendar *availability.Calendar
	logger   *logger.Logger
}

func NewAppointmentValidator(calendar *availability.Calendar, log *logger.Logger) *AppointmentValidator {
	return &AppointmentValidator{
		validate: validation.New(),
		calendar: calendar,
		logger:   log,
	}
}

// Validate checks the payload shape and then the legality of the requested
// slot. Problems are returned as validation.ValidationErrors.
func (v *AppointmentValidator) Validate(req *model.AppointmentRequest) (model.Slot, time.Time, error) {
	if err := v.validate.Struct(req); err != nil {
		return model.Slot{}, time.Time{}, err
	}
	return v.slot(req.EmployeeID, req.ServiceID, req.Date, req.Time)
}

// ValidateReschedule checks a move of appt to the requested date.
func (v *AppointmentValidator) ValidateReschedule(appt *model.Appointment, req *model.RescheduleRequest) (model.Slot, time.Time, error) {
	if err := v.validate.Struct(req); err != nil {
		return model.Slot{}, time.Time{}, err
	}
	slot, start, err := v.slot(appt.EmployeeID, appt.ServiceID, req.NewDate, req.NewTime)
	if err != nil {
		return model.Slot{}, time.Time{}, renameField(err, "date", "new_date")
	}
	return slot, start, nil
}

func (v *AppointmentValidator) slot(employeeID, serviceID int64, date, clock string) (model.Slot, time.Time, error) {
	slot, start, err := v.calendar.Resolve(employeeID, serviceID, date, clock)
	if err != nil {
		return model.Slot{}, time.Time{}, err
	}
	if err := v.calendar.CheckBookable(start); err != nil {
		v.logger.Debug("Slot rejected", "slot", slot.OccupancyKey(), "error", err)
		return model.Slot{}, time.Time{}, err
	}
	return slot, start, nil
}

func renameField(err error, from, to string) error {
	var verrs validation.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(validation.ValidationErrors, len(verrs))
	for i, e := range verrs {
		if e.Field == from {
			e.Field = to
		}
		out[i] = e
	}
	return out
}
