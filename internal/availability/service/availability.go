package service

import (
	"context"
	"errors"

	"appointease/internal/appointments/repository"
	"appointease/internal/availability"
	lockservice "appointease/internal/slotlocks/service"
	"appointease/pkg/config"
	apperrors "appointease/pkg/errors"
	"appointease/pkg/logger"
	"appointease/pkg/model"
	"appointease/pkg/sanitizer"
	"appointease/pkg/validation"
)

type AvailabilityService interface {
	Unavailable(ctx context.Context, req *model.AvailabilityRequest) (*model.AvailabilityResponse, error)
	CheckSlot(ctx context.Context, req *model.SlotRequest) (*model.SlotStatus, error)
	IsAvailable(ctx context.Context, slot model.Slot, holder string) (bool, error)
}

type availabilityService struct {
	repo      repository.AppointmentRepository
	locks     lockservice.LockService
	calendar  *availability.Calendar
	validator *validation.Validator
	log       *logger.Logger
}

func NewAvailabilityService(
	repo repository.AppointmentRepository,
	locks lockservice.LockService,
	calendar *availability.Calendar,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		repo:      repo,
		locks:     locks,
		calendar:  calendar,
		validator: validation.New(),
		log:       cfg.Log,
	}
}

func asValidation(err error, message string) error {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.AppError(message)
	}
	return err
}

// Unavailable lists booked times straight from storage plus the times
// currently held by advisory locks.
func (s *availabilityService) Unavailable(ctx context.Context, req *model.AvailabilityRequest) (*model.AvailabilityResponse, error) {
	req.Date = sanitizer.TrimAndNormalize(req.Date)
	if err := s.validator.Struct(req); err != nil {
		return nil, asValidation(err, "Invalid availability request")
	}
	day, err := model.ParseDate(req.Date, s.calendar.Location())
	if err != nil {
		return nil, validation.Field("date", "date must be YYYY-MM-DD").AppError("Invalid availability request")
	}
	date := day.Format(model.DateLayout)

	booked, err := s.repo.OccupiedTimes(ctx, req.EmployeeID, date)
	if err != nil {
		s.log.Error("Failed to read booked times", "employee_id", req.EmployeeID, "date", date, "error", err)
		return nil, apperrors.Internal("Failed to retrieve availability", err)
	}

	locks, err := s.locks.Active(ctx, req.EmployeeID, date)
	if err != nil {
		// locks are advisory; the calendar still renders without them
		s.log.Warn("Slot locks unavailable for availability", "employee_id", req.EmployeeID, "date", date, "error", err)
		locks = nil
	}
	locked := make([]string, 0, len(locks))
	for _, l := range locks {
		locked = append(locked, l.Slot.Time)
	}

	return &model.AvailabilityResponse{
		Date:        date,
		EmployeeID:  req.EmployeeID,
		Unavailable: booked,
		Locked:      locked,
	}, nil
}

func (s *availabilityService) CheckSlot(ctx context.Context, req *model.SlotRequest) (*model.SlotStatus, error) {
	req.Date = sanitizer.TrimAndNormalize(req.Date)
	req.Time = sanitizer.TrimAndNormalize(req.Time)
	req.ClientID = sanitizer.NormalizeToken(req.ClientID)
	if err := s.validator.Struct(req); err != nil {
		return nil, asValidation(err, "Invalid slot check request")
	}
	slot, start, err := s.calendar.Resolve(req.EmployeeID, 0, req.Date, req.Time)
	if err != nil {
		return nil, asValidation(err, "Invalid slot check request")
	}

	booked, lockedByOther, err := s.state(ctx, slot, req.ClientID)
	if err != nil {
		return nil, err
	}
	return &model.SlotStatus{
		Slot:      slot,
		Available: !booked && !lockedByOther && s.calendar.Bookable(start),
		Booked:    booked,
		Locked:    lockedByOther,
	}, nil
}

// IsAvailable is true when no confirmed appointment occupies slot and no
// lock held by someone other than holder blocks it.
func (s *availabilityService) IsAvailable(ctx context.Context, slot model.Slot, holder string) (bool, error) {
	booked, lockedByOther, err := s.state(ctx, slot, holder)
	if err != nil {
		return false, err
	}
	return !booked && !lockedByOther, nil
}

func (s *availabilityService) state(ctx context.Context, slot model.Slot, holder string) (booked, lockedByOther bool, err error) {
	booked, err = s.repo.IsOccupied(ctx, slot)
	if err != nil {
		s.log.Error("Failed to check slot occupancy", "slot", slot.OccupancyKey(), "error", err)
		return false, false, apperrors.Internal("Failed to check slot", err)
	}

	lock, err := s.locks.Get(ctx, slot)
	if err != nil {
		s.log.Warn("Slot lock unavailable for slot check", "slot", slot.OccupancyKey(), "error", err)
		return booked, false, nil
	}
	return booked, lock != nil && !lock.HeldBy(holder), nil
}
