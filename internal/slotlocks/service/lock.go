package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"appointease/internal/availability"
	slotlockserrors "appointease/internal/slotlocks/errors"
	"appointease/internal/slotlocks/repository"
	"appointease/pkg/config"
	apperrors "appointease/pkg/errors"
	"appointease/pkg/logger"
	"appointease/pkg/metrics"
	"appointease/pkg/model"
	"appointease/pkg/sanitizer"
	"appointease/pkg/validation"
)

type LockService interface {
	Acquire(ctx context.Context, slot model.Slot, holder string, ttl time.Duration) (*model.SlotLock, error)
	Release(ctx context.Context, slot model.Slot, holder string) (bool, error)
	Get(ctx context.Context, slot model.Slot) (*model.SlotLock, error)
	Active(ctx context.Context, employeeID int64, date string) ([]model.SlotLock, error)
	Stats(ctx context.Context) (model.LockStats, error)

	Select(ctx context.Context, req *model.SlotRequest) (*model.SlotLock, error)
	Deselect(ctx context.Context, req *model.SlotRequest) (bool, error)
	Stop()
}

type lockService struct {
	repo       repository.LockRepository
	calendar   *availability.Calendar
	validator  *validation.Validator
	defaultTTL time.Duration
	maxTTL     time.Duration
	metrics    metrics.Recorder
	log        *logger.Logger

	acquired atomic.Int64
	rejected atomic.Int64
	released atomic.Int64
}

func NewLockService(
	repo repository.LockRepository,
	calendar *availability.Calendar,
	cfg *config.Config,
	rec metrics.Recorder,
) LockService {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &lockService{
		repo:       repo,
		calendar:   calendar,
		validator:  validation.New(),
		defaultTTL: cfg.LockTTL,
		maxTTL:     cfg.LockMaxTTL,
		metrics:    rec,
		log:        cfg.Log,
	}
}

// clampTTL applies the default for zero and caps at the maximum.
func (s *lockService) clampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.defaultTTL
	}
	return min(ttl, s.maxTTL)
}

func (s *lockService) Acquire(ctx context.Context, slot model.Slot, holder string, ttl time.Duration) (*model.SlotLock, error) {
	if holder == "" {
		return nil, validation.Field("client_id", "client_id is required").AppError("Invalid slot lock request")
	}

	start := time.Now()
	lock, err := s.repo.Acquire(ctx, slot, holder, s.clampTTL(ttl))
	s.metrics.RecordLockOperation("acquire", time.Since(start))

	var locked *slotlockserrors.LockedError
	switch {
	case err == nil:
		s.acquired.Add(1)
		s.log.Debug("Slot lock acquired", "slot", slot.OccupancyKey(), "expires_at", lock.ExpiresAt)
		return lock, nil
	case errors.As(err, &locked):
		s.rejected.Add(1)
		s.metrics.RecordLockRejected()
		return nil, lockUnavailable(locked.Lock)
	default:
		s.log.Error("Failed to acquire slot lock", "slot", slot.OccupancyKey(), "error", err)
		return nil, apperrors.Unavailable("Slot lock store")
	}
}

func lockUnavailable(lock model.SlotLock) *apperrors.AppError {
	retryAfter := int(math.Ceil(time.Until(lock.ExpiresAt).Seconds()))
	return apperrors.LockUnavailable("Slot is being selected by another user").WithDetails(map[string]any{
		"slot":                lock.Slot,
		"expires_at":          lock.ExpiresAt,
		"retry_after_seconds": max(retryAfter, 0),
	})
}

func (s *lockService) Release(ctx context.Context, slot model.Slot, holder string) (bool, error) {
	if holder == "" {
		return false, nil
	}

	start := time.Now()
	released, err := s.repo.Release(ctx, slot, holder)
	s.metrics.RecordLockOperation("release", time.Since(start))

	switch {
	case err == nil:
		if released {
			s.released.Add(1)
		}
		return released, nil
	case errors.Is(err, slotlockserrors.ErrNotHolder):
		return false, apperrors.LockUnavailable("Slot lock is held by another client")
	default:
		s.log.Error("Failed to release slot lock", "slot", slot.OccupancyKey(), "error", err)
		return false, apperrors.Unavailable("Slot lock store")
	}
}

func (s *lockService) Get(ctx context.Context, slot model.Slot) (*model.SlotLock, error) {
	lock, err := s.repo.Get(ctx, slot)
	if err != nil {
		s.log.Error("Failed to read slot lock", "slot", slot.OccupancyKey(), "error", err)
		return nil, apperrors.Unavailable("Slot lock store")
	}
	return lock, nil
}

func (s *lockService) Active(ctx context.Context, employeeID int64, date string) ([]model.SlotLock, error) {
	locks, err := s.repo.Active(ctx, employeeID, date)
	if err != nil {
		s.log.Error("Failed to list slot locks", "employee_id", employeeID, "date", date, "error", err)
		return nil, apperrors.Unavailable("Slot lock store")
	}
	return locks, nil
}

func (s *lockService) Stats(ctx context.Context) (model.LockStats, error) {
	active, err := s.repo.Count(ctx)
	if err != nil {
		s.log.Error("Failed to count slot locks", "error", err)
		return model.LockStats{}, apperrors.Unavailable("Slot lock store")
	}
	return model.LockStats{
		Backend:       s.repo.Backend(),
		ActiveLocks:   active,
		AcquiredTotal: s.acquired.Load(),
		RejectedTotal: s.rejected.Load(),
		ReleasedTotal: s.released.Load(),
	}, nil
}

// resolve validates req and turns it into a bookable slot.
func (s *lockService) resolve(req *model.SlotRequest) (model.Slot, error) {
	req.Date = sanitizer.TrimAndNormalize(req.Date)
	req.Time = sanitizer.TrimAndNormalize(req.Time)
	req.ClientID = sanitizer.NormalizeToken(req.ClientID)

	if err := s.validator.Struct(req); err != nil {
		return model.Slot{}, asValidation(err)
	}
	slot, start, err := s.calendar.Resolve(req.EmployeeID, 0, req.Date, req.Time)
	if err != nil {
		return model.Slot{}, asValidation(err)
	}
	if err := s.calendar.CheckBookable(start); err != nil {
		return model.Slot{}, asValidation(err)
	}
	return slot, nil
}

func asValidation(err error) error {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.AppError("Invalid slot lock request")
	}
	return apperrors.InvalidInput(fmt.Sprintf("Invalid slot lock request: %v", err))
}

func (s *lockService) Select(ctx context.Context, req *model.SlotRequest) (*model.SlotLock, error) {
	slot, err := s.resolve(req)
	if err != nil {
		return nil, err
	}
	return s.Acquire(ctx, slot, req.ClientID, time.Duration(req.TTLSeconds)*time.Second)
}

func (s *lockService) Deselect(ctx context.Context, req *model.SlotRequest) (bool, error) {
	if req.ClientID == "" {
		return false, validation.Field("client_id", "client_id is required").AppError("Invalid slot lock request")
	}
	slot, err := s.resolve(req)
	if err != nil {
		return false, err
	}
	return s.Release(ctx, slot, req.ClientID)
}

func (s *lockService) Stop() {
	s.repo.Stop()
}
