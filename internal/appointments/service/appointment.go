package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	appointmentserrors "appointease/internal/appointments/errors"
	"appointease/internal/appointments/repository"
	"appointease/internal/appointments/validator"
	"appointease/internal/conflicts"
	"appointease/internal/events"
	"appointease/internal/idempotency"
	lockservice "appointease/internal/slotlocks/service"
	"appointease/pkg/clock"
	"appointease/pkg/config"
	apperrors "appointease/pkg/errors"
	"appointease/pkg/logger"
	"appointease/pkg/metrics"
	"appointease/pkg/model"
	"appointease/pkg/ratelimit"
	"appointease/pkg/sanitizer"
	"appointease/pkg/validation"

	"github.com/google/uuid"
)

const maxIdempotencyKeyLength = 255

const (
	messageBooked      = "Appointment booked successfully"
	messageSlotTaken   = "Time slot is no longer available"
	messageRescheduled = "Appointment rescheduled successfully"
)

type AppointmentService interface {
	// Book runs the commit path. Committed and conflicted outcomes, and
	// replays of either, are returned as a Result; everything else is an
	// AppError.
	Book(ctx context.Context, req *model.AppointmentRequest, idempotencyKey string) (*Result, error)
	Get(ctx context.Context, id string) (*model.Appointment, error)
	ListByEmail(ctx context.Context, req *model.EmailLookupRequest) ([]*model.Appointment, error)
	Cancel(ctx context.Context, id string) (*model.CancelResponse, error)
	Reschedule(ctx context.Context, id string, req *model.RescheduleRequest) (*Result, error)
	Stop()
}

type appointmentService struct {
	repo      repository.AppointmentRepository
	store     idempotency.Store
	validator *validator.AppointmentValidator
	resolver  *conflicts.Resolver
	locks     lockservice.LockService
	publisher events.Publisher
	limiter   *ratelimit.SlidingWindow
	clock     clock.Clock
	metrics   metrics.Recorder
	log       *logger.Logger

	bookingTimeout  time.Duration
	suggestionCount int
}

func NewAppointmentService(
	repo repository.AppointmentRepository,
	store idempotency.Store,
	validator *validator.AppointmentValidator,
	resolver *conflicts.Resolver,
	locks lockservice.LockService,
	publisher events.Publisher,
	cfg *config.Config,
	clk clock.Clock,
	rec metrics.Recorder,
) AppointmentService {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &appointmentService{
		repo:            repo,
		store:           store,
		validator:       validator,
		resolver:        resolver,
		locks:           locks,
		publisher:       publisher,
		limiter:         ratelimit.NewSlidingWindow(cfg.BookingRateLimit, cfg.BookingRateWindow, clk),
		clock:           clk,
		metrics:         rec,
		log:             cfg.Log,
		bookingTimeout:  cfg.BookingTimeout,
		suggestionCount: cfg.SuggestionCount,
	}
}

func (s *appointmentService) Stop() {
	s.limiter.Stop()
}

func (s *appointmentService) sanitize(req *model.AppointmentRequest) {
	req.Name = sanitizer.NormalizeName(req.Name)
	req.Email = sanitizer.NormalizeEmail(req.Email)
	req.Phone = sanitizer.NormalizePhone(req.Phone)
	req.Date = sanitizer.TrimAndNormalize(req.Date)
	req.Time = sanitizer.TrimAndNormalize(req.Time)
	req.ClientID = sanitizer.NormalizeToken(req.ClientID)
}

func validationError(err error, message string) error {
	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.AppError(message)
	}
	return apperrors.Internal("Failed to validate request", err)
}

func (s *appointmentService) Book(ctx context.Context, req *model.AppointmentRequest, idempotencyKey string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.bookingTimeout)
	defer cancel()

	a := newAttempt()
	s.sanitize(req)

	key := sanitizer.NormalizeToken(idempotencyKey)
	if len(key) > maxIdempotencyKeyLength {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Idempotency key must be at most %d characters", maxIdempotencyKeyLength))
	}

	if key != "" {
		replay, err := s.claim(ctx, key, req)
		if err != nil {
			return nil, err
		}
		if replay != nil {
			if err := a.advance(StateDuplicate); err != nil {
				return nil, apperrors.Internal("Booking state machine failure", err)
			}
			s.metrics.RecordIdempotencyReplay()
			s.metrics.RecordBooking(string(StateDuplicate))
			s.log.Info("Booking replayed", "idempotency_key", key, "status", replay.StatusCode)
			return &Result{State: StateDuplicate, StatusCode: replay.StatusCode, Body: replay.Body}, nil
		}
	}

	result, err := s.commit(ctx, a, req)
	if err != nil {
		if key != "" {
			s.abandon(ctx, key)
		}
		return nil, err
	}

	if key != "" {
		if err := s.store.Complete(context.WithoutCancel(ctx), key, result.StatusCode, result.Body); err != nil {
			s.log.Error("Failed to bind idempotency key", "idempotency_key", key, "error", err)
		}
	}
	s.metrics.RecordBooking(string(result.State))
	return result, nil
}

// claim returns the stored record to replay, or nil once the key is held.
func (s *appointmentService) claim(ctx context.Context, key string, req *model.AppointmentRequest) (*model.IdempotencyRecord, error) {
	// The lock holder id differs between tabs and does not change the booking.
	payload := *req
	payload.ClientID = ""
	fingerprint, err := idempotency.Fingerprint(payload)
	if err != nil {
		return nil, apperrors.Internal("Failed to fingerprint request", err)
	}

	record, err := s.store.GetOrCreate(ctx, key, fingerprint)
	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, idempotency.ErrFingerprintMismatch):
		s.metrics.RecordBooking("key_reused")
		return nil, apperrors.IdempotencyReused()
	case errors.Is(err, idempotency.ErrInProgress):
		return nil, apperrors.IdempotencyInProgress()
	default:
		s.log.Error("Idempotency store failure", "idempotency_key", key, "error", err)
		return nil, apperrors.Unavailable("Idempotency store")
	}
}

func (s *appointmentService) abandon(ctx context.Context, key string) {
	if err := s.store.Abandon(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn("Failed to abandon idempotency key", "idempotency_key", key, "error", err)
	}
}

func (s *appointmentService) commit(ctx context.Context, a *attempt, req *model.AppointmentRequest) (*Result, error) {
	slot, start, err := s.validator.Validate(req)
	if err != nil {
		s.metrics.RecordBooking("invalid")
		return nil, validationError(err, "Invalid appointment request")
	}
	// only committed bookings use up the quota, conflicts do not
	if s.limiter.Exceeded(req.Email) {
		s.metrics.RecordBooking("rate_limited")
		retryAfter := int(math.Ceil(s.limiter.RetryAfter(req.Email).Seconds()))
		return nil, apperrors.RateLimited("Too many booking attempts, please try again later").
			WithDetails(map[string]any{"retry_after_seconds": max(retryAfter, 1)})
	}
	if err := a.advance(StateValidated); err != nil {
		return nil, apperrors.Internal("Booking state machine failure", err)
	}

	now := s.clock.Now()
	appt := &model.Appointment{
		ID:         uuid.NewString(),
		EmployeeID: slot.EmployeeID,
		ServiceID:  slot.ServiceID,
		Date:       slot.Date,
		Time:       slot.Time,
		StartsAt:   start,
		Customer: model.Customer{
			Name:  req.Name,
			Email: req.Email,
			Phone: req.Phone,
		},
		CreatedAt: now,
	}

	reserveErr := s.repo.Reserve(ctx, appt)
	if reserveErr != nil && !errors.Is(reserveErr, appointmentserrors.ErrSlotTaken) {
		return nil, s.infrastructureError(ctx, "reserve slot", slot, reserveErr)
	}
	if err := a.advance(StateSlotChecked); err != nil {
		return nil, apperrors.Internal("Booking state machine failure", err)
	}

	if reserveErr != nil {
		if err := a.advance(StateConflicted); err != nil {
			return nil, apperrors.Internal("Booking state machine failure", err)
		}
		return s.conflict(ctx, slot, model.EventSlotConflict)
	}

	if err := a.advance(StateCommitted); err != nil {
		return nil, apperrors.Internal("Booking state machine failure", err)
	}
	s.limiter.Record(req.Email)
	s.releaseLock(ctx, slot, req.ClientID)
	s.publisher.Publish(ctx, model.Event{
		Type:        model.EventAppointmentCreated,
		OccurredAt:  now,
		Slot:        &slot,
		Appointment: appt,
	})
	s.log.Info("Appointment booked",
		"id", appt.ID,
		"strong_id", appt.StrongID,
		"employee_id", appt.EmployeeID,
		"date", appt.Date,
		"time", appt.Time,
	)

	body, err := json.Marshal(model.BookingResponse{
		Success:     true,
		ID:          appt.ID,
		StrongID:    appt.StrongID,
		Message:     messageBooked,
		Appointment: appt,
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to encode booking", err)
	}
	return &Result{State: StateCommitted, StatusCode: http.StatusOK, Body: body, Appointment: appt}, nil
}

// conflict builds the 409 outcome for a taken slot.
func (s *appointmentService) conflict(ctx context.Context, slot model.Slot, eventType model.EventType) (*Result, error) {
	suggested, err := s.resolver.Suggest(ctx, slot, s.suggestionCount)
	if err != nil {
		s.log.Warn("Failed to compute suggested slots", "slot", slot.OccupancyKey(), "error", err)
		suggested = []model.Slot{}
	}

	s.publisher.Publish(ctx, model.Event{
		Type:           eventType,
		OccurredAt:     s.clock.Now(),
		Slot:           &slot,
		SuggestedSlots: suggested,
	})
	s.log.Info("Slot conflict", "slot", slot.OccupancyKey(), "suggestions", len(suggested))

	body, err := json.Marshal(model.ConflictResponse{
		Success:        false,
		Code:           apperrors.CodeSlotTaken,
		Message:        messageSlotTaken,
		Slot:           slot,
		SuggestedSlots: suggested,
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to encode conflict", err)
	}
	return &Result{State: StateConflicted, StatusCode: http.StatusConflict, Body: body, SuggestedSlots: suggested}, nil
}

func (s *appointmentService) infrastructureError(ctx context.Context, op string, slot model.Slot, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		s.metrics.RecordBooking("timeout")
		s.log.Error("Booking timed out", "operation", op, "slot", slot.OccupancyKey(), "error", err)
		return apperrors.Timeout("Booking could not be completed in time, please retry")
	}
	s.metrics.RecordBooking("error")
	s.log.Error("Booking failed", "operation", op, "slot", slot.OccupancyKey(), "error", err)
	return apperrors.Internal("Failed to book appointment", err)
}

func (s *appointmentService) releaseLock(ctx context.Context, slot model.Slot, holder string) {
	if s.locks == nil || holder == "" {
		return
	}
	if _, err := s.locks.Release(ctx, slot, holder); err != nil {
		s.log.Debug("Slot lock not released", "slot", slot.OccupancyKey(), "error", err)
	}
}

// find accepts either the internal id or the APT- strong id.
func (s *appointmentService) find(ctx context.Context, id string) (*model.Appointment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.InvalidInput("Appointment ID cannot be empty")
	}

	var (
		appt *model.Appointment
		err  error
	)
	if upper := strings.ToUpper(id); strings.HasPrefix(upper, model.StrongIDPrefix) {
		appt, err = s.repo.FindByStrongID(ctx, upper)
	} else {
		appt, err = s.repo.FindByID(ctx, id)
	}
	if err != nil {
		if errors.Is(err, appointmentserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Appointment", id)
		}
		s.log.Error("Failed to load appointment", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve appointment", err)
	}
	return appt, nil
}

func (s *appointmentService) Get(ctx context.Context, id string) (*model.Appointment, error) {
	return s.find(ctx, id)
}

func (s *appointmentService) ListByEmail(ctx context.Context, req *model.EmailLookupRequest) ([]*model.Appointment, error) {
	req.Email = sanitizer.NormalizeEmail(req.Email)
	if err := validation.New().Struct(req); err != nil {
		return nil, validationError(err, "Invalid email")
	}

	appointments, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		s.log.Error("Failed to list appointments", "email", req.Email, "error", err)
		return nil, apperrors.Internal("Failed to retrieve appointments", err)
	}
	return appointments, nil
}

func (s *appointmentService) Cancel(ctx context.Context, id string) (*model.CancelResponse, error) {
	appt, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cancelled, already, err := s.repo.Cancel(ctx, appt.ID, now)
	if err != nil {
		if errors.Is(err, appointmentserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Appointment", id)
		}
		s.log.Error("Failed to cancel appointment", "id", appt.ID, "error", err)
		return nil, apperrors.Internal("Failed to cancel appointment", err)
	}
	s.metrics.RecordCancel(already)

	message := "Appointment cancelled successfully"
	if already {
		message = "Appointment was already cancelled"
	} else {
		slot := cancelled.Slot()
		s.publisher.Publish(ctx, model.Event{
			Type:        model.EventAppointmentCancelled,
			OccurredAt:  now,
			Slot:        &slot,
			Appointment: cancelled,
		})
		s.log.Info("Appointment cancelled", "id", cancelled.ID, "strong_id", cancelled.StrongID)
	}

	return &model.CancelResponse{
		Success:          true,
		ID:               cancelled.ID,
		StrongID:         cancelled.StrongID,
		Status:           cancelled.Status,
		AlreadyCancelled: already,
		Message:          message,
	}, nil
}

func (s *appointmentService) Reschedule(ctx context.Context, id string, req *model.RescheduleRequest) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.bookingTimeout)
	defer cancel()

	appt, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.IsConfirmed() {
		return nil, apperrors.Conflict("Cancelled appointments cannot be rescheduled")
	}

	req.NewDate = sanitizer.TrimAndNormalize(req.NewDate)
	req.NewTime = sanitizer.TrimAndNormalize(req.NewTime)
	req.ClientID = sanitizer.NormalizeToken(req.ClientID)
	slot, start, err := s.validator.ValidateReschedule(appt, req)
	if err != nil {
		return nil, validationError(err, "Invalid reschedule request")
	}

	previous := appt.Slot()
	moved, err := s.repo.Move(ctx, appt.ID, slot, start, s.clock.Now())
	switch {
	case errors.Is(err, appointmentserrors.ErrSlotTaken):
		return s.conflict(ctx, slot, model.EventSlotConflict)
	case errors.Is(err, appointmentserrors.ErrCancelled):
		return nil, apperrors.Conflict("Cancelled appointments cannot be rescheduled")
	case errors.Is(err, appointmentserrors.ErrNotFound):
		return nil, apperrors.NotFoundWithID("Appointment", id)
	case err != nil:
		return nil, s.infrastructureError(ctx, "move appointment", slot, err)
	}

	s.releaseLock(ctx, slot, req.ClientID)
	if !previous.SameCell(slot) {
		s.publisher.Publish(ctx, model.Event{
			Type:         model.EventAppointmentRescheduled,
			OccurredAt:   s.clock.Now(),
			Slot:         &slot,
			PreviousSlot: &previous,
			Appointment:  moved,
		})
		s.log.Info("Appointment rescheduled",
			"id", moved.ID,
			"strong_id", moved.StrongID,
			"from", previous.OccupancyKey(),
			"to", slot.OccupancyKey(),
		)
	}

	body, err := json.Marshal(model.BookingResponse{
		Success:     true,
		ID:          moved.ID,
		StrongID:    moved.StrongID,
		Message:     messageRescheduled,
		Appointment: moved,
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to encode appointment", err)
	}
	return &Result{State: StateCommitted, StatusCode: http.StatusOK, Body: body, Appointment: moved}, nil
}
