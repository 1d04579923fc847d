package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"appointease/internal/appointments/repository"
	"appointease/internal/appointments/validator"
	"appointease/internal/availability"
	"appointease/internal/conflicts"
	"appointease/internal/idempotency"
	lockrepository "appointease/internal/slotlocks/repository"
	lockservice "appointease/internal/slotlocks/service"
	"appointease/pkg/clock"
	"appointease/pkg/config"
	apperrors "appointease/pkg/errors"
	"appointease/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e model.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc       AppointmentService
	repo      repository.AppointmentRepository
	locks     lockservice.LockService
	publisher *recordingPublisher
	clock     *clock.MockClock
}

func newFixture(t *testing.T, tune func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.BookingRateLimit = 100
	if tune != nil {
		tune(cfg)
	}
	clk := clock.NewMockClock(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	calendar := availability.NewCalendar(cfg, clk)
	repo := repository.NewMemoryAppointmentRepository()
	store := idempotency.NewMemoryStore(cfg.IdempotencyTTL, clk)
	locks := lockservice.NewLockService(lockrepository.NewMemoryLockRepository(clk), calendar, cfg, nil)
	publisher := &recordingPublisher{}

	svc := NewAppointmentService(
		repo,
		store,
		validator.NewAppointmentValidator(calendar, cfg.Log),
		conflicts.NewResolver(repo, calendar, cfg.SuggestionHorizonDays),
		locks,
		publisher,
		cfg,
		clk,
		nil,
	)
	t.Cleanup(func() {
		svc.Stop()
		store.Stop()
		locks.Stop()
	})
	return &fixture{svc: svc, repo: repo, locks: locks, publisher: publisher, clock: clk}
}

func bookingRequest(email string) *model.AppointmentRequest {
	return &model.AppointmentRequest{
		Name:       "Jane Doe",
		Email:      email,
		Date:       "2025-01-16 10:00:00",
		ServiceID:  2,
		EmployeeID: 1,
	}
}

func TestBook_CommitsAndAssignsStrongID(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.svc.Book(context.Background(), bookingRequest("Jane@Example.com "), "")
	require.NoError(t, err)

	assert.Equal(t, StateCommitted, result.State)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.False(t, result.Replayed())
	require.NotNil(t, result.Appointment)
	assert.Equal(t, "APT-2025-000001", result.Appointment.StrongID)
	assert.Equal(t, "jane@example.com", result.Appointment.Customer.Email)
	assert.Equal(t, model.StatusConfirmed, result.Appointment.Status)

	var body model.BookingResponse
	require.NoError(t, json.Unmarshal(result.Body, &body))
	assert.True(t, body.Success)
	assert.Equal(t, result.Appointment.ID, body.ID)
	assert.Equal(t, "APT-2025-000001", body.StrongID)

	assert.Equal(t, []model.EventType{model.EventAppointmentCreated}, f.publisher.types())
}

func TestBook_ConcurrentRequestsCommitOnce(t *testing.T) {
	f := newFixture(t, nil)
	const n = 5

	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Book(context.Background(), bookingRequest("jane@example.com"), "")
		}(i)
	}
	wg.Wait()

	taken := model.Slot{EmployeeID: 1, Date: "2025-01-16", Time: "10:00", ServiceID: 2}
	committed, conflicted := 0, 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		switch results[i].State {
		case StateCommitted:
			committed++
		case StateConflicted:
			conflicted++
			assert.Equal(t, http.StatusConflict, results[i].StatusCode)
			var body model.ConflictResponse
			require.NoError(t, json.Unmarshal(results[i].Body, &body))
			assert.Equal(t, apperrors.CodeSlotTaken, body.Code)
			assert.NotEmpty(t, body.SuggestedSlots)
			for _, s := range body.SuggestedSlots {
				assert.False(t, s.SameCell(taken))
			}
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, n-1, conflicted)

	occupied, err := f.repo.OccupiedTimes(context.Background(), 1, "2025-01-16")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, occupied)
}

func TestBook_LocalPhoneNumbersRaceForOneSlot(t *testing.T) {
	f := newFixture(t, nil)
	const n = 5

	var wg sync.WaitGroup
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := bookingRequest(fmt.Sprintf("user%d@example.com", i))
			req.Phone = fmt.Sprintf("555-012%d", i)
			results[i], errs[i] = f.svc.Book(context.Background(), req, "")
		}(i)
	}
	wg.Wait()

	committed, conflicted := 0, 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		switch results[i].State {
		case StateCommitted:
			committed++
			assert.Regexp(t, `^555-012[0-4]$`, results[i].Appointment.Customer.Phone)
		case StateConflicted:
			conflicted++
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, n-1, conflicted)
}

func TestBook_StoresE164WhenPhoneParses(t *testing.T) {
	f := newFixture(t, nil)

	req := bookingRequest("jane@example.com")
	req.Phone = "+1 (650) 253-0000"
	result, err := f.svc.Book(context.Background(), req, "")
	require.NoError(t, err)
	require.Equal(t, StateCommitted, result.State)
	assert.Equal(t, "+16502530000", result.Appointment.Customer.Phone)

	req = bookingRequest("john@example.com")
	req.Date = "2025-01-16 11:00"
	req.Phone = "call me"
	_, err = f.svc.Book(context.Background(), req, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestBook_ReplaysSameKey(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Book(ctx, bookingRequest("jane@example.com"), "key-1")
	require.NoError(t, err)
	require.Equal(t, StateCommitted, first.State)

	second, err := f.svc.Book(ctx, bookingRequest("jane@example.com"), "key-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed())
	assert.Equal(t, first.StatusCode, second.StatusCode)
	assert.Equal(t, first.Body, second.Body)

	list, err := f.svc.ListByEmail(ctx, &model.EmailLookupRequest{Email: "jane@example.com"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBook_ConcurrentSameKeyReplaysFirstOutcome(t *testing.T) {
	f := newFixture(t, nil)
	const n = 4

	var wg sync.WaitGroup
	results := make([]*Result, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.svc.Book(context.Background(), bookingRequest("jane@example.com"), "key-1")
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	replayed := 0
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].Body, r.Body)
		if r.Replayed() {
			replayed++
		}
	}
	assert.Equal(t, n-1, replayed)
}

func TestBook_KeyReusedWithDifferentPayload(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, bookingRequest("jane@example.com"), "key-1")
	require.NoError(t, err)

	other := bookingRequest("jane@example.com")
	other.Date = "2025-01-16 11:00"
	_, err = f.svc.Book(ctx, other, "key-1")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeIdempotencyReused))
	assert.Equal(t, http.StatusUnprocessableEntity, apperrors.AsAppError(err).StatusCode())
}

func TestBook_ConflictIsReplayedToo(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, bookingRequest("first@example.com"), "")
	require.NoError(t, err)

	conflict, err := f.svc.Book(ctx, bookingRequest("second@example.com"), "key-2")
	require.NoError(t, err)
	require.Equal(t, StateConflicted, conflict.State)

	replay, err := f.svc.Book(ctx, bookingRequest("second@example.com"), "key-2")
	require.NoError(t, err)
	assert.True(t, replay.Replayed())
	assert.Equal(t, http.StatusConflict, replay.StatusCode)
	assert.Equal(t, conflict.Body, replay.Body)
}

func TestBook_InvalidRequestReleasesKey(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bad := bookingRequest("jane@example.com")
	bad.Date = "2025-01-18 10:00"
	_, err := f.svc.Book(ctx, bad, "key-1")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	// Same key with the same payload is evaluated again, not replayed.
	_, err = f.svc.Book(ctx, bad, "key-1")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestBook_RejectsLongIdempotencyKey(t *testing.T) {
	f := newFixture(t, nil)

	key := make([]byte, maxIdempotencyKeyLength+1)
	for i := range key {
		key[i] = 'k'
	}
	_, err := f.svc.Book(context.Background(), bookingRequest("jane@example.com"), string(key))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestBook_RateLimitsPerEmail(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.BookingRateLimit = 2
		cfg.BookingRateWindow = time.Minute
	})
	ctx := context.Background()

	for _, at := range []string{"10:00", "11:00"} {
		req := bookingRequest("jane@example.com")
		req.Date = "2025-01-16 " + at
		_, err := f.svc.Book(ctx, req, "")
		require.NoError(t, err)
	}

	req := bookingRequest("jane@example.com")
	req.Date = "2025-01-16 12:00"
	_, err := f.svc.Book(ctx, req, "")
	require.Error(t, err)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, apperrors.CodeRateLimited, appErr.Code)
	assert.Contains(t, appErr.Details, "retry_after_seconds")

	_, err = f.svc.Book(ctx, bookingRequest("other@example.com"), "")
	require.NoError(t, err)
}

func TestBook_ConflictsDoNotUseRateLimit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.BookingRateLimit = 3
		cfg.BookingRateWindow = 5 * time.Minute
	})
	ctx := context.Background()

	first, err := f.svc.Book(ctx, bookingRequest("other@example.com"), "")
	require.NoError(t, err)
	require.Equal(t, StateCommitted, first.State)

	for range 3 {
		result, err := f.svc.Book(ctx, bookingRequest("jane@example.com"), "")
		require.NoError(t, err)
		assert.Equal(t, StateConflicted, result.State)
	}

	req := bookingRequest("jane@example.com")
	req.Date = "2025-01-16 11:00"
	result, err := f.svc.Book(ctx, req, "")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, result.State)
}

func TestBook_ReleasesClientLock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.locks.Select(ctx, &model.SlotRequest{Date: "2025-01-16", Time: "10:00", EmployeeID: 1, ClientID: "tab-1"})
	require.NoError(t, err)

	req := bookingRequest("jane@example.com")
	req.ClientID = "tab-1"
	result, err := f.svc.Book(ctx, req, "")
	require.NoError(t, err)
	require.Equal(t, StateCommitted, result.State)

	lock, err := f.locks.Get(ctx, model.Slot{EmployeeID: 1, Date: "2025-01-16", Time: "10:00"})
	require.NoError(t, err)
	assert.Nil(t, lock)
}

func TestGet_ByIDAndStrongID(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result, err := f.svc.Book(ctx, bookingRequest("jane@example.com"), "")
	require.NoError(t, err)

	byID, err := f.svc.Get(ctx, result.Appointment.ID)
	require.NoError(t, err)
	byStrong, err := f.svc.Get(ctx, "apt-2025-000001")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byStrong.ID)

	_, err = f.svc.Get(ctx, "APT-2025-999999")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	_, err = f.svc.Get(ctx, " ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}

func TestCancel_IsIdempotentAndFreesSlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	booked, err := f.svc.Book(ctx, bookingRequest("jane@example.com"), "")
	require.NoError(t, err)

	resp, err := f.svc.Cancel(ctx, booked.Appointment.StrongID)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.False(t, resp.AlreadyCancelled)
	assert.Equal(t, model.StatusCancelled, resp.Status)

	again, err := f.svc.Cancel(ctx, booked.Appointment.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyCancelled)

	rebooked, err := f.svc.Book(ctx, bookingRequest("other@example.com"), "")
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, rebooked.State)
	assert.Equal(t, "APT-2025-000002", rebooked.Appointment.StrongID)

	assert.Equal(t, []model.EventType{
		model.EventAppointmentCreated,
		model.EventAppointmentCancelled,
		model.EventAppointmentCreated,
	}, f.publisher.types())

	_, err = f.svc.Cancel(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestReschedule(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	booked, err := f.svc.Book(ctx, bookingRequest("jane@example.com"), "")
	require.NoError(t, err)
	blocker := bookingRequest("other@example.com")
	blocker.Date = "2025-01-16 12:00"
	_, err = f.svc.Book(ctx, blocker, "")
	require.NoError(t, err)

	t.Run("onto taken slot conflicts", func(t *testing.T) {
		result, err := f.svc.Reschedule(ctx, booked.Appointment.ID, &model.RescheduleRequest{NewDate: "2025-01-16 12:00"})
		require.NoError(t, err)
		assert.Equal(t, StateConflicted, result.State)
		assert.Equal(t, http.StatusConflict, result.StatusCode)

		appt, err := f.svc.Get(ctx, booked.Appointment.ID)
		require.NoError(t, err)
		assert.Equal(t, "10:00", appt.Time)
	})

	t.Run("invalid target", func(t *testing.T) {
		_, err := f.svc.Reschedule(ctx, booked.Appointment.ID, &model.RescheduleRequest{NewDate: "2025-01-19 10:00"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
	})

	t.Run("moves and frees old slot", func(t *testing.T) {
		result, err := f.svc.Reschedule(ctx, booked.Appointment.StrongID, &model.RescheduleRequest{NewDate: "2025-01-17", NewTime: "09:00"})
		require.NoError(t, err)
		assert.Equal(t, StateCommitted, result.State)
		assert.Equal(t, "2025-01-17", result.Appointment.Date)
		assert.Equal(t, "09:00", result.Appointment.Time)
		assert.Equal(t, booked.Appointment.StrongID, result.Appointment.StrongID)

		occupied, err := f.repo.OccupiedTimes(ctx, 1, "2025-01-16")
		require.NoError(t, err)
		assert.Equal(t, []string{"12:00"}, occupied)
		assert.Contains(t, f.publisher.types(), model.EventAppointmentRescheduled)
	})

	t.Run("cancelled cannot move", func(t *testing.T) {
		_, err := f.svc.Cancel(ctx, booked.Appointment.ID)
		require.NoError(t, err)

		_, err = f.svc.Reschedule(ctx, booked.Appointment.ID, &model.RescheduleRequest{NewDate: "2025-01-20 10:00"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	})
}

func TestListByEmail_ValidatesEmail(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ListByEmail(context.Background(), &model.EmailLookupRequest{Email: "not-an-email"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	list, err := f.svc.ListByEmail(context.Background(), &model.EmailLookupRequest{Email: "nobody@example.com"})
	require.NoError(t, err)
	assert.Empty(t, list)
}
