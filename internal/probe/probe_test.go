package probe

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	appointmenthandler "appointease/internal/appointments/handler"
	appointmentrepository "appointease/internal/appointments/repository"
	appointmentservice "appointease/internal/appointments/service"
	"appointease/internal/appointments/validator"
	"appointease/internal/availability"
	availabilityhandler "appointease/internal/availability/handler"
	availabilityservice "appointease/internal/availability/service"
	"appointease/internal/conflicts"
	"appointease/internal/idempotency"
	lockhandler "appointease/internal/slotlocks/handler"
	lockrepository "appointease/internal/slotlocks/repository"
	lockservice "appointease/internal/slotlocks/service"
	"appointease/pkg/client"
	"appointease/pkg/clock"
	"appointease/pkg/config"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAPI serves the booking endpoints on memory backends.
func newAPI(t *testing.T) *client.AppointmentsClient {
	t.Helper()
	cfg := config.Defaults()
	cfg.BookingRateLimit = 100
	clk := clock.NewMockClock(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	calendar := availability.NewCalendar(cfg, clk)

	repo := appointmentrepository.NewMemoryAppointmentRepository()
	store := idempotency.NewMemoryStore(cfg.IdempotencyTTL, clk)
	locks := lockservice.NewLockService(lockrepository.NewMemoryLockRepository(clk), calendar, cfg, nil)
	svc := appointmentservice.NewAppointmentService(
		repo,
		store,
		validator.NewAppointmentValidator(calendar, cfg.Log),
		conflicts.NewResolver(repo, calendar, cfg.SuggestionHorizonDays),
		locks,
		nil,
		cfg,
		clk,
		nil,
	)

	router := httprouter.New()
	appointmenthandler.NewAppointmentHandler(svc, cfg.Log).RegisterRoutes(router)
	availabilityhandler.NewAvailabilityHandler(availabilityservice.NewAvailabilityService(repo, locks, calendar, cfg), cfg.Log).RegisterRoutes(router)
	lockhandler.NewLockHandler(locks, cfg.Log).RegisterRoutes(router, nil)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
		store.Stop()
		locks.Stop()
	})
	return client.NewAppointmentsClient(srv.URL)
}

func probeConfig() Config {
	return Config{
		Concurrency: 5,
		EmployeeID:  1,
		ServiceID:   1,
		Date:        "2025-01-16",
		Time:        "10:00",
	}
}

func TestRun_DistinctClientsCommitOnce(t *testing.T) {
	api := newAPI(t)

	report, err := Run(context.Background(), api, probeConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Committed)
	assert.Equal(t, 4, report.Conflicted)
	assert.Zero(t, report.Replayed)
	assert.Empty(t, report.Errors)
	assert.False(t, report.BadSuggestion)
	assert.Equal(t, []string{"10:00"}, report.Unavailable)
	assert.True(t, report.Healthy(), report.String())
}

func TestRun_SharedKeyReplays(t *testing.T) {
	api := newAPI(t)
	cfg := probeConfig()
	cfg.SharedKey = true

	report, err := Run(context.Background(), api, cfg)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Committed)
	assert.Equal(t, 4, report.Replayed)
	assert.Len(t, distinct(report.StrongIDs), 1)
	assert.True(t, report.Healthy(), report.String())
}

func TestRun_CleanupFreesSlot(t *testing.T) {
	api := newAPI(t)
	cfg := probeConfig()
	cfg.Cleanup = true

	first, err := Run(context.Background(), api, cfg)
	require.NoError(t, err)
	require.True(t, first.Healthy(), first.String())

	second, err := Run(context.Background(), api, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Committed)
	assert.NotEqual(t, first.StrongIDs, second.StrongIDs)
}

func TestRun_RejectsBadConfig(t *testing.T) {
	cfg := probeConfig()
	cfg.Concurrency = 0
	_, err := Run(context.Background(), client.NewAppointmentsClient("http://127.0.0.1:0"), cfg)
	assert.Error(t, err)

	cfg = probeConfig()
	cfg.Date = ""
	_, err = Run(context.Background(), client.NewAppointmentsClient("http://127.0.0.1:0"), cfg)
	assert.Error(t, err)
}

func TestReport_UnhealthyWhenNothingCommits(t *testing.T) {
	r := &Report{Attempts: 3, Conflicted: 3, OtherStatus: map[int]int{}}
	assert.False(t, r.Healthy())
}
