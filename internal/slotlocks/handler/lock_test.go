package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"appointease/internal/availability"
	"appointease/internal/slotlocks/repository"
	"appointease/internal/slotlocks/service"
	"appointease/pkg/clock"
	"appointease/pkg/config"
	apperrors "appointease/pkg/errors"
	"appointease/pkg/logger"
	"appointease/pkg/middleware"
	"appointease/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, wrap func(http.Handler) http.Handler) *httprouter.Router {
	t.Helper()
	cfg := config.Defaults()
	clk := clock.NewMockClock(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	svc := service.NewLockService(repository.NewMemoryLockRepository(clk), availability.NewCalendar(cfg, clk), cfg, nil)
	t.Cleanup(svc.Stop)

	router := httprouter.New()
	NewLockHandler(svc, logger.Discard()).RegisterRoutes(router, wrap)
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSelectDeselectFlow(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := do(router, http.MethodPost, "/api/v1/realtime/select", `{"date":"2025-01-16","time":"10:00","employee_id":1,"client_id":"a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var selected SelectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &selected))
	assert.True(t, selected.Success)
	assert.Equal(t, "10:00", selected.Lock.Slot.Time)

	rec = do(router, http.MethodPost, "/api/v1/realtime/select", `{"date":"2025-01-16","time":"10:00","employee_id":1,"client_id":"b"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), apperrors.CodeLockUnavailable)
	assert.Contains(t, rec.Body.String(), "expires_at")

	rec = do(router, http.MethodGet, "/api/v1/realtime/locks?employee_id=1&date=2025-01-16", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed LocksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Locks, 1)
	assert.Equal(t, "10:00", listed.Locks[0].Slot.Time)

	rec = do(router, http.MethodPost, "/api/v1/realtime/deselect", `{"date":"2025-01-16","time":"10:00","employee_id":1,"client_id":"a"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"released":true}`, rec.Body.String())

	rec = do(router, http.MethodGet, "/api/v1/realtime/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.LockStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, model.LockStats{Backend: "memory", AcquiredTotal: 1, RejectedTotal: 1, ReleasedTotal: 1}, stats)
}

func TestLocks_RequiresQuery(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{
		"/api/v1/realtime/locks?date=2025-01-16",
		"/api/v1/realtime/locks?employee_id=x&date=2025-01-16",
		"/api/v1/realtime/locks?employee_id=1",
	} {
		rec := do(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestSelect_RateLimitedPerIP(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Name:     "test",
		Requests: 2,
		Window:   time.Minute,
	}, logger.Discard())
	t.Cleanup(limiter.Stop)
	router := newTestRouter(t, limiter.Middleware())

	codes := make([]int, 0, 3)
	for _, clientID := range []string{"a", "a", "a"} {
		rec := do(router, http.MethodPost, "/api/v1/realtime/select", `{"date":"2025-01-16","time":"11:00","employee_id":1,"client_id":"`+clientID+`"}`)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Polling endpoints are not limited.
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/v1/realtime/stats", "").Code)
	}
}
