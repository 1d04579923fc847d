package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"appointease/internal/otp/repository"
	"appointease/internal/otp/service"
	"appointease/pkg/clock"
	"appointease/pkg/config"
	"appointease/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, wrap func(http.Handler) http.Handler) *httprouter.Router {
	t.Helper()
	cfg := config.Defaults()
	cfg.OTPDemoMode = true
	cfg.OTPHashCost = 4
	clk := clock.NewMockClock(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC))
	svc := service.NewOtpService(repository.NewMemoryChallengeRepository(), nil, cfg, clk, nil)

	router := httprouter.New()
	NewOtpHandler(svc, logger.Discard()).RegisterRoutes(router, wrap)
	return router
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestGenerateAndVerify(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "/api/v1/generate-otp", `{"email":"jane@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"123456"`)

	rec = post(router, "/api/v1/verify-otp", `{"email":"jane@example.com","otp":"000000"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"verified":false,"message":"`+rejectedMessage+`"}`, rec.Body.String())

	rec = post(router, "/api/v1/verify-otp", `{"email":"jane@example.com","otp":"123456"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"verified":true`)

	// Single use.
	rec = post(router, "/api/v1/verify-otp", `{"email":"jane@example.com","otp":"123456"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerify_UnknownEmailLooksLikeWrongCode(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "/api/v1/verify-otp", `{"email":"nobody@example.com","otp":"123456"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"verified":false,"message":"`+rejectedMessage+`"}`, rec.Body.String())
}

func TestGenerate_RejectsBadEmail(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "/api/v1/generate-otp", `{"email":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRegisterRoutes_WrapsBothEndpoints(t *testing.T) {
	calls := 0
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	router := newTestRouter(t, deny)

	assert.Equal(t, http.StatusTooManyRequests, post(router, "/api/v1/generate-otp", `{"email":"jane@example.com"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(router, "/api/v1/verify-otp", `{"email":"jane@example.com","otp":"123456"}`).Code)
	assert.Equal(t, 2, calls)
}
