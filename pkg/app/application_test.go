package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"appointease/pkg/client"
	"appointease/pkg/config"
	httputil "appointease/pkg/http"
	"appointease/pkg/metrics"
	"appointease/pkg/middleware"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/ping", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		_ = httputil.WriteSuccess(w, map[string]string{"request_id": middleware.RequestIDFromContext(r.Context())})
	})
}

func newTestApplication(t *testing.T) *Application {
	t.Helper()
	cfg := config.Defaults()
	cfg.Client = client.NewClient()
	cfg.MetricsEnabled = true

	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg).RecordBooking("committed")

	a := NewApplication(cfg)
	a.SetApp(pingRoutes{}, reg)
	t.Cleanup(a.stop)
	return a
}

func TestApplication_ServesHealthWithoutAPIMiddleware(t *testing.T) {
	h := newTestApplication(t).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestApplication_APIChain(t *testing.T) {
	h := newTestApplication(t).Handler()

	t.Run("propagates request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ping", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "req-42", rec.Header().Get(middleware.RequestIDHeader))
		assert.Contains(t, rec.Body.String(), `"request_id":"req-42"`)
	})

	t.Run("rejects non json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ping", strings.NewReader(`x`))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})
}

func TestApplication_Metrics(t *testing.T) {
	h := newTestApplication(t).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "appointease_")
}

func TestApplication_RunsShutdownHooksInOrder(t *testing.T) {
	a := newTestApplication(t)
	var order []int
	a.OnShutdown(func() { order = append(order, 1) })
	a.OnShutdown(func() { order = append(order, 2) })

	a.stop()
	assert.Equal(t, []int{1, 2}, order)
}
