package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"appointease/internal/appointments/service"
	apperrors "appointease/pkg/errors"
	httputil "appointease/pkg/http"
	"appointease/pkg/logger"
	"appointease/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAppointmentService struct {
	bookFunc       func(ctx context.Context, req *model.AppointmentRequest, key string) (*service.Result, error)
	getFunc        func(ctx context.Context, id string) (*model.Appointment, error)
	listFunc       func(ctx context.Context, req *model.EmailLookupRequest) ([]*model.Appointment, error)
	cancelFunc     func(ctx context.Context, id string) (*model.CancelResponse, error)
	rescheduleFunc func(ctx context.Context, id string, req *model.RescheduleRequest) (*service.Result, error)
}

func (m *mockAppointmentService) Book(ctx context.Context, req *model.AppointmentRequest, key string) (*service.Result, error) {
	return m.bookFunc(ctx, req, key)
}

func (m *mockAppointmentService) Get(ctx context.Context, id string) (*model.Appointment, error) {
	return m.getFunc(ctx, id)
}

func (m *mockAppointmentService) ListByEmail(ctx context.Context, req *model.EmailLookupRequest) ([]*model.Appointment, error) {
	return m.listFunc(ctx, req)
}

func (m *mockAppointmentService) Cancel(ctx context.Context, id string) (*model.CancelResponse, error) {
	return m.cancelFunc(ctx, id)
}

func (m *mockAppointmentService) Reschedule(ctx context.Context, id string, req *model.RescheduleRequest) (*service.Result, error) {
	return m.rescheduleFunc(ctx, id, req)
}

func (m *mockAppointmentService) Stop() {}

func newRouter(svc service.AppointmentService) *httprouter.Router {
	router := httprouter.New()
	NewAppointmentHandler(svc, logger.Discard()).RegisterRoutes(router)
	return router
}

func TestCreate_PassesIdempotencyKeyAndWritesStoredBody(t *testing.T) {
	stored := []byte(`{"success":true,"id":"x","strong_id":"APT-2025-000001","message":"ok","appointment":null}`)

	tests := []struct {
		name         string
		state        service.State
		status       int
		wantReplayed string
	}{
		{name: "committed", state: service.StateCommitted, status: http.StatusOK},
		{name: "replayed", state: service.StateDuplicate, status: http.StatusOK, wantReplayed: "true"},
		{name: "conflicted", state: service.StateConflicted, status: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKey string
			svc := &mockAppointmentService{
				bookFunc: func(_ context.Context, req *model.AppointmentRequest, key string) (*service.Result, error) {
					gotKey = key
					assert.Equal(t, "jane@example.com", req.Email)
					return &service.Result{State: tt.state, StatusCode: tt.status, Body: stored}, nil
				},
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments",
				strings.NewReader(`{"name":"Jane","email":"jane@example.com","date":"2025-01-16 10:00","service_id":1,"employee_id":1}`))
			req.Header.Set(httputil.HeaderIdempotencyKey, "key-1")
			rec := httptest.NewRecorder()

			newRouter(svc).ServeHTTP(rec, req)

			assert.Equal(t, "key-1", gotKey)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, stored, rec.Body.Bytes())
			assert.Equal(t, tt.wantReplayed, rec.Header().Get(httputil.HeaderIdempotentReplayed))
		})
	}
}

func TestCreate_MalformedBody(t *testing.T) {
	svc := &mockAppointmentService{
		bookFunc: func(context.Context, *model.AppointmentRequest, string) (*service.Result, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"name":`))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), apperrors.CodeInvalidInput)
}

func TestCreate_ServiceError(t *testing.T) {
	svc := &mockAppointmentService{
		bookFunc: func(context.Context, *model.AppointmentRequest, string) (*service.Result, error) {
			return nil, apperrors.IdempotencyReused()
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"name":"Jane"}`))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), apperrors.CodeIdempotencyReused)
}

func TestGetByID(t *testing.T) {
	svc := &mockAppointmentService{
		getFunc: func(_ context.Context, id string) (*model.Appointment, error) {
			if id != "APT-2025-000001" {
				return nil, apperrors.NotFoundWithID("Appointment", id)
			}
			return &model.Appointment{ID: "abc", StrongID: id, Status: model.StatusConfirmed}, nil
		},
	}
	router := newRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointments/APT-2025-000001", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body appointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "abc", body.Appointment.ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/appointments/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancel(t *testing.T) {
	svc := &mockAppointmentService{
		cancelFunc: func(_ context.Context, id string) (*model.CancelResponse, error) {
			return &model.CancelResponse{Success: true, ID: id, Status: model.StatusCancelled, AlreadyCancelled: true}, nil
		},
	}

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/appointments/abc", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"already_cancelled":true`)
}

func TestReschedule(t *testing.T) {
	svc := &mockAppointmentService{
		rescheduleFunc: func(_ context.Context, id string, req *model.RescheduleRequest) (*service.Result, error) {
			assert.Equal(t, "abc", id)
			assert.Equal(t, "2025-01-17 09:00", req.NewDate)
			return &service.Result{State: service.StateConflicted, StatusCode: http.StatusConflict, Body: []byte(`{"success":false}`)}, nil
		},
	}

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/v1/appointments/abc",
		strings.NewReader(`{"new_date":"2025-01-17 09:00"}`)))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, `{"success":false}`, rec.Body.String())
	assert.Empty(t, rec.Header().Get(httputil.HeaderIdempotentReplayed))
}

func TestListByEmail_EmptyListIsArray(t *testing.T) {
	svc := &mockAppointmentService{
		listFunc: func(context.Context, *model.EmailLookupRequest) ([]*model.Appointment, error) {
			return nil, nil
		},
	}

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/user-appointments",
		strings.NewReader(`{"email":"jane@example.com"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"appointments":[]}`, rec.Body.String())
}
