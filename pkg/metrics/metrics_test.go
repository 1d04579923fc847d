package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordsBookingOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBooking("committed")
	c.RecordBooking("conflicted")
	c.RecordBooking("conflicted")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.bookings.WithLabelValues("committed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.bookings.WithLabelValues("conflicted")))
}

func TestCollector_RecordsEventResults(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEventPublished("appointment.created", nil)
	c.RecordEventPublished("appointment.created", errors.New("broker down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsOut.WithLabelValues("appointment.created", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsOut.WithLabelValues("appointment.created", "error")))
}

func TestHandler_ServesLockHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordLockOperation("acquire", 3*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `appointease_slot_lock_duration_seconds_count{op="acquire"} 1`)
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordBooking("committed")
	r.RecordLockOperation("release", time.Millisecond)
}
