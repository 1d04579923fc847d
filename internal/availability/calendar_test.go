package availability

import (
	"errors"
	"testing"
	"time"

	"appointease/pkg/clock"
	"appointease/pkg/config"
	"appointease/pkg/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalendar() *Calendar {
	// Wednesday
	return NewCalendar(config.Defaults(), clock.NewMockClock(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)))
}

func TestResolve(t *testing.T) {
	c := newTestCalendar()

	for _, input := range [][2]string{
		{"2025-01-16 10:00:00", ""},
		{"2025-01-16 10:00", ""},
		{"2025-01-16T10:00", ""},
		{"2025-01-16T10:00:00Z", ""},
		{"2025-01-16", "10:00"},
		{"2025-01-16 10:00", "10:00"},
	} {
		slot, start, err := c.Resolve(1, 2, input[0], input[1])
		require.NoError(t, err, input)
		assert.Equal(t, "2025-01-16", slot.Date)
		assert.Equal(t, "10:00", slot.Time)
		assert.Equal(t, int64(2), slot.ServiceID)
		assert.Equal(t, 10, start.Hour())
	}

	_, _, err := c.Resolve(1, 2, "next thursday", "")
	var verrs validation.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "date", verrs[0].Field)
}

func TestResolve_DateTimeDisagreesWithTime(t *testing.T) {
	c := newTestCalendar()

	_, _, err := c.Resolve(1, 2, "2025-01-16 10:00:00", "11:00")
	var verrs validation.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "time", verrs[0].Field)
	assert.Equal(t, "time does not match the time given in date", verrs[0].Message)
}

func TestCheckBookable(t *testing.T) {
	c := newTestCalendar()
	at := func(s string) time.Time {
		t, err := time.Parse("2006-01-02 15:04", s)
		if err != nil {
			panic(err)
		}
		return t
	}

	tests := []struct {
		name      string
		start     time.Time
		wantField string
	}{
		{name: "ok", start: at("2025-01-16 10:00")},
		{name: "within past grace", start: at("2025-01-15 09:00").Add(-30 * time.Second), wantField: "time"},
		{name: "past", start: at("2025-01-14 10:00"), wantField: "date"},
		{name: "beyond advance limit", start: at("2025-02-17 10:00"), wantField: "date"},
		{name: "weekend", start: at("2025-01-18 10:00"), wantField: "date"},
		{name: "before opening", start: at("2025-01-16 08:00"), wantField: "time"},
		{name: "last slot ends at close", start: at("2025-01-16 16:00")},
		{name: "at close", start: at("2025-01-16 17:00"), wantField: "time"},
		{name: "off grid", start: at("2025-01-16 10:30"), wantField: "time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.CheckBookable(tt.start)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verrs validation.ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			assert.Equal(t, tt.wantField, verrs[0].Field)
		})
	}
}

func TestDayStarts(t *testing.T) {
	c := newTestCalendar()

	starts := c.DayStarts(time.Date(2025, 1, 16, 13, 0, 0, 0, time.UTC))
	require.Len(t, starts, 8)
	assert.Equal(t, 9, starts[0].Hour())
	assert.Equal(t, 16, starts[7].Hour())

	assert.Empty(t, c.DayStarts(time.Date(2025, 1, 19, 0, 0, 0, 0, time.UTC)))
}
