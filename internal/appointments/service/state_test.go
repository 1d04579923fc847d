package service

import (
	"testing"

	appointmentserrors "appointease/internal/appointments/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttempt_LegalPaths(t *testing.T) {
	paths := [][]State{
		{StateValidated, StateSlotChecked, StateCommitted},
		{StateValidated, StateSlotChecked, StateConflicted},
		{StateDuplicate},
	}
	for _, path := range paths {
		a := newAttempt()
		for _, next := range path {
			require.NoError(t, a.advance(next))
		}
		assert.True(t, a.state.Terminal())
	}
}

func TestAttempt_IllegalTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{StateReceived, StateCommitted},
		{StateReceived, StateSlotChecked},
		{StateValidated, StateDuplicate},
		{StateCommitted, StateConflicted},
		{StateDuplicate, StateValidated},
	}
	for _, tt := range tests {
		a := &attempt{state: tt.from}
		err := a.advance(tt.to)
		assert.ErrorIs(t, err, appointmentserrors.ErrIllegalTransition, "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.from, a.state)
	}
}
