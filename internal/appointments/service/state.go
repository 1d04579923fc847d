package service

import (
	"fmt"

	appointmentserrors "appointease/internal/appointments/errors"
	"appointease/pkg/model"
)

// State is the progress of a single booking attempt.
type State string

const (
	StateReceived    State = "received"
	StateValidated   State = "validated"
	StateSlotChecked State = "slot_checked"
	StateCommitted   State = "committed"
	StateConflicted  State = "conflicted"
	StateDuplicate   State = "duplicate"
)

var transitions = map[State][]State{
	StateReceived:    {StateValidated, StateDuplicate},
	StateValidated:   {StateSlotChecked},
	StateSlotChecked: {StateCommitted, StateConflicted},
}

func (s State) Terminal() bool {
	return s == StateCommitted || s == StateConflicted || s == StateDuplicate
}

func (s State) canMoveTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// attempt tracks one booking through the state machine.
type attempt struct {
	state State
}

func newAttempt() *attempt {
	return &attempt{state: StateReceived}
}

func (a *attempt) advance(next State) error {
	if !a.state.canMoveTo(next) {
		return fmt.Errorf("%w: %s -> %s", appointmentserrors.ErrIllegalTransition, a.state, next)
	}
	a.state = next
	return nil
}

// Result is the outcome of a booking or reschedule. Body is the exact JSON
// written to the client and, for keyed bookings, what replays return.
type Result struct {
	State          State
	StatusCode     int
	Body           []byte
	Appointment    *model.Appointment
	SuggestedSlots []model.Slot
}

// Replayed reports whether the result came from the idempotency store.
func (r *Result) Replayed() bool {
	return r.State == StateDuplicate
}
