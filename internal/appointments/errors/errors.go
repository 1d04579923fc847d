package errors

import "errors"

var (
	ErrNotFound = errors.New("appointment not found")

	ErrSlotTaken = errors.New("slot already has a confirmed appointment")

	ErrCancelled = errors.New("appointment is cancelled")

	ErrIllegalTransition = errors.New("illegal booking state transition")
)
