package model

import (
	"strconv"
	"time"
)

type EventType string

const (
	EventAppointmentCreated     EventType = "appointment.created"
	EventAppointmentCancelled   EventType = "appointment.cancelled"
	EventAppointmentRescheduled EventType = "appointment.rescheduled"
	EventSlotConflict           EventType = "slot.conflict"
	EventOtpIssued              EventType = "otp.issued"
)

// Event is the payload published after a state change.
type Event struct {
	Type           EventType    `json:"event_type"`
	OccurredAt     time.Time    `json:"occurred_at"`
	Slot           *Slot        `json:"slot,omitempty"`
	PreviousSlot   *Slot        `json:"previous_slot,omitempty"`
	Appointment    *Appointment `json:"appointment,omitempty"`
	SuggestedSlots []Slot       `json:"suggested_slots,omitempty"`
	Email          string       `json:"email,omitempty"`
	Code           string       `json:"code,omitempty"`
	ExpiresAt      time.Time    `json:"expires_at,omitzero"`
}

// PartitionKey keeps events of one employee-day in order.
func (e Event) PartitionKey() string {
	switch {
	case e.Slot != nil:
		return strconv.FormatInt(e.Slot.EmployeeID, 10) + ":" + e.Slot.Date
	case e.Appointment != nil:
		return strconv.FormatInt(e.Appointment.EmployeeID, 10) + ":" + e.Appointment.Date
	case e.Email != "":
		return e.Email
	default:
		return string(e.Type)
	}
}
