package model

import (
	"fmt"
	"time"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// StrongIDPrefix starts every human-facing appointment id.
const StrongIDPrefix = "APT-"

type Customer struct {
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty"`
}

type Appointment struct {
	ID          string            `json:"id" bson:"_id"`
	StrongID    string            `json:"strong_id" bson:"strong_id"`
	EmployeeID  int64             `json:"employee_id" bson:"employee_id"`
	ServiceID   int64             `json:"service_id" bson:"service_id"`
	Date        string            `json:"date" bson:"date"`
	Time        string            `json:"time" bson:"time"`
	StartsAt    time.Time         `json:"starts_at" bson:"starts_at"`
	Customer    Customer          `json:"customer" bson:"customer"`
	Status      AppointmentStatus `json:"status" bson:"status"`
	CreatedAt   time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt   *time.Time        `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
}

func (a *Appointment) Slot() Slot {
	return Slot{
		EmployeeID: a.EmployeeID,
		Date:       a.Date,
		Time:       a.Time,
		ServiceID:  a.ServiceID,
	}
}

func (a *Appointment) IsConfirmed() bool {
	return a.Status == StatusConfirmed
}

// FormatStrongID renders the sequence as APT-<year>-<6 digits>.
func FormatStrongID(year int, seq int64) string {
	return fmt.Sprintf("%s%d-%06d", StrongIDPrefix, year, seq)
}

// AppointmentRequest is the booking payload. Date may carry the time
// ("2025-01-16 10:00:00") or be a bare day combined with Time.
type AppointmentRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=100"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,phone"`
	Date       string `json:"date" validate:"required"`
	Time       string `json:"time,omitempty" validate:"omitempty,clock"`
	ServiceID  int64  `json:"service_id" validate:"required,gt=0"`
	EmployeeID int64  `json:"employee_id" validate:"required,gt=0"`
	ClientID   string `json:"client_id,omitempty" validate:"omitempty,max=128"`
}

type RescheduleRequest struct {
	NewDate  string `json:"new_date" validate:"required"`
	NewTime  string `json:"new_time,omitempty" validate:"omitempty,clock"`
	ClientID string `json:"client_id,omitempty" validate:"omitempty,max=128"`
}

type EmailLookupRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

// BookingResponse is the body of a committed booking.
type BookingResponse struct {
	Success     bool         `json:"success"`
	ID          string       `json:"id"`
	StrongID    string       `json:"strong_id"`
	Message     string       `json:"message"`
	Appointment *Appointment `json:"appointment"`
}

// ConflictResponse is the body returned when the slot is already taken.
type ConflictResponse struct {
	Success        bool   `json:"success"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	Slot           Slot   `json:"slot"`
	SuggestedSlots []Slot `json:"suggested_slots"`
}

type CancelResponse struct {
	Success          bool              `json:"success"`
	ID               string            `json:"id"`
	StrongID         string            `json:"strong_id"`
	Status           AppointmentStatus `json:"status"`
	AlreadyCancelled bool              `json:"already_cancelled"`
	Message          string            `json:"message"`
}
