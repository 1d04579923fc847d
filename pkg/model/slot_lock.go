package model

import "time"

// SlotLock is an advisory, self-expiring claim on a slot while a user decides.
type SlotLock struct {
	Slot       Slot      `json:"slot"`
	Holder     string    `json:"-"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func (l *SlotLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l *SlotLock) HeldBy(holder string) bool {
	return l.Holder == holder
}

// Remaining is the time left before the lock lapses.
func (l *SlotLock) Remaining(now time.Time) time.Duration {
	if d := l.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

type LockStats struct {
	Backend       string `json:"backend"`
	ActiveLocks   int64  `json:"active_locks"`
	AcquiredTotal int64  `json:"acquired_total"`
	RejectedTotal int64  `json:"rejected_total"`
	ReleasedTotal int64  `json:"released_total"`
}

type SlotRequest struct {
	Date       string `json:"date" validate:"required"`
	Time       string `json:"time,omitempty" validate:"omitempty,clock"`
	EmployeeID int64  `json:"employee_id" validate:"required,gt=0"`
	ClientID   string `json:"client_id,omitempty" validate:"omitempty,max=128"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" validate:"omitempty,min=1,max=300"`
}

type AvailabilityRequest struct {
	Date       string `json:"date" validate:"required"`
	EmployeeID int64  `json:"employee_id" validate:"required,gt=0"`
}

type AvailabilityResponse struct {
	Date        string   `json:"date"`
	EmployeeID  int64    `json:"employee_id"`
	Unavailable []string `json:"unavailable"`
	Locked      []string `json:"locked"`
}

type SlotStatus struct {
	Slot      Slot `json:"slot"`
	Available bool `json:"available"`
	Booked    bool `json:"booked"`
	Locked    bool `json:"locked"`
}
