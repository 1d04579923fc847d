package model

import "time"

type IdempotencyState string

const (
	IdempotencyPending   IdempotencyState = "pending"
	IdempotencyCompleted IdempotencyState = "completed"
)

// IdempotencyRecord binds a client key to the first outcome produced for it.
type IdempotencyRecord struct {
	Key         string           `bson:"_id"`
	Fingerprint string           `bson:"fingerprint"`
	State       IdempotencyState `bson:"state"`
	StatusCode  int              `bson:"status_code"`
	Body        []byte           `bson:"body"`
	CreatedAt   time.Time        `bson:"created_at"`
	ExpiresAt   time.Time        `bson:"expires_at"`
}

func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

func (r *IdempotencyRecord) Completed() bool {
	return r.State == IdempotencyCompleted
}
