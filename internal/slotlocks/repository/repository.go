package repository

import (
	"context"
	"time"

	"appointease/pkg/model"
)

// LockRepository stores advisory slot locks. Implementations enforce expiry:
// an expired lock is never returned and never blocks an acquire.
type LockRepository interface {
	// Acquire takes the lock for holder, or refreshes the TTL when holder
	// already has it. A lock held by someone else yields *LockedError.
	Acquire(ctx context.Context, slot model.Slot, holder string, ttl time.Duration) (*model.SlotLock, error)
	// Release drops the lock if holder has it. A missing lock returns false;
	// a lock held by another client returns ErrNotHolder.
	Release(ctx context.Context, slot model.Slot, holder string) (bool, error)
	Get(ctx context.Context, slot model.Slot) (*model.SlotLock, error)
	Active(ctx context.Context, employeeID int64, date string) ([]model.SlotLock, error)
	Count(ctx context.Context) (int64, error)
	Backend() string
	Stop()
}

func lockKey(slot model.Slot) string {
	return slot.OccupancyKey()
}
