package errors

import (
	"errors"
	"fmt"
	"time"

	"appointease/pkg/model"
)

var ErrNotHolder = errors.New("slot lock is held by another client")

// LockedError reports the lock that blocked an acquire.
type LockedError struct {
	Lock model.SlotLock
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("slot %s is locked until %s", e.Lock.Slot, e.Lock.ExpiresAt.Format(time.RFC3339))
}
