package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	slotlockserrors "appointease/internal/slotlocks/errors"
	"appointease/pkg/clock"
	"appointease/pkg/model"
)

const memorySweepInterval = 5 * time.Second

type memoryLockRepository struct {
	mu       sync.Mutex
	locks    map[string]model.SlotLock
	clock    clock.Clock
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMemoryLockRepository(clk clock.Clock) LockRepository {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	r := &memoryLockRepository{
		locks:  make(map[string]model.SlotLock),
		clock:  clk,
		stopCh: make(chan struct{}),
	}

	go r.sweepLoop()

	return r
}

func (r *memoryLockRepository) Backend() string {
	return "memory"
}

// live returns the unexpired lock under key, dropping an expired one. Caller holds mu.
func (r *memoryLockRepository) live(key string, now time.Time) (model.SlotLock, bool) {
	lock, ok := r.locks[key]
	if !ok {
		return model.SlotLock{}, false
	}
	if lock.Expired(now) {
		delete(r.locks, key)
		return model.SlotLock{}, false
	}
	return lock, true
}

func (r *memoryLockRepository) Acquire(_ context.Context, slot model.Slot, holder string, ttl time.Duration) (*model.SlotLock, error) {
	now := r.clock.Now()
	key := lockKey(slot)

	r.mu.Lock()
	defer r.mu.Unlock()

	lock, held := r.live(key, now)
	switch {
	case held && !lock.HeldBy(holder):
		return nil, &slotlockserrors.LockedError{Lock: lock}
	case held:
		lock.ExpiresAt = now.Add(ttl)
	default:
		lock = model.SlotLock{
			Slot:       slot,
			Holder:     holder,
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		}
	}
	r.locks[key] = lock
	return &lock, nil
}

func (r *memoryLockRepository) Release(_ context.Context, slot model.Slot, holder string) (bool, error) {
	key := lockKey(slot)

	r.mu.Lock()
	defer r.mu.Unlock()

	lock, held := r.live(key, r.clock.Now())
	if !held {
		return false, nil
	}
	if !lock.HeldBy(holder) {
		return false, slotlockserrors.ErrNotHolder
	}
	delete(r.locks, key)
	return true, nil
}

func (r *memoryLockRepository) Get(_ context.Context, slot model.Slot) (*model.SlotLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, held := r.live(lockKey(slot), r.clock.Now())
	if !held {
		return nil, nil
	}
	return &lock, nil
}

func (r *memoryLockRepository) Active(_ context.Context, employeeID int64, date string) ([]model.SlotLock, error) {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.SlotLock{}
	for key, lock := range r.locks {
		if lock.Slot.EmployeeID != employeeID || lock.Slot.Date != date {
			continue
		}
		if lock.Expired(now) {
			delete(r.locks, key)
			continue
		}
		out = append(out, lock)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot.Time < out[j].Slot.Time })
	return out, nil
}

func (r *memoryLockRepository) Count(_ context.Context) (int64, error) {
	r.sweep()

	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.locks)), nil
}

func (r *memoryLockRepository) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *memoryLockRepository) sweepLoop() {
	ticker := time.NewTicker(memorySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweep()
		case <-r.stopCh:
			return
		}
	}
}

func (r *memoryLockRepository) sweep() {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, lock := range r.locks {
		if lock.Expired(now) {
			delete(r.locks, key)
		}
	}
}
