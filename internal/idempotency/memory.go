package idempotency

import (
	"context"
	"sync"
	"time"

	"appointease/pkg/clock"
	"appointease/pkg/model"
)

const sweepInterval = 1 * time.Hour

type memoryEntry struct {
	record model.IdempotencyRecord
	// done is closed once the claim is completed or abandoned.
	done chan struct{}
}

type memoryStore struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	ttl      time.Duration
	clock    clock.Clock
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMemoryStore(ttl time.Duration, clk clock.Clock) Store {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	s := &memoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		clock:   clk,
		stopCh:  make(chan struct{}),
	}

	go s.sweepLoop()

	return s
}

func (s *memoryStore) GetOrCreate(ctx context.Context, key, fingerprint string) (*model.IdempotencyRecord, error) {
	for {
		now := s.clock.Now()

		s.mu.Lock()
		entry, ok := s.entries[key]
		if ok && entry.record.Expired(now) {
			s.remove(key, entry)
			ok = false
		}
		if !ok {
			s.entries[key] = &memoryEntry{
				record: model.IdempotencyRecord{
					Key:         key,
					Fingerprint: fingerprint,
					State:       model.IdempotencyPending,
					CreatedAt:   now,
					ExpiresAt:   now.Add(PendingLease),
				},
				done: make(chan struct{}),
			}
			s.mu.Unlock()
			return nil, nil
		}
		if entry.record.Fingerprint != fingerprint {
			s.mu.Unlock()
			return nil, ErrFingerprintMismatch
		}
		if entry.record.Completed() {
			record := entry.record
			record.Body = append([]byte(nil), entry.record.Body...)
			s.mu.Unlock()
			return &record, nil
		}
		done := entry.done
		s.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ErrInProgress
		}
	}
}

func (s *memoryStore) Complete(_ context.Context, key string, statusCode int, body []byte) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.record.Completed() {
		return ErrNotClaimed
	}
	entry.record.State = model.IdempotencyCompleted
	entry.record.StatusCode = statusCode
	entry.record.Body = append([]byte(nil), body...)
	entry.record.ExpiresAt = now.Add(s.ttl)
	close(entry.done)
	return nil
}

func (s *memoryStore) Abandon(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && !entry.record.Completed() {
		s.remove(key, entry)
	}
	return nil
}

// remove deletes the entry and wakes its waiters. Caller holds mu.
func (s *memoryStore) remove(key string, entry *memoryEntry) {
	delete(s.entries, key)
	if !entry.record.Completed() {
		close(entry.done)
	}
}

func (s *memoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *memoryStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *memoryStore) sweep() {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if entry.record.Expired(now) {
			s.remove(key, entry)
		}
	}
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
