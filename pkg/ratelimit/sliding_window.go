package ratelimit

import (
	"sync"
	"time"

	"appointease/pkg/clock"
)

// SlidingWindow admits at most limit events per key within any window-long
// interval. Keys are opaque, typically a normalized email.
type SlidingWindow struct {
	mu       sync.Mutex
	events   map[string][]time.Time
	limit    int
	window   time.Duration
	clock    clock.Clock
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSlidingWindow(limit int, window time.Duration, clk clock.Clock) *SlidingWindow {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	sw := &SlidingWindow{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
		clock:  clk,
		stopCh: make(chan struct{}),
	}

	go sw.cleanupLoop()

	return sw
}

// Allow records an event for key and reports whether it fits the window.
// Rejected events are not recorded.
func (sw *SlidingWindow) Allow(key string) bool {
	if key == "" {
		return true
	}
	now := sw.clock.Now()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	recent := sw.prune(sw.events[key], now)
	if len(recent) >= sw.limit {
		sw.events[key] = recent
		return false
	}
	sw.events[key] = append(recent, now)
	return true
}

// Exceeded reports whether key has used its quota, without recording.
func (sw *SlidingWindow) Exceeded(key string) bool {
	if key == "" {
		return false
	}
	now := sw.clock.Now()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	recent := sw.prune(sw.events[key], now)
	sw.events[key] = recent
	return len(recent) >= sw.limit
}

// Record counts an event for key unconditionally. Paired with Exceeded when
// only some outcomes should use up the quota.
func (sw *SlidingWindow) Record(key string) {
	if key == "" {
		return
	}
	now := sw.clock.Now()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.events[key] = append(sw.prune(sw.events[key], now), now)
}

// RetryAfter is how long until key may be admitted again.
func (sw *SlidingWindow) RetryAfter(key string) time.Duration {
	now := sw.clock.Now()

	sw.mu.Lock()
	defer sw.mu.Unlock()

	recent := sw.prune(sw.events[key], now)
	if len(recent) < sw.limit {
		return 0
	}
	return recent[len(recent)-sw.limit].Add(sw.window).Sub(now)
}

func (sw *SlidingWindow) Stop() {
	sw.stopOnce.Do(func() { close(sw.stopCh) })
}

func (sw *SlidingWindow) prune(events []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(events) && now.Sub(events[i]) >= sw.window {
		i++
	}
	return events[i:]
}

func (sw *SlidingWindow) cleanupLoop() {
	ticker := time.NewTicker(sw.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.cleanup()
		case <-sw.stopCh:
			return
		}
	}
}

func (sw *SlidingWindow) cleanup() {
	now := sw.clock.Now()

	sw.mu.Lock()
	defer sw.mu.Unlock()
	for key, events := range sw.events {
		if len(sw.prune(events, now)) == 0 {
			delete(sw.events, key)
		}
	}
}

func (sw *SlidingWindow) len() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.events)
}
