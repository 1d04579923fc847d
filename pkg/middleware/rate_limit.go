package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "appointease/pkg/errors"
	httputil "appointease/pkg/http"
	"appointease/pkg/logger"

	"golang.org/x/time/rate"
)

type KeyExtractor func(r *http.Request) string

type RateLimiterConfig struct {
	Name            string
	Requests        int
	Window          time.Duration
	CleanupInterval time.Duration
	Key             KeyExtractor
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per key. Requests refill evenly over
// Window and up to Requests may burst.
type RateLimiter struct {
	cfg      RateLimiterConfig
	limit    rate.Limit
	log      *logger.Logger
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRateLimiter(cfg RateLimiterConfig, log *logger.Logger) *RateLimiter {
	if cfg.Key == nil {
		cfg.Key = httputil.PeerIP
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		cfg:      cfg,
		limit:    rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		log:      log,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).Allow()
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.cfg.Key(r)
			if key == "" || rl.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}

			rl.log.Warn("Rate limit exceeded",
				"request_id", requestID(r),
				"limiter", rl.cfg.Name,
				"key", key,
				"path", r.URL.Path,
			)

			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
			_ = httputil.WriteError(w, apperrors.RateLimited("Too many requests, please try again later"))
		})
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.cfg.Requests)}
		rl.limiters[key] = cl
	}
	cl.lastAccess = time.Now()
	return cl.limiter
}

func (rl *RateLimiter) retryAfterSeconds() int {
	secs := int(math.Ceil(rl.cfg.Window.Seconds() / float64(rl.cfg.Requests)))
	if secs < 1 {
		return 1
	}
	return secs
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup forgets keys idle for longer than a full window, whose buckets
// are necessarily full again.
func (rl *RateLimiter) cleanup(now time.Time) {
	idle := max(rl.cfg.Window, rl.cfg.CleanupInterval)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastAccess) > idle {
			delete(rl.limiters, key)
		}
	}
}
