package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long a client may stay silent before its bucket is dropped.
const idleAfter = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket keyed by ClientIP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	onLimit  http.Handler
	now      func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewRateLimiter allows perMinute requests per client per minute, with bursts
// up to perMinute. onLimit writes the rejection; nil writes a plain JSON 429.
// Call Stop to end the idle-client sweeper.
func NewRateLimiter(perMinute int, onLimit http.Handler) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if onLimit == nil {
		onLimit = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE001")
		})
	}
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		onLimit:  onLimit,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go rl.sweep(time.Minute)
	return rl
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware rejects clients that ran out of tokens with Retry-After set.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(ClientIP(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			rl.onLimit.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stop ends the sweeper goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// retryAfter is the whole seconds until one token refills.
func (rl *RateLimiter) retryAfter() int {
	secs := int(time.Duration(float64(time.Second) / float64(rl.limit)).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (rl *RateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle()
		}
	}
}

func (rl *RateLimiter) evictIdle() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-idleAfter)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}
