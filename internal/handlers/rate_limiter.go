package handlers

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/storefront-field/quote-api/internal/platform/httpx"
)

const rateLimitErrorCode = "rate_limited"

// rateLimiter admits requests per client key and reports how long a rejected caller should
// wait before retrying.
type rateLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// clientBuckets keeps one token bucket per client. Each bucket holds limit tokens and refills
// at limit per window.
type clientBuckets struct {
	every  rate.Limit
	burst  int
	idle   time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	byKey  map[string]*clientBucket
	sweeps int
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sweepInterval is how many admissions pass between idle-bucket sweeps.
const sweepInterval = 256

// newWindowRateLimiter returns nil when limit or window disable limiting.
func newWindowRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &clientBuckets{
		every: rate.Every(window / time.Duration(limit)),
		burst: limit,
		idle:  window,
		clock: clock,
		byKey: make(map[string]*clientBucket),
	}
}

func (b *clientBuckets) Allow(key string) (bool, time.Duration) {
	if b == nil {
		return true, 0
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	now := b.clock()

	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.byKey[key]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(b.every, b.burst)}
		b.byKey[key] = bucket
	}
	bucket.lastSeen = now
	b.sweepLocked(now)

	reservation := bucket.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, b.idle
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweepLocked drops buckets idle for a full window; they would be full again anyway.
func (b *clientBuckets) sweepLocked(now time.Time) {
	b.sweeps++
	if b.sweeps < sweepInterval {
		return
	}
	b.sweeps = 0
	for key, bucket := range b.byKey {
		if now.Sub(bucket.lastSeen) >= b.idle {
			delete(b.byKey, key)
		}
	}
}

// rateLimitMiddleware answers 429 with Retry-After once the caller's bucket is empty. Callers are
// keyed by buyer session, falling back to client IP.
func rateLimitMiddleware(limiter rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed, wait := limiter.Allow(clientKey(r)); !allowed {
				httpx.WriteError(r.Context(), w, httpx.NewError(rateLimitErrorCode, "too many requests", http.StatusTooManyRequests).WithRetryAfter(wait))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
