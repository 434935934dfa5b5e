package handlers

import (
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// keyedLimiter hands out one token bucket per caller. Buckets idle for longer than limiterIdleTTL
// are dropped on the next miss.
type keyedLimiter struct {
	every time.Duration
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newKeyedLimiter allows limit calls per window for each key, refilling evenly. It returns nil
// when limiting is disabled.
func newKeyedLimiter(limit int, window time.Duration, clock func() time.Time) *keyedLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &keyedLimiter{
		every:   window / time.Duration(limit),
		burst:   limit,
		now:     clock,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes a token for key. When the bucket is empty it reports how long until the next
// token is available.
func (l *keyedLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		l.evictIdleLocked(now)
		b = &bucket{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}
	wait := time.Duration(math.Ceil((1 - b.limiter.TokensAt(now)) * float64(l.every)))
	return false, wait
}

func (l *keyedLimiter) evictIdleLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.buckets, key)
		}
	}
}
