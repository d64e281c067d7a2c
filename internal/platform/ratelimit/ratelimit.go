package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleAfter is how long an idle client's limiter is kept before pruning.
const staleAfter = time.Hour

// Limiter applies a token-bucket rate limit per client key. Each key gets
// its own bucket; idle buckets are pruned lazily on insert so the map does
// not grow without bound.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*entry
	rate     rate.Limit
	burst    int
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// New returns a Limiter allowing reqs requests per window with a burst of
// the same size, e.g. New(100, 15*time.Minute) for 100 requests / 15 min.
func New(reqs int, window time.Duration) *Limiter {
	return &Limiter{
		limiters: make(map[string]*entry),
		rate:     rate.Every(window / time.Duration(reqs)),
		burst:    reqs,
	}
}

// Allow reports whether a request from key may proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) > 10000 {
			l.prune()
		}
		e = &entry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = e
	}
	e.lastAccess = time.Now()
	limiter := e.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// prune removes limiters idle longer than staleAfter. Caller holds l.mu.
func (l *Limiter) prune() {
	cutoff := time.Now().Add(-staleAfter)
	for key, e := range l.limiters {
		if e.lastAccess.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

// Middleware returns a chi-compatible middleware keying the limiter by
// client IP. Over-limit requests get 429 without reaching the handler.
func Middleware(l *Limiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if !l.Allow(key) {
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
