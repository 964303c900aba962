// Package ratelimit throttles requests per client with an in-memory token
// bucket.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Info describes a client's bucket after a request was counted
type Info struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucket allows Limit requests per Window for each key, refilling
// continuously
type TokenBucket struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stop chan struct{}
	once sync.Once
}

// NewTokenBucket creates a limiter. A cleanup goroutine drops idle buckets
// every window until Close is called.
func NewTokenBucket(limit int, window time.Duration) *TokenBucket {
	tb := &TokenBucket{
		limit:   limit,
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stop:    make(chan struct{}),
	}
	go tb.cleanup()
	return tb
}

// Allow takes one token for key
func (tb *TokenBucket) Allow(key string) (bool, Info) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(tb.limit), lastRefill: now}
		tb.buckets[key] = b
	}

	rate := float64(tb.limit) / tb.window.Seconds()
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if b.tokens > float64(tb.limit) {
		b.tokens = float64(tb.limit)
	}
	b.lastRefill = now

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}

	missing := float64(tb.limit) - b.tokens
	info := Info{
		Limit:     tb.limit,
		Remaining: int(b.tokens),
		ResetAt:   now.Add(time.Duration(missing / rate * float64(time.Second))),
	}
	return allowed, info
}

func (tb *TokenBucket) cleanup() {
	ticker := time.NewTicker(tb.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tb.mu.Lock()
			cutoff := tb.now().Add(-tb.window)
			for key, b := range tb.buckets {
				if b.lastRefill.Before(cutoff) {
					delete(tb.buckets, key)
				}
			}
			tb.mu.Unlock()
		case <-tb.stop:
			return
		}
	}
}

// Close stops the cleanup goroutine
func (tb *TokenBucket) Close() {
	tb.once.Do(func() { close(tb.stop) })
}

// ClientIP keys requests by remote host
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429 and sets the
// X-RateLimit headers on every response
func Middleware(tb *TokenBucket, key func(*http.Request) string, logger *zap.Logger) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			allowed, info := tb.Allow(k)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

			if !allowed {
				retry := int(time.Until(info.ResetAt).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(retry))
				logger.Warn("rate limit exceeded",
					zap.String("client", k),
					zap.String("path", r.URL.Path),
				)
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
