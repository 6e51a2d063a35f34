package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"
)

// KeyFunc extracts the bucket key for a request. An empty key exempts the
// request from limiting.
type KeyFunc func(*http.Request) string

// Limiter is a keyed token-bucket limiter. The key decides what is being
// throttled: setup registrations bucket per client IP, voice call starts
// bucket per caller identity.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64 // tokens per second
	burst     int     // max tokens
	now       func() time.Time
	lastPrune time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

const (
	bucketPruneInterval = 5 * time.Minute
	bucketIdleCutoff    = 10 * time.Minute
)

// NewLimiter creates a limiter allowing rate requests/sec with the given
// burst size per key. nowFn may be nil.
func NewLimiter(rate float64, burst int, nowFn func() time.Time) *Limiter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Limiter{
		buckets:   make(map[string]*bucket),
		rate:      rate,
		burst:     burst,
		now:       nowFn,
		lastPrune: nowFn(),
	}
}

// Allow returns true if the request under key is within the rate limit.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) >= bucketPruneInterval {
		cutoff := now.Add(-bucketIdleCutoff)
		for k, b := range l.buckets {
			if b.lastTime.Before(cutoff) {
				delete(l.buckets, k)
			}
		}
		l.lastPrune = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastTime: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// ClientIP keys buckets by the requester's address.
func ClientIP(r *http.Request) string {
	// Prefer X-Real-Ip set by chi's RealIP middleware.
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// VoiceStartKey keys buckets by the caller identity of call.started events
// and exempts everything else: mid-call utterance and end webhooks are paced
// by the transport itself, and throttling them would stall live calls. A
// start without a caller falls back to the client IP.
func VoiceStartKey(r *http.Request) string {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var event struct {
		Event  string `json:"event"`
		Caller string `json:"caller"`
	}
	if err := json.Unmarshal(body, &event); err != nil || event.Event != "call.started" {
		return ""
	}
	if event.Caller != "" {
		return "caller:" + event.Caller
	}
	return "ip:" + ClientIP(r)
}

// RateLimitKeyed returns an HTTP middleware that rejects requests exceeding
// the limiter's rate with 429 Too Many Requests. Requests the KeyFunc maps
// to an empty key pass through untouched.
func RateLimitKeyed(limiter *Limiter, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k != "" && !limiter.Allow(k) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit is the per-IP variant used by the setup endpoints.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	return RateLimitKeyed(NewLimiter(rate, burst, nil), ClientIP)
}
