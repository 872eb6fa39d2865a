package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

const rateLimitedBody = `{"error":"rate limit exceeded"}`

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client address with a token bucket.
// The router runs chi's RealIP first, so RemoteAddr already reflects
// X-Real-IP or X-Forwarded-For from the proxy.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*client
	rate     rate.Limit
	burst    int
	rejected prometheus.Counter
	now      func() time.Time
}

// NewRateLimiter allows rps requests per second per client with bursts of burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*client),
		rate:    rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// CountRejections increments c for every throttled request.
func (rl *RateLimiter) CountRejections(c prometheus.Counter) *RateLimiter {
	rl.rejected = c
	return rl
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = rl.now()

	return c.limiter
}

// Limit rejects requests over the client's budget with 429 and a Retry-After
// header saying when the next token is due.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := rl.limiter(clientKey(r)).ReserveN(rl.now(), 1)

		if delay := res.DelayFrom(rl.now()); !res.OK() || delay > 0 {
			res.CancelAt(rl.now())

			if rl.rejected != nil {
				rl.rejected.Inc()
			}

			retryAfter := 1
			if res.OK() {
				retryAfter = int(math.Ceil(delay.Seconds()))
			}

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(rateLimitedBody))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientKey is the host part of RemoteAddr. Ports are ignored so one client
// gets one bucket across connections.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// EvictIdle forgets clients not seen for idle. Their next request starts with
// a full bucket.
func (rl *RateLimiter) EvictIdle(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	evicted := 0
	for key, c := range rl.clients {
		if !c.lastSeen.After(cutoff) {
			delete(rl.clients, key)
			evicted++
		}
	}

	return evicted
}

// RunCleanup evicts clients idle for longer than interval, every interval,
// until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.EvictIdle(interval)
		}
	}
}
