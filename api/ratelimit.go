package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client address
type RateLimiter struct {
	// TrustedHops is how many proxies in front of the server append to
	// X-Forwarded-For. Zero keys clients by their remote address.
	TrustedHops int

	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastAccess map[string]time.Time
	rate       rate.Limit
	burst      int
	now        func() time.Time
}

// NewRateLimiter allows each client perMinute requests a minute with bursts of burst
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		lastAccess: make(map[string]time.Time),
		rate:       rate.Limit(perMinute / 60),
		burst:      burst,
		now:        time.Now,
	}
}

// Allow reports whether key may make a request now
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	now := l.now()
	l.lastAccess[key] = now
	return limiter.AllowN(now, 1)
}

// Evict removes limiters that haven't been accessed within maxAge.
func (l *RateLimiter) Evict(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxAge)
	for key, last := range l.lastAccess {
		if last.Before(cutoff) {
			delete(l.limiters, key)
			delete(l.lastAccess, key)
		}
	}
}

// Len returns the number of tracked clients
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Middleware answers 429 once a client exhausts its bucket
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, l.TrustedHops)
		if !l.Allow(ip) {
			zap.S().Warnw("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": "too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the address the outermost trusted proxy saw. Each of the
// trustedHops proxies appends the peer it saw to X-Forwarded-For, so
// entries left of those are client supplied and ignored. Without trusted
// proxies, or when the header is shorter than expected, the remote address
// is used.
func ClientIP(r *http.Request, trustedHops int) string {
	if trustedHops > 0 {
		var hops []string
		for _, v := range r.Header.Values("X-Forwarded-For") {
			for _, hop := range strings.Split(v, ",") {
				hops = append(hops, strings.TrimSpace(hop))
			}
		}
		if len(hops) >= trustedHops {
			if ip := hops[len(hops)-trustedHops]; net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
