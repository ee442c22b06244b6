package middleware

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"signalcore/internal/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int
	RequestsPerHour   int
	Enabled           bool
}

// DefaultRateLimitConfig returns the default applied to the Fire Command
// Router: generous enough for a single EA's normal fire cadence, tight
// enough to blunt a runaway or compromised client.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		RequestsPerHour:   1000,
		Enabled:           true,
	}
}

// RateLimitConfigFromEnv builds a RateLimitConfig from environment
// variables, falling back to DefaultRateLimitConfig for anything unset.
func RateLimitConfigFromEnv() RateLimitConfig {
	config := DefaultRateLimitConfig()

	if rpm := os.Getenv("RATE_LIMIT_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			config.RequestsPerMinute = val
		}
	}
	if rph := os.Getenv("RATE_LIMIT_REQUESTS_PER_HOUR"); rph != "" {
		if val, err := strconv.Atoi(rph); err == nil && val > 0 {
			config.RequestsPerHour = val
		}
	}
	if enabled := os.Getenv("RATE_LIMIT_ENABLED"); enabled != "" {
		config.Enabled = enabled != "false" && enabled != "0"
	}

	return config
}

type clientBucket struct {
	minuteCount     int
	hourCount       int
	minuteResetTime time.Time
	hourResetTime   time.Time
	mu              sync.Mutex
}

// RateLimiter is an in-memory, per-caller rate limiter. The Fire Command
// Router keys it by authenticated user_id rather than IP, since the caller
// identity that matters is the trading account, not the network address.
type RateLimiter struct {
	config  RateLimitConfig
	clients map[string]*clientBucket
	mu      sync.RWMutex
}

// NewRateLimiter creates a rate limiter and starts its stale-entry cleanup
// goroutine.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	limiter := &RateLimiter{
		config:  config,
		clients: make(map[string]*clientBucket),
	}
	go limiter.cleanup()
	return limiter
}

// NewRateLimiterFromEnv builds a RateLimiter from environment variables.
func NewRateLimiterFromEnv() *RateLimiter {
	return NewRateLimiter(RateLimitConfigFromEnv())
}

// Allow reports whether a request from key should proceed, and if not, a
// human-readable reason suitable for the response body.
func (rl *RateLimiter) Allow(key string) (bool, string) {
	if !rl.config.Enabled {
		return true, ""
	}

	now := time.Now()

	rl.mu.RLock()
	bucket, exists := rl.clients[key]
	rl.mu.RUnlock()

	if !exists {
		bucket = &clientBucket{
			minuteResetTime: now.Add(time.Minute),
			hourResetTime:   now.Add(time.Hour),
		}
		rl.mu.Lock()
		rl.clients[key] = bucket
		rl.mu.Unlock()
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	if now.After(bucket.minuteResetTime) {
		bucket.minuteCount = 0
		bucket.minuteResetTime = now.Add(time.Minute)
	}
	if now.After(bucket.hourResetTime) {
		bucket.hourCount = 0
		bucket.hourResetTime = now.Add(time.Hour)
	}

	if bucket.minuteCount >= rl.config.RequestsPerMinute {
		retryAfter := bucket.minuteResetTime.Sub(now)
		return false, fmt.Sprintf("rate limit exceeded: %d requests per minute, retry after %v",
			rl.config.RequestsPerMinute, retryAfter.Round(time.Second))
	}
	if bucket.hourCount >= rl.config.RequestsPerHour {
		retryAfter := bucket.hourResetTime.Sub(now)
		return false, fmt.Sprintf("rate limit exceeded: %d requests per hour, retry after %v",
			rl.config.RequestsPerHour, retryAfter.Round(time.Second))
	}

	bucket.minuteCount++
	bucket.hourCount++
	return true, ""
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		rl.mu.Lock()
		for key, bucket := range rl.clients {
			bucket.mu.Lock()
			if now.After(bucket.minuteResetTime) && now.After(bucket.hourResetTime) &&
				bucket.minuteCount == 0 && bucket.hourCount == 0 {
				delete(rl.clients, key)
			}
			bucket.mu.Unlock()
		}
		rl.mu.Unlock()
	}
}

// Middleware enforces the rate limit, keyed by authenticated user_id when
// the request has already passed auth.Validator.Middleware, falling back to
// client IP for unauthenticated endpoints.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)

		allowed, message := rl.Allow(key)
		if !allowed {
			log.Printf("rate limit exceeded for %s on %s", key, r.URL.Path)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
			w.Header().Set("X-RateLimit-Remaining", "0")
			http.Error(w, message, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok && userID != "" {
		return "user:" + userID
	}
	return "ip:" + getClientIP(r)
}

// getClientIP extracts the client IP, honoring X-Forwarded-For and
// X-Real-IP for requests proxied by a load balancer.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	for i := len(ip) - 1; i >= 0; i-- {
		if ip[i] == ':' {
			return ip[:i]
		}
	}
	return ip
}

// Stats returns current rate limiter statistics for a health/status
// endpoint.
func (rl *RateLimiter) Stats() map[string]any {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return map[string]any{
		"enabled":             rl.config.Enabled,
		"requests_per_minute": rl.config.RequestsPerMinute,
		"requests_per_hour":   rl.config.RequestsPerHour,
		"active_clients":      len(rl.clients),
	}
}
