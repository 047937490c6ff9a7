package runtime

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxIPRateLimiters bounds the limiter map to prevent memory exhaustion from
// spoofed source addresses.
const maxIPRateLimiters = 10000

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter manages per-IP token buckets with a bounded map: when full,
// the least recently seen address is dropped to make room.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiterEntry
	rate     rate.Limit
	burst    int
}

// NewIPRateLimiter creates a per-IP rate limiter with the given sustained rate
// and burst capacity.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		rate:     r,
		burst:    b,
	}
}

// Allow reports whether a request from ip may proceed now.
func (i *IPRateLimiter) Allow(ip string) bool {
	return i.getLimiter(ip).Allow()
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, exists := i.limiters[ip]
	if exists {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	if len(i.limiters) >= maxIPRateLimiters {
		var oldestIP string
		var oldestTime time.Time
		for ip, entry := range i.limiters {
			if oldestIP == "" || entry.lastSeen.Before(oldestTime) {
				oldestIP = ip
				oldestTime = entry.lastSeen
			}
		}
		if oldestIP != "" {
			delete(i.limiters, oldestIP)
		}
	}

	limiter := rate.NewLimiter(i.rate, i.burst)
	i.limiters[ip] = &rateLimiterEntry{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

// Cleanup removes limiters that haven't been used within maxAge and returns
// the number removed.
func (i *IPRateLimiter) Cleanup(maxAge time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	cleaned := 0
	for ip, entry := range i.limiters {
		if now.Sub(entry.lastSeen) > maxAge {
			delete(i.limiters, ip)
			cleaned++
		}
	}
	return cleaned
}
