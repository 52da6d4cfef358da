// Package httptransport provides the per-IP security limiter.
package httptransport

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter is a per-client token bucket with idle cleanup. It backs the
// security hardening middleware's single-window, IP-keyed limit.
type IPLimiter struct {
	mu      sync.Mutex
	entries map[string]*ipEntry

	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type ipEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// IPLimiterOptions configures an IPLimiter.
type IPLimiterOptions struct {
	RatePerSecond float64
	Burst         int
	IdleTTL       time.Duration
	CleanupEvery  time.Duration
}

// NewIPLimiter constructs a limiter with defaults applied.
func NewIPLimiter(opts IPLimiterOptions) *IPLimiter {
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 50
	}
	if opts.Burst <= 0 {
		opts.Burst = 100
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 15 * time.Minute
	}
	if opts.CleanupEvery <= 0 {
		opts.CleanupEvery = 2 * time.Minute
	}
	return &IPLimiter{
		entries:      make(map[string]*ipEntry),
		rps:          rate.Limit(opts.RatePerSecond),
		burst:        opts.Burst,
		idleTTL:      opts.IdleTTL,
		cleanupEvery: opts.CleanupEvery,
	}
}

// Allow reports whether the client may proceed.
func (l *IPLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	return l.limiterFor(key).Allow()
}

func (l *IPLimiter) limiterFor(key string) *rate.Limiter {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.entries[key]; ok {
		entry.lastSeen = now
		return entry.lim
	}
	lim := rate.NewLimiter(l.rps, l.burst)
	l.entries[key] = &ipEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops idle entries.
func (l *IPLimiter) Cleanup() {
	cutoff := time.Now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

// StartJanitor runs periodic cleanup until the context is done.
func (l *IPLimiter) StartJanitor(ctx context.Context) {
	if l.cleanupEvery <= 0 {
		return
	}
	ticker := time.NewTicker(l.cleanupEvery)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// ClientIP resolves the request's client address. When trustForwarded is
// set the first X-Forwarded-For entry wins.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
