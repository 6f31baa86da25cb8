/*
Package api
File: ratelimit.go
Description:
    Per-client token buckets for manual actions. REST callers are keyed by
    remote IP and WebSocket callers by client ID. WebSocket buckets are
    forgotten when the client leaves; REST buckets are evicted by Run once
    they sit idle.

    Limits can be changed at runtime with Reconfigure, which also retunes
    every existing bucket.
*/

package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per client key (remote IP or WS client ID).
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*bucket
	limit    rate.Limit
	burst    int
}

// NewLimiter allows perSecond actions per key with the given burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*bucket),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether key may act now and consumes a token if so.
func (l *Limiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.limiters[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// Forget drops the bucket for key, e.g. when a WebSocket client disconnects.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.limiters, key)
	l.mu.Unlock()
}

// Prune drops every bucket not used since cutoff and returns how many went.
func (l *Limiter) Prune(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for key, b := range l.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			n++
		}
	}
	return n
}

// Run prunes buckets idle for longer than idle, checking every interval,
// until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Prune(now.Add(-idle))
		}
	}
}

// Reconfigure changes the limit for new buckets and retunes existing ones.
func (l *Limiter) Reconfigure(perSecond float64, burst int) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limit = rate.Limit(perSecond)
	l.burst = burst
	for _, b := range l.limiters {
		b.lim.SetLimitAt(now, l.limit)
		b.lim.SetBurstAt(now, burst)
	}
}

// Len is the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
