// Package ratelimit paces requests to the archive host and pauses a host
// after it signals overload.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/ccslice/internal/metrics"
)

// Config holds the steady pace. A non-positive RequestsPerSecond disables
// pacing but throttling still applies.
type Config struct {
	RequestsPerSecond float64
	Burst             int
}

// Limiter keeps one token bucket and one pause deadline per host.
type Limiter struct {
	mu    sync.Mutex
	hosts map[string]*hostState
	rps   rate.Limit
	burst int
}

type hostState struct {
	bucket      *rate.Limiter
	pausedUntil time.Time
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	rps := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		rps = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{hosts: make(map[string]*hostState), rps: rps, burst: burst}
}

// Wait blocks until the host of rawURL is out of any pause and a token is
// available. Waits longer than a millisecond are recorded per host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	bucket, pause := l.state(host)

	start := time.Now()
	if pause > 0 {
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Throttle holds requests to the host of rawURL for d. A later deadline
// replaces an earlier one; a shorter pause never cuts a longer one short.
func (l *Limiter) Throttle(rawURL string, d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.hostLocked(hostOf(rawURL))
	if until.After(st.pausedUntil) {
		st.pausedUntil = until
	}
}

func (l *Limiter) state(host string) (*rate.Limiter, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.hostLocked(host)
	return st.bucket, time.Until(st.pausedUntil)
}

func (l *Limiter) hostLocked(host string) *hostState {
	st, ok := l.hosts[host]
	if !ok {
		st = &hostState{bucket: rate.NewLimiter(l.rps, l.burst)}
		l.hosts[host] = st
	}
	return st
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "unknown"
}
