// Package ratelimit provides per-client sliding-window admission control with
// violation-triggered exponential backoff and concurrent-connection capping.
//
// Each key gets an independent window of recent request timestamps. Repeated
// violations escalate a punitive backoff independent of the steady-state
// window; the concurrency cap is a capacity signal and never escalates.
// A background goroutine evicts idle entries to bound memory.
package ratelimit

import (
	"sync"
	"time"
)

// Config tunes the limiter.
type Config struct {
	Enabled       bool
	Window        time.Duration // sliding window size
	MaxRequests   int           // request ceiling per window per key
	MaxConcurrent int           // concurrent-connection ceiling per key

	// ConcurrencyRetryAfter is the fixed hint returned when the connection
	// cap is hit. Defaults to one second.
	ConcurrencyRetryAfter time.Duration
}

// maxViolationBackoff caps the punitive backoff regardless of violation count.
const maxViolationBackoff = 5 * time.Minute

// violationBackoffBase is the backoff after the first violation; it doubles
// per violation until capped.
const violationBackoffBase = time.Second

// Decision is the outcome of an admission check. RetryAfter is set only on
// denial so well-behaved clients can back off correctly.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// clientState is the per-key record. Timestamps older than the window are
// never counted toward the limit; they are pruned lazily on each check.
type clientState struct {
	requests     []time.Time
	connections  int
	violations   int
	backoffUntil time.Time
	lastSeen     time.Time
}

// Limiter is a sliding-window rate limiter. Safe for concurrent use.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	clients map[string]*clientState

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a limiter and starts its background sweep. Call Close to stop it.
func New(cfg Config) *Limiter {
	if cfg.ConcurrencyRetryAfter <= 0 {
		cfg.ConcurrencyRetryAfter = time.Second
	}
	l := &Limiter{
		cfg:     cfg,
		clients: make(map[string]*clientState),
		done:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// CheckRequest decides whether a request for key may proceed.
func (l *Limiter) CheckRequest(key string) Decision {
	if !l.cfg.Enabled {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c := l.state(key, now)

	if c.backoffUntil.After(now) {
		return Decision{RetryAfter: c.backoffUntil.Sub(now)}
	}

	c.pruneRequests(now.Add(-l.cfg.Window))

	if len(c.requests) >= l.cfg.MaxRequests {
		c.violations++
		backoff := violationBackoff(c.violations)
		c.backoffUntil = now.Add(backoff)
		return Decision{RetryAfter: backoff}
	}

	if l.cfg.MaxConcurrent > 0 && c.connections >= l.cfg.MaxConcurrent {
		return Decision{RetryAfter: l.cfg.ConcurrencyRetryAfter}
	}

	c.requests = append(c.requests, now)
	return Decision{Allowed: true}
}

// AddConnection records an active connection for key.
func (l *Limiter) AddConnection(key string) {
	if !l.cfg.Enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state(key, time.Now()).connections++
}

// RemoveConnection releases an active connection for key. The counter never
// goes negative, even on unbalanced calls.
func (l *Limiter) RemoveConnection(key string) {
	if !l.cfg.Enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[key]
	if !ok {
		return
	}
	if c.connections > 0 {
		c.connections--
	}
	c.lastSeen = time.Now()
}

// ResetViolations clears the violation count and any active backoff for key.
// Called after successful re-authentication.
func (l *Limiter) ResetViolations(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.clients[key]; ok {
		c.violations = 0
		c.backoffUntil = time.Time{}
	}
}

// Close stops the background sweep. Safe to call multiple times.
func (l *Limiter) Close() error {
	l.stopOnce.Do(func() { close(l.done) })
	return nil
}

// state returns the record for key, creating it on first observation.
// Callers must hold l.mu.
func (l *Limiter) state(key string, now time.Time) *clientState {
	c, ok := l.clients[key]
	if !ok {
		c = &clientState{}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c
}

func (c *clientState) pruneRequests(cutoff time.Time) {
	keep := c.requests[:0]
	for _, t := range c.requests {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	c.requests = keep
}

func violationBackoff(violations int) time.Duration {
	backoff := violationBackoffBase
	for i := 1; i < violations; i++ {
		backoff *= 2
		if backoff >= maxViolationBackoff {
			return maxViolationBackoff
		}
	}
	return backoff
}

// sweep periodically removes idle, zero-concurrency entries. Runs off the
// request path so it never blocks a caller.
func (l *Limiter) sweep() {
	interval := l.cfg.Window
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

// idleMultiple of the window bounds how long an inactive key is remembered.
const idleMultiple = 10

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-idleMultiple * l.cfg.Window)
	for key, c := range l.clients {
		if c.connections == 0 && c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}
