package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimitExceeded is matched with errors.Is on the error returned when a
// client is over budget.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ExceededError carries how long the client should wait before retrying.
type ExceededError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Key, e.RetryAfter)
}

func (e *ExceededError) Unwrap() error { return ErrRateLimitExceeded }

// Decision describes the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Allower is implemented by the in-process Limiter and the RedisLimiter.
// A denied request yields a Decision with Allowed=false and an
// *ExceededError; any other error is a backend failure.
type Allower interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Limiter is an in-process sliding-window log keyed by client. Each key keeps
// the timestamps of its accepted requests inside the window. Keys whose
// requests have all aged out are dropped lazily on access and by Sweep, so
// the map is bounded by the number of clients active within one window.
type Limiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	mu      sync.Mutex
	hits    []time.Time
	evicted bool
}

type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New returns a limiter admitting max requests per key per window.
func New(window time.Duration, max int, opts ...Option) *Limiter {
	l := &Limiter{
		window:  window,
		max:     max,
		now:     time.Now,
		clients: make(map[string]*client),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) Window() time.Duration { return l.window }
func (l *Limiter) Max() int              { return l.max }

// Allow records a request for key if it fits in the current window.
func (l *Limiter) Allow(_ context.Context, key string) (Decision, error) {
	for {
		c := l.client(key)
		c.mu.Lock()
		if c.evicted {
			// Swept between lookup and lock; take the fresh entry.
			c.mu.Unlock()
			continue
		}

		now := l.now()
		c.prune(now.Add(-l.window))

		if len(c.hits) >= l.max {
			c.mu.Unlock()
			d := Decision{Allowed: false, Limit: l.max, Remaining: 0, RetryAfter: l.window}
			return d, &ExceededError{Key: key, RetryAfter: l.window}
		}

		c.hits = append(c.hits, now)
		remaining := l.max - len(c.hits)
		c.mu.Unlock()
		return Decision{Allowed: true, Limit: l.max, Remaining: remaining}, nil
	}
}

func (l *Limiter) client(key string) *client {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.clients[key]
	if !ok {
		c = &client{}
		l.clients[key] = c
	}
	return c
}

// prune drops timestamps older than cutoff. hits is in ascending order.
func (c *client) prune(cutoff time.Time) {
	i := 0
	for i < len(c.hits) && c.hits[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	c.hits = append(c.hits[:0], c.hits[i:]...)
}

// Sweep removes every key with no request inside the window and returns how
// many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, c := range l.clients {
		c.mu.Lock()
		c.prune(cutoff)
		if len(c.hits) == 0 {
			c.evicted = true
			delete(l.clients, key)
			removed++
		}
		c.mu.Unlock()
	}
	return removed
}

// Len is the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Run sweeps every interval until ctx is done. onSweep, if non-nil, receives
// the number of keys removed by each pass.
func (l *Limiter) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n := l.Sweep()
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}
