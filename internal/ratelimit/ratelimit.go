package ratelimit

import (
	"context"
	"sync"
	"time"
)

// RouteClass partitions rate budgets by the kind of endpoint being hit.
type RouteClass string

const (
	RouteToken   RouteClass = "token"
	RouteStream  RouteClass = "stream"
	RouteDefault RouteClass = "default"
)

// WindowConfig is a fixed-window budget: Limit requests per Window.
type WindowConfig struct {
	Limit  int
	Window time.Duration
}

// Table maps route classes to their budgets. Lookups for unknown classes
// fall back to RouteDefault.
type Table map[RouteClass]WindowConfig

// DefaultTable returns the recognized route-class budgets.
func DefaultTable() Table {
	return Table{
		RouteToken:   {Limit: 30, Window: time.Minute},
		RouteStream:  {Limit: 120, Window: time.Minute},
		RouteDefault: {Limit: 100, Window: time.Minute},
	}
}

func (t Table) lookup(class RouteClass) WindowConfig {
	if cfg, ok := t[class]; ok {
		return cfg
	}
	return t[RouteDefault]
}

// Result reports the outcome of a budget check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter int // seconds until the window resets; 0 when allowed
}

// Limiter enforces per-identity, per-route-class request budgets.
type Limiter interface {
	Check(ctx context.Context, identityKey string, class RouteClass) (Result, error)
}

// bucket is one identity's counter for the current window. Each bucket has
// its own mutex so unrelated identities never contend on increments.
type bucket struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	lastSeen    time.Time
}

// MemoryLimiter is a fixed-window counter limiter held in process memory.
// Suitable for single-instance deployments and tests; multi-instance
// deployments should use the Redis-backed limiter.
type MemoryLimiter struct {
	table Table

	mu      sync.Mutex
	buckets map[string]*bucket

	now  func() time.Time
	done chan struct{}
}

// NewMemoryLimiter creates an in-memory limiter and starts its sweep
// goroutine. Call Stop when done.
func NewMemoryLimiter(table Table) *MemoryLimiter {
	if table == nil {
		table = DefaultTable()
	}
	l := &MemoryLimiter{
		table:   table,
		buckets: make(map[string]*bucket),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Stop terminates the background sweep.
func (l *MemoryLimiter) Stop() {
	close(l.done)
}

// Check consumes one request from the identity's budget for the route class.
// Counting is atomic per identity: a concurrent burst against limit N admits
// at most N requests.
func (l *MemoryLimiter) Check(_ context.Context, identityKey string, class RouteClass) (Result, error) {
	cfg := l.table.lookup(class)
	key := string(class) + ":" + identityKey

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeen = now
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= cfg.Window {
		// Window rollover: fresh window starts from this request
		b.windowStart = now
		b.count = 0
	}

	if b.count >= cfg.Limit {
		retryAfter := int(cfg.Window.Seconds()) - int(now.Sub(b.windowStart).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Result{Allowed: false, Limit: cfg.Limit, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	b.count++
	return Result{Allowed: true, Limit: cfg.Limit, Remaining: cfg.Limit - b.count}, nil
}

// sweep drops buckets idle for longer than any configured window so the
// map stays bounded by the active identity set.
func (l *MemoryLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var maxWindow time.Duration
	for _, cfg := range l.table {
		if cfg.Window > maxWindow {
			maxWindow = cfg.Window
		}
	}

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := l.now().Add(-2 * maxWindow)
			l.mu.Lock()
			for key, b := range l.buckets {
				b.mu.Lock()
				idle := b.lastSeen.Before(cutoff)
				b.mu.Unlock()
				if idle {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
