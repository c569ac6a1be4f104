package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/soundvault/backend/internal/cache"
	"github.com/soundvault/backend/internal/logger"
)

// RedisLimiter is a fixed-window counter limiter backed by Redis, for
// deployments where multiple instances must share budgets. Counting uses
// INCR + EXPIRE: the first request in a window sets the key's TTL, and the
// remaining TTL doubles as the Retry-After value on denial.
//
// Redis errors fail closed: a broken limiter must not open the API to
// unmetered traffic.
type RedisLimiter struct {
	table  Table
	client *cache.RedisClient
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(table Table, client *cache.RedisClient) *RedisLimiter {
	if table == nil {
		table = DefaultTable()
	}
	return &RedisLimiter{table: table, client: client}
}

// Check consumes one request from the identity's shared budget.
func (l *RedisLimiter) Check(ctx context.Context, identityKey string, class RouteClass) (Result, error) {
	cfg := l.table.lookup(class)
	key := fmt.Sprintf("rate:%s:%s", class, identityKey)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	count, err := l.client.IncrBy(ctx, key, 1)
	if err != nil {
		logger.Error("Rate limit increment failed - rejecting request",
			logger.WithIdentity(identityKey),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("rate limiter unavailable: %w", err)
	}

	// Set expiration on first request in this window
	if count == 1 {
		if err := l.client.Expire(ctx, key, cfg.Window); err != nil {
			logger.Warn("Failed to set rate limit expiration",
				logger.WithIdentity(identityKey),
				zap.Error(err),
			)
		}
	}

	if count > int64(cfg.Limit) {
		retryAfter := int(cfg.Window.Seconds())
		if ttl, err := l.client.TTL(ctx, key); err == nil && ttl > 0 {
			retryAfter = int(math.Ceil(ttl.Seconds()))
		}
		return Result{Allowed: false, Limit: cfg.Limit, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	return Result{Allowed: true, Limit: cfg.Limit, Remaining: cfg.Limit - int(count)}, nil
}
