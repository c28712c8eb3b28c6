package ratelimit

import (
	"context"
	"time"

	"officehours/internal/common/cache"
	pkgerrors "officehours/pkg/errors"
)

// Limiter enforces fixed-window limits using Redis counters.
type Limiter struct {
	cache        cache.BasicOps
	window       time.Duration
	redisTimeout time.Duration
}

// NewLimiter creates a fixed-window limiter.
func NewLimiter(cacheClient cache.BasicOps, window time.Duration, redisTimeout time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if redisTimeout <= 0 {
		redisTimeout = 200 * time.Millisecond
	}
	return &Limiter{cache: cacheClient, window: window, redisTimeout: redisTimeout}
}

// Allow counts one hit against key and fails with TooManyRequests past max.
// A zero window uses the limiter default.
func (l *Limiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = l.window
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	count := int64(1)
	if !acquired {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
		// A counter that lost its TTL would never reset.
		if ttl, ttlErr := l.cache.TTL(ctxCache, key); ttlErr == nil && ttl <= 0 {
			_ = l.cache.Expire(ctxCache, key, window)
		}
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithDetail("retry_after_seconds", int(window.Seconds()))
	}
	return nil
}
