package cache

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// NullCacheValue is a sentinel value to represent null/empty data in cache
// This prevents cache penetration by caching the absence of data
const NullCacheValue = "$NULL$"

// GetWithCached implements cache-aside pattern with null value caching.
// It reads key first; on a miss it calls fn and stores the result for ttl.
// Empty results are stored as NullCacheValue for emptyTTL.
// Cache read and write failures degrade to calling fn.
//
// Example:
//
//	course, err := GetWithCached(ctx, cache, "queue:course:cs101", time.Hour, time.Minute,
//		func(c *Course) bool { return c == nil },
//		func(c *Course) string { return mustJSON(c) },
//		func(data string) (*Course, error) { return decodeCourse(data) },
//		func(ctx context.Context) (*Course, error) {
//			return repo.loadCourse(ctx, "cs101")
//		})
func GetWithCached[T any](
	ctx context.Context,
	cache Cache,
	key string,
	ttl time.Duration,
	emptyTTL time.Duration,
	isEmpty func(T) bool,
	marshal func(T) string,
	unmarshal func(string) (T, error),
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	if cache != nil {
		if cached, err := cache.Get(ctx, key); err == nil && cached != "" {
			if cached == NullCacheValue {
				return zero, nil
			}
			if result, err := unmarshal(cached); err == nil {
				return result, nil
			}
		}
	}

	data, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	if cache == nil {
		return data, nil
	}

	if isEmpty(data) {
		_ = cache.Set(ctx, key, NullCacheValue, emptyTTL)
		return zero, nil
	}

	_ = cache.Set(ctx, key, marshal(data), ttl)
	return data, nil
}

// UpdateCached runs fn and then drops key so the next read refreshes it.
// The key is dropped even when fn fails, since a partial write may have landed.
func UpdateCached(
	ctx context.Context,
	cache Cache,
	key string,
	fn func(context.Context) error,
) error {
	err := fn(ctx)
	if cache != nil {
		_ = cache.Del(ctx, key)
	}
	return err
}

// JitterTTL shortens ttl by up to ten percent so related keys do not expire together.
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	maxJitter := int64(ttl / 10)
	if maxJitter <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter+1))
	if err != nil {
		return ttl
	}
	return ttl - time.Duration(n.Int64())
}
