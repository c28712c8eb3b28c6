package auth

import (
	"context"
	"errors"
	"time"

	"officehours/internal/common/cache"
)

const revokedTokenKeyPrefix = "queue:revoked:"

// RevocationList tracks revoked access tokens in Redis with a local LRU in front.
type RevocationList struct {
	local        *cache.LRUCache[bool]
	redis        cache.BasicOps
	redisTimeout time.Duration
	localTTL     time.Duration
}

// NewRevocationList creates a revocation list; local may be nil.
func NewRevocationList(local *cache.LRUCache[bool], redis cache.BasicOps, redisTimeout, localTTL time.Duration) *RevocationList {
	if redisTimeout <= 0 {
		redisTimeout = 200 * time.Millisecond
	}
	return &RevocationList{
		local:        local,
		redis:        redis,
		redisTimeout: redisTimeout,
		localTTL:     localTTL,
	}
}

// IsRevoked reports whether tokenHash was revoked.
func (r *RevocationList) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	if tokenHash == "" {
		return false, nil
	}
	if r.local != nil {
		if val, ok := r.local.Get(tokenHash); ok {
			return val, nil
		}
	}
	if r.redis == nil {
		return false, errors.New("redis is nil")
	}
	ctxCache, cancel := context.WithTimeout(ctx, r.redisTimeout)
	defer cancel()
	n, err := r.redis.Exists(ctxCache, revokedTokenKeyPrefix+tokenHash)
	if err != nil {
		return false, err
	}
	revoked := n > 0
	// Only positive answers are cached locally; a fresh revocation must not be masked.
	if revoked && r.local != nil {
		r.local.Set(tokenHash, true, r.localTTL)
	}
	return revoked, nil
}

// Revoke records tokenHash for ttl.
func (r *RevocationList) Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if r.redis == nil {
		return errors.New("redis is nil")
	}
	ctxCache, cancel := context.WithTimeout(ctx, r.redisTimeout)
	defer cancel()
	if err := r.redis.Set(ctxCache, revokedTokenKeyPrefix+tokenHash, 1, ttl); err != nil {
		return err
	}
	if r.local != nil {
		r.local.Set(tokenHash, true, r.localTTL)
	}
	return nil
}
