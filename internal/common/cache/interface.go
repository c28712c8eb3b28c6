package cache

import (
	"context"
	"time"
)

// Cache defines the unified interface for cache operations.
// Queue state, cache-aside entries, rate limit counters and cross-node
// event fan-out all go through it.
type Cache interface {
	BasicOps
	HashOps
	ListOps
	ScriptOps
	PubSubOps

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get retrieves the value for the given key.
	// A missing key returns an empty string and a nil error.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL
	// If ttl is 0, the key will not expire
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist (atomic operation)
	// Returns true if the key was set, false if it already existed
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// Exists returns the number of the given keys that exist
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Expire sets a timeout on a key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining time to live of a key
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Incr increments the integer value of a key by 1
	Incr(ctx context.Context, key string) (int64, error)
}

// HashOps defines hash (map) operations
type HashOps interface {
	// HGet returns the value of field, or an empty string when absent
	HGet(ctx context.Context, key, field string) (string, error)

	// HGetAll returns all fields and values of the hash stored at key
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// ListOps defines list operations. Lists are written by scripts.
type ListOps interface {
	// LRange returns elements from a list by index range
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
}

// ScriptOps runs server-side Lua scripts atomically.
type ScriptOps interface {
	// Eval runs script against keys with args. Scripts are cached by SHA
	// and re-sent only when the server does not know them.
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// PubSubOps defines publish/subscribe operations
type PubSubOps interface {
	// Publish posts message to channel
	Publish(ctx context.Context, channel string, message interface{}) error

	// Subscribe listens on the given channels until the subscription is closed
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

// Subscription is a live channel subscription.
type Subscription interface {
	// Messages delivers payloads in arrival order; it is closed by Close.
	Messages() <-chan Message
	Close() error
}

// Message is one pub/sub delivery.
type Message struct {
	Channel string
	Payload string
}
