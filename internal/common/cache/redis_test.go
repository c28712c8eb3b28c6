package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	return c, mr
}

func TestRedisCacheMissingKeysReturnEmpty(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if v, err := c.Get(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("Get() = %q, %v", v, err)
	}
	if v, err := c.HGet(ctx, "h", "missing"); err != nil || v != "" {
		t.Fatalf("HGet() = %q, %v", v, err)
	}
}

func TestRedisCacheListOps(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if _, err := mr.Push("l", "a", "b", "c"); err != nil {
		t.Fatalf("seed list failed: %v", err)
	}
	items, err := c.LRange(ctx, "l", 0, -1)
	if err != nil {
		t.Fatalf("LRange failed: %v", err)
	}
	if len(items) != 3 || items[0] != "a" || items[2] != "c" {
		t.Fatalf("unexpected items: %v", items)
	}
}

func TestRedisCacheEval(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	script := `redis.call('HSET', KEYS[1], ARGV[1], ARGV[2]); return redis.call('HGET', KEYS[1], ARGV[1])`

	for i := 0; i < 2; i++ {
		res, err := c.Eval(ctx, script, []string{"h"}, "f", "v")
		if err != nil {
			t.Fatalf("Eval failed: %v", err)
		}
		if res != "v" {
			t.Fatalf("unexpected result: %v", res)
		}
	}
}

func TestRedisCachePubSub(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	sub, err := c.Subscribe(ctx, "events")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Close()

	if err := c.Publish(ctx, "events", "hello"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-sub.Messages():
		if msg.Channel != "events" || msg.Payload != "hello" {
			t.Fatalf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
}

func TestGetWithCachedStoresAndServesValues(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (string, error) {
		calls++
		return "value", nil
	}
	get := func() (string, error) {
		return GetWithCached(ctx, c, "k", time.Minute, time.Second,
			func(s string) bool { return s == "" },
			func(s string) string { return s },
			func(s string) (string, error) { return s, nil },
			fetch)
	}

	for i := 0; i < 3; i++ {
		v, err := get()
		if err != nil || v != "value" {
			t.Fatalf("GetWithCached() = %q, %v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
}

func TestGetWithCachedCachesEmpty(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (string, error) {
		calls++
		return "", nil
	}
	for i := 0; i < 2; i++ {
		_, err := GetWithCached(ctx, c, "k", time.Minute, time.Second,
			func(s string) bool { return s == "" },
			func(s string) string { return s },
			func(s string) (string, error) { return s, nil },
			fetch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}
	if got, _ := mr.Get("k"); got != NullCacheValue {
		t.Fatalf("expected null sentinel, got %q", got)
	}
}

func TestGetWithCachedPropagatesFetchError(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("boom")
	_, err := GetWithCached(context.Background(), c, "k", time.Minute, time.Second,
		func(s string) bool { return s == "" },
		func(s string) string { return s },
		func(s string) (string, error) { return s, nil },
		func(context.Context) (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
}

func TestUpdateCachedInvalidates(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	_ = mr.Set("k", "stale")

	if err := UpdateCached(ctx, c, "k", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("UpdateCached failed: %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("expected key to be invalidated")
	}
}
