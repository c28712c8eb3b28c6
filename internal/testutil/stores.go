package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"officehours/internal/common/cache"
	"officehours/internal/common/db"
	"officehours/migrations"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewRedis starts a miniredis server and returns a cache bound to it.
func NewRedis(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("create redis cache failed: %v", err)
	}
	return c, mr
}

// NewSQLite opens a migrated sqlite database in the test's temp dir.
func NewSQLite(t *testing.T) *db.SQLDatabase {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "queue.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	database, err := db.Open(&db.Config{Driver: db.DriverSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	if _, err := db.Migrate(context.Background(), database, migrations.FS); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return database
}
