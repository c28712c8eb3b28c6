package repository

import (
	"context"
	"time"

	"officehours/internal/common/cache"
)

// OrderRepository reads the per-course FIFO of waiting requests.
// Writes go through StatusRepository.Apply so status and Order never diverge.
type OrderRepository interface {
	// List returns the Order, oldest first.
	List(ctx context.Context, courseID string) ([]string, error)
}

// RedisOrderRepository keeps each course Order in a Redis list.
type RedisOrderRepository struct {
	cache   cache.Cache
	timeout time.Duration
}

// NewOrderRepository creates a new repository.
func NewOrderRepository(cacheClient cache.Cache, timeout time.Duration) *RedisOrderRepository {
	return &RedisOrderRepository{cache: cacheClient, timeout: timeout}
}

func orderKey(courseID string) string {
	return "queue:order:{" + courseID + "}"
}

// List returns the Order of a course; an empty Order is a non-nil empty slice.
func (r *RedisOrderRepository) List(ctx context.Context, courseID string) ([]string, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	items, err := r.cache.LRange(ctx, orderKey(courseID), 0, -1)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []string{}
	}
	return items, nil
}
