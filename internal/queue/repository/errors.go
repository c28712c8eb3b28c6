package repository

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRequestNotFound = errors.New("request not found")
	ErrRequestExists   = errors.New("request already exists")
	ErrCourseNotFound  = errors.New("course not found")
	ErrStatusConflict  = errors.New("status changed concurrently")
)

const defaultStoreTimeout = 500 * time.Millisecond

// withTimeout bounds a single store call.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
