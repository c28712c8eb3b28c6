package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"officehours/internal/common/cache"
	"officehours/internal/common/db"
	"officehours/internal/queue/model"
)

const (
	defaultRequestCacheTTL      = 10 * time.Minute
	defaultRequestCacheEmptyTTL = 30 * time.Second
	requestCacheKeyPrefix       = "queue:request:"
)

// RequestRepository persists help request content.
type RequestRepository interface {
	// Get returns the request, served from the cache when possible.
	Get(ctx context.Context, courseID, requestID string) (*model.Request, error)
	// GetFresh reads the request from the database, bypassing the cache.
	GetFresh(ctx context.Context, courseID, requestID string) (*model.Request, error)
	// Create inserts a new request; ErrRequestExists if the id is taken.
	Create(ctx context.Context, request *model.Request) error
	// UpdateContent replaces the content document.
	UpdateContent(ctx context.Context, courseID, requestID string, content json.RawMessage, at time.Time) error
	// AssignHelperIfUnset stamps the helper only when none is recorded and reports whether it did.
	AssignHelperIfUnset(ctx context.Context, courseID, requestID, helperID, helperName string, at time.Time) (bool, error)
	// MarkClosed records the close time.
	MarkClosed(ctx context.Context, courseID, requestID string, at time.Time) error
	// UnmarkClosed clears a close time recorded at exactly at.
	UnmarkClosed(ctx context.Context, courseID, requestID string, at time.Time) error
	// ListByCreator returns the creator's requests in the course, newest first.
	ListByCreator(ctx context.Context, courseID, creatorID string, limit int) ([]*model.Request, error)
}

// SQLRequestRepository implements RequestRepository with SQL and a Redis cache-aside layer.
type SQLRequestRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
	timeout  time.Duration
}

// NewRequestRepository creates a request repository; cacheClient may be nil.
func NewRequestRepository(database db.Database, cacheClient cache.Cache, timeout time.Duration) *SQLRequestRepository {
	return &SQLRequestRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      defaultRequestCacheTTL,
		emptyTTL: defaultRequestCacheEmptyTTL,
		timeout:  timeout,
	}
}

const requestColumns = "course_id, request_id, creator_id, creator_name, helper_id, helper_name, content, created_at, updated_at, closed_at"

// Get returns a request by id.
func (r *SQLRequestRepository) Get(ctx context.Context, courseID, requestID string) (*model.Request, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	if r.cache == nil {
		return r.getFromDB(ctx, courseID, requestID)
	}
	request, err := cache.GetWithCached[*model.Request](
		ctx,
		r.cache,
		requestCacheKey(courseID, requestID),
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(request *model.Request) bool { return request == nil },
		marshalRequest,
		unmarshalRequest,
		func(ctx context.Context) (*model.Request, error) {
			request, err := r.getFromDB(ctx, courseID, requestID)
			if errors.Is(err, ErrRequestNotFound) {
				return nil, nil
			}
			return request, err
		},
	)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, ErrRequestNotFound
	}
	return request, nil
}

// GetFresh returns a request by id straight from the database.
func (r *SQLRequestRepository) GetFresh(ctx context.Context, courseID, requestID string) (*model.Request, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	return r.getFromDB(ctx, courseID, requestID)
}

func (r *SQLRequestRepository) getFromDB(ctx context.Context, courseID, requestID string) (*model.Request, error) {
	query := "SELECT " + requestColumns + " FROM help_requests WHERE course_id = ? AND request_id = ? LIMIT 1"
	request, err := scanRequest(r.db.QueryRow(ctx, query, courseID, requestID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return request, nil
}

// Create inserts a new request.
func (r *SQLRequestRepository) Create(ctx context.Context, request *model.Request) error {
	if request == nil || request.CourseID == "" || request.RequestID == "" || request.CreatorID == "" {
		return errors.New("course, request and creator ids are required")
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO help_requests
		(course_id, request_id, creator_id, creator_name, helper_id, helper_name, content, created_at, updated_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`
	return cache.UpdateCached(ctx, r.cache, requestCacheKey(request.CourseID, request.RequestID), func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query,
			request.CourseID,
			request.RequestID,
			request.CreatorID,
			request.CreatorName,
			request.HelperID,
			request.HelperName,
			contentText(request.Content),
			toMillis(request.CreatedAt),
			toMillis(request.UpdatedAt),
		)
		if db.IsDuplicate(err) {
			return ErrRequestExists
		}
		return err
	})
}

// UpdateContent replaces the content of a request.
func (r *SQLRequestRepository) UpdateContent(ctx context.Context, courseID, requestID string, content json.RawMessage, at time.Time) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	query := "UPDATE help_requests SET content = ?, updated_at = ? WHERE course_id = ? AND request_id = ?"
	return cache.UpdateCached(ctx, r.cache, requestCacheKey(courseID, requestID), func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, contentText(content), toMillis(at), courseID, requestID)
		return err
	})
}

// AssignHelperIfUnset stamps the helper of a request.
func (r *SQLRequestRepository) AssignHelperIfUnset(ctx context.Context, courseID, requestID, helperID, helperName string, at time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	query := `
		UPDATE help_requests SET helper_id = ?, helper_name = ?, updated_at = ?
		WHERE course_id = ? AND request_id = ? AND helper_id = ''
	`
	var stamped bool
	err := cache.UpdateCached(ctx, r.cache, requestCacheKey(courseID, requestID), func(ctx context.Context) error {
		result, err := r.db.Exec(ctx, query, helperID, helperName, toMillis(at), courseID, requestID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		stamped = affected > 0
		return nil
	})
	return stamped, err
}

// MarkClosed sets closed_at.
func (r *SQLRequestRepository) MarkClosed(ctx context.Context, courseID, requestID string, at time.Time) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	query := "UPDATE help_requests SET closed_at = ?, updated_at = ? WHERE course_id = ? AND request_id = ?"
	return cache.UpdateCached(ctx, r.cache, requestCacheKey(courseID, requestID), func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, toMillis(at), toMillis(at), courseID, requestID)
		return err
	})
}

// UnmarkClosed resets closed_at when it still holds at.
func (r *SQLRequestRepository) UnmarkClosed(ctx context.Context, courseID, requestID string, at time.Time) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	query := "UPDATE help_requests SET closed_at = 0 WHERE course_id = ? AND request_id = ? AND closed_at = ?"
	return cache.UpdateCached(ctx, r.cache, requestCacheKey(courseID, requestID), func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, courseID, requestID, toMillis(at))
		return err
	})
}

// ListByCreator returns requests created by one user.
func (r *SQLRequestRepository) ListByCreator(ctx context.Context, courseID, creatorID string, limit int) ([]*model.Request, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	query := "SELECT " + requestColumns + " FROM help_requests WHERE course_id = ? AND creator_id = ? ORDER BY created_at DESC, request_id DESC LIMIT ?"
	rows, err := r.db.Query(ctx, query, courseID, creatorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Request
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, request)
	}
	return out, rows.Err()
}

func scanRequest(row db.Row) (*model.Request, error) {
	request := &model.Request{}
	var content string
	var createdAt, updatedAt, closedAt int64
	if err := row.Scan(
		&request.CourseID,
		&request.RequestID,
		&request.CreatorID,
		&request.CreatorName,
		&request.HelperID,
		&request.HelperName,
		&content,
		&createdAt,
		&updatedAt,
		&closedAt,
	); err != nil {
		return nil, err
	}
	request.Content = json.RawMessage(content)
	request.CreatedAt = fromMillis(createdAt)
	request.UpdatedAt = fromMillis(updatedAt)
	if closedAt > 0 {
		t := fromMillis(closedAt)
		request.ClosedAt = &t
	}
	return request, nil
}

func requestCacheKey(courseID, requestID string) string {
	return requestCacheKeyPrefix + courseID + ":" + requestID
}

func marshalRequest(request *model.Request) string {
	data, err := json.Marshal(request)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalRequest(data string) (*model.Request, error) {
	var request model.Request
	if err := json.Unmarshal([]byte(data), &request); err != nil {
		return nil, err
	}
	return &request, nil
}

func contentText(content json.RawMessage) string {
	if len(content) == 0 {
		return "{}"
	}
	return string(content)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
