package repository

import (
	"context"
	"time"

	"officehours/internal/common/db"
	"officehours/internal/queue/model"
)

// EventRepository keeps the lifecycle timeline of requests.
type EventRepository interface {
	// Insert records an event; it reports false when the event id was already stored.
	Insert(ctx context.Context, event *model.LifecycleEvent) (bool, error)
	ListByRequest(ctx context.Context, courseID, requestID string) ([]model.LifecycleEvent, error)
}

type SQLEventRepository struct {
	db      db.Database
	timeout time.Duration
}

// NewEventRepository creates a new repository.
func NewEventRepository(database db.Database, timeout time.Duration) *SQLEventRepository {
	return &SQLEventRepository{db: database, timeout: timeout}
}

// Insert stores event unless its id is already recorded.
func (r *SQLEventRepository) Insert(ctx context.Context, event *model.LifecycleEvent) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO request_events (event_id, course_id, request_id, actor_id, actor_role, from_status, to_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(ctx, query,
		event.EventID,
		event.CourseID,
		event.RequestID,
		event.ActorID,
		string(event.ActorRole),
		string(event.From),
		string(event.To),
		toMillis(event.At),
	)
	if err != nil {
		if db.IsDuplicate(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListByRequest returns the timeline of a request.
func (r *SQLEventRepository) ListByRequest(ctx context.Context, courseID, requestID string) ([]model.LifecycleEvent, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT event_id, course_id, request_id, actor_id, actor_role, from_status, to_status, created_at
		FROM request_events WHERE course_id = ? AND request_id = ?
		ORDER BY created_at ASC, event_id ASC
	`
	rows, err := r.db.Query(ctx, query, courseID, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]model.LifecycleEvent, 0)
	for rows.Next() {
		var (
			e              model.LifecycleEvent
			role, from, to string
			createdAt      int64
		)
		if err := rows.Scan(&e.EventID, &e.CourseID, &e.RequestID, &e.ActorID, &role, &from, &to, &createdAt); err != nil {
			return nil, err
		}
		e.ActorRole = model.Role(role)
		e.From = model.Status(from)
		e.To = model.Status(to)
		e.At = fromMillis(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}
