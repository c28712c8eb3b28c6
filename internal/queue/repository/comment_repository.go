package repository

import (
	"context"
	"time"

	"officehours/internal/common/db"
	"officehours/internal/queue/model"
)

// CommentRepository stores the append-only comments of a request.
type CommentRepository interface {
	// Add appends a comment; ErrRequestNotFound when the request has no content record.
	Add(ctx context.Context, courseID, requestID string, comment *model.Comment) error
	List(ctx context.Context, courseID, requestID string) ([]model.Comment, error)
}

type SQLCommentRepository struct {
	db      db.Database
	timeout time.Duration
}

// NewCommentRepository creates a new repository.
func NewCommentRepository(database db.Database, timeout time.Duration) *SQLCommentRepository {
	return &SQLCommentRepository{db: database, timeout: timeout}
}

// Add appends a comment to a request.
func (r *SQLCommentRepository) Add(ctx context.Context, courseID, requestID string, comment *model.Comment) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	// The SELECT ties the insert to an existing request in one statement.
	query := `
		INSERT INTO request_comments (comment_id, course_id, request_id, author_id, author_name, text, created_at)
		SELECT ?, course_id, request_id, ?, ?, ?, ?
		FROM help_requests WHERE course_id = ? AND request_id = ?
	`
	result, err := r.db.Exec(ctx, query,
		comment.CommentID,
		comment.AuthorID,
		comment.AuthorName,
		comment.Text,
		comment.CreatedAt.UnixNano(),
		courseID,
		requestID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// List returns the comments of a request, oldest first.
func (r *SQLCommentRepository) List(ctx context.Context, courseID, requestID string) ([]model.Comment, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT comment_id, author_id, author_name, text, created_at
		FROM request_comments WHERE course_id = ? AND request_id = ?
		ORDER BY created_at ASC, comment_id ASC
	`
	rows, err := r.db.Query(ctx, query, courseID, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		var c model.Comment
		var createdAt int64
		if err := rows.Scan(&c.CommentID, &c.AuthorID, &c.AuthorName, &c.Text, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, createdAt).UTC()
		comments = append(comments, c)
	}
	return comments, rows.Err()
}
