package repository

import (
	"context"
	"encoding/json"
	"time"

	"officehours/internal/common/db"
	"officehours/internal/queue/model"
)

// CourseRepository persists course metadata.
type CourseRepository interface {
	Get(ctx context.Context, tx db.Transaction, courseID string) (*model.Course, error)
	// Upsert creates the course or replaces its descriptive fields. CreatedBy and
	// CreatedAt are only written on insert. It reports whether the row was created.
	Upsert(ctx context.Context, tx db.Transaction, course *model.Course) (bool, error)
}

type SQLCourseRepository struct {
	db      db.Database
	timeout time.Duration
}

// NewCourseRepository creates a new repository.
func NewCourseRepository(database db.Database, timeout time.Duration) *SQLCourseRepository {
	return &SQLCourseRepository{db: database, timeout: timeout}
}

// Get returns course by id.
func (r *SQLCourseRepository) Get(ctx context.Context, tx db.Transaction, courseID string) (*model.Course, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT course_id, name, location, schedule, resources, created_by, created_at, updated_at
		FROM courses WHERE course_id = ? LIMIT 1
	`
	var (
		course               model.Course
		schedule, resources  string
		createdAt, updatedAt int64
	)
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, query, courseID).Scan(
		&course.CourseID,
		&course.Name,
		&course.Location,
		&schedule,
		&resources,
		&course.CreatedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	course.Schedule = json.RawMessage(schedule)
	course.Resources = json.RawMessage(resources)
	course.CreatedAt = fromMillis(createdAt)
	course.UpdatedAt = fromMillis(updatedAt)
	return &course, nil
}

// Upsert writes course and reports whether it was created.
func (r *SQLCourseRepository) Upsert(ctx context.Context, tx db.Transaction, course *model.Course) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	querier := db.GetQuerier(r.db, tx)
	var exists int
	err := querier.QueryRow(ctx, "SELECT 1 FROM courses WHERE course_id = ? LIMIT 1", course.CourseID).Scan(&exists)
	if err != nil && !db.IsNoRows(err) {
		return false, err
	}
	if db.IsNoRows(err) {
		_, err = querier.Exec(ctx, `
			INSERT INTO courses (course_id, name, location, schedule, resources, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			course.CourseID,
			course.Name,
			course.Location,
			jsonText(course.Schedule, "null"),
			jsonText(course.Resources, "[]"),
			course.CreatedBy,
			toMillis(course.CreatedAt),
			toMillis(course.UpdatedAt),
		)
		return err == nil, err
	}
	_, err = querier.Exec(ctx, `
		UPDATE courses SET name = ?, location = ?, schedule = ?, resources = ?, updated_at = ?
		WHERE course_id = ?
	`,
		course.Name,
		course.Location,
		jsonText(course.Schedule, "null"),
		jsonText(course.Resources, "[]"),
		toMillis(course.UpdatedAt),
		course.CourseID,
	)
	return false, err
}

func jsonText(raw json.RawMessage, fallback string) string {
	if len(raw) == 0 {
		return fallback
	}
	return string(raw)
}
