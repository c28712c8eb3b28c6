package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"officehours/internal/common/db"
	"officehours/internal/queue/model"
	"officehours/internal/queue/policy"
	"officehours/internal/queue/repository"
	pkgerrors "officehours/pkg/errors"
	"officehours/pkg/utils/logger"

	"go.uber.org/zap"
)

// CourseInput is the editable part of a course.
type CourseInput struct {
	Name      string          `json:"name"`
	Location  string          `json:"location"`
	Schedule  json.RawMessage `json:"schedule"`
	Resources json.RawMessage `json:"resources"`
}

// CourseService manages course metadata and memberships.
type CourseService struct {
	db      db.Database
	courses repository.CourseRepository
	members repository.MembershipRepository
	table   *policy.Table
	now     func() time.Time
}

// NewCourseService creates a new service.
func NewCourseService(database db.Database, stores Stores, table *policy.Table) *CourseService {
	if table == nil {
		table = policy.Default()
	}
	return &CourseService{
		db:      database,
		courses: stores.Courses,
		members: stores.Members,
		table:   table,
		now:     time.Now,
	}
}

// List returns every course the caller belongs to.
func (s *CourseService) List(ctx context.Context, actor Actor) ([]model.Membership, error) {
	memberships, err := s.members.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "list memberships")
	}
	return memberships, nil
}

// Get returns course metadata to any authenticated caller.
func (s *CourseService) Get(ctx context.Context, courseID string) (*model.Course, error) {
	course, err := s.courses.Get(ctx, nil, courseID)
	if err != nil {
		if errors.Is(err, repository.ErrCourseNotFound) {
			return nil, pkgerrors.New(pkgerrors.CourseNotFound)
		}
		return nil, pkgerrors.Unavailable(err, "load course")
	}
	return course, nil
}

// Join adds the caller as a STUDENT. An existing membership is kept as is.
func (s *CourseService) Join(ctx context.Context, courseID string, actor Actor) (*model.Membership, error) {
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, err
	}
	role, err := s.members.AddIfAbsent(ctx, courseID, actor.UserID, model.RoleStudent)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "join course")
	}
	return &model.Membership{CourseID: courseID, UserID: actor.UserID, Role: role, CourseName: course.Name}, nil
}

// Grant sets a user's role. Only ADMINs of the course may grant.
func (s *CourseService) Grant(ctx context.Context, courseID string, actor Actor, userID, rawRole string) (*model.Membership, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.BadRequest("userId is required")
	}
	role := model.NormalizeRole(rawRole)
	if !s.table.HasRole(role) {
		return nil, pkgerrors.BadRequest("unknown role").WithDetail("role", rawRole)
	}
	actorRole, err := memberRole(ctx, s.members, courseID, actor)
	if err != nil {
		return nil, err
	}
	if !s.table.AtLeast(actorRole, model.RoleAdmin) {
		return nil, pkgerrors.ForbiddenError("only admins can grant roles")
	}
	if err := s.members.SetRole(ctx, nil, courseID, userID, role); err != nil {
		return nil, pkgerrors.Unavailable(err, "grant role")
	}
	logger.Info(ctx, "course role granted",
		zap.String("course_id", courseID),
		zap.String("user_id", userID),
		zap.String("role", role.String()),
	)
	return &model.Membership{CourseID: courseID, UserID: userID, Role: role}, nil
}

// Put creates or updates a course. A new course makes the caller its ADMIN;
// an existing one may only be edited by its ADMINs.
func (s *CourseService) Put(ctx context.Context, courseID string, actor Actor, input CourseInput) (*model.Course, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return nil, pkgerrors.BadRequest("courseId is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.BadRequest("name is required")
	}
	for field, raw := range map[string]json.RawMessage{"schedule": input.Schedule, "resources": input.Resources} {
		if len(raw) > 0 && !json.Valid(raw) {
			return nil, pkgerrors.ValidationError(field, "must be valid JSON")
		}
	}

	role, isMember, err := s.members.RoleOf(ctx, courseID, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "resolve role")
	}
	isAdmin := isMember && s.table.AtLeast(role, model.RoleAdmin)

	now := s.now().UTC()
	course := &model.Course{
		CourseID:  courseID,
		Name:      strings.TrimSpace(input.Name),
		Location:  strings.TrimSpace(input.Location),
		Schedule:  input.Schedule,
		Resources: input.Resources,
		CreatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var forbidden bool
	err = s.db.Transaction(ctx, func(tx db.Transaction) error {
		existing, err := s.courses.Get(ctx, tx, courseID)
		if err != nil && !errors.Is(err, repository.ErrCourseNotFound) {
			return err
		}
		if existing != nil && !isAdmin {
			forbidden = true
			return nil
		}
		created, err := s.courses.Upsert(ctx, tx, course)
		if err != nil {
			return err
		}
		if created {
			return s.members.SetRole(ctx, tx, courseID, actor.UserID, model.RoleAdmin)
		}
		course.CreatedBy = existing.CreatedBy
		course.CreatedAt = existing.CreatedAt
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "save course")
	}
	if forbidden {
		return nil, pkgerrors.ForbiddenError("only admins can edit this course")
	}
	return s.Get(ctx, courseID)
}
