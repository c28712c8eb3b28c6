package service

import (
	"context"
	"errors"

	"officehours/internal/queue/model"
	"officehours/internal/queue/policy"
	"officehours/internal/queue/repository"
	pkgerrors "officehours/pkg/errors"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Name   string
}

// Announcer receives the outcome of every successful transition.
type Announcer interface {
	Announce(ctx context.Context, outcome *model.Outcome)
}

// Stores groups the repositories the queue services read and write.
type Stores struct {
	Requests repository.RequestRepository
	Comments repository.CommentRepository
	Members  repository.MembershipRepository
	Courses  repository.CourseRepository
	Events   repository.EventRepository
	Statuses repository.StatusRepository
	Order    repository.OrderRepository
}

// memberRole resolves the caller's role, failing with NotCourseMember when absent.
func memberRole(ctx context.Context, members repository.MembershipRepository, courseID string, actor Actor) (model.Role, error) {
	role, ok, err := members.RoleOf(ctx, courseID, actor.UserID)
	if err != nil {
		return "", pkgerrors.Unavailable(err, "resolve role")
	}
	if !ok {
		return "", pkgerrors.New(pkgerrors.NotCourseMember)
	}
	return role, nil
}

func loadRequest(ctx context.Context, requests repository.RequestRepository, courseID, requestID string) (*model.Request, error) {
	return checkLoaded(requests.Get(ctx, courseID, requestID))
}

// loadFreshRequest reads past the cache, for callers that decide on the closed state.
func loadFreshRequest(ctx context.Context, requests repository.RequestRepository, courseID, requestID string) (*model.Request, error) {
	return checkLoaded(requests.GetFresh(ctx, courseID, requestID))
}

func checkLoaded(req *model.Request, err error) (*model.Request, error) {
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return nil, pkgerrors.New(pkgerrors.RequestNotFound)
		}
		return nil, pkgerrors.Unavailable(err, "load request")
	}
	return req, nil
}

// effectiveStatus maps a stored status to the one the lifecycle sees: an
// absent entry on a request with a closed history reads as CLOSED.
func effectiveStatus(req *model.Request, stored model.Status) model.Status {
	if stored == model.StatusCreated && req.IsClosed() {
		return model.StatusClosed
	}
	return stored
}

// canViewRequest allows the creator and anyone ranked HELPER or above.
func canViewRequest(table *policy.Table, req *model.Request, role model.Role, actor Actor) bool {
	return req.CreatorID == actor.UserID || table.AtLeast(role, model.RoleHelper)
}
