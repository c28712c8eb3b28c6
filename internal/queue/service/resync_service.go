package service

import (
	"context"

	"officehours/internal/queue/model"
	"officehours/internal/queue/repository"
	pkgerrors "officehours/pkg/errors"
)

const activeLookback = 20

// ResyncService builds the one-time snapshot pushed to a new realtime session.
type ResyncService struct {
	requests repository.RequestRepository
	members  repository.MembershipRepository
	statuses repository.StatusRepository
	order    repository.OrderRepository
}

// NewResyncService creates a new service.
func NewResyncService(stores Stores) *ResyncService {
	return &ResyncService{
		requests: stores.Requests,
		members:  stores.Members,
		statuses: stores.Statuses,
		order:    stores.Order,
	}
}

// Authorize returns the user's role in the course or NotCourseMember.
func (s *ResyncService) Authorize(ctx context.Context, courseID string, actor Actor) (model.Role, error) {
	return memberRole(ctx, s.members, courseID, actor)
}

// Snapshot reads the course Order, the status map and the user's active request.
// The active request is the newest one the user created that still has a status entry.
func (s *ResyncService) Snapshot(ctx context.Context, courseID, userID string) (*model.Snapshot, error) {
	order, err := s.order.List(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "read order")
	}
	statuses, err := s.statuses.All(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "read statuses")
	}
	recent, err := s.requests.ListByCreator(ctx, courseID, userID, activeLookback)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "list requests")
	}

	active := model.ActiveRequest{UserID: userID}
	for _, req := range recent {
		if _, ok := statuses[req.RequestID]; ok {
			active.RequestID = req.RequestID
			break
		}
	}
	return &model.Snapshot{
		Order:    model.OrderUpdate{CourseID: courseID, Order: order},
		Statuses: model.StatusUpdate{CourseID: courseID, Statuses: statuses},
		Active:   active,
	}, nil
}
