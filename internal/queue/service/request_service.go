package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"officehours/internal/queue/model"
	"officehours/internal/queue/policy"
	"officehours/internal/queue/repository"
	pkgerrors "officehours/pkg/errors"

	"github.com/google/uuid"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxCommentLength    = 4000
)

// RequestService manages request content, comments and read views.
type RequestService struct {
	requests repository.RequestRepository
	comments repository.CommentRepository
	members  repository.MembershipRepository
	events   repository.EventRepository
	statuses repository.StatusRepository
	order    repository.OrderRepository
	table    *policy.Table
	now      func() time.Time
}

// NewRequestService creates a new service.
func NewRequestService(stores Stores, table *policy.Table) *RequestService {
	if table == nil {
		table = policy.Default()
	}
	return &RequestService{
		requests: stores.Requests,
		comments: stores.Comments,
		members:  stores.Members,
		events:   stores.Events,
		statuses: stores.Statuses,
		order:    stores.Order,
		table:    table,
		now:      time.Now,
	}
}

// SubmitOrEdit creates the request or replaces its content. Only the creator
// may edit; status and Order are untouched.
func (s *RequestService) SubmitOrEdit(ctx context.Context, courseID, requestID string, actor Actor, content json.RawMessage) (*model.Request, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if _, err := memberRole(ctx, s.members, courseID, actor); err != nil {
		return nil, err
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	now := s.now().UTC()
	existing, err := s.requests.GetFresh(ctx, courseID, requestID)
	switch {
	case errors.Is(err, repository.ErrRequestNotFound):
		req := &model.Request{
			CourseID:    courseID,
			RequestID:   requestID,
			CreatorID:   actor.UserID,
			CreatorName: actor.Name,
			Content:     content,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err := s.requests.Create(ctx, req)
		if err == nil {
			return req, nil
		}
		if !errors.Is(err, repository.ErrRequestExists) {
			return nil, pkgerrors.Unavailable(err, "create request")
		}
		// Lost a create race; fall through to the edit path.
		if existing, err = s.requests.GetFresh(ctx, courseID, requestID); err != nil {
			return nil, pkgerrors.Unavailable(err, "load request")
		}
	case err != nil:
		return nil, pkgerrors.Unavailable(err, "load request")
	}

	if existing.CreatorID != actor.UserID {
		return nil, pkgerrors.ForbiddenError("only the creator can edit this request")
	}
	if existing.IsClosed() {
		return nil, pkgerrors.New(pkgerrors.RequestClosed)
	}
	if err := s.requests.UpdateContent(ctx, courseID, requestID, content, now); err != nil {
		return nil, pkgerrors.Unavailable(err, "update request")
	}
	existing.Content = content
	existing.UpdatedAt = now
	return existing, nil
}

// Patch merges top-level content fields into the request. The creator and
// HELPER-or-above may patch; closed requests are read-only.
func (s *RequestService) Patch(ctx context.Context, courseID, requestID string, actor Actor, patch model.RequestPatch) (*model.Request, error) {
	if len(patch) == 0 {
		return nil, pkgerrors.BadRequest("patch has no fields")
	}
	req, err := loadFreshRequest(ctx, s.requests, courseID, requestID)
	if err != nil {
		return nil, err
	}
	role, err := memberRole(ctx, s.members, courseID, actor)
	if err != nil {
		return nil, err
	}
	if !canViewRequest(s.table, req, role, actor) {
		return nil, pkgerrors.ForbiddenError("cannot edit another student's request")
	}
	if req.IsClosed() {
		return nil, pkgerrors.New(pkgerrors.RequestClosed)
	}

	fields, err := contentFields(req.Content)
	if err != nil {
		return nil, pkgerrors.InternalError(err)
	}
	for k, v := range patch {
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, pkgerrors.BadRequest("invalid patch")
	}

	now := s.now().UTC()
	if err := s.requests.UpdateContent(ctx, courseID, requestID, merged, now); err != nil {
		return nil, pkgerrors.Unavailable(err, "update request")
	}
	req.Content = merged
	req.UpdatedAt = now
	return req, nil
}

// Get returns the request with its effective status and comments.
func (s *RequestService) Get(ctx context.Context, courseID, requestID string, actor Actor) (*model.RequestView, error) {
	req, err := loadRequest(ctx, s.requests, courseID, requestID)
	if err != nil {
		return nil, err
	}
	role, err := memberRole(ctx, s.members, courseID, actor)
	if err != nil {
		return nil, err
	}
	if !canViewRequest(s.table, req, role, actor) {
		return nil, pkgerrors.ForbiddenError("cannot view another student's request")
	}

	stored, err := s.statuses.Get(ctx, courseID, requestID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "read status")
	}
	comments, err := s.comments.List(ctx, courseID, requestID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "list comments")
	}
	return &model.RequestView{
		Request:  req,
		Status:   effectiveStatus(req, stored),
		Comments: comments,
	}, nil
}

// AddComment appends a comment by the creator or a HELPER-or-above.
func (s *RequestService) AddComment(ctx context.Context, courseID, requestID string, actor Actor, text string) (*model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, pkgerrors.BadRequest("comment text is required")
	}
	if len(text) > maxCommentLength {
		return nil, pkgerrors.BadRequest("comment is too long")
	}
	req, err := loadRequest(ctx, s.requests, courseID, requestID)
	if err != nil {
		return nil, err
	}
	role, err := memberRole(ctx, s.members, courseID, actor)
	if err != nil {
		return nil, err
	}
	if !canViewRequest(s.table, req, role, actor) {
		return nil, pkgerrors.ForbiddenError("cannot comment on another student's request")
	}

	comment := &model.Comment{
		CommentID:  uuid.NewString(),
		AuthorID:   actor.UserID,
		AuthorName: actor.Name,
		Text:       text,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.comments.Add(ctx, courseID, requestID, comment); err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return nil, pkgerrors.New(pkgerrors.RequestNotFound)
		}
		return nil, pkgerrors.Unavailable(err, "add comment")
	}
	return comment, nil
}

// History lists the caller's own requests in the course, newest first.
func (s *RequestService) History(ctx context.Context, courseID string, actor Actor, limit int) ([]*model.RequestView, error) {
	if _, err := memberRole(ctx, s.members, courseID, actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	requests, err := s.requests.ListByCreator(ctx, courseID, actor.UserID, limit)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "list history")
	}
	statuses, err := s.statuses.All(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "read statuses")
	}

	views := make([]*model.RequestView, 0, len(requests))
	for _, req := range requests {
		stored, ok := statuses[req.RequestID]
		if !ok {
			stored = model.StatusCreated
		}
		views = append(views, &model.RequestView{Request: req, Status: effectiveStatus(req, stored)})
	}
	return views, nil
}

// Events returns the recorded lifecycle timeline of a request.
func (s *RequestService) Events(ctx context.Context, courseID, requestID string, actor Actor) ([]model.LifecycleEvent, error) {
	req, err := loadRequest(ctx, s.requests, courseID, requestID)
	if err != nil {
		return nil, err
	}
	role, err := memberRole(ctx, s.members, courseID, actor)
	if err != nil {
		return nil, err
	}
	if !canViewRequest(s.table, req, role, actor) {
		return nil, pkgerrors.ForbiddenError("cannot view another student's request")
	}
	events, err := s.events.ListByRequest(ctx, courseID, requestID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "list events")
	}
	return events, nil
}

// Order returns the course Order to any member.
func (s *RequestService) Order(ctx context.Context, courseID string, actor Actor) (*model.OrderUpdate, error) {
	if _, err := memberRole(ctx, s.members, courseID, actor); err != nil {
		return nil, err
	}
	order, err := s.order.List(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "read order")
	}
	return &model.OrderUpdate{CourseID: courseID, Order: order}, nil
}

// Statuses returns the course status map to any member.
func (s *RequestService) Statuses(ctx context.Context, courseID string, actor Actor) (*model.StatusUpdate, error) {
	if _, err := memberRole(ctx, s.members, courseID, actor); err != nil {
		return nil, err
	}
	statuses, err := s.statuses.All(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "read statuses")
	}
	return &model.StatusUpdate{CourseID: courseID, Statuses: statuses}, nil
}

func validateContent(content json.RawMessage) error {
	if len(content) == 0 {
		return pkgerrors.BadRequest("content is required")
	}
	if !json.Valid(content) {
		return pkgerrors.BadRequest("content must be valid JSON")
	}
	return nil
}

// contentFields splits object content into its top-level fields. Content that
// is not a JSON object yields no fields, so a patch replaces it.
func contentFields(content json.RawMessage) (map[string]json.RawMessage, error) {
	fields := map[string]json.RawMessage{}
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fields, nil
	}
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("decode stored content: %w", err)
	}
	return fields, nil
}
