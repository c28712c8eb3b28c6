package service

import (
	"context"
	"errors"
	"time"

	"officehours/internal/queue/model"
	"officehours/internal/queue/policy"
	"officehours/internal/queue/repository"
	pkgerrors "officehours/pkg/errors"
	"officehours/pkg/utils/logger"

	"go.uber.org/zap"
)

// LifecycleService applies status transitions to help requests and keeps the
// course Order consistent with the status map.
type LifecycleService struct {
	requests  repository.RequestRepository
	members   repository.MembershipRepository
	statuses  repository.StatusRepository
	order     repository.OrderRepository
	table     *policy.Table
	announcer Announcer
	now       func() time.Time
}

// NewLifecycleService creates the lifecycle engine; announcer may be nil.
func NewLifecycleService(stores Stores, table *policy.Table, announcer Announcer) *LifecycleService {
	if table == nil {
		table = policy.Default()
	}
	return &LifecycleService{
		requests:  stores.Requests,
		members:   stores.Members,
		statuses:  stores.Statuses,
		order:     stores.Order,
		table:     table,
		announcer: announcer,
		now:       time.Now,
	}
}

// RequestTransition moves a request to target on behalf of actor.
// Re-requesting the current status succeeds as a no-op when the caller could reach it.
func (s *LifecycleService) RequestTransition(ctx context.Context, courseID, requestID string, actor Actor, target string) (*model.Outcome, error) {
	// The status is read before the request: a close that lands in between
	// then surfaces as a conflict instead of an absent entry without closed_at.
	stored, statusErr := s.statuses.Get(ctx, courseID, requestID)
	req, err := loadFreshRequest(ctx, s.requests, courseID, requestID)
	if err != nil {
		return nil, err
	}
	role, err := memberRole(ctx, s.members, courseID, actor)
	if err != nil {
		return nil, err
	}
	next, ok := model.ParseStatus(target)
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.InvalidStatus, "unknown status %q", target)
	}
	if statusErr != nil {
		return nil, pkgerrors.Unavailable(statusErr, "read status")
	}
	return s.apply(ctx, req, role, actor, effectiveStatus(req, stored), next, true)
}

// ClaimNext moves the first claimable request in Order to IN_REVIEW. Requests
// that change underneath the claim are skipped, so two helpers never claim the same one.
func (s *LifecycleService) ClaimNext(ctx context.Context, courseID string, actor Actor) (*model.Outcome, error) {
	role, err := memberRole(ctx, s.members, courseID, actor)
	if err != nil {
		return nil, err
	}
	if !s.table.AtLeast(role, model.RoleHelper) {
		return nil, pkgerrors.ForbiddenError("only helpers can claim requests")
	}

	order, err := s.order.List(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "read order")
	}
	statuses, err := s.statuses.All(ctx, courseID)
	if err != nil {
		return nil, pkgerrors.Unavailable(err, "read statuses")
	}

	for _, requestID := range order {
		observed, ok := statuses[requestID]
		if !ok || !observed.IsClaimable() {
			continue
		}
		req, err := s.requests.Get(ctx, courseID, requestID)
		if err != nil {
			if errors.Is(err, repository.ErrRequestNotFound) {
				logger.Warn(ctx, "order holds a request without content", zap.String("request_id", requestID))
				continue
			}
			return nil, pkgerrors.Unavailable(err, "load request")
		}
		outcome, err := s.apply(ctx, req, role, actor, observed, model.StatusInReview, false)
		if pkgerrors.Is(err, pkgerrors.StatusConflict) {
			logger.Debug(ctx, "claim lost race, skipping", zap.String("request_id", requestID))
			continue
		}
		return outcome, err
	}
	return nil, pkgerrors.New(pkgerrors.NoEligibleRequest)
}

func (s *LifecycleService) apply(
	ctx context.Context,
	req *model.Request,
	role model.Role,
	actor Actor,
	current, next model.Status,
	allowNoop bool,
) (*model.Outcome, error) {
	isOwner := req.CreatorID == actor.UserID
	noop := current == next
	if noop {
		if !allowNoop || !s.table.CanReach(role, isOwner, next) {
			return nil, forbiddenTransition(current, next)
		}
	} else if !s.table.Permits(role, isOwner, current, next) {
		return nil, forbiddenTransition(current, next)
	}

	now := s.now()
	closing := next == model.StatusClosed && !noop
	if closing {
		// closed_at lands before the status entry is deleted, so an interrupted
		// close still reads as CLOSED and a retry takes the no-op path.
		if err := s.requests.MarkClosed(ctx, req.CourseID, req.RequestID, now); err != nil {
			return nil, pkgerrors.Unavailable(err, "mark closed")
		}
	}

	op := orderOpFor(current, next)
	result, err := s.statuses.Apply(ctx, repository.Transition{
		CourseID:  req.CourseID,
		RequestID: req.RequestID,
		Expected:  current,
		Next:      next,
		Order:     op,
	})
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			if closing {
				s.undoClose(ctx, req, now)
			}
			return nil, pkgerrors.Wrap(err, pkgerrors.StatusConflict)
		}
		return nil, pkgerrors.Unavailable(err, "write status")
	}

	outcome := &model.Outcome{
		CourseID:  req.CourseID,
		RequestID: req.RequestID,
		CreatorID: req.CreatorID,
		ActorID:   actor.UserID,
		ActorRole: role,
		From:      current,
		To:        next,
		Noop:      noop,
		Statuses:  result.Statuses,
	}

	stampHelper := (next == model.StatusServing || (next == model.StatusClosed && !isOwner)) && !req.HasHelper()
	if stampHelper {
		if _, err := s.requests.AssignHelperIfUnset(ctx, req.CourseID, req.RequestID, actor.UserID, actor.Name, now); err != nil {
			return nil, pkgerrors.Unavailable(err, "stamp helper")
		}
	}

	// A no-op only reports Order when it had to put Order back in line with the status.
	if noop {
		outcome.OrderChanged = result.OrderChanged
	} else {
		outcome.OrderChanged = op != repository.OrderKeep
	}
	if outcome.OrderChanged {
		outcome.Order = result.Order
	}

	// Repeats push activeRequest again so a retry after a lost reply still reaches the creator.
	switch next {
	case model.StatusPending:
		outcome.Active = &model.ActiveRequest{UserID: req.CreatorID, RequestID: req.RequestID}
	case model.StatusClosed, model.StatusLeft:
		outcome.Active = &model.ActiveRequest{UserID: req.CreatorID, RequestID: ""}
	}

	switch {
	case !noop:
		logger.Info(ctx, "request status changed",
			zap.String("course_id", req.CourseID),
			zap.String("request_id", req.RequestID),
			zap.String("from", current.String()),
			zap.String("to", next.String()),
			zap.String("role", role.String()),
		)
	case result.OrderChanged:
		logger.Warn(ctx, "order repaired on repeated transition",
			zap.String("course_id", req.CourseID),
			zap.String("request_id", req.RequestID),
			zap.String("status", next.String()),
		)
	}
	s.announce(ctx, outcome)
	return outcome, nil
}

func (s *LifecycleService) undoClose(ctx context.Context, req *model.Request, at time.Time) {
	if err := s.requests.UnmarkClosed(ctx, req.CourseID, req.RequestID, at); err != nil {
		logger.Warn(ctx, "clear close time after lost race failed",
			zap.String("course_id", req.CourseID),
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
	}
}

func (s *LifecycleService) announce(ctx context.Context, outcome *model.Outcome) {
	if s.announcer != nil {
		s.announcer.Announce(ctx, outcome)
	}
}

func forbiddenTransition(from, to model.Status) *pkgerrors.Error {
	return pkgerrors.Newf(pkgerrors.TransitionForbidden, "cannot move request from %s to %s", from, to).
		WithDetail("from", from.String()).
		WithDetail("to", to.String())
}

// orderOpFor picks the Order change that goes with a status write. Entering
// PENDING from outside the queue appends, SERVING, CLOSED and LEFT remove, and
// repeating a queued status re-appends in case an earlier write was lost.
func orderOpFor(current, next model.Status) repository.OrderOp {
	switch {
	case next == model.StatusPending && !current.IsQueued():
		return repository.OrderAppend
	case next.LeavesOrder():
		return repository.OrderRemove
	case current == next && next.IsQueued():
		return repository.OrderAppend
	}
	return repository.OrderKeep
}
