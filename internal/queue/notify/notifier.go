package notify

import (
	"context"
	"time"

	"officehours/internal/queue/model"
	"officehours/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher delivers one event to every session joined to room.
type Publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

// LifecycleRecorder keeps an audit trail of applied transitions.
type LifecycleRecorder interface {
	Record(ctx context.Context, event *model.LifecycleEvent) error
}

// Notifier turns transition outcomes into realtime events and audit records.
// Delivery failures are logged and never reported to the caller.
type Notifier struct {
	publisher Publisher
	recorder  LifecycleRecorder
	now       func() time.Time
}

// NewNotifier creates a notifier; recorder may be nil.
func NewNotifier(publisher Publisher, recorder LifecycleRecorder) *Notifier {
	return &Notifier{publisher: publisher, recorder: recorder, now: time.Now}
}

// Announce publishes statusUpdate to the course room, orderUpdate when the
// Order changed, and activeRequest to the creator's room when it changed.
func (n *Notifier) Announce(ctx context.Context, outcome *model.Outcome) {
	if n == nil || outcome == nil {
		return
	}
	room := model.CourseRoom(outcome.CourseID)

	n.publish(ctx, room, model.EventStatusUpdate, model.StatusUpdate{
		CourseID: outcome.CourseID,
		Statuses: outcome.Statuses,
	})
	if outcome.OrderChanged {
		n.publish(ctx, room, model.EventOrderUpdate, model.OrderUpdate{
			CourseID: outcome.CourseID,
			Order:    outcome.Order,
		})
	}
	if outcome.Active != nil {
		n.publish(ctx, model.UserRoom(outcome.Active.UserID), model.EventActiveRequest, *outcome.Active)
	}

	if outcome.Noop || n.recorder == nil {
		return
	}
	event := &model.LifecycleEvent{
		EventID:   uuid.NewString(),
		CourseID:  outcome.CourseID,
		RequestID: outcome.RequestID,
		ActorID:   outcome.ActorID,
		ActorRole: outcome.ActorRole,
		From:      outcome.From,
		To:        outcome.To,
		At:        n.now().UTC(),
	}
	if err := n.recorder.Record(ctx, event); err != nil {
		logger.Warn(ctx, "record lifecycle event failed",
			zap.String("course_id", event.CourseID),
			zap.String("request_id", event.RequestID),
			zap.Error(err),
		)
	}
}

func (n *Notifier) publish(ctx context.Context, room, event string, payload any) {
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, room, event, payload); err != nil {
		logger.Warn(ctx, "publish realtime event failed",
			zap.String("room", room),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
