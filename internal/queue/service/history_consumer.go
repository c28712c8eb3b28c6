package service

import (
	"context"

	"officehours/internal/common/mq"
	"officehours/internal/queue/notify"
	"officehours/internal/queue/repository"
	"officehours/pkg/utils/logger"

	"go.uber.org/zap"
)

// HistoryConsumerGroup is the consumer group that records lifecycle events.
const HistoryConsumerGroup = "officehours-history"

// HistoryConsumer stores lifecycle events from the message queue.
type HistoryConsumer struct {
	events repository.EventRepository
}

// NewHistoryConsumer creates a consumer writing to events.
func NewHistoryConsumer(events repository.EventRepository) *HistoryConsumer {
	return &HistoryConsumer{events: events}
}

// Register subscribes the consumer to the lifecycle topic.
func (c *HistoryConsumer) Register(ctx context.Context, consumer mq.Consumer, topic string) error {
	if topic == "" {
		topic = notify.LifecycleTopic
	}
	return consumer.Subscribe(ctx, topic, c.Handle, &mq.SubscribeOptions{
		ConsumerGroup: HistoryConsumerGroup,
		FromBeginning: true,
	})
}

// Handle stores one event. Malformed messages are dropped; storage errors are retried.
func (c *HistoryConsumer) Handle(ctx context.Context, msg *mq.Message) error {
	event, err := notify.DecodeLifecycleEvent(msg)
	if err != nil {
		logger.Warn(ctx, "drop malformed lifecycle event", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	inserted, err := c.events.Insert(ctx, event)
	if err != nil {
		return err
	}
	if !inserted {
		logger.Debug(ctx, "lifecycle event already recorded", zap.String("event_id", event.EventID))
	}
	return nil
}
