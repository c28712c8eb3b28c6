package notify

import (
	"context"
	"encoding/json"
	"errors"

	"officehours/internal/common/mq"
	"officehours/internal/queue/model"
)

const (
	// LifecycleTopic carries one message per applied transition, keyed by course.
	LifecycleTopic = "queue.lifecycle"

	headerEventType = "x-event-type"
	eventTypeLife   = "lifecycle"
)

// MQLifecycleRecorder publishes lifecycle events to the message queue.
type MQLifecycleRecorder struct {
	producer mq.Producer
	topic    string
}

// NewMQLifecycleRecorder creates a recorder; an empty topic uses the default.
func NewMQLifecycleRecorder(producer mq.Producer, topic string) *MQLifecycleRecorder {
	if topic == "" {
		topic = LifecycleTopic
	}
	return &MQLifecycleRecorder{producer: producer, topic: topic}
}

// Record publishes event keyed by course.
func (r *MQLifecycleRecorder) Record(ctx context.Context, event *model.LifecycleEvent) error {
	if r == nil || r.producer == nil {
		return errors.New("lifecycle producer is not configured")
	}
	msg, err := EncodeLifecycleEvent(event)
	if err != nil {
		return err
	}
	return r.producer.Publish(ctx, r.topic, msg)
}

// EncodeLifecycleEvent wraps event in a queue message partitioned by course.
func EncodeLifecycleEvent(event *model.LifecycleEvent) (*mq.Message, error) {
	if event == nil {
		return nil, errors.New("event is nil")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	msg := mq.NewMessage(body)
	msg.ID = event.EventID
	msg.Key = event.CourseID
	msg.Timestamp = event.At
	msg.SetHeader(headerEventType, eventTypeLife)
	return msg, nil
}

// DecodeLifecycleEvent reads an event written by EncodeLifecycleEvent.
func DecodeLifecycleEvent(msg *mq.Message) (*model.LifecycleEvent, error) {
	if msg == nil {
		return nil, errors.New("message is nil")
	}
	var event model.LifecycleEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return nil, err
	}
	if event.EventID == "" {
		event.EventID = msg.ID
	}
	if event.EventID == "" || event.CourseID == "" || event.RequestID == "" {
		return nil, errors.New("lifecycle event is missing identifiers")
	}
	return &event, nil
}
