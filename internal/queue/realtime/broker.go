package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"officehours/internal/common/cache"
	"officehours/pkg/utils/logger"

	"go.uber.org/zap"
)

// EventsChannel is the pub/sub channel that carries room frames between nodes.
const EventsChannel = "queue:events"

type brokerEnvelope struct {
	Room  string          `json:"room"`
	Frame json.RawMessage `json:"frame"`
}

// RedisBroker relays room frames through Redis pub/sub so every node's hub
// delivers them. Frames published here reach local sessions via the subscription.
type RedisBroker struct {
	pubsub  cache.PubSubOps
	hub     *Hub
	channel string
}

// NewRedisBroker creates a broker relaying frames to hub.
func NewRedisBroker(pubsub cache.PubSubOps, hub *Hub) *RedisBroker {
	return &RedisBroker{pubsub: pubsub, hub: hub, channel: EventsChannel}
}

// Publish implements the notification publisher over Redis.
func (b *RedisBroker) Publish(ctx context.Context, room, event string, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(brokerEnvelope{Room: room, Frame: frame})
	if err != nil {
		return err
	}
	return b.pubsub.Publish(ctx, b.channel, string(body))
}

// Run subscribes to the channel and delivers frames to the hub until ctx is done.
// It returns once the subscription is confirmed; delivery continues in the background.
func (b *RedisBroker) Run(ctx context.Context) error {
	if b.pubsub == nil {
		return errors.New("pubsub is not configured")
	}
	sub, err := b.pubsub.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					return
				}
				var env brokerEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil || env.Room == "" {
					logger.Warn(ctx, "drop malformed broker message", zap.String("channel", msg.Channel))
					continue
				}
				b.hub.Deliver(env.Room, env.Frame)
			}
		}
	}()
	return nil
}
