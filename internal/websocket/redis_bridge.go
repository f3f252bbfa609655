package websocket

import (
	"context"

	"cloudvault/internal/events"
	"cloudvault/pkg/logger"

	"go.uber.org/zap"
)

// RedisBridge forwards user channel traffic from pub/sub to the hub, so any
// API replica can notify a client connected to this one.
type RedisBridge struct {
	subscriber events.Subscriber
	hub        *Hub
	log        *logger.Logger
}

func NewRedisBridge(subscriber events.Subscriber, hub *Hub, log *logger.Logger) *RedisBridge {
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisBridge{subscriber: subscriber, hub: hub, log: log.Named("bridge")}
}

func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.PSubscribe(ctx, []string{events.UserChannelPattern}, b.forward)
}

// forward drops anything that is not a well formed envelope.
func (b *RedisBridge) forward(channel string, payload []byte) {
	env, err := events.ParseEnvelope(payload)
	if err != nil {
		b.log.Logger.Warn("dropping realtime message", zap.String("channel", channel), zap.Error(err))
		return
	}
	b.log.Logger.Debug("forwarding event", zap.String("channel", channel), zap.String("event_type", env.EventType))
	b.hub.Broadcast(channel, payload)
}
