package redis

import (
	"context"
	"encoding/json"

	"cloudvault/internal/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// PublishToUser sends env on the user's realtime channel.
func (p *Publisher) PublishToUser(ctx context.Context, userID uuid.UUID, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.Publish(ctx, events.UserChannel(userID), data)
}
