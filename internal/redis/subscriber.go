package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe delivers every message published on channels to handler until
// ctx is cancelled or the connection fails.
func (s *Subscriber) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	return receive(ctx, s.client.Subscribe(ctx, channels...), handler)
}

// PSubscribe is Subscribe for glob patterns.
func (s *Subscriber) PSubscribe(ctx context.Context, patterns []string, handler func(channel string, payload []byte)) error {
	return receive(ctx, s.client.PSubscribe(ctx, patterns...), handler)
}

func receive(ctx context.Context, sub *redis.PubSub, handler func(channel string, payload []byte)) error {
	defer sub.Close()

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		handler(msg.Channel, []byte(msg.Payload))
	}
}
