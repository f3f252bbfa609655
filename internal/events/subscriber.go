package events

import "context"

// UserChannelPattern matches every user's realtime channel.
const UserChannelPattern = "channel:user:*"

type Subscriber interface {
	PSubscribe(ctx context.Context, patterns []string, handler func(channel string, payload []byte)) error
}
