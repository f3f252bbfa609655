package events

import "github.com/google/uuid"

// Encryption events, format domain.action
const (
	EventTypeKeyExchange        = "encryption.key_exchange"
	EventTypeKeyRotation        = "encryption.key_rotation"
	EventTypeEncryptionEnabled  = "encryption.enabled"
	EventTypeEncryptionDisabled = "encryption.disabled"
)

const AggregateConversation = "conversation"

// UserChannel is the pub/sub channel carrying one user's realtime events.
func UserChannel(userID uuid.UUID) string {
	return "channel:user:" + userID.String()
}
