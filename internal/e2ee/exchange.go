package e2ee

import (
	"time"

	"github.com/google/uuid"
)

// KeyExchangeRequest is one half of a pairwise handshake: the initiator's
// exported public key and the id of the local pair it belongs to.
// RecipientKeyID optionally pins the responder's key pair.
type KeyExchangeRequest struct {
	ConversationID uuid.UUID `json:"conversationId"`
	ParticipantID  uuid.UUID `json:"participantId"`
	PublicKey      string    `json:"publicKey"`
	KeyID          string    `json:"keyId"`
	RecipientKeyID string    `json:"recipientKeyId,omitempty"`
	Timestamp      string    `json:"timestamp"`
}

// WrappedKey carries a conversation key encrypted under an ECDH secret
// between sender and recipient, with everything the recipient needs to
// derive the same secret.
type WrappedKey struct {
	ConversationID  uuid.UUID        `json:"conversationId"`
	KeyID           string           `json:"keyId"`
	EncryptedKey    EncryptedMessage `json:"encryptedKey"`
	SenderID        uuid.UUID        `json:"senderId"`
	SenderPublicKey string           `json:"senderPublicKey"`
	SenderKeyID     string           `json:"senderKeyId"`
	RecipientID     uuid.UUID        `json:"recipientId"`
	RecipientKeyID  string           `json:"recipientKeyId"`
	CreatedAt       string           `json:"createdAt"`
}

// Now formats the current time the way every wire timestamp is written.
func Now() string {
	return time.Now().UTC().Format(ISOTimeFormat)
}

// ExchangePayload is the data carried by key_exchange and key_rotation
// notifications: either the initiator's request or a wrapped key addressed
// to the recipient.
type ExchangePayload struct {
	Request    *KeyExchangeRequest `json:"request,omitempty"`
	WrappedKey *WrappedKey         `json:"wrappedKey,omitempty"`
}
