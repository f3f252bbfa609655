package repository

import (
	"context"

	"github.com/google/uuid"

	"cloudvault/internal/domain/conversation"
	"cloudvault/internal/domain/encryption"
)

type EncryptionRepository interface {
	UpsertPublicKey(ctx context.Context, k *encryption.PublicKey) error
	GetPublicKey(ctx context.Context, keyID string) (encryption.PublicKey, error)

	CreateKeyExchangeRequest(ctx context.Context, r *encryption.KeyExchangeRequest) error
	UpdateKeyExchangeStatus(ctx context.Context, conversationID uuid.UUID, keyID string, status string) error

	CreateConversationKey(ctx context.Context, k *encryption.ConversationKey) error
	GetActiveConversationKeys(ctx context.Context, conversationID uuid.UUID) ([]encryption.ConversationKey, error)
	DeactivateConversationKeys(ctx context.Context, conversationID uuid.UUID, exceptKeyID string) (int64, error)

	GetConversationEncryption(ctx context.Context, conversationID uuid.UUID) (encryption.ConversationEncryption, error)
	SetConversationEncryption(ctx context.Context, e *encryption.ConversationEncryption) error
}

type ConversationRepository interface {
	AddParticipant(ctx context.Context, p *conversation.Participant) error
	GetParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *encryption.Notification) error
	GetUnread(ctx context.Context, conversationID, userID uuid.UUID) ([]encryption.Notification, error)
	MarkRead(ctx context.Context, ids []uuid.UUID) error
}
