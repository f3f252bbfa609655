package httpdto

import (
	"database/sql"
	"encoding/json"
	"time"

	"cloudvault/internal/domain/encryption"

	"github.com/google/uuid"
)

// ConversationKeyDTO is one wrapped-key record as returned by
// GET /conversations/:id/encryption/keys
type ConversationKeyDTO struct {
	ID             uuid.UUID `json:"id"`
	KeyID          string    `json:"keyId"`
	EncryptedKey   string    `json:"encryptedKey"`
	ParticipantID  uuid.UUID `json:"participantId"`
	ConversationID uuid.UUID `json:"conversationId"`
	CreatedAt      time.Time `json:"createdAt"`
	IsActive       bool      `json:"isActive"`
}

// NotificationDTO is one encryption notification as returned by
// GET /conversations/:id/encryption/notifications
type NotificationDTO struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversationId"`
	UserID         uuid.UUID       `json:"userId"`
	Type           string          `json:"type"`
	Data           json.RawMessage `json:"data,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	ReadAt         *time.Time      `json:"readAt,omitempty"`
}

type ParticipantsResponse struct {
	Participants []uuid.UUID `json:"participants"`
}

type ToggleResponse struct {
	ConversationID uuid.UUID `json:"conversationId"`
	Enabled        bool      `json:"enabled"`
}

func FromConversationKey(k encryption.ConversationKey) ConversationKeyDTO {
	return ConversationKeyDTO{
		ID:             k.ID,
		KeyID:          k.KeyID,
		EncryptedKey:   k.EncryptedKey,
		ParticipantID:  k.ParticipantID,
		ConversationID: k.ConversationID,
		CreatedAt:      k.CreatedAt,
		IsActive:       k.IsActive,
	}
}

func FromConversationKeys(keys []encryption.ConversationKey) []ConversationKeyDTO {
	out := make([]ConversationKeyDTO, 0, len(keys))
	for _, k := range keys {
		out = append(out, FromConversationKey(k))
	}
	return out
}

func (d ConversationKeyDTO) ToDomain() encryption.ConversationKey {
	return encryption.ConversationKey{
		ID:             d.ID,
		KeyID:          d.KeyID,
		EncryptedKey:   d.EncryptedKey,
		ParticipantID:  d.ParticipantID,
		ConversationID: d.ConversationID,
		CreatedAt:      d.CreatedAt,
		IsActive:       d.IsActive,
	}
}

func FromNotification(n encryption.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:             n.ID,
		ConversationID: n.ConversationID,
		UserID:         n.UserID,
		Type:           string(n.Type),
		CreatedAt:      n.CreatedAt,
	}
	if n.Data != "" {
		dto.Data = json.RawMessage(n.Data)
	}
	if n.ReadAt.Valid {
		readAt := n.ReadAt.Time
		dto.ReadAt = &readAt
	}
	return dto
}

func FromNotifications(items []encryption.Notification) []NotificationDTO {
	out := make([]NotificationDTO, 0, len(items))
	for _, n := range items {
		out = append(out, FromNotification(n))
	}
	return out
}

func (d NotificationDTO) ToDomain() encryption.Notification {
	n := encryption.Notification{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		UserID:         d.UserID,
		Type:           encryption.NotificationType(d.Type),
		Data:           string(d.Data),
		CreatedAt:      d.CreatedAt,
	}
	if d.ReadAt != nil {
		n.ReadAt = sql.NullTime{Time: *d.ReadAt, Valid: true}
	}
	return n
}
