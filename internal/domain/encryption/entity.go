package encryption

import (
	"fmt"
	"time"

	cv_errors "cloudvault/pkg/errors"

	"github.com/google/uuid"
)

// Exchange request statuses.
const (
	ExchangePending  = "pending"
	ExchangeConsumed = "consumed"
	ExchangeFailed   = "failed"
)

// PublicKey represents public_keys. Rows are content-addressed by key id
// and safe to leave orphaned.
type PublicKey struct {
	KeyID     string    `gorm:"primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	PublicKey string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"default:now()"`
	IsActive  bool      `gorm:"default:true"`
}

// CheckReuse rejects storing next under k's key id unless it is the same
// key published again by the same user.
func (k PublicKey) CheckReuse(next PublicKey) error {
	if k.UserID != next.UserID {
		return fmt.Errorf("%w: key id %s belongs to another user", cv_errors.ErrForbidden, k.KeyID)
	}
	if k.PublicKey != next.PublicKey {
		return fmt.Errorf("%w: key id %s already names a different key", cv_errors.ErrConflict, k.KeyID)
	}
	return nil
}

// KeyExchangeRequest represents key_exchange_requests
type KeyExchangeRequest struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index"`
	ParticipantID  uuid.UUID `gorm:"type:uuid;not null"`
	PublicKey      string    `gorm:"not null"`
	KeyID          string    `gorm:"not null"`
	Timestamp      time.Time `gorm:"not null"`
	Status         string    `gorm:"not null;default:pending"`
}

// ConversationKey represents conversation_keys: a conversation key wrapped
// for one participant. EncryptedKey holds the JSON wrapped-key envelope.
type ConversationKey struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	KeyID          string    `gorm:"not null;index"`
	EncryptedKey   string    `gorm:"type:text;not null"`
	ParticipantID  uuid.UUID `gorm:"type:uuid;not null"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt      time.Time `gorm:"default:now()"`
	IsActive       bool      `gorm:"default:true"`
}

// ConversationEncryption represents conversation_encryption, the
// per-conversation enabled flag.
type ConversationEncryption struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Enabled        bool      `gorm:"not null;default:false"`
	UpdatedBy      uuid.UUID `gorm:"type:uuid"`
	UpdatedAt      time.Time `gorm:"default:now()"`
}

// Status aggregates the active key records of one conversation.
type Status struct {
	IsEncrypted     bool        `json:"is_encrypted"`
	KeyCount        int         `json:"key_count"`
	LastKeyRotation *time.Time  `json:"last_key_rotation,omitempty"`
	Participants    []uuid.UUID `json:"participants"`
}

// BuildStatus summarizes active key records. A conversation is encrypted iff
// at least one active record exists; participants are the distinct record
// owners in first-seen order.
func BuildStatus(keys []ConversationKey) Status {
	status := Status{Participants: []uuid.UUID{}}
	seen := make(map[uuid.UUID]struct{})
	for _, k := range keys {
		if !k.IsActive {
			continue
		}
		status.KeyCount++
		if status.LastKeyRotation == nil || k.CreatedAt.After(*status.LastKeyRotation) {
			created := k.CreatedAt
			status.LastKeyRotation = &created
		}
		if _, ok := seen[k.ParticipantID]; !ok {
			seen[k.ParticipantID] = struct{}{}
			status.Participants = append(status.Participants, k.ParticipantID)
		}
	}
	status.IsEncrypted = status.KeyCount > 0
	return status
}

func (PublicKey) TableName() string {
	return "public_keys"
}

func (KeyExchangeRequest) TableName() string {
	return "key_exchange_requests"
}

func (ConversationKey) TableName() string {
	return "conversation_keys"
}

func (ConversationEncryption) TableName() string {
	return "conversation_encryption"
}
