package encryption

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationKeyExchange        NotificationType = "key_exchange"
	NotificationKeyRotation        NotificationType = "key_rotation"
	NotificationEncryptionEnabled  NotificationType = "encryption_enabled"
	NotificationEncryptionDisabled NotificationType = "encryption_disabled"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationKeyExchange, NotificationKeyRotation, NotificationEncryptionEnabled, NotificationEncryptionDisabled:
		return true
	}
	return false
}

// Notification represents encryption_notifications, one row per recipient.
type Notification struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	ConversationID uuid.UUID        `gorm:"type:uuid;not null;index"`
	UserID         uuid.UUID        `gorm:"type:uuid;not null;index"`
	Type           NotificationType `gorm:"type:varchar(32);not null"`
	Data           string           `gorm:"type:jsonb"`
	CreatedAt      time.Time        `gorm:"default:now()"`
	ReadAt         sql.NullTime
}

func (Notification) TableName() string {
	return "encryption_notifications"
}
