package repository

import (
	"context"
	"time"

	"cloudvault/internal/domain/encryption"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresNotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *encryption.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	res := r.db.WithContext(ctx).Create(n)
	return translateError(res.Error)
}

func (r *PostgresNotificationRepository) GetUnread(ctx context.Context, conversationID, userID uuid.UUID) ([]encryption.Notification, error) {
	var items []encryption.Notification
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND read_at IS NULL", conversationID, userID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&encryption.Notification{}).
		Where("id IN ?", ids).
		Update("read_at", time.Now()).Error
}
