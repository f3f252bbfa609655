package repository

import (
	"context"
	"time"

	"cloudvault/internal/domain/encryption"
	cv_errors "cloudvault/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresEncryptionRepository struct {
	db *gorm.DB
}

func NewEncryptionRepository(db *gorm.DB) EncryptionRepository {
	return &PostgresEncryptionRepository{db: db}
}

// UpsertPublicKey inserts k, or reactivates the existing row when the same
// user publishes the same key again. Any other reuse of the key id fails.
func (r *PostgresEncryptionRepository) UpsertPublicKey(ctx context.Context, k *encryption.PublicKey) error {
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key_id"}},
			DoNothing: true,
		}).Create(k)
		if res.Error != nil {
			return translateError(res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}

		var existing encryption.PublicKey
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("key_id = ?", k.KeyID).
			First(&existing).Error; err != nil {
			return translateError(err)
		}
		if err := existing.CheckReuse(*k); err != nil {
			return err
		}
		if existing.IsActive == k.IsActive {
			return nil
		}
		return translateError(tx.Model(&encryption.PublicKey{}).
			Where("key_id = ?", k.KeyID).
			Update("is_active", k.IsActive).Error)
	})
}

func (r *PostgresEncryptionRepository) GetPublicKey(ctx context.Context, keyID string) (encryption.PublicKey, error) {
	var k encryption.PublicKey
	err := r.db.WithContext(ctx).
		Where("key_id = ?", keyID).
		First(&k).Error
	if err != nil {
		return encryption.PublicKey{}, translateError(err)
	}
	return k, nil
}

func (r *PostgresEncryptionRepository) CreateKeyExchangeRequest(ctx context.Context, req *encryption.KeyExchangeRequest) error {
	if req.Status == "" {
		req.Status = encryption.ExchangePending
	}
	res := r.db.WithContext(ctx).Create(req)
	return translateError(res.Error)
}

func (r *PostgresEncryptionRepository) UpdateKeyExchangeStatus(ctx context.Context, conversationID uuid.UUID, keyID string, status string) error {
	res := r.db.WithContext(ctx).
		Model(&encryption.KeyExchangeRequest{}).
		Where("conversation_id = ? AND key_id = ?", conversationID, keyID).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return cv_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresEncryptionRepository) CreateConversationKey(ctx context.Context, k *encryption.ConversationKey) error {
	res := r.db.WithContext(ctx).Create(k)
	return translateError(res.Error)
}

func (r *PostgresEncryptionRepository) GetActiveConversationKeys(ctx context.Context, conversationID uuid.UUID) ([]encryption.ConversationKey, error) {
	var keys []encryption.ConversationKey
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_active = true", conversationID).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// DeactivateConversationKeys soft-deletes every active key record of the
// conversation except exceptKeyID. Rows stay readable for backlog decryption.
func (r *PostgresEncryptionRepository) DeactivateConversationKeys(ctx context.Context, conversationID uuid.UUID, exceptKeyID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&encryption.ConversationKey{}).
		Where("conversation_id = ? AND key_id <> ? AND is_active = true", conversationID, exceptKeyID).
		Update("is_active", false)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *PostgresEncryptionRepository) GetConversationEncryption(ctx context.Context, conversationID uuid.UUID) (encryption.ConversationEncryption, error) {
	var e encryption.ConversationEncryption
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		First(&e).Error
	if err != nil {
		return encryption.ConversationEncryption{}, translateError(err)
	}
	return e, nil
}

func (r *PostgresEncryptionRepository) SetConversationEncryption(ctx context.Context, e *encryption.ConversationEncryption) error {
	e.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_by", "updated_at"}),
		}).
		Create(e)
	return translateError(res.Error)
}
