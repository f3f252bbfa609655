package proxy

import (
	"context"

	"cloudvault/internal/repository"
	cv_errors "cloudvault/pkg/errors"

	"github.com/google/uuid"
)

// AccessControl gates the encryption actions on conversation membership.
type AccessControl struct {
	conversationRepo repository.ConversationRepository
}

func NewAccessControl(conversationRepo repository.ConversationRepository) *AccessControl {
	return &AccessControl{conversationRepo: conversationRepo}
}

// CanViewEncryption allows reading status, keys and notifications.
func (a *AccessControl) CanViewEncryption(ctx context.Context, userID, conversationID uuid.UUID) error {
	return a.ensureParticipant(ctx, conversationID, userID)
}

// CanManageEncryption allows enable, disable, exchange and rotation. Any
// participant may manage encryption.
func (a *AccessControl) CanManageEncryption(ctx context.Context, userID, conversationID uuid.UUID) error {
	return a.ensureParticipant(ctx, conversationID, userID)
}

func (a *AccessControl) ensureParticipant(ctx context.Context, conversationID, userID uuid.UUID) error {
	if a.conversationRepo == nil {
		return cv_errors.ErrForbidden
	}
	ok, err := a.conversationRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return cv_errors.ErrForbidden
	}
	return nil
}
