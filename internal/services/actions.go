package services

import (
	"context"

	"cloudvault/internal/domain/encryption"
	"cloudvault/internal/e2ee"

	"github.com/google/uuid"
)

// RemoteActions are the named server actions the client-side encryption
// core calls, always on behalf of one authenticated user.
type RemoteActions interface {
	Enable(ctx context.Context, conversationID uuid.UUID) error
	Disable(ctx context.Context, conversationID uuid.UUID) error
	Status(ctx context.Context, conversationID uuid.UUID) (ConversationStatus, error)
	Participants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	Keys(ctx context.Context, conversationID uuid.UUID) ([]encryption.ConversationKey, error)
	Notifications(ctx context.Context, conversationID uuid.UUID) ([]encryption.Notification, error)
	KeyExchange(ctx context.Context, conversationID uuid.UUID, action KeyExchangeAction) (FanoutResult, error)
	RotateKeys(ctx context.Context, conversationID uuid.UUID, action RotationAction) (FanoutResult, error)
}

// ConversationStatus is the server view of one conversation.
type ConversationStatus struct {
	Enabled bool              `json:"enabled"`
	Keys    encryption.Status `json:"keys"`
}

// KeyExchangeAction carries one step of a handshake. Request is the
// initiator half, fanned out to Recipients; WrappedKey is a conversation key
// wrapped for WrappedKey.RecipientID. Either or both may be set.
type KeyExchangeAction struct {
	Request    *e2ee.KeyExchangeRequest `json:"request,omitempty"`
	WrappedKey *e2ee.WrappedKey         `json:"wrappedKey,omitempty"`
	Recipients []uuid.UUID              `json:"recipients,omitempty"`
}

// RotationAction publishes a fresh key pair for the conversation and the
// caller's new conversation key wrapped to itself. Every other active key
// record of the conversation is retired.
type RotationAction struct {
	Request *e2ee.KeyExchangeRequest `json:"request"`
	SelfKey *e2ee.WrappedKey         `json:"selfKey"`
}

// LocalActions runs the actions in-process against EncryptionService.
type LocalActions struct {
	svc    *EncryptionService
	userID uuid.UUID
}

func NewLocalActions(svc *EncryptionService, userID uuid.UUID) *LocalActions {
	return &LocalActions{svc: svc, userID: userID}
}

func (a *LocalActions) Enable(ctx context.Context, conversationID uuid.UUID) error {
	return a.svc.Enable(ctx, a.userID, conversationID)
}

func (a *LocalActions) Disable(ctx context.Context, conversationID uuid.UUID) error {
	return a.svc.Disable(ctx, a.userID, conversationID)
}

func (a *LocalActions) Status(ctx context.Context, conversationID uuid.UUID) (ConversationStatus, error) {
	return a.svc.Status(ctx, a.userID, conversationID)
}

func (a *LocalActions) Participants(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	return a.svc.Participants(ctx, a.userID, conversationID)
}

func (a *LocalActions) Keys(ctx context.Context, conversationID uuid.UUID) ([]encryption.ConversationKey, error) {
	return a.svc.Keys(ctx, a.userID, conversationID)
}

func (a *LocalActions) Notifications(ctx context.Context, conversationID uuid.UUID) ([]encryption.Notification, error) {
	return a.svc.Notifications(ctx, a.userID, conversationID)
}

func (a *LocalActions) KeyExchange(ctx context.Context, conversationID uuid.UUID, action KeyExchangeAction) (FanoutResult, error) {
	return a.svc.KeyExchange(ctx, a.userID, conversationID, action)
}

func (a *LocalActions) RotateKeys(ctx context.Context, conversationID uuid.UUID, action RotationAction) (FanoutResult, error) {
	return a.svc.RotateKeys(ctx, a.userID, conversationID, action)
}
