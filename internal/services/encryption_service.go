package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloudvault/internal/domain/encryption"
	"cloudvault/internal/e2ee"
	"cloudvault/internal/proxy"
	"cloudvault/internal/repository"
	cv_errors "cloudvault/pkg/errors"
	"cloudvault/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EncryptionService is the server side of the encryption actions. It only
// ever sees public keys and wrapped conversation keys.
type EncryptionService struct {
	repo          repository.EncryptionRepository
	participants  *ParticipantService
	notifications *NotificationService
	access        *proxy.AccessControl
	log           *logger.Logger
}

func NewEncryptionService(repo repository.EncryptionRepository, participants *ParticipantService, notifications *NotificationService, access *proxy.AccessControl, log *logger.Logger) *EncryptionService {
	if log == nil {
		log = logger.NewNop()
	}
	return &EncryptionService{
		repo:          repo,
		participants:  participants,
		notifications: notifications,
		access:        access,
		log:           log.Named("encryption"),
	}
}

type togglePayload struct {
	ConversationID uuid.UUID `json:"conversationId"`
	UpdatedBy      uuid.UUID `json:"updatedBy"`
}

func (s *EncryptionService) Enable(ctx context.Context, userID, conversationID uuid.UUID) error {
	return s.setEnabled(ctx, userID, conversationID, true)
}

func (s *EncryptionService) Disable(ctx context.Context, userID, conversationID uuid.UUID) error {
	return s.setEnabled(ctx, userID, conversationID, false)
}

func (s *EncryptionService) setEnabled(ctx context.Context, userID, conversationID uuid.UUID, enabled bool) error {
	if err := s.access.CanManageEncryption(ctx, userID, conversationID); err != nil {
		return err
	}
	err := s.repo.SetConversationEncryption(ctx, &encryption.ConversationEncryption{
		ConversationID: conversationID,
		Enabled:        enabled,
		UpdatedBy:      userID,
		UpdatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	typ := encryption.NotificationEncryptionDisabled
	if enabled {
		typ = encryption.NotificationEncryptionEnabled
	}
	recipients, err := s.others(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	result := s.notifications.Notify(ctx, conversationID, recipients, typ, togglePayload{ConversationID: conversationID, UpdatedBy: userID})
	if err := result.Err(); err != nil {
		s.log.WithContext(ctx).Warn("encryption toggle partially notified",
			zap.String("conversation_id", conversationID.String()),
			zap.Bool("enabled", enabled),
			zap.Int("failed", len(result.Failed)),
			zap.Error(err))
	}
	return nil
}

func (s *EncryptionService) Status(ctx context.Context, userID, conversationID uuid.UUID) (ConversationStatus, error) {
	if err := s.access.CanViewEncryption(ctx, userID, conversationID); err != nil {
		return ConversationStatus{}, err
	}

	var status ConversationStatus
	flag, err := s.repo.GetConversationEncryption(ctx, conversationID)
	switch {
	case err == nil:
		status.Enabled = flag.Enabled
	case !errors.Is(err, cv_errors.ErrNotFound):
		return ConversationStatus{}, err
	}

	keys, err := s.repo.GetActiveConversationKeys(ctx, conversationID)
	if err != nil {
		return ConversationStatus{}, err
	}
	status.Keys = encryption.BuildStatus(keys)
	return status, nil
}

func (s *EncryptionService) Participants(ctx context.Context, userID, conversationID uuid.UUID) ([]uuid.UUID, error) {
	if err := s.access.CanViewEncryption(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.participants.GetParticipantIDs(ctx, conversationID)
}

func (s *EncryptionService) Keys(ctx context.Context, userID, conversationID uuid.UUID) ([]encryption.ConversationKey, error) {
	if err := s.access.CanViewEncryption(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.repo.GetActiveConversationKeys(ctx, conversationID)
}

func (s *EncryptionService) Notifications(ctx context.Context, userID, conversationID uuid.UUID) ([]encryption.Notification, error) {
	if err := s.access.CanViewEncryption(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.notifications.Pending(ctx, conversationID, userID)
}

// KeyExchange stores and forwards one handshake step. The request half is
// fanned out to its recipients; a wrapped key is stored for its recipient,
// forwarded to them unless it is self-addressed, and consumes the request it
// answers.
func (s *EncryptionService) KeyExchange(ctx context.Context, userID, conversationID uuid.UUID, action KeyExchangeAction) (FanoutResult, error) {
	if err := s.access.CanManageEncryption(ctx, userID, conversationID); err != nil {
		return FanoutResult{}, err
	}
	if action.Request == nil && action.WrappedKey == nil {
		return FanoutResult{}, fmt.Errorf("%w: empty key exchange", cv_errors.ErrInvalidInput)
	}

	var result FanoutResult
	if req := action.Request; req != nil {
		if err := s.validateRequest(userID, conversationID, req); err != nil {
			return FanoutResult{}, err
		}
		recipients, err := s.recipients(ctx, userID, conversationID, action.Recipients)
		if err != nil {
			return FanoutResult{}, err
		}
		if err := s.storeRequest(ctx, userID, req); err != nil {
			return FanoutResult{}, err
		}
		result = s.notifications.Notify(ctx, conversationID, recipients, encryption.NotificationKeyExchange, e2ee.ExchangePayload{Request: req})
	}

	if wk := action.WrappedKey; wk != nil {
		if err := s.validateWrappedKey(ctx, userID, conversationID, wk); err != nil {
			return FanoutResult{}, err
		}
		if err := s.storeWrappedKey(ctx, userID, wk); err != nil {
			return FanoutResult{}, err
		}
		if wk.RecipientID != userID {
			forwarded := s.notifications.Notify(ctx, conversationID, []uuid.UUID{wk.RecipientID}, encryption.NotificationKeyExchange, e2ee.ExchangePayload{WrappedKey: wk})
			result.Delivered = append(result.Delivered, forwarded.Delivered...)
			result.Failed = append(result.Failed, forwarded.Failed...)
			result.errs = append(result.errs, forwarded.errs...)

			err := s.repo.UpdateKeyExchangeStatus(ctx, conversationID, wk.RecipientKeyID, encryption.ExchangeConsumed)
			if err != nil && !errors.Is(err, cv_errors.ErrNotFound) {
				return result, cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
			}
		}
	}
	return result, nil
}

// RotateKeys resolves the roster, publishes the caller's new key pair,
// stores its self-wrapped key, tells every other participant and then
// retires every other active key record. Individual notification failures do not abort the rotation.
func (s *EncryptionService) RotateKeys(ctx context.Context, userID, conversationID uuid.UUID, action RotationAction) (FanoutResult, error) {
	if err := s.access.CanManageEncryption(ctx, userID, conversationID); err != nil {
		return FanoutResult{}, err
	}
	if action.Request == nil || action.SelfKey == nil {
		return FanoutResult{}, fmt.Errorf("%w: rotation needs a request and a self key", cv_errors.ErrInvalidInput)
	}
	if err := s.validateRequest(userID, conversationID, action.Request); err != nil {
		return FanoutResult{}, err
	}
	if err := s.validateWrappedKey(ctx, userID, conversationID, action.SelfKey); err != nil {
		return FanoutResult{}, err
	}
	if action.SelfKey.RecipientID != userID {
		return FanoutResult{}, fmt.Errorf("%w: self key addressed to %s", cv_errors.ErrInvalidInput, action.SelfKey.RecipientID)
	}

	recipients, err := s.others(ctx, userID, conversationID)
	if err != nil {
		return FanoutResult{}, err
	}
	if err := s.upsertPublicKey(ctx, userID, action.Request.KeyID, action.Request.PublicKey); err != nil {
		return FanoutResult{}, err
	}
	if err := s.storeWrappedKey(ctx, userID, action.SelfKey); err != nil {
		return FanoutResult{}, err
	}
	result := s.notifications.Notify(ctx, conversationID, recipients, encryption.NotificationKeyRotation, e2ee.ExchangePayload{Request: action.Request})
	if err := result.Err(); err != nil {
		s.log.WithContext(ctx).Warn("key rotation partially notified",
			zap.String("conversation_id", conversationID.String()),
			zap.Int("failed", len(result.Failed)),
			zap.Error(err))
	}

	retired, err := s.repo.DeactivateConversationKeys(ctx, conversationID, action.SelfKey.KeyID)
	if err != nil {
		return result, cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
	}
	s.log.WithContext(ctx).Info("conversation keys rotated",
		zap.String("conversation_id", conversationID.String()),
		zap.String("key_id", action.SelfKey.KeyID),
		zap.Int64("retired", retired))
	return result, nil
}

func (s *EncryptionService) validateRequest(userID, conversationID uuid.UUID, req *e2ee.KeyExchangeRequest) error {
	if req.ParticipantID != userID {
		return fmt.Errorf("%w: request belongs to %s", cv_errors.ErrForbidden, req.ParticipantID)
	}
	if req.ConversationID != conversationID {
		return fmt.Errorf("%w: request for conversation %s", cv_errors.ErrInvalidInput, req.ConversationID)
	}
	if req.KeyID == "" {
		return fmt.Errorf("%w: missing key id", cv_errors.ErrInvalidInput)
	}
	if _, err := e2ee.ImportPublicKey(req.PublicKey); err != nil {
		return err
	}
	return nil
}

func (s *EncryptionService) validateWrappedKey(ctx context.Context, userID, conversationID uuid.UUID, wk *e2ee.WrappedKey) error {
	if wk.SenderID != userID {
		return fmt.Errorf("%w: wrapped key sent by %s", cv_errors.ErrForbidden, wk.SenderID)
	}
	if wk.ConversationID != conversationID {
		return fmt.Errorf("%w: wrapped key for conversation %s", cv_errors.ErrInvalidInput, wk.ConversationID)
	}
	if wk.KeyID == "" || wk.SenderKeyID == "" {
		return fmt.Errorf("%w: missing key id", cv_errors.ErrInvalidInput)
	}
	if _, err := e2ee.ImportPublicKey(wk.SenderPublicKey); err != nil {
		return err
	}
	if wk.RecipientID == userID {
		return nil
	}
	return s.access.CanViewEncryption(ctx, wk.RecipientID, conversationID)
}

func (s *EncryptionService) storeRequest(ctx context.Context, userID uuid.UUID, req *e2ee.KeyExchangeRequest) error {
	if err := s.upsertPublicKey(ctx, userID, req.KeyID, req.PublicKey); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, req.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}
	err = s.repo.CreateKeyExchangeRequest(ctx, &encryption.KeyExchangeRequest{
		ConversationID: req.ConversationID,
		ParticipantID:  req.ParticipantID,
		PublicKey:      req.PublicKey,
		KeyID:          req.KeyID,
		Timestamp:      ts,
		Status:         encryption.ExchangePending,
	})
	if err != nil {
		return cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
	}
	return nil
}

func (s *EncryptionService) storeWrappedKey(ctx context.Context, userID uuid.UUID, wk *e2ee.WrappedKey) error {
	if err := s.upsertPublicKey(ctx, userID, wk.SenderKeyID, wk.SenderPublicKey); err != nil {
		return err
	}
	envelope, err := json.Marshal(wk)
	if err != nil {
		return cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
	}
	err = s.repo.CreateConversationKey(ctx, &encryption.ConversationKey{
		KeyID:          wk.KeyID,
		EncryptedKey:   string(envelope),
		ParticipantID:  wk.RecipientID,
		ConversationID: wk.ConversationID,
		CreatedAt:      time.Now().UTC(),
		IsActive:       true,
	})
	if err != nil {
		return cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
	}
	return nil
}

func (s *EncryptionService) upsertPublicKey(ctx context.Context, userID uuid.UUID, keyID, publicKey string) error {
	err := s.repo.UpsertPublicKey(ctx, &encryption.PublicKey{
		KeyID:     keyID,
		UserID:    userID,
		PublicKey: publicKey,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cv_errors.ErrForbidden), errors.Is(err, cv_errors.ErrConflict):
		return err
	default:
		return cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
	}
}

// recipients resolves the requested recipients against the roster. An empty
// list means every other participant.
func (s *EncryptionService) recipients(ctx context.Context, userID, conversationID uuid.UUID, requested []uuid.UUID) ([]uuid.UUID, error) {
	others, err := s.others(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if len(requested) == 0 {
		return others, nil
	}

	members := make(map[uuid.UUID]struct{}, len(others))
	for _, id := range others {
		members[id] = struct{}{}
	}
	out := make([]uuid.UUID, 0, len(requested))
	for _, id := range requested {
		if id == userID {
			continue
		}
		if _, ok := members[id]; !ok {
			return nil, fmt.Errorf("%w: %s is not a participant", cv_errors.ErrInvalidInput, id)
		}
		out = append(out, id)
	}
	return out, nil
}

func (s *EncryptionService) others(ctx context.Context, userID, conversationID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.participants.GetParticipantIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != userID {
			out = append(out, id)
		}
	}
	return out, nil
}
