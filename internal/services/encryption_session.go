package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloudvault/internal/domain/encryption"
	"cloudvault/internal/e2ee"
	cv_errors "cloudvault/pkg/errors"
	"cloudvault/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Placeholders rendered instead of undecryptable messages.
const (
	KeyUnavailablePlaceholder = "[Encrypted message - key not available]"
	DecryptFailedPlaceholder  = "[Failed to decrypt message]"
)

// SessionStatus is the per-conversation view model of a session.
type SessionStatus struct {
	IsSupported   bool   `json:"isSupported"`
	IsEnabled     bool   `json:"isEnabled"`
	IsInitialized bool   `json:"isInitialized"`
	HasKeys       bool   `json:"hasKeys"`
	Error         string `json:"error,omitempty"`
	Warning       string `json:"warning,omitempty"`
}

// GroupCoverageWarning is reported for conversations with more than two
// members. Keys only travel between the enabling member and each other
// member, so responders cannot read each other's messages.
const GroupCoverageWarning = "group conversation: members other than the one who enabled encryption cannot read each other's messages"

// EncryptionSession is what the UI layer talks to. It owns one user's key
// store and key manager and never lets an error escape its boolean
// operations; failures land in the conversation's status instead.
type EncryptionSession struct {
	userID    uuid.UUID
	keys      *e2ee.KeyStore
	convKeys  *e2ee.KeyManager
	exchange  *KeyExchangeService
	remote    RemoteActions
	log       *logger.Logger
	supported bool

	mu          sync.RWMutex
	initialized bool
	enabled     map[uuid.UUID]bool
	errs        map[uuid.UUID]string
	warnings    map[uuid.UUID]string
}

func NewEncryptionSession(userID uuid.UUID, remote RemoteActions, log *logger.Logger) *EncryptionSession {
	if log == nil {
		log = logger.NewNop()
	}
	keys := e2ee.NewKeyStore()
	convKeys := e2ee.NewKeyManager()
	return &EncryptionSession{
		userID:    userID,
		keys:      keys,
		convKeys:  convKeys,
		exchange:  NewKeyExchangeService(userID, keys, convKeys, remote, log),
		remote:    remote,
		log:       log.Named("encryption_session").With(zap.String("session_user_id", userID.String())),
		supported: e2ee.Supported(),
		enabled:   make(map[uuid.UUID]bool),
		errs:      make(map[uuid.UUID]string),
		warnings:  make(map[uuid.UUID]string),
	}
}

func (s *EncryptionSession) UserID() uuid.UUID { return s.userID }

// Exchange exposes the underlying key exchange for callers that drive the
// protocol by hand.
func (s *EncryptionSession) Exchange() *KeyExchangeService { return s.exchange }

// InitializeKeys makes sure a current key pair exists.
func (s *EncryptionSession) InitializeKeys() error {
	if !s.supported {
		return cv_errors.ErrNotSupported
	}
	if _, err := s.keys.EnsureKeyPair(); err != nil {
		return err
	}
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// EnableEncryption runs the key exchange with every participant and flags
// the conversation remotely. The conversation is only marked enabled after
// both succeed.
func (s *EncryptionSession) EnableEncryption(ctx context.Context, conversationID uuid.UUID) bool {
	s.setError(conversationID, "")
	if err := s.InitializeKeys(); err != nil {
		return s.fail(ctx, conversationID, "initialize keys", err)
	}
	participants, err := s.remote.Participants(ctx, conversationID)
	if err != nil {
		return s.fail(ctx, conversationID, "load participants", err)
	}
	s.noteRoster(ctx, conversationID, len(participants))
	if _, err := s.exchange.InitializeKeyExchange(ctx, conversationID, participants); err != nil {
		return s.fail(ctx, conversationID, "key exchange", err)
	}
	if err := s.remote.Enable(ctx, conversationID); err != nil {
		return s.fail(ctx, conversationID, "enable", err)
	}
	s.setEnabled(conversationID, true)
	return true
}

// DisableEncryption flags the conversation remotely. Resident keys are kept
// so already received messages stay readable.
func (s *EncryptionSession) DisableEncryption(ctx context.Context, conversationID uuid.UUID) bool {
	s.setError(conversationID, "")
	if err := s.remote.Disable(ctx, conversationID); err != nil {
		return s.fail(ctx, conversationID, "disable", err)
	}
	s.setEnabled(conversationID, false)
	return true
}

// EncryptMessage returns nil, nil while encryption is off for the
// conversation; callers then send plaintext. Once enabled it never falls
// back to plaintext.
func (s *EncryptionSession) EncryptMessage(plaintext string, conversationID uuid.UUID) (*e2ee.EncryptedMessage, error) {
	if !s.isEnabled(conversationID) {
		return nil, nil
	}
	key, ok := s.convKeys.Active(conversationID)
	if !ok {
		err := fmt.Errorf("%w: no active key for conversation", cv_errors.ErrEncryption)
		s.setError(conversationID, err.Error())
		return nil, err
	}
	msg, err := e2ee.EncryptMessage(plaintext, key)
	if err != nil {
		s.setError(conversationID, err.Error())
		return nil, err
	}
	return msg, nil
}

// DecryptMessage always returns something renderable.
func (s *EncryptionSession) DecryptMessage(msg *e2ee.EncryptedMessage, conversationID uuid.UUID) string {
	if msg == nil {
		return DecryptFailedPlaceholder
	}
	key, ok := s.convKeys.Get(conversationID, msg.KeyID)
	if !ok {
		return KeyUnavailablePlaceholder
	}
	plaintext, err := e2ee.DecryptMessage(msg, key)
	switch {
	case err == nil:
		return plaintext
	case errors.Is(err, cv_errors.ErrSignatureVerification):
		s.log.Logger.Warn("message signature mismatch",
			zap.Bool("security_event", true),
			zap.String("conversation_id", conversationID.String()),
			zap.String("key_id", msg.KeyID))
	default:
		s.log.Logger.Debug("message decryption failed",
			zap.String("conversation_id", conversationID.String()),
			zap.String("key_id", msg.KeyID),
			zap.Error(err))
	}
	return DecryptFailedPlaceholder
}

func (s *EncryptionSession) RotateKeys(ctx context.Context, conversationID uuid.UUID) bool {
	s.setError(conversationID, "")
	if err := s.exchange.RotateConversationKeys(ctx, conversationID); err != nil {
		return s.fail(ctx, conversationID, "rotate keys", err)
	}
	return true
}

func (s *EncryptionSession) Status(conversationID uuid.UUID) SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionStatus{
		IsSupported:   s.supported,
		IsEnabled:     s.enabled[conversationID],
		IsInitialized: s.initialized,
		HasKeys:       s.convKeys.HasKeys(conversationID),
		Error:         s.errs[conversationID],
		Warning:       s.warnings[conversationID],
	}
}

// RefreshStatus pulls the remote enabled flag and restores any of our
// wrapped keys that are not resident.
func (s *EncryptionSession) RefreshStatus(ctx context.Context, conversationID uuid.UUID) bool {
	remote, err := s.remote.Status(ctx, conversationID)
	if err != nil {
		return s.fail(ctx, conversationID, "status", err)
	}
	s.setEnabled(conversationID, remote.Enabled)
	if remote.Enabled && s.InitializeKeys() == nil {
		if _, err := s.exchange.SyncKeys(ctx, conversationID); err != nil {
			return s.fail(ctx, conversationID, "sync keys", err)
		}
	}
	return true
}

// ProcessNotifications handles the pending encryption notifications of the
// conversation and returns how many were applied. Individual failures are
// logged and skipped.
func (s *EncryptionSession) ProcessNotifications(ctx context.Context, conversationID uuid.UUID) (int, error) {
	if err := s.InitializeKeys(); err != nil {
		return 0, err
	}
	items, err := s.remote.Notifications(ctx, conversationID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, n := range items {
		if err := s.apply(ctx, n); err != nil {
			s.log.WithContext(ctx).Warn("notification not applied",
				zap.String("notification_id", n.ID.String()),
				zap.String("type", string(n.Type)),
				zap.Error(err))
			continue
		}
		applied++
	}
	return applied, nil
}

func (s *EncryptionSession) apply(ctx context.Context, n encryption.Notification) error {
	switch n.Type {
	case encryption.NotificationEncryptionEnabled:
		s.setEnabled(n.ConversationID, true)
		return nil
	case encryption.NotificationEncryptionDisabled:
		s.setEnabled(n.ConversationID, false)
		return nil
	case encryption.NotificationKeyExchange, encryption.NotificationKeyRotation:
	default:
		return fmt.Errorf("%w: notification type %q", cv_errors.ErrInvalidInput, n.Type)
	}

	var payload e2ee.ExchangePayload
	if err := json.Unmarshal([]byte(n.Data), &payload); err != nil {
		return fmt.Errorf("%w: %w", cv_errors.ErrInvalidInput, err)
	}
	if payload.Request != nil {
		if result := s.exchange.ProcessKeyExchangeRequest(ctx, payload.Request); !result.Success {
			return result.Err
		}
	}
	if wk := payload.WrappedKey; wk != nil {
		reciprocate := s.exchange.State(wk.ConversationID, wk.SenderID) == StateRequested
		if _, err := s.exchange.AcceptWrappedKey(ctx, wk, reciprocate); err != nil {
			return err
		}
	}
	return nil
}

func (s *EncryptionSession) isEnabled(conversationID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[conversationID]
}

func (s *EncryptionSession) setEnabled(conversationID uuid.UUID, enabled bool) {
	s.mu.Lock()
	s.enabled[conversationID] = enabled
	s.mu.Unlock()
}

func (s *EncryptionSession) setError(conversationID uuid.UUID, msg string) {
	s.mu.Lock()
	if msg == "" {
		delete(s.errs, conversationID)
	} else {
		s.errs[conversationID] = msg
	}
	s.mu.Unlock()
}

// noteRoster records the group coverage warning and logs it the first time a
// conversation is seen with more than two members.
func (s *EncryptionSession) noteRoster(ctx context.Context, conversationID uuid.UUID, members int) {
	if members <= 2 {
		return
	}
	s.mu.Lock()
	_, seen := s.warnings[conversationID]
	s.warnings[conversationID] = GroupCoverageWarning
	s.mu.Unlock()
	if seen {
		return
	}
	s.log.WithContext(ctx).Warn("pairwise key exchange in group conversation",
		zap.String("conversation_id", conversationID.String()),
		zap.Int("members", members))
}

func (s *EncryptionSession) fail(ctx context.Context, conversationID uuid.UUID, step string, err error) bool {
	msg := fmt.Sprintf("%s failed: %v", step, err)
	if errors.Is(err, cv_errors.ErrNotSupported) {
		msg = "encryption is not supported on this platform"
	}
	s.setError(conversationID, msg)
	s.log.WithContext(ctx).Warn("encryption action failed",
		zap.String("conversation_id", conversationID.String()),
		zap.String("step", step),
		zap.Error(err))
	return false
}
