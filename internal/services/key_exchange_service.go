package services

import (
	"context"
	"crypto/ecdh"
	"encoding/json"
	"errors"
	"fmt"

	"cloudvault/internal/domain/encryption"
	"cloudvault/internal/e2ee"
	cv_errors "cloudvault/pkg/errors"
	"cloudvault/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExchangeResult is the outcome of answering a key exchange request. Err is
// one of the encryption error kinds when Success is false.
type ExchangeResult struct {
	Success         bool
	ConversationKey *e2ee.ConversationKey
	WrappedKey      *e2ee.WrappedKey
	Err             error
}

// KeyExchangeService runs the client half of the key exchange for one user
// session. Private keys and plaintext conversation keys stay in its key
// store and key manager; only public keys and wrapped keys reach remote.
type KeyExchangeService struct {
	userID   uuid.UUID
	keys     *e2ee.KeyStore
	convKeys *e2ee.KeyManager
	remote   RemoteActions
	states   *exchangeStates
	log      *logger.Logger
}

func NewKeyExchangeService(userID uuid.UUID, keys *e2ee.KeyStore, convKeys *e2ee.KeyManager, remote RemoteActions, log *logger.Logger) *KeyExchangeService {
	if log == nil {
		log = logger.NewNop()
	}
	return &KeyExchangeService{
		userID:   userID,
		keys:     keys,
		convKeys: convKeys,
		remote:   remote,
		states:   newExchangeStates(),
		log:      log.Named("key_exchange").With(zap.String("session_user_id", userID.String())),
	}
}

// State reports where the handshake with participantID stands.
func (s *KeyExchangeService) State(conversationID, participantID uuid.UUID) ExchangeState {
	return s.states.get(conversationID, participantID)
}

// InitializeKeyExchange publishes the current public key, starts a fresh
// conversation key and sends an exchange request to the other members of
// participantIDs. Already stored residue is not rolled back on failure.
func (s *KeyExchangeService) InitializeKeyExchange(ctx context.Context, conversationID uuid.UUID, participantIDs []uuid.UUID) (*e2ee.KeyExchangeRequest, error) {
	pair, err := s.keys.EnsureKeyPair()
	if err != nil {
		return nil, err
	}
	exported, err := e2ee.ExportPublicKey(pair.PublicKey)
	if err != nil {
		return nil, err
	}

	ck, err := e2ee.GenerateConversationKey(conversationID)
	if err != nil {
		return nil, err
	}
	s.register(ck)

	self, err := s.wrap(pair, exported, pair.PublicKey, ck, s.userID, pair.KeyID)
	if err != nil {
		return nil, err
	}

	recipients := make([]uuid.UUID, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id != s.userID {
			recipients = append(recipients, id)
		}
	}

	req := &e2ee.KeyExchangeRequest{
		ConversationID: conversationID,
		ParticipantID:  s.userID,
		PublicKey:      exported,
		KeyID:          pair.KeyID,
		Timestamp:      e2ee.Now(),
	}

	// An empty recipient list means everyone to the server, so with nobody
	// to ask only the self-wrapped key is stored.
	action := KeyExchangeAction{WrappedKey: self}
	if len(recipients) > 0 {
		action.Request = req
		action.Recipients = recipients
	}
	result, err := s.remote.KeyExchange(ctx, conversationID, action)
	if err != nil {
		s.failAll(conversationID, recipients)
		return nil, cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
	}

	for _, id := range result.Delivered {
		s.advance(ctx, conversationID, id, StateRequested)
	}
	s.failAll(conversationID, result.Failed)
	if err := result.Err(); err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).Info("key exchange initialized",
		zap.String("conversation_id", conversationID.String()),
		zap.String("key_id", pair.KeyID),
		zap.String("conversation_key_id", ck.KeyID),
		zap.Int("recipients", len(recipients)))
	return req, nil
}

// ProcessKeyExchangeRequest answers req: derive the shared secret with the
// requester, start a conversation key of our own, wrap it for them and
// send it back. It never returns an error; failures are reported in the
// result.
func (s *KeyExchangeService) ProcessKeyExchangeRequest(ctx context.Context, req *e2ee.KeyExchangeRequest) ExchangeResult {
	if req == nil || req.ParticipantID == s.userID {
		return ExchangeResult{Err: fmt.Errorf("%w: not a request from another participant", cv_errors.ErrInvalidInput)}
	}
	conversationID, peerID := req.ConversationID, req.ParticipantID

	fail := func(err error) ExchangeResult {
		s.advance(ctx, conversationID, peerID, StateFailed)
		s.log.WithContext(ctx).Warn("key exchange request failed",
			zap.String("conversation_id", conversationID.String()),
			zap.String("participant_id", peerID.String()),
			zap.Error(err))
		return ExchangeResult{Err: err}
	}

	peer, err := e2ee.ImportPublicKey(req.PublicKey)
	if err != nil {
		return fail(err)
	}

	pair, ok := s.localPair(req.RecipientKeyID)
	if !ok {
		return fail(cv_errors.ErrPrivateKeyNotFound)
	}
	exported, err := e2ee.ExportPublicKey(pair.PublicKey)
	if err != nil {
		return fail(err)
	}

	if _, err := s.keys.DeriveSharedKey(pair.KeyID, peer); err != nil {
		return fail(err)
	}
	s.advance(ctx, conversationID, peerID, StateDerived)

	ck, err := e2ee.GenerateConversationKey(conversationID)
	if err != nil {
		return fail(err)
	}
	s.register(ck)

	wk, err := s.wrap(pair, exported, peer, ck, peerID, req.KeyID)
	if err != nil {
		return fail(err)
	}
	s.advance(ctx, conversationID, peerID, StateKeyWrapped)

	result, err := s.remote.KeyExchange(ctx, conversationID, KeyExchangeAction{WrappedKey: wk})
	if err != nil {
		return fail(cv_errors.Wrap(cv_errors.ErrExchangeStorage, err))
	}
	if err := result.Err(); err != nil {
		return fail(err)
	}
	s.advance(ctx, conversationID, peerID, StateNotified)

	return ExchangeResult{Success: true, ConversationKey: ck, WrappedKey: wk}
}

// AcceptWrappedKey unwraps a conversation key addressed to this user and
// stores it for decryption. The sender's key is not activated for sending
// unless it is our own key coming back from storage. With reciprocate set,
// our active conversation key is wrapped back to the sender, completing the
// round we initiated; without it the handshake state is left as is.
func (s *KeyExchangeService) AcceptWrappedKey(ctx context.Context, wk *e2ee.WrappedKey, reciprocate bool) (*e2ee.ConversationKey, error) {
	if wk == nil || wk.RecipientID != s.userID {
		return nil, fmt.Errorf("%w: wrapped key not addressed to this user", cv_errors.ErrInvalidInput)
	}
	conversationID, senderID := wk.ConversationID, wk.SenderID
	own := senderID == s.userID

	peer, err := e2ee.ImportPublicKey(wk.SenderPublicKey)
	if err != nil {
		return nil, err
	}
	shared, err := s.keys.DeriveSharedKey(wk.RecipientKeyID, peer)
	if err != nil {
		if !own {
			s.advance(ctx, conversationID, senderID, StateFailed)
		}
		return nil, err
	}
	ck, err := e2ee.UnwrapKey(shared, &wk.EncryptedKey, conversationID, wk.KeyID)
	if err != nil {
		if !own {
			s.advance(ctx, conversationID, senderID, StateFailed)
		}
		return nil, err
	}

	if own {
		s.convKeys.Store(conversationID, ck.KeyID, ck)
		if _, ok := s.convKeys.Active(conversationID); !ok {
			_ = s.convKeys.Activate(conversationID, ck.KeyID)
		}
		return ck, nil
	}

	s.convKeys.Store(conversationID, ck.KeyID, ck)
	if !reciprocate {
		return ck, nil
	}
	s.advance(ctx, conversationID, senderID, StateDerived)

	active, ok := s.convKeys.Active(conversationID)
	if !ok {
		return ck, fmt.Errorf("%w: no active conversation key to return", cv_errors.ErrEncryption)
	}
	pair, ok := s.keys.Pair(wk.RecipientKeyID)
	if !ok {
		return ck, cv_errors.ErrPrivateKeyNotFound
	}
	exported, err := e2ee.ExportPublicKey(pair.PublicKey)
	if err != nil {
		return ck, err
	}
	back, err := s.wrap(pair, exported, peer, active, senderID, wk.SenderKeyID)
	if err != nil {
		s.advance(ctx, conversationID, senderID, StateFailed)
		return ck, err
	}
	s.advance(ctx, conversationID, senderID, StateKeyWrapped)

	result, err := s.remote.KeyExchange(ctx, conversationID, KeyExchangeAction{WrappedKey: back})
	if err == nil {
		err = result.Err()
	} else {
		err = cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
	}
	if err != nil {
		s.advance(ctx, conversationID, senderID, StateFailed)
		return ck, err
	}
	s.advance(ctx, conversationID, senderID, StateNotified)
	return ck, nil
}

// RotateConversationKeys switches to a new key pair and conversation key.
// Previous keys stay readable locally while their records are retired
// remotely. Recipients that could not be notified are logged only.
func (s *KeyExchangeService) RotateConversationKeys(ctx context.Context, conversationID uuid.UUID) error {
	pair, err := s.keys.GenerateKeyPair()
	if err != nil {
		return err
	}
	exported, err := e2ee.ExportPublicKey(pair.PublicKey)
	if err != nil {
		return err
	}
	ck, err := e2ee.GenerateConversationKey(conversationID)
	if err != nil {
		return err
	}
	s.register(ck)

	self, err := s.wrap(pair, exported, pair.PublicKey, ck, s.userID, pair.KeyID)
	if err != nil {
		return err
	}
	req := &e2ee.KeyExchangeRequest{
		ConversationID: conversationID,
		ParticipantID:  s.userID,
		PublicKey:      exported,
		KeyID:          pair.KeyID,
		Timestamp:      e2ee.Now(),
	}

	result, err := s.remote.RotateKeys(ctx, conversationID, RotationAction{Request: req, SelfKey: self})
	if err != nil {
		return cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
	}
	for _, id := range result.Delivered {
		s.advance(ctx, conversationID, id, StateRequested)
	}
	for _, id := range result.Failed {
		s.log.WithContext(ctx).Warn("rotation notice not delivered",
			zap.String("conversation_id", conversationID.String()),
			zap.String("participant_id", id.String()))
	}

	s.log.WithContext(ctx).Info("conversation key rotated",
		zap.String("conversation_id", conversationID.String()),
		zap.String("key_id", pair.KeyID),
		zap.String("conversation_key_id", ck.KeyID))
	return nil
}

// GetEncryptionStatus summarizes the active key records of a conversation.
func (s *KeyExchangeService) GetEncryptionStatus(ctx context.Context, conversationID uuid.UUID) (encryption.Status, error) {
	records, err := s.remote.Keys(ctx, conversationID)
	if err != nil {
		return encryption.Status{}, cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
	}
	return encryption.BuildStatus(records), nil
}

// SyncKeys unwraps every active record addressed to this user whose key is
// not resident yet and returns how many were restored. Records wrapped for
// another device fail with ErrPrivateKeyNotFound and are skipped.
func (s *KeyExchangeService) SyncKeys(ctx context.Context, conversationID uuid.UUID) (int, error) {
	records, err := s.remote.Keys(ctx, conversationID)
	if err != nil {
		return 0, cv_errors.Wrap(cv_errors.ErrExchangeStorage, err)
	}

	restored := 0
	for _, record := range records {
		if record.ParticipantID != s.userID {
			continue
		}
		if _, ok := s.convKeys.Get(conversationID, record.KeyID); ok {
			continue
		}
		var wk e2ee.WrappedKey
		if err := json.Unmarshal([]byte(record.EncryptedKey), &wk); err != nil {
			s.log.WithContext(ctx).Warn("malformed key record", zap.String("key_id", record.KeyID), zap.Error(err))
			continue
		}
		if _, err := s.AcceptWrappedKey(ctx, &wk, false); err != nil {
			if !errors.Is(err, cv_errors.ErrPrivateKeyNotFound) {
				s.log.WithContext(ctx).Warn("key record not restored", zap.String("key_id", record.KeyID), zap.Error(err))
			}
			continue
		}
		restored++
	}
	return restored, nil
}

// localPair picks the pair named by keyID, or the current pair.
func (s *KeyExchangeService) localPair(keyID string) (*e2ee.KeyPair, bool) {
	if keyID != "" {
		return s.keys.Pair(keyID)
	}
	return s.keys.Current()
}

// register makes ck the sending key of its conversation.
func (s *KeyExchangeService) register(ck *e2ee.ConversationKey) {
	s.convKeys.Store(ck.ConversationID, ck.KeyID, ck)
	_ = s.convKeys.Activate(ck.ConversationID, ck.KeyID)
}

func (s *KeyExchangeService) wrap(pair *e2ee.KeyPair, exported string, peer *ecdh.PublicKey, ck *e2ee.ConversationKey, recipientID uuid.UUID, recipientKeyID string) (*e2ee.WrappedKey, error) {
	shared, err := s.keys.DeriveSharedKey(pair.KeyID, peer)
	if err != nil {
		return nil, err
	}
	encrypted, err := e2ee.WrapKey(shared, pair.KeyID, ck)
	if err != nil {
		return nil, err
	}
	return &e2ee.WrappedKey{
		ConversationID:  ck.ConversationID,
		KeyID:           ck.KeyID,
		EncryptedKey:    *encrypted,
		SenderID:        s.userID,
		SenderPublicKey: exported,
		SenderKeyID:     pair.KeyID,
		RecipientID:     recipientID,
		RecipientKeyID:  recipientKeyID,
		CreatedAt:       e2ee.Now(),
	}, nil
}

func (s *KeyExchangeService) advance(ctx context.Context, conversationID, participantID uuid.UUID, to ExchangeState) {
	if err := s.states.transition(conversationID, participantID, to); err != nil {
		s.log.WithContext(ctx).Warn("unexpected exchange transition",
			zap.String("conversation_id", conversationID.String()),
			zap.String("participant_id", participantID.String()),
			zap.Error(err))
	}
}

func (s *KeyExchangeService) failAll(conversationID uuid.UUID, ids []uuid.UUID) {
	for _, id := range ids {
		_ = s.states.transition(conversationID, id, StateFailed)
	}
}
