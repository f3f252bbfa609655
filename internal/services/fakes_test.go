package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"cloudvault/internal/domain/conversation"
	"cloudvault/internal/domain/encryption"
	"cloudvault/internal/events"
	"cloudvault/internal/proxy"
	cv_errors "cloudvault/pkg/errors"
	"cloudvault/pkg/logger"

	"github.com/google/uuid"
)

type memEncryptionRepo struct {
	mu         sync.Mutex
	publicKeys map[string]encryption.PublicKey
	requests   []encryption.KeyExchangeRequest
	keys       []encryption.ConversationKey
	flags      map[uuid.UUID]encryption.ConversationEncryption
	clock      time.Time

	failCreateKey error
}

func newMemEncryptionRepo() *memEncryptionRepo {
	return &memEncryptionRepo{
		publicKeys: make(map[string]encryption.PublicKey),
		flags:      make(map[uuid.UUID]encryption.ConversationEncryption),
		clock:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memEncryptionRepo) UpsertPublicKey(ctx context.Context, k *encryption.PublicKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.publicKeys[k.KeyID]; ok {
		if err := existing.CheckReuse(*k); err != nil {
			return err
		}
	}
	r.publicKeys[k.KeyID] = *k
	return nil
}

func (r *memEncryptionRepo) GetPublicKey(ctx context.Context, keyID string) (encryption.PublicKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.publicKeys[keyID]
	if !ok {
		return encryption.PublicKey{}, cv_errors.ErrNotFound
	}
	return k, nil
}

func (r *memEncryptionRepo) CreateKeyExchangeRequest(ctx context.Context, req *encryption.KeyExchangeRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req.ID = uuid.New()
	r.requests = append(r.requests, *req)
	return nil
}

func (r *memEncryptionRepo) UpdateKeyExchangeStatus(ctx context.Context, conversationID uuid.UUID, keyID string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := false
	for i := range r.requests {
		if r.requests[i].ConversationID == conversationID && r.requests[i].KeyID == keyID {
			r.requests[i].Status = status
			found = true
		}
	}
	if !found {
		return cv_errors.ErrNotFound
	}
	return nil
}

// CreateConversationKey stamps records with a monotonic clock so ordering
// does not depend on wall time resolution.
func (r *memEncryptionRepo) CreateConversationKey(ctx context.Context, k *encryption.ConversationKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateKey != nil {
		return r.failCreateKey
	}
	r.clock = r.clock.Add(time.Second)
	k.ID = uuid.New()
	k.CreatedAt = r.clock
	r.keys = append(r.keys, *k)
	return nil
}

func (r *memEncryptionRepo) GetActiveConversationKeys(ctx context.Context, conversationID uuid.UUID) ([]encryption.ConversationKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []encryption.ConversationKey
	for _, k := range r.keys {
		if k.ConversationID == conversationID && k.IsActive {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memEncryptionRepo) DeactivateConversationKeys(ctx context.Context, conversationID uuid.UUID, exceptKeyID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.keys {
		k := &r.keys[i]
		if k.ConversationID == conversationID && k.IsActive && k.KeyID != exceptKeyID {
			k.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *memEncryptionRepo) GetConversationEncryption(ctx context.Context, conversationID uuid.UUID) (encryption.ConversationEncryption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, ok := r.flags[conversationID]
	if !ok {
		return encryption.ConversationEncryption{}, cv_errors.ErrNotFound
	}
	return flag, nil
}

func (r *memEncryptionRepo) SetConversationEncryption(ctx context.Context, e *encryption.ConversationEncryption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[e.ConversationID] = *e
	return nil
}

// keyRecord returns every record, active or not, stored under keyID.
func (r *memEncryptionRepo) keyRecords(keyID string) []encryption.ConversationKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []encryption.ConversationKey
	for _, k := range r.keys {
		if k.KeyID == keyID {
			out = append(out, k)
		}
	}
	return out
}

type memConversationRepo struct {
	mu      sync.Mutex
	members map[uuid.UUID][]uuid.UUID
	err     error
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{members: make(map[uuid.UUID][]uuid.UUID)}
}

func (r *memConversationRepo) AddParticipant(ctx context.Context, p *conversation.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.members[p.ConversationID] {
		if id == p.UserID {
			return nil
		}
	}
	r.members[p.ConversationID] = append(r.members[p.ConversationID], p.UserID)
	return nil
}

func (r *memConversationRepo) GetParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return append([]uuid.UUID(nil), r.members[conversationID]...), nil
}

func (r *memConversationRepo) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.members[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type memNotificationRepo struct {
	mu    sync.Mutex
	items []encryption.Notification
	clock time.Time

	failFor map[uuid.UUID]bool
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{
		clock:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		failFor: make(map[uuid.UUID]bool),
	}
}

func (r *memNotificationRepo) Create(ctx context.Context, n *encryption.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[n.UserID] {
		return errors.New("insert failed")
	}
	r.clock = r.clock.Add(time.Millisecond)
	n.ID = uuid.New()
	n.CreatedAt = r.clock
	r.items = append(r.items, *n)
	return nil
}

func (r *memNotificationRepo) GetUnread(ctx context.Context, conversationID, userID uuid.UUID) ([]encryption.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []encryption.Notification
	for _, n := range r.items {
		if n.ConversationID == conversationID && n.UserID == userID && !n.ReadAt.Valid {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memNotificationRepo) MarkRead(ctx context.Context, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	read := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		read[id] = true
	}
	for i := range r.items {
		if read[r.items[i].ID] {
			r.items[i].ReadAt.Time = r.clock
			r.items[i].ReadAt.Valid = true
		}
	}
	return nil
}

func (r *memNotificationRepo) ofType(userID uuid.UUID, typ encryption.NotificationType) []encryption.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []encryption.Notification
	for _, n := range r.items {
		if n.UserID == userID && n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type recordingPublisher struct {
	mu        sync.Mutex
	published map[uuid.UUID][]events.Envelope
	err       error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{published: make(map[uuid.UUID][]events.Envelope)}
}

func (p *recordingPublisher) PublishToUser(ctx context.Context, userID uuid.UUID, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published[userID] = append(p.published[userID], env)
	return nil
}

// backend wires the server side on in-memory stores.
type backend struct {
	enc           *memEncryptionRepo
	conversations *memConversationRepo
	notifications *memNotificationRepo
	publisher     *recordingPublisher
	svc           *EncryptionService
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		enc:           newMemEncryptionRepo(),
		conversations: newMemConversationRepo(),
		notifications: newMemNotificationRepo(),
		publisher:     newRecordingPublisher(),
	}
	log := logger.NewNop()
	participants := NewParticipantService(b.conversations, nil, log)
	notifier := NewNotificationService(b.notifications, b.publisher, log)
	b.svc = NewEncryptionService(b.enc, participants, notifier, proxy.NewAccessControl(b.conversations), log)
	return b
}

// conversation creates a conversation with the given members.
func (b *backend) conversation(t *testing.T, members ...uuid.UUID) uuid.UUID {
	t.Helper()
	convID := uuid.New()
	for _, id := range members {
		_ = b.conversations.AddParticipant(context.Background(), &conversation.Participant{ConversationID: convID, UserID: id})
	}
	return convID
}

func (b *backend) session(userID uuid.UUID) *EncryptionSession {
	return NewEncryptionSession(userID, NewLocalActions(b.svc, userID), logger.NewNop())
}
