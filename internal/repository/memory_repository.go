package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloudvault/internal/domain/conversation"
	"cloudvault/internal/domain/encryption"
	cv_errors "cloudvault/pkg/errors"

	"github.com/google/uuid"
)

// MemoryStore keeps every table in process memory. It backs local
// simulations and tests that need a working server without Postgres.
type MemoryStore struct {
	mu sync.Mutex

	publicKeys    map[string]encryption.PublicKey
	requests      []encryption.KeyExchangeRequest
	keys          []encryption.ConversationKey
	flags         map[uuid.UUID]encryption.ConversationEncryption
	participants  map[uuid.UUID][]uuid.UUID
	notifications []encryption.Notification

	last time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		publicKeys:   make(map[string]encryption.PublicKey),
		flags:        make(map[uuid.UUID]encryption.ConversationEncryption),
		participants: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *MemoryStore) Encryption() EncryptionRepository { return memoryEncryption{s} }

func (s *MemoryStore) Conversations() ConversationRepository { return memoryConversations{s} }

func (s *MemoryStore) Notifications() NotificationRepository { return memoryNotifications{s} }

// now is strictly increasing so creation order survives coarse clocks.
// Callers hold mu.
func (s *MemoryStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

type memoryEncryption struct{ s *MemoryStore }

func (r memoryEncryption) UpsertPublicKey(ctx context.Context, k *encryption.PublicKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.publicKeys[k.KeyID]; ok {
		if err := existing.CheckReuse(*k); err != nil {
			return err
		}
		existing.IsActive = k.IsActive
		r.s.publicKeys[k.KeyID] = existing
		return nil
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = r.s.now()
	}
	r.s.publicKeys[k.KeyID] = *k
	return nil
}

func (r memoryEncryption) GetPublicKey(ctx context.Context, keyID string) (encryption.PublicKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.publicKeys[keyID]
	if !ok {
		return encryption.PublicKey{}, cv_errors.ErrNotFound
	}
	return k, nil
}

func (r memoryEncryption) CreateKeyExchangeRequest(ctx context.Context, req *encryption.KeyExchangeRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = encryption.ExchangePending
	}
	r.s.requests = append(r.s.requests, *req)
	return nil
}

func (r memoryEncryption) UpdateKeyExchangeStatus(ctx context.Context, conversationID uuid.UUID, keyID string, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	found := false
	for i := range r.s.requests {
		if r.s.requests[i].ConversationID == conversationID && r.s.requests[i].KeyID == keyID {
			r.s.requests[i].Status = status
			found = true
		}
	}
	if !found {
		return cv_errors.ErrNotFound
	}
	return nil
}

func (r memoryEncryption) CreateConversationKey(ctx context.Context, k *encryption.ConversationKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	k.CreatedAt = r.s.now()
	r.s.keys = append(r.s.keys, *k)
	return nil
}

func (r memoryEncryption) GetActiveConversationKeys(ctx context.Context, conversationID uuid.UUID) ([]encryption.ConversationKey, error) {
	return r.activeKeys(func(k encryption.ConversationKey) bool {
		return k.ConversationID == conversationID
	}), nil
}

// activeKeys returns matching active records, newest first.
func (r memoryEncryption) activeKeys(match func(encryption.ConversationKey) bool) []encryption.ConversationKey {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []encryption.ConversationKey{}
	for _, k := range r.s.keys {
		if k.IsActive && match(k) {
			out = append(out, k)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r memoryEncryption) DeactivateConversationKeys(ctx context.Context, conversationID uuid.UUID, exceptKeyID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for i := range r.s.keys {
		k := &r.s.keys[i]
		if k.ConversationID == conversationID && k.IsActive && k.KeyID != exceptKeyID {
			k.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r memoryEncryption) GetConversationEncryption(ctx context.Context, conversationID uuid.UUID) (encryption.ConversationEncryption, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	flag, ok := r.s.flags[conversationID]
	if !ok {
		return encryption.ConversationEncryption{}, cv_errors.ErrNotFound
	}
	return flag, nil
}

func (r memoryEncryption) SetConversationEncryption(ctx context.Context, e *encryption.ConversationEncryption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.UpdatedAt = r.s.now()
	r.s.flags[e.ConversationID] = *e
	return nil
}

type memoryConversations struct{ s *MemoryStore }

func (r memoryConversations) AddParticipant(ctx context.Context, p *conversation.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.participants[p.ConversationID] {
		if id == p.UserID {
			return nil
		}
	}
	r.s.participants[p.ConversationID] = append(r.s.participants[p.ConversationID], p.UserID)
	return nil
}

func (r memoryConversations) GetParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]uuid.UUID{}, r.s.participants[conversationID]...), nil
}

func (r memoryConversations) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.participants[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type memoryNotifications struct{ s *MemoryStore }

func (r memoryNotifications) Create(ctx context.Context, n *encryption.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = r.s.now()
	r.s.notifications = append(r.s.notifications, *n)
	return nil
}

func (r memoryNotifications) GetUnread(ctx context.Context, conversationID, userID uuid.UUID) ([]encryption.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []encryption.Notification
	for _, n := range r.s.notifications {
		if n.ConversationID == conversationID && n.UserID == userID && !n.ReadAt.Valid {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r memoryNotifications) MarkRead(ctx context.Context, ids []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	read := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		read[id] = struct{}{}
	}
	now := r.s.now()
	for i := range r.s.notifications {
		if _, ok := read[r.s.notifications[i].ID]; ok {
			r.s.notifications[i].ReadAt.Time = now
			r.s.notifications[i].ReadAt.Valid = true
		}
	}
	return nil
}
