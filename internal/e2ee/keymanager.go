package e2ee

import (
	"sort"
	"sync"

	cv_errors "cloudvault/pkg/errors"

	"github.com/google/uuid"
)

// KeyManager is the single owner of conversation keys:
// conversationID -> keyID -> key, plus the key currently used for sending
// in each conversation. Superseded keys stay retrievable until removed.
type KeyManager struct {
	mu     sync.RWMutex
	keys   map[uuid.UUID]map[string]*ConversationKey
	active map[uuid.UUID]string
}

func NewKeyManager() *KeyManager {
	return &KeyManager{
		keys:   make(map[uuid.UUID]map[string]*ConversationKey),
		active: make(map[uuid.UUID]string),
	}
}

// Store registers key under (conversationID, keyID). Storing the same pair
// again replaces the previous key.
func (m *KeyManager) Store(conversationID uuid.UUID, keyID string, key *ConversationKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.keys[conversationID]
	if !ok {
		byID = make(map[string]*ConversationKey)
		m.keys[conversationID] = byID
	}
	byID[keyID] = key
}

// Get looks up a key. ok is false when the pair was never stored or has
// been removed.
func (m *KeyManager) Get(conversationID uuid.UUID, keyID string) (*ConversationKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[conversationID][keyID]
	return key, ok
}

// Remove deletes one key. Missing entries are ignored.
func (m *KeyManager) Remove(conversationID uuid.UUID, keyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.keys[conversationID]
	if !ok {
		return
	}
	delete(byID, keyID)
	if len(byID) == 0 {
		delete(m.keys, conversationID)
	}
	if m.active[conversationID] == keyID {
		delete(m.active, conversationID)
	}
}

// Activate selects keyID as the sending key for conversationID.
func (m *KeyManager) Activate(conversationID uuid.UUID, keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[conversationID][keyID]; !ok {
		return cv_errors.ErrNotFound
	}
	m.active[conversationID] = keyID
	return nil
}

// Active returns the sending key for conversationID.
func (m *KeyManager) Active(conversationID uuid.UUID) (*ConversationKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keyID, ok := m.active[conversationID]
	if !ok {
		return nil, false
	}
	key, ok := m.keys[conversationID][keyID]
	return key, ok
}

// KeyIDs lists the key ids held for conversationID in sorted order.
func (m *KeyManager) KeyIDs(conversationID uuid.UUID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.keys[conversationID]))
	for id := range m.keys[conversationID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasKeys reports whether any key is held for conversationID.
func (m *KeyManager) HasKeys(conversationID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys[conversationID]) > 0
}
