// Package e2ee holds the in-memory cryptographic core used by the
// conversation encryption services: P-256 key pairs, the AES-GCM message
// cipher and the per-conversation key table. Nothing in this package talks
// to the network or the database.
package e2ee

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	cv_errors "cloudvault/pkg/errors"

	"github.com/google/uuid"
)

// KeyPair is a local ECDH identity. The private half never leaves the
// KeyStore that generated it.
type KeyPair struct {
	KeyID     string
	PublicKey *ecdh.PublicKey
	CreatedAt time.Time
}

// KeyStore owns the local private keys, indexed by key id. The most
// recently generated pair is the current one used for new exchanges;
// older pairs stay resident for already-received material.
type KeyStore struct {
	mu      sync.RWMutex
	private map[string]*ecdh.PrivateKey
	pairs   map[string]*KeyPair
	current string
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		private: make(map[string]*ecdh.PrivateKey),
		pairs:   make(map[string]*KeyPair),
	}
}

// GenerateKeyPair creates a P-256 key pair usable for key agreement only and
// makes it the current pair.
func (s *KeyStore) GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, cv_errors.Wrap(cv_errors.ErrKeyGeneration, err)
	}

	pair := &KeyPair{
		KeyID:     uuid.NewString(),
		PublicKey: priv.PublicKey(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.private[pair.KeyID] = priv
	s.pairs[pair.KeyID] = pair
	s.current = pair.KeyID
	s.mu.Unlock()

	return pair, nil
}

// Current returns the pair used for new exchanges.
func (s *KeyStore) Current() (*KeyPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == "" {
		return nil, false
	}
	pair, ok := s.pairs[s.current]
	return pair, ok
}

// EnsureKeyPair returns the current pair, generating one on first use.
func (s *KeyStore) EnsureKeyPair() (*KeyPair, error) {
	if pair, ok := s.Current(); ok {
		return pair, nil
	}
	return s.GenerateKeyPair()
}

// Pair returns the pair registered under keyID.
func (s *KeyStore) Pair(keyID string) (*KeyPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, ok := s.pairs[keyID]
	return pair, ok
}

// DeriveSharedKey runs ECDH between the local private key keyID and peer.
// The 32-byte shared secret is used directly as an AES-256 key.
func (s *KeyStore) DeriveSharedKey(keyID string, peer *ecdh.PublicKey) (SymmetricKey, error) {
	s.mu.RLock()
	priv, ok := s.private[keyID]
	s.mu.RUnlock()
	if !ok {
		return SymmetricKey{}, cv_errors.ErrPrivateKeyNotFound
	}
	if peer == nil {
		return SymmetricKey{}, cv_errors.Wrap(cv_errors.ErrKeyImport, errors.New("nil peer public key"))
	}

	secret, err := priv.ECDH(peer)
	if err != nil {
		return SymmetricKey{}, cv_errors.Wrap(cv_errors.ErrKeyGeneration, err)
	}
	return NewSymmetricKey(secret)
}

// Remove forgets the pair keyID. Removing the current pair leaves the store
// without a current pair.
func (s *KeyStore) Remove(keyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.private, keyID)
	delete(s.pairs, keyID)
	if s.current == keyID {
		s.current = ""
	}
}

// Len reports how many pairs are resident.
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}

// ExportPublicKey encodes pub as base64 DER SubjectPublicKeyInfo.
func ExportPublicKey(pub *ecdh.PublicKey) (string, error) {
	if pub == nil {
		return "", cv_errors.Wrap(cv_errors.ErrKeyExport, errors.New("nil public key"))
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", cv_errors.Wrap(cv_errors.ErrKeyExport, err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPublicKey parses a base64 SPKI P-256 public key. Empty input,
// bad base64, a foreign curve and corrupt DER all fail with ErrKeyImport.
func ImportPublicKey(encoded string) (*ecdh.PublicKey, error) {
	if encoded == "" {
		return nil, cv_errors.Wrap(cv_errors.ErrKeyImport, errors.New("empty public key"))
	}
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, cv_errors.Wrap(cv_errors.ErrKeyImport, err)
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, cv_errors.Wrap(cv_errors.ErrKeyImport, err)
	}

	switch key := parsed.(type) {
	case *ecdsa.PublicKey:
		if key.Curve != elliptic.P256() {
			return nil, cv_errors.Wrap(cv_errors.ErrKeyImport, errors.New("unsupported curve "+key.Curve.Params().Name))
		}
		pub, err := key.ECDH()
		if err != nil {
			return nil, cv_errors.Wrap(cv_errors.ErrKeyImport, err)
		}
		return pub, nil
	case *ecdh.PublicKey:
		if key.Curve() != ecdh.P256() {
			return nil, cv_errors.Wrap(cv_errors.ErrKeyImport, errors.New("unsupported curve"))
		}
		return key, nil
	default:
		return nil, cv_errors.Wrap(cv_errors.ErrKeyImport, errors.New("not an elliptic-curve key"))
	}
}
