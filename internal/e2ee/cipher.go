package e2ee

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	cv_errors "cloudvault/pkg/errors"

	"github.com/google/uuid"
)

const (
	KeySize   = 32
	NonceSize = 12

	// ISOTimeFormat matches JavaScript's Date.prototype.toISOString.
	ISOTimeFormat = "2006-01-02T15:04:05.000Z07:00"
)

// SymmetricKey is raw AES-256 key material.
type SymmetricKey struct {
	raw []byte
}

func NewSymmetricKey(raw []byte) (SymmetricKey, error) {
	if len(raw) != KeySize {
		return SymmetricKey{}, fmt.Errorf("symmetric key must be %d bytes, got %d", KeySize, len(raw))
	}
	b := make([]byte, KeySize)
	copy(b, raw)
	return SymmetricKey{raw: b}, nil
}

func GenerateSymmetricKey() (SymmetricKey, error) {
	b := make([]byte, KeySize)
	if _, err := rand.Read(b); err != nil {
		return SymmetricKey{}, cv_errors.Wrap(cv_errors.ErrKeyGeneration, err)
	}
	return SymmetricKey{raw: b}, nil
}

func (k SymmetricKey) IsZero() bool { return len(k.raw) == 0 }

func (k SymmetricKey) Equal(other SymmetricKey) bool {
	return len(k.raw) == len(other.raw) && subtle.ConstantTimeCompare(k.raw, other.raw) == 1
}

// ConversationKey is a symmetric key bound to one conversation.
type ConversationKey struct {
	ConversationID uuid.UUID
	KeyID          string
	Key            SymmetricKey
	CreatedAt      time.Time
}

// GenerateConversationKey creates a fresh key with a never-reused key id.
func GenerateConversationKey(conversationID uuid.UUID) (*ConversationKey, error) {
	key, err := GenerateSymmetricKey()
	if err != nil {
		return nil, err
	}
	return &ConversationKey{
		ConversationID: conversationID,
		KeyID:          uuid.NewString(),
		Key:            key,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// EncryptedMessage is the wire and storage form of one encrypted message.
type EncryptedMessage struct {
	EncryptedContent string `json:"encryptedContent"`
	IV               string `json:"iv"`
	KeyID            string `json:"keyId"`
	Signature        string `json:"signature"`
	Timestamp        string `json:"timestamp"`
}

// EncryptMessage seals plaintext with AES-256-GCM under a fresh random nonce
// and signs the plaintext with HMAC-SHA-256 keyed by the raw key material.
func EncryptMessage(plaintext string, key *ConversationKey) (*EncryptedMessage, error) {
	if key == nil || key.Key.IsZero() {
		return nil, cv_errors.Wrap(cv_errors.ErrEncryption, errors.New("missing key"))
	}
	aead, err := newGCM(key.Key)
	if err != nil {
		return nil, cv_errors.Wrap(cv_errors.ErrEncryption, err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, cv_errors.Wrap(cv_errors.ErrEncryption, err)
	}

	data := []byte(plaintext)
	ciphertext := aead.Seal(nil, nonce, data, nil)

	return &EncryptedMessage{
		EncryptedContent: base64.StdEncoding.EncodeToString(ciphertext),
		IV:               base64.StdEncoding.EncodeToString(nonce),
		KeyID:            key.KeyID,
		Signature:        base64.StdEncoding.EncodeToString(sign(key.Key, data)),
		Timestamp:        time.Now().UTC().Format(ISOTimeFormat),
	}, nil
}

// DecryptMessage opens msg with key. AEAD failures return ErrDecryption; a
// plaintext whose HMAC does not match returns ErrSignatureVerification and
// is discarded.
func DecryptMessage(msg *EncryptedMessage, key *ConversationKey) (string, error) {
	if msg == nil {
		return "", cv_errors.Wrap(cv_errors.ErrDecryption, errors.New("nil message"))
	}
	if key == nil || key.Key.IsZero() {
		return "", cv_errors.Wrap(cv_errors.ErrDecryption, errors.New("missing key"))
	}

	nonce, err := base64.StdEncoding.DecodeString(msg.IV)
	if err != nil {
		return "", cv_errors.Wrap(cv_errors.ErrDecryption, err)
	}
	if len(nonce) != NonceSize {
		return "", cv_errors.Wrap(cv_errors.ErrDecryption, fmt.Errorf("nonce must be %d bytes", NonceSize))
	}
	ciphertext, err := base64.StdEncoding.DecodeString(msg.EncryptedContent)
	if err != nil {
		return "", cv_errors.Wrap(cv_errors.ErrDecryption, err)
	}

	aead, err := newGCM(key.Key)
	if err != nil {
		return "", cv_errors.Wrap(cv_errors.ErrDecryption, err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", cv_errors.Wrap(cv_errors.ErrDecryption, err)
	}

	signature, err := base64.StdEncoding.DecodeString(msg.Signature)
	if err != nil {
		return "", cv_errors.Wrap(cv_errors.ErrSignatureVerification, err)
	}
	if !hmac.Equal(signature, sign(key.Key, plaintext)) {
		return "", cv_errors.ErrSignatureVerification
	}
	return string(plaintext), nil
}

// ExportKey serializes raw key material for wrapping.
func ExportKey(k SymmetricKey) string {
	return base64.StdEncoding.EncodeToString(k.raw)
}

// ImportKey is the inverse of ExportKey.
func ImportKey(encoded string) (SymmetricKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return SymmetricKey{}, err
	}
	return NewSymmetricKey(raw)
}

// WrapKey encrypts ck under the shared secret. wrapKeyID names the secret in
// the resulting message.
func WrapKey(shared SymmetricKey, wrapKeyID string, ck *ConversationKey) (*EncryptedMessage, error) {
	if ck == nil {
		return nil, cv_errors.Wrap(cv_errors.ErrEncryption, errors.New("nil conversation key"))
	}
	return EncryptMessage(ExportKey(ck.Key), &ConversationKey{KeyID: wrapKeyID, Key: shared})
}

// UnwrapKey reverses WrapKey and binds the key to conversationID/keyID.
func UnwrapKey(shared SymmetricKey, wrapped *EncryptedMessage, conversationID uuid.UUID, keyID string) (*ConversationKey, error) {
	encoded, err := DecryptMessage(wrapped, &ConversationKey{Key: shared})
	if err != nil {
		return nil, err
	}
	key, err := ImportKey(encoded)
	if err != nil {
		return nil, cv_errors.Wrap(cv_errors.ErrDecryption, err)
	}
	return &ConversationKey{
		ConversationID: conversationID,
		KeyID:          keyID,
		Key:            key,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Supported reports whether the runtime provides P-256 ECDH and AES-GCM.
func Supported() bool {
	store := NewKeyStore()
	pair, err := store.GenerateKeyPair()
	if err != nil {
		return false
	}
	shared, err := store.DeriveSharedKey(pair.KeyID, pair.PublicKey)
	if err != nil {
		return false
	}
	check := &ConversationKey{KeyID: "self-test", Key: shared}
	msg, err := EncryptMessage("self-test", check)
	if err != nil {
		return false
	}
	out, err := DecryptMessage(msg, check)
	return err == nil && out == "self-test"
}

func newGCM(key SymmetricKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key.raw)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func sign(key SymmetricKey, data []byte) []byte {
	mac := hmac.New(sha256.New, key.raw)
	mac.Write(data)
	return mac.Sum(nil)
}
