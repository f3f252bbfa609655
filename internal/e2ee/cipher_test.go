package e2ee

import (
	"encoding/base64"
	"testing"
	"time"

	cv_errors "cloudvault/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *ConversationKey {
	t.Helper()
	key, err := GenerateConversationKey(uuid.New())
	require.NoError(t, err)
	return key
}

func flipBit(t *testing.T, encoded string, index int) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	raw[index%len(raw)] ^= 0x01
	return base64.StdEncoding.EncodeToString(raw)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := newKey(t)
	plaintexts := []string{"", "hello", "привет, мир", string(make([]byte, 4096)), "emoji 🔐 inside"}

	for _, p := range plaintexts {
		msg, err := EncryptMessage(p, key)
		require.NoError(t, err)
		assert.Equal(t, key.KeyID, msg.KeyID)

		out, err := DecryptMessage(msg, key)
		require.NoError(t, err)
		assert.Equal(t, p, out)
	}
}

func TestEncryptMessage_WireFormat(t *testing.T) {
	key := newKey(t)
	msg, err := EncryptMessage("hello", key)
	require.NoError(t, err)

	iv, err := base64.StdEncoding.DecodeString(msg.IV)
	require.NoError(t, err)
	assert.Len(t, iv, NonceSize)

	sig, err := base64.StdEncoding.DecodeString(msg.Signature)
	require.NoError(t, err)
	assert.Len(t, sig, 32)

	ct, err := base64.StdEncoding.DecodeString(msg.EncryptedContent)
	require.NoError(t, err)
	assert.Len(t, ct, len("hello")+16)

	ts, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
	assert.Equal(t, byte('Z'), msg.Timestamp[len(msg.Timestamp)-1])
}

func TestEncryptMessage_FreshNonce(t *testing.T) {
	key := newKey(t)
	a, err := EncryptMessage("same text", key)
	require.NoError(t, err)
	b, err := EncryptMessage("same text", key)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.EncryptedContent, b.EncryptedContent)
}

func TestDecryptMessage_TamperDetection(t *testing.T) {
	key := newKey(t)
	msg, err := EncryptMessage("transfer 100 credits to bob", key)
	require.NoError(t, err)

	ctLen := len("transfer 100 credits to bob") + 16
	for i := 0; i < ctLen; i++ {
		tampered := *msg
		tampered.EncryptedContent = flipBit(t, msg.EncryptedContent, i)
		_, err := DecryptMessage(&tampered, key)
		require.ErrorIs(t, err, cv_errors.ErrDecryption, "content byte %d", i)
	}
	for i := 0; i < NonceSize; i++ {
		tampered := *msg
		tampered.IV = flipBit(t, msg.IV, i)
		_, err := DecryptMessage(&tampered, key)
		require.ErrorIs(t, err, cv_errors.ErrDecryption, "iv byte %d", i)
	}
	for i := 0; i < 32; i++ {
		tampered := *msg
		tampered.Signature = flipBit(t, msg.Signature, i)
		out, err := DecryptMessage(&tampered, key)
		require.ErrorIs(t, err, cv_errors.ErrSignatureVerification, "signature byte %d", i)
		require.Empty(t, out)
	}
}

func TestDecryptMessage_MalformedFields(t *testing.T) {
	key := newKey(t)
	msg, err := EncryptMessage("x", key)
	require.NoError(t, err)

	shortIV := *msg
	shortIV.IV = base64.StdEncoding.EncodeToString([]byte("short"))
	_, err = DecryptMessage(&shortIV, key)
	assert.ErrorIs(t, err, cv_errors.ErrDecryption)

	badContent := *msg
	badContent.EncryptedContent = "***"
	_, err = DecryptMessage(&badContent, key)
	assert.ErrorIs(t, err, cv_errors.ErrDecryption)

	badSig := *msg
	badSig.Signature = "***"
	_, err = DecryptMessage(&badSig, key)
	assert.ErrorIs(t, err, cv_errors.ErrSignatureVerification)

	_, err = DecryptMessage(nil, key)
	assert.ErrorIs(t, err, cv_errors.ErrDecryption)

	_, err = DecryptMessage(msg, nil)
	assert.ErrorIs(t, err, cv_errors.ErrDecryption)
}

func TestDecryptMessage_KeyIsolation(t *testing.T) {
	k1, k2 := newKey(t), newKey(t)
	msg, err := EncryptMessage("for k1 only", k1)
	require.NoError(t, err)

	_, err = DecryptMessage(msg, k2)
	assert.ErrorIs(t, err, cv_errors.ErrDecryption)
}

func TestEncryptMessage_MissingKey(t *testing.T) {
	_, err := EncryptMessage("x", nil)
	assert.ErrorIs(t, err, cv_errors.ErrEncryption)

	_, err = EncryptMessage("x", &ConversationKey{KeyID: "k"})
	assert.ErrorIs(t, err, cv_errors.ErrEncryption)
}

func TestWrapUnwrap(t *testing.T) {
	shared, err := GenerateSymmetricKey()
	require.NoError(t, err)
	ck := newKey(t)

	wrapped, err := WrapKey(shared, "exchange-1", ck)
	require.NoError(t, err)
	assert.Equal(t, "exchange-1", wrapped.KeyID)

	out, err := UnwrapKey(shared, wrapped, ck.ConversationID, ck.KeyID)
	require.NoError(t, err)
	assert.True(t, out.Key.Equal(ck.Key))
	assert.Equal(t, ck.KeyID, out.KeyID)

	other, err := GenerateSymmetricKey()
	require.NoError(t, err)
	_, err = UnwrapKey(other, wrapped, ck.ConversationID, ck.KeyID)
	assert.ErrorIs(t, err, cv_errors.ErrDecryption)
}

func TestNewSymmetricKey_Length(t *testing.T) {
	_, err := NewSymmetricKey(make([]byte, 16))
	assert.Error(t, err)

	k, err := NewSymmetricKey(make([]byte, KeySize))
	require.NoError(t, err)
	assert.False(t, k.IsZero())

	imported, err := ImportKey(ExportKey(k))
	require.NoError(t, err)
	assert.True(t, imported.Equal(k))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported())
}
