package e2ee

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"testing"

	cv_errors "cloudvault/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPair_BecomesCurrent(t *testing.T) {
	store := NewKeyStore()

	_, ok := store.Current()
	require.False(t, ok)

	first, err := store.GenerateKeyPair()
	require.NoError(t, err)
	require.NotEmpty(t, first.KeyID)
	require.Equal(t, ecdh.P256(), first.PublicKey.Curve())

	second, err := store.GenerateKeyPair()
	require.NoError(t, err)
	require.NotEqual(t, first.KeyID, second.KeyID)

	current, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, second.KeyID, current.KeyID)

	// older pairs remain usable for derivation
	_, ok = store.Pair(first.KeyID)
	assert.True(t, ok)
	assert.Equal(t, 2, store.Len())
}

func TestEnsureKeyPair_Reuses(t *testing.T) {
	store := NewKeyStore()

	a, err := store.EnsureKeyPair()
	require.NoError(t, err)
	b, err := store.EnsureKeyPair()
	require.NoError(t, err)

	assert.Equal(t, a.KeyID, b.KeyID)
	assert.Equal(t, 1, store.Len())
}

func TestExportImport_DerivesSameSecret(t *testing.T) {
	alice, bob := NewKeyStore(), NewKeyStore()
	a, err := alice.GenerateKeyPair()
	require.NoError(t, err)
	b, err := bob.GenerateKeyPair()
	require.NoError(t, err)

	aExported, err := ExportPublicKey(a.PublicKey)
	require.NoError(t, err)
	bExported, err := ExportPublicKey(b.PublicKey)
	require.NoError(t, err)

	aImported, err := ImportPublicKey(aExported)
	require.NoError(t, err)
	bImported, err := ImportPublicKey(bExported)
	require.NoError(t, err)
	assert.True(t, aImported.Equal(a.PublicKey))

	aliceSide, err := alice.DeriveSharedKey(a.KeyID, bImported)
	require.NoError(t, err)
	bobSide, err := bob.DeriveSharedKey(b.KeyID, aImported)
	require.NoError(t, err)

	assert.True(t, aliceSide.Equal(bobSide))
}

func TestImportPublicKey_Rejects(t *testing.T) {
	otherCurve, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	p384DER, err := x509.MarshalPKIXPublicKey(&otherCurve.PublicKey)
	require.NoError(t, err)

	x25519, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	x25519DER, err := x509.MarshalPKIXPublicKey(x25519.PublicKey())
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not base64", "%%%not-base64%%%"},
		{"garbage der", base64.StdEncoding.EncodeToString([]byte("definitely not a key"))},
		{"p384 curve", base64.StdEncoding.EncodeToString(p384DER)},
		{"x25519 curve", base64.StdEncoding.EncodeToString(x25519DER)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ImportPublicKey(tc.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, cv_errors.ErrKeyImport)
		})
	}
}

func TestExportPublicKey_Nil(t *testing.T) {
	_, err := ExportPublicKey(nil)
	assert.ErrorIs(t, err, cv_errors.ErrKeyExport)
}

func TestDeriveSharedKey_UnknownKeyID(t *testing.T) {
	store := NewKeyStore()
	pair, err := store.GenerateKeyPair()
	require.NoError(t, err)

	_, err = store.DeriveSharedKey("missing", pair.PublicKey)
	assert.ErrorIs(t, err, cv_errors.ErrPrivateKeyNotFound)
}

func TestRemove_ClearsCurrent(t *testing.T) {
	store := NewKeyStore()
	pair, err := store.GenerateKeyPair()
	require.NoError(t, err)

	store.Remove(pair.KeyID)
	store.Remove(pair.KeyID)

	_, ok := store.Current()
	assert.False(t, ok)
	_, err = store.DeriveSharedKey(pair.KeyID, pair.PublicKey)
	assert.ErrorIs(t, err, cv_errors.ErrPrivateKeyNotFound)
}
