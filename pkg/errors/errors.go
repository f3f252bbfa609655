package cloudvault_errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyExists     = errors.New("already exists")
	ErrNotEnabled        = errors.New("encryption not enabled")
	ErrNotSupported      = errors.New("encryption not supported")
	ErrRateLimited       = errors.New("rate limited")
)

// Encryption core errors. Every public boundary of the key store, cipher and
// key exchange wraps provider failures into one of these kinds.
var (
	ErrKeyGeneration         = errors.New("key generation failed")
	ErrKeyExport             = errors.New("key export failed")
	ErrKeyImport             = errors.New("key import failed")
	ErrEncryption            = errors.New("encryption failed")
	ErrDecryption            = errors.New("decryption failed")
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrPrivateKeyNotFound    = errors.New("private key not found")
	ErrExchangeStorage       = errors.New("key exchange storage failed")
	ErrNotification          = errors.New("notification failed")
)

// Wrap tags cause with kind so callers can match on the kind with errors.Is
// while the cause stays available for logging.
func Wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	if errors.Is(cause, kind) {
		return cause
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
