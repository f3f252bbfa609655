package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	cv_errors "cloudvault/pkg/errors"
	"cloudvault/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_IssueAndParse(t *testing.T) {
	svc := NewAuthService("test-secret", time.Minute)
	userID := uuid.New()

	token, err := svc.IssueAccessToken(userID)
	require.NoError(t, err)

	claims, err := svc.ParseAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
}

func TestAuthService_Rejects(t *testing.T) {
	svc := NewAuthService("test-secret", time.Minute)
	other := NewAuthService("other-secret", time.Minute)

	foreign, err := other.IssueAccessToken(uuid.New())
	require.NoError(t, err)

	expired := NewAuthService("test-secret", time.Minute)
	expired.accessTTL = -time.Minute
	stale, err := expired.IssueAccessToken(uuid.New())
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{UserID: uuid.NewString()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"wrong secret": foreign,
		"expired":      stale,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ParseAccessToken(token)
			assert.ErrorIs(t, err, cv_errors.ErrUnauthorized)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(cv_errors.ErrKeyImport))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(cv_errors.Wrap(cv_errors.ErrExchangeStorage, cv_errors.ErrForbidden)))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(cv_errors.ErrNotFound))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(cv_errors.ErrRateLimited))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(cv_errors.ErrExchangeStorage))
}

func TestUserContext(t *testing.T) {
	_, ok := UserIDFromContext(context.Background())
	assert.False(t, ok)

	id := uuid.New()
	ctx := WithUserContext(context.Background(), id)
	got, ok := UserIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.Equal(t, id.String(), ctx.Value(logger.UserIdKey))
}
